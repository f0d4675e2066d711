package store

import (
	"context"
	"database/sql"
	"fmt"
)

// WriteRun records a run with its project counts and placements in one
// transaction and returns the assigned seq. run.Seq is ignored.
//
// Writing an id that is already recorded returns ErrRunExists and leaves
// the ledger unchanged.
func (s *Store) WriteRun(ctx context.Context, run Run, placements []Placement) (int64, error) {
	classesJSON, err := marshalClasses(run.Classes)
	if err != nil {
		return 0, fmt.Errorf("write run: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM runs`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("write run: next seq: %w", err)
	}

	// The seed keeps its bit pattern; SQLite integers are signed.
	result, err := tx.ExecContext(ctx, `
		INSERT INTO runs
		(id, seq, mode, seed, input_dir, output_dir, classes, fingerprint, images, accepted, rejected)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		seq,
		run.Mode,
		int64(run.Seed),
		run.InputDir,
		run.OutputDir,
		classesJSON,
		run.Fingerprint,
		run.Images,
		run.Accepted,
		run.Rejected,
	)
	if err != nil {
		return 0, fmt.Errorf("write run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("write run: rows affected: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("write run %s: %w", run.ID, ErrRunExists)
	}

	if err := writeProjects(ctx, tx, run); err != nil {
		return 0, err
	}
	if err := writePlacements(ctx, tx, run.ID, placements); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("write run: commit: %w", err)
	}
	return seq, nil
}

func writeProjects(ctx context.Context, tx *sql.Tx, run Run) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO project_stats
		(run_id, position, project, images, skipped_images, empty_images, accepted, rejected, rejections)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("write project stats: prepare: %w", err)
	}
	defer stmt.Close()

	for i, p := range run.Projects {
		rejections, err := marshalRejections(p.Rejections)
		if err != nil {
			return fmt.Errorf("write project stats: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			run.ID, i, p.Name, p.Images, p.SkippedImages, p.EmptyImages, p.Accepted, p.Rejected, rejections,
		); err != nil {
			return fmt.Errorf("write project stats %q: %w", p.Name, err)
		}
	}
	return nil
}

func writePlacements(ctx context.Context, tx *sql.Tx, runID string, placements []Placement) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO assignments (run_id, image_id, split, output_name)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("write assignments: prepare: %w", err)
	}
	defer stmt.Close()

	for _, p := range placements {
		if _, err := stmt.ExecContext(ctx, runID, p.ImageID, p.Split, p.OutputName); err != nil {
			return fmt.Errorf("write assignment for image %d: %w", p.ImageID, err)
		}
	}
	return nil
}
