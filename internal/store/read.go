package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/flxnaf/beamestraight/internal/corpus"
)

const runColumns = `id, seq, mode, seed, input_dir, output_dir, classes, fingerprint, images, accepted, rejected`

type scanner interface {
	Scan(dest ...any) error
}

// ListRuns returns recorded runs in seq order. A non-empty outputDir
// restricts the list to runs that wrote there.
//
// Returns an empty slice (not nil) if no runs match.
func (s *Store) ListRuns(ctx context.Context, outputDir string) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	if outputDir != "" {
		query += ` WHERE output_dir = ?`
		args = append(args, outputDir)
	}
	query += ` ORDER BY seq ASC, id COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	rows.Close()

	for i := range runs {
		projects, err := s.readProjects(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Projects = projects
	}
	return runs, nil
}

// ReadRun returns the run with the given id.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	return s.finishRun(ctx, row, id)
}

// LatestByOutput returns the most recent run that wrote to outputDir.
func (s *Store) LatestByOutput(ctx context.Context, outputDir string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE output_dir = ?
		ORDER BY seq DESC
		LIMIT 1
	`, outputDir)
	return s.finishRun(ctx, row, outputDir)
}

func (s *Store) finishRun(ctx context.Context, row *sql.Row, key string) (Run, error) {
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%s: %w", key, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, err
	}
	run.Projects, err = s.readProjects(ctx, run.ID)
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// ReadAssignments returns the placements of a run ordered by split then
// image id.
func (s *Store) ReadAssignments(ctx context.Context, runID string) ([]Placement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT image_id, split, output_name
		FROM assignments
		WHERE run_id = ?
		ORDER BY split COLLATE BINARY ASC, image_id ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer rows.Close()

	placements := []Placement{}
	for rows.Next() {
		var p Placement
		if err := rows.Scan(&p.ImageID, &p.Split, &p.OutputName); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		placements = append(placements, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}
	return placements, nil
}

func (s *Store) readProjects(ctx context.Context, runID string) ([]corpus.ProjectStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT project, images, skipped_images, empty_images, accepted, rejected, rejections
		FROM project_stats
		WHERE run_id = ?
		ORDER BY position ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query project stats: %w", err)
	}
	defer rows.Close()

	projects := []corpus.ProjectStats{}
	for rows.Next() {
		var (
			p          corpus.ProjectStats
			rejections string
		)
		if err := rows.Scan(&p.Name, &p.Images, &p.SkippedImages, &p.EmptyImages, &p.Accepted, &p.Rejected, &rejections); err != nil {
			return nil, fmt.Errorf("scan project stats: %w", err)
		}
		if p.Rejections, err = unmarshalRejections(rejections); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project stats: %w", err)
	}
	return projects, nil
}

func scanRun(row scanner) (Run, error) {
	var (
		run     Run
		seed    int64
		classes string
	)
	err := row.Scan(
		&run.ID, &run.Seq, &run.Mode, &seed, &run.InputDir, &run.OutputDir,
		&classes, &run.Fingerprint, &run.Images, &run.Accepted, &run.Rejected,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, err
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Seed = uint64(seed)
	if run.Classes, err = unmarshalClasses(classes); err != nil {
		return Run{}, err
	}
	return run, nil
}
