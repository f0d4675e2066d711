package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/flxnaf/beamestraight/internal/corpus"
)

// IDGenerator produces run identifiers.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 run ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Run is one recorded conversion.
type Run struct {
	ID          string                `json:"id"`
	Seq         int64                 `json:"seq"`
	Mode        string                `json:"mode"`
	Seed        uint64                `json:"seed"`
	InputDir    string                `json:"input_dir"`
	OutputDir   string                `json:"output_dir"`
	Classes     []string              `json:"classes"`
	Fingerprint string                `json:"fingerprint"`
	Images      int                   `json:"images"`
	Accepted    int                   `json:"accepted"`
	Rejected    int                   `json:"rejected"`
	Projects    []corpus.ProjectStats `json:"projects"`
}

// Created returns the timestamp embedded in a UUIDv7 run id, or the zero
// time for ids of any other form.
func (r Run) Created() time.Time {
	id, err := uuid.Parse(r.ID)
	if err != nil || id.Version() != 7 {
		return time.Time{}
	}
	sec, nsec := id.Time().UnixTime()
	return time.Unix(sec, nsec).UTC()
}

// Placement records the subset and file name of one written image.
type Placement struct {
	ImageID    int64  `json:"image_id"`
	Split      string `json:"split"`
	OutputName string `json:"output_name"`
}
