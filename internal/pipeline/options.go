package pipeline

import (
	"errors"
	"log/slog"

	"github.com/flxnaf/beamestraight/internal/config"
	"github.com/flxnaf/beamestraight/internal/corpus"
	"github.com/flxnaf/beamestraight/internal/split"
	"github.com/flxnaf/beamestraight/internal/store"
)

// ErrInputNotFound is returned when the input directory does not exist.
var ErrInputNotFound = errors.New("input directory not found")

// Options configures one conversion run.
type Options struct {
	Mode        corpus.Mode
	InputDir    string
	OutputDir   string
	Ratios      split.Ratios
	Seed        uint64
	Workers     int
	Classes     []string
	ClassPolicy corpus.ClassPolicy
	FoldUnknown bool
	DropEmpty   bool
	Clean       bool
	KeepWork    bool

	// Ledger records the run when set.
	Ledger *store.Store
	// IDs generates run ids; nil uses store.UUIDv7Generator.
	IDs    store.IDGenerator
	Logger *slog.Logger
}

// FromConfig builds run options from validated settings.
func FromConfig(cfg config.Config) (Options, error) {
	if err := cfg.Validate(); err != nil {
		return Options{}, err
	}
	mode, err := corpus.ParseMode(cfg.Mode)
	if err != nil {
		return Options{}, err
	}
	policy, err := corpus.ParseClassPolicy(cfg.ClassPolicy)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Mode:        mode,
		InputDir:    cfg.Input,
		OutputDir:   cfg.OutputDir(),
		Ratios:      cfg.Ratios(),
		Seed:        cfg.Seed,
		Workers:     cfg.Workers,
		Classes:     append([]string(nil), cfg.Classes...),
		ClassPolicy: policy,
		FoldUnknown: cfg.FoldUnknown,
		DropEmpty:   cfg.DropEmpty,
		Clean:       cfg.Clean,
		KeepWork:    cfg.KeepWork,
	}, nil
}

func (o *Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o *Options) ids() store.IDGenerator {
	if o.IDs == nil {
		return store.UUIDv7Generator{}
	}
	return o.IDs
}
