package cli

import (
	"context"
	"errors"
	"io/fs"

	"github.com/flxnaf/beamestraight/internal/config"
	"github.com/flxnaf/beamestraight/internal/dataset"
	"github.com/flxnaf/beamestraight/internal/export"
	"github.com/flxnaf/beamestraight/internal/pipeline"
	"github.com/flxnaf/beamestraight/internal/split"
	"github.com/flxnaf/beamestraight/internal/store"
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeInterrupted   = "E002" // Cancelled by signal
	ErrCodeNoExports     = "E003" // No annotation exports found
	ErrCodeLedger        = "E004" // Run ledger unavailable
	ErrCodeNotFound      = "E005" // Path or run not found
	ErrCodeOutputExists  = "E006" // Output directory not empty
	ErrCodeWriteFailed   = "E007" // File write error
	ErrCodeConfigInvalid = "E008" // Invalid settings
	ErrCodeEmptyCorpus   = "E009" // No image survived conversion
	ErrCodeVerifyFailed  = "E010" // Dataset verification failed
)

// errLedger marks failures to open the run ledger.
var errLedger = errors.New("run ledger unavailable")

// classify maps an error onto its code and exit status.
func classify(err error) (code string, exit int) {
	var pathErr *fs.PathError
	switch {
	case errors.Is(err, config.ErrInvalid):
		return ErrCodeConfigInvalid, ExitCommandError
	case errors.Is(err, errLedger):
		return ErrCodeLedger, ExitCommandError
	case errors.Is(err, pipeline.ErrInputNotFound), errors.Is(err, store.ErrRunNotFound), errors.Is(err, fs.ErrNotExist):
		return ErrCodeNotFound, ExitCommandError
	case errors.Is(err, export.ErrNoExports):
		return ErrCodeNoExports, ExitCommandError
	case errors.Is(err, dataset.ErrOutputExists):
		return ErrCodeOutputExists, ExitCommandError
	case errors.Is(err, split.ErrEmptyCorpus):
		return ErrCodeEmptyCorpus, ExitFailure
	case errors.Is(err, dataset.ErrVerificationFailed):
		return ErrCodeVerifyFailed, ExitFailure
	case errors.Is(err, context.Canceled):
		return ErrCodeInterrupted, ExitFailure
	case errors.As(err, &pathErr):
		return ErrCodeWriteFailed, ExitFailure
	}
	return ErrCodeGeneric, ExitFailure
}

// fail reports err through the formatter and returns the matching ExitError.
func fail(formatter *OutputFormatter, err error) error {
	code, exit := classify(err)
	_ = formatter.Error(code, err.Error(), nil)
	return WrapExitError(exit, code, err)
}
