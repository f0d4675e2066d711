// Package config loads conversion settings from an optional YAML file.
//
// A file is first checked against an embedded CUE schema, so that type
// errors and unknown keys are reported with file positions, then decoded
// over the defaults. Command-line flags are applied on top by the caller
// and the merged result is checked with Validate.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"

	"github.com/flxnaf/beamestraight/internal/corpus"
	"github.com/flxnaf/beamestraight/internal/split"
)

//go:embed schema.cue
var schemaSource string

// ErrInvalid marks every configuration error.
var ErrInvalid = errors.New("invalid configuration")

// Error is a configuration error, positioned when it came from a file.
type Error struct {
	Pos     token.Pos
	Field   string
	Message string
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Pos.IsValid() {
		fmt.Fprintf(&b, "%s:%d:%d: ", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column())
	}
	if e.Field != "" {
		b.WriteString(e.Field + ": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

func (e *Error) Unwrap() error { return ErrInvalid }

// Config holds every conversion setting.
type Config struct {
	Mode        string   `yaml:"mode"`
	Input       string   `yaml:"input"`
	Output      string   `yaml:"output"`
	TrainRatio  float64  `yaml:"train_ratio"`
	TestRatio   float64  `yaml:"test_ratio"`
	Seed        uint64   `yaml:"seed"`
	Workers     int      `yaml:"workers"`
	Classes     []string `yaml:"classes"`
	ClassPolicy string   `yaml:"class_policy"`
	FoldUnknown bool     `yaml:"fold_unknown"`
	DropEmpty   bool     `yaml:"drop_empty"`
	Clean       bool     `yaml:"clean"`
	KeepWork    bool     `yaml:"keep_work"`
	DB          string   `yaml:"db"`
}

// Default returns the settings of the single-class teeth datasets.
func Default() Config {
	return Config{
		Mode:        string(corpus.ModeOBB),
		Input:       "Training Data",
		TrainRatio:  0.8,
		Seed:        42,
		Classes:     []string{"teeth"},
		ClassPolicy: string(corpus.ClassFixed),
		FoldUnknown: true,
	}
}

// OutputDir returns Output, or datasets/teeth-<mode> when unset.
func (c Config) OutputDir() string {
	if c.Output != "" {
		return c.Output
	}
	return "datasets/teeth-" + c.Mode
}

// Ratios returns the split ratios.
func (c Config) Ratios() split.Ratios {
	return split.Ratios{Train: c.TrainRatio, Test: c.TestRatio}
}

// Load returns the defaults overlaid with the YAML file at path.
// An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	// Comment-only and empty documents decode to a nil map.
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfg, &Error{Message: fmt.Sprintf("%s: %v", path, err)}
	}
	if raw == nil {
		return cfg, nil
	}
	if err := checkSchema(path, data); err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &Error{Message: fmt.Sprintf("%s: %v", path, err)}
	}
	return cfg, nil
}

// checkSchema unifies the file with #Config and reports the first
// violation with its position in the file.
func checkSchema(path string, data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	file, err := cueyaml.Extract(path, data)
	if err != nil {
		return &Error{Message: fmt.Sprintf("%s: %v", path, err)}
	}
	value := ctx.BuildFile(file)
	if err := value.Err(); err != nil {
		return cueError(err)
	}
	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return cueError(err)
	}
	return nil
}

func cueError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Message: err.Error()}
	}
	first := errs[0]
	format, args := first.Msg()
	out := &Error{
		Pos:     first.Position(),
		Field:   strings.Join(first.Path(), "."),
		Message: fmt.Sprintf(format, args...),
	}
	// Conflicts are positioned on the schema; prefer the file position.
	for _, p := range first.InputPositions() {
		if p.IsValid() && p.Filename() != "schema.cue" {
			out.Pos = p
			break
		}
	}
	if len(errs) > 1 {
		out.Message += fmt.Sprintf(" (and %d more)", len(errs)-1)
	}
	return out
}

// Validate checks the merged settings.
func (c Config) Validate() error {
	if _, err := corpus.ParseMode(c.Mode); err != nil {
		return &Error{Field: "mode", Message: err.Error()}
	}
	if _, err := corpus.ParseClassPolicy(c.ClassPolicy); err != nil {
		return &Error{Field: "class_policy", Message: err.Error()}
	}
	if err := c.Ratios().Validate(); err != nil {
		return &Error{Field: "train_ratio", Message: err.Error()}
	}
	if c.Input == "" {
		return &Error{Field: "input", Message: "must not be empty"}
	}
	if c.Workers < 0 {
		return &Error{Field: "workers", Message: "must not be negative"}
	}
	for _, name := range c.Classes {
		if strings.TrimSpace(name) == "" {
			return &Error{Field: "classes", Message: "class names must not be blank"}
		}
	}
	if len(c.Classes) == 0 && c.ClassPolicy != string(corpus.ClassDiscover) {
		return &Error{Field: "classes", Message: "at least one class is required unless class_policy is discover"}
	}
	return nil
}
