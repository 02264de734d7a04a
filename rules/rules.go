// Package rules holds the per-folder processing configuration and its
// persistent JSON store. One rule per watched folder path; the store
// rewrites the whole file on every mutation.
package rules

import (
	"errors"
	"fmt"
	"path/filepath"
)

// SourceAction says what happens to the original file after a successful run.
type SourceAction string

const (
	ActionKeep      SourceAction = "keep"
	ActionArchive   SourceAction = "archive"
	ActionOverwrite SourceAction = "overwrite"
)

// OutputDest selects where the produced file is placed.
type OutputDest string

const (
	DestSubfolder  OutputDest = "subfolder"
	DestSameFolder OutputDest = "same_folder"
	DestSpecific   OutputDest = "specific"
)

// CounterReset is the reset period of the [COMPTEUR] token.
type CounterReset string

const (
	ResetNever   CounterReset = "never"
	ResetDaily   CounterReset = "daily"
	ResetMonthly CounterReset = "monthly"
	ResetYearly  CounterReset = "yearly"
)

const (
	// DefaultRenamePattern is applied when a rule has no pattern.
	DefaultRenamePattern = "[NOM_ORIGINAL]_ocr"
	// ProcessedSubfolder is the default output subfolder name.
	ProcessedSubfolder = "Processed_OCR"
	// DefaultCounterPadding is the zero-padding width when unset.
	DefaultCounterPadding = 3
	// MaxCounterPadding caps the zero-padding width.
	MaxCounterPadding = 10
)

var (
	// ErrExists means a rule already watches this folder path.
	ErrExists = errors.New("rule already exists for this folder")
	// ErrNotFound means no rule watches this folder path.
	ErrNotFound = errors.New("no rule for this folder")
)

// Rule is the processing configuration for one watched folder.
type Rule struct {
	Path               string       `json:"path"`
	Lang               string       `json:"lang"`
	SourceAction       SourceAction `json:"source_action"`
	ArchivePathPattern string       `json:"archive_path_pattern,omitempty"`
	OutputDestType     OutputDest   `json:"output_dest_type"`
	OutputPathPattern  string       `json:"output_path_pattern,omitempty"`
	RenamePattern      string       `json:"rename_pattern"`
	CounterReset       CounterReset `json:"counter_reset"`
	CounterPadding     int          `json:"counter_padding"`
}

// Normalize cleans the path and fills defaults for empty fields so that
// rules loaded from older config files stay usable.
func (r *Rule) Normalize() {
	if r.Path != "" {
		r.Path = filepath.Clean(r.Path)
	}
	if r.Lang == "" {
		r.Lang = "eng"
	}
	if r.SourceAction == "" {
		r.SourceAction = ActionKeep
	}
	if r.OutputDestType == "" {
		r.OutputDestType = DestSubfolder
	}
	if r.RenamePattern == "" {
		r.RenamePattern = DefaultRenamePattern
	}
	if r.CounterReset == "" {
		r.CounterReset = ResetNever
	}
	if r.CounterPadding <= 0 {
		r.CounterPadding = DefaultCounterPadding
	}
	if r.CounterPadding > MaxCounterPadding {
		r.CounterPadding = MaxCounterPadding
	}
}

// Validate checks that the rule is internally consistent. It assumes
// Normalize has run.
func (r *Rule) Validate() error {
	if r.Path == "" {
		return fmt.Errorf("path is required")
	}
	if !filepath.IsAbs(r.Path) {
		return fmt.Errorf("path %q must be absolute", r.Path)
	}
	switch r.SourceAction {
	case ActionKeep, ActionArchive, ActionOverwrite:
	default:
		return fmt.Errorf("unsupported source_action %q", r.SourceAction)
	}
	if r.SourceAction == ActionArchive && r.ArchivePathPattern == "" {
		return fmt.Errorf("archive_path_pattern is required when source_action is %q", ActionArchive)
	}
	switch r.OutputDestType {
	case DestSubfolder, DestSameFolder, DestSpecific:
	default:
		return fmt.Errorf("unsupported output_dest_type %q", r.OutputDestType)
	}
	if r.OutputDestType == DestSpecific && r.OutputPathPattern == "" {
		return fmt.Errorf("output_path_pattern is required when output_dest_type is %q", DestSpecific)
	}
	switch r.CounterReset {
	case ResetNever, ResetDaily, ResetMonthly, ResetYearly:
	default:
		return fmt.Errorf("unsupported counter_reset %q", r.CounterReset)
	}
	if r.CounterPadding < 1 || r.CounterPadding > MaxCounterPadding {
		return fmt.Errorf("counter_padding must be between 1 and %d", MaxCounterPadding)
	}
	return nil
}
