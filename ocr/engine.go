// Package ocr turns image-only PDF pages into searchable ones: each page
// is rasterized, recognized by an OCR engine, and rebuilt with an
// invisible text layer at the recognized word positions.
//
// The engine contract is deliberately small so providers can be backed
// by native libraries or remote services without leaking specifics into
// the pipeline.
package ocr

import "context"

// Word is a single recognized token in raster pixel coordinates, origin
// at the upper-left corner of the page image.
type Word struct {
	Text string
	// X, Y, W, H bound the word in pixels at the rasterization DPI.
	X, Y, W, H int
	// Confidence is the engine's 0-100 recognition score.
	Confidence float64
	// Line groups words sharing a baseline; values are only meaningful
	// relative to each other within one page.
	Line int
}

// Input is one page image submitted for recognition.
type Input struct {
	// PNG is the encoded page raster.
	PNG []byte
	// Lang is the engine's language code (e.g. "fra", "eng").
	Lang string
	// DPI is the raster resolution, passed through to the engine's
	// layout heuristics.
	DPI int
}

// Result is the recognition output for one page image.
type Result struct {
	Words []Word
}

// Engine recognizes one page image at a time.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, in Input) (Result, error)
}

// EngineConfig carries engine installation settings, resolved once at
// startup and injected rather than set through process environment.
type EngineConfig struct {
	// TessdataPrefix points at the trained-data directory. Empty means
	// the engine's own default lookup.
	TessdataPrefix string
	// Variables are extra engine knobs applied to every recognition.
	Variables map[string]string
}
