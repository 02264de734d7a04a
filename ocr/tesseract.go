package ocr

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine recognizes pages with a local Tesseract installation
// through gosseract. A fresh client is created per page; recognition of
// a page is CPU-bound and long, so client setup is noise.
type TesseractEngine struct {
	cfg EngineConfig
}

// NewTesseractEngine creates the default engine.
func NewTesseractEngine(cfg EngineConfig) *TesseractEngine {
	return &TesseractEngine{cfg: cfg}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

// Recognize runs Tesseract on one page image and returns word-level
// boxes with confidences.
func (e *TesseractEngine) Recognize(ctx context.Context, in Input) (Result, error) {
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	client := gosseract.NewClient()
	defer client.Close()

	if e.cfg.TessdataPrefix != "" {
		if err := client.SetTessdataPrefix(e.cfg.TessdataPrefix); err != nil {
			return Result{}, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if in.Lang != "" {
		if err := client.SetLanguage(in.Lang); err != nil {
			return Result{}, fmt.Errorf("set language %q: %w", in.Lang, err)
		}
	}
	if in.DPI > 0 {
		if err := client.SetVariable("user_defined_dpi", fmt.Sprint(in.DPI)); err != nil {
			return Result{}, fmt.Errorf("set dpi: %w", err)
		}
	}
	for k, v := range e.cfg.Variables {
		if err := client.SetVariable(gosseract.SettableVariable(k), v); err != nil {
			return Result{}, fmt.Errorf("set variable %s: %w", k, err)
		}
	}
	if err := client.SetImageFromBytes(in.PNG); err != nil {
		return Result{}, fmt.Errorf("set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxesVerbose()
	if err != nil {
		return Result{}, fmt.Errorf("recognize: %w", err)
	}

	words := make([]Word, 0, len(boxes))
	for _, b := range boxes {
		words = append(words, Word{
			Text:       b.Word,
			X:          b.Box.Min.X,
			Y:          b.Box.Min.Y,
			W:          b.Box.Dx(),
			H:          b.Box.Dy(),
			Confidence: b.Confidence,
			Line:       lineKey(b.BlockNum, b.ParNum, b.LineNum),
		})
	}
	return Result{Words: words}, nil
}

// lineKey folds Tesseract's block/paragraph/line numbering into one
// page-unique line identifier.
func lineKey(block, par, line int) int {
	return block*1_000_000 + par*1_000 + line
}
