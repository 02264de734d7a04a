package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/png"
	"log/slog"
	"time"

	"github.com/gardar/ocrchestra/pkg/pdfocr"
	"github.com/gen2brain/go-fitz"
)

const (
	// RasterDPI is the resolution pages are rendered at before
	// recognition. 300 keeps small print legible without ballooning
	// the page images.
	RasterDPI = 300

	// MinWordConfidence is the recognition score a word must exceed to
	// make it into the text layer. Low-confidence tokens are usually
	// smudges and fold marks; keeping them would pollute search.
	MinWordConfidence = 60.0
)

// pageRaster is one rendered page image with its pixel dimensions.
type pageRaster struct {
	PNG      []byte
	WidthPx  int
	HeightPx int
}

// Transformer converts an image-only PDF into a searchable one. Every
// page is rasterized, recognized, and rebuilt as an image page with an
// invisible text layer at the recognized word positions.
type Transformer struct {
	engine    Engine
	log       *slog.Logger
	rasterize func(path string) ([]pageRaster, error)
	assemble  func(hocrDoc []byte, images [][]byte) ([]byte, error)
}

// TransformerOption adjusts a Transformer.
type TransformerOption func(*Transformer)

// WithRasterizer replaces the page renderer, for tests.
func WithRasterizer(fn func(path string) ([]pageRaster, error)) TransformerOption {
	return func(t *Transformer) { t.rasterize = fn }
}

// WithAssembler replaces the PDF assembler, for tests.
func WithAssembler(fn func(hocrDoc []byte, images [][]byte) ([]byte, error)) TransformerOption {
	return func(t *Transformer) { t.assemble = fn }
}

// NewTransformer builds a Transformer around the given engine.
func NewTransformer(engine Engine, log *slog.Logger, opts ...TransformerOption) *Transformer {
	t := &Transformer{
		engine:    engine,
		log:       log.With(slog.String("component", "ocr")),
		rasterize: rasterizePDF,
		assemble:  assemblePDF,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Transform OCRs the whole document and returns the searchable PDF
// bytes and the page count. Page order and count are preserved; a page
// that fails to rasterize or recognize aborts the document, partial
// output is never returned.
func (t *Transformer) Transform(ctx context.Context, path, lang string) ([]byte, int, error) {
	start := time.Now()

	rasters, err := t.rasterize(path)
	if err != nil {
		return nil, 0, fmt.Errorf("rasterize %s: %w", path, err)
	}
	if len(rasters) == 0 {
		return nil, 0, fmt.Errorf("rasterize %s: no pages", path)
	}

	layouts := make([]pageLayout, 0, len(rasters))
	images := make([][]byte, 0, len(rasters))
	for i, r := range rasters {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		res, err := t.engine.Recognize(ctx, Input{PNG: r.PNG, Lang: lang, DPI: RasterDPI})
		if err != nil {
			return nil, 0, fmt.Errorf("recognize page %d of %s: %w", i+1, path, err)
		}
		kept := filterWords(res.Words)
		t.log.Debug("page recognized",
			slog.String("path", path),
			slog.Int("page", i+1),
			slog.Int("words", len(res.Words)),
			slog.Int("kept", len(kept)))
		layouts = append(layouts, pageLayout{
			WidthPx:  r.WidthPx,
			HeightPx: r.HeightPx,
			Lang:     lang,
			Words:    kept,
		})
		images = append(images, r.PNG)
	}

	hocrDoc := renderHOCR(buildHOCR(layouts))
	out, err := t.assemble(hocrDoc, images)
	if err != nil {
		return nil, 0, fmt.Errorf("assemble %s: %w", path, err)
	}

	t.log.Info("document transformed",
		slog.String("path", path),
		slog.Int("pages", len(rasters)),
		slog.String("engine", t.engine.Name()),
		slog.Duration("elapsed", time.Since(start)))
	return out, len(rasters), nil
}

// filterWords drops words at or below the confidence floor and words
// whose text is empty. Pages where nothing survives still render, as
// image-only pages.
func filterWords(words []Word) []Word {
	kept := make([]Word, 0, len(words))
	for _, w := range words {
		if w.Confidence <= MinWordConfidence || w.Text == "" {
			continue
		}
		kept = append(kept, w)
	}
	return kept
}

func rasterizePDF(path string) ([]pageRaster, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	rasters := make([]pageRaster, 0, doc.NumPage())
	for i := 0; i < doc.NumPage(); i++ {
		png, err := doc.ImagePNG(i, RasterDPI)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", i+1, err)
		}
		cfg, _, err := image.DecodeConfig(bytes.NewReader(png))
		if err != nil {
			return nil, fmt.Errorf("decode page %d raster: %w", i+1, err)
		}
		rasters = append(rasters, pageRaster{PNG: png, WidthPx: cfg.Width, HeightPx: cfg.Height})
	}
	return rasters, nil
}

func assemblePDF(hocrDoc []byte, images [][]byte) ([]byte, error) {
	cfg := pdfocr.DefaultConfig()
	cfg.LogWarnings = false
	return pdfocr.AssembleWithOCR(hocrDoc, images, cfg)
}
