// Package pipeline drives one PDF from detection to placement: skip
// already-searchable files, OCR the rest, then place, rename, and
// archive according to the folder's rule. Temp files and atomic moves
// live here; the OCR transformer only produces bytes.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/apoussier/socrate/history"
	"github.com/apoussier/socrate/naming"
	"github.com/apoussier/socrate/pdfcheck"
	"github.com/apoussier/socrate/rules"
)

// Transformer produces the searchable PDF bytes for a source document.
type Transformer interface {
	Transform(ctx context.Context, path, lang string) ([]byte, int, error)
}

// Recorder persists processing outcomes. *history.Store satisfies it.
type Recorder interface {
	Record(e history.Entry) error
}

// Dispatcher applies a folder rule to one file at a time. All file
// probes are injectable so dispositions can be tested without a real
// OCR stack.
type Dispatcher struct {
	log      *slog.Logger
	resolver *naming.Resolver
	trans    Transformer
	rec      Recorder

	hasText  func(path string) (bool, error)
	validate func(path string) error
}

// DispatcherOption adjusts a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTextProbe replaces the searchable-text check.
func WithTextProbe(fn func(path string) (bool, error)) DispatcherOption {
	return func(d *Dispatcher) { d.hasText = fn }
}

// WithValidator replaces the produced-output PDF validation.
func WithValidator(fn func(path string) error) DispatcherOption {
	return func(d *Dispatcher) { d.validate = fn }
}

// NewDispatcher builds a Dispatcher. rec may be nil when no history is
// kept.
func NewDispatcher(log *slog.Logger, resolver *naming.Resolver, trans Transformer, rec Recorder, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		log:      log.With(slog.String("component", "pipeline")),
		resolver: resolver,
		trans:    trans,
		rec:      rec,
		hasText:  pdfcheck.HasText,
		validate: func(path string) error { return api.ValidateFile(path, nil) },
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Process runs the full pipeline for one stable file under the given
// rule. Errors are returned for logging but never stop the watch loop;
// the source file is left untouched on any failure.
func (d *Dispatcher) Process(ctx context.Context, rule rules.Rule, path string) error {
	start := time.Now()
	log := d.log.With(slog.String("path", path))

	searchable, err := d.hasText(path)
	if err != nil {
		log.Warn("text probe failed, sending through OCR", slog.String("error", err.Error()))
	}
	if searchable {
		log.Info("already searchable, skipping")
		d.record(history.Entry{
			SourcePath:  path,
			Disposition: string(rule.SourceAction),
			Status:      history.StatusSkipped,
			Duration:    time.Since(start),
		})
		return nil
	}

	name, err := d.resolver.Filename(rule, path)
	if err != nil {
		return d.fail(rule, path, start, 0, fmt.Errorf("resolve name: %w", err))
	}

	// Overwrite replaces the source in its own folder; the output
	// destination setting only applies to the other dispositions.
	outDir := filepath.Dir(path)
	if rule.SourceAction != rules.ActionOverwrite {
		outDir = d.outputDir(rule, path)
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return d.fail(rule, path, start, 0, fmt.Errorf("create output folder %s: %w", outDir, err))
	}
	finalPath := filepath.Join(outDir, name)
	tempPath := filepath.Join(outDir, fmt.Sprintf(".%s.%s.tmp", name, uuid.NewString()[:8]))

	data, pages, err := d.trans.Transform(ctx, path, rule.Lang)
	if err != nil {
		return d.fail(rule, path, start, 0, fmt.Errorf("transform: %w", err))
	}
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		os.Remove(tempPath)
		return d.fail(rule, path, start, pages, fmt.Errorf("write temp output: %w", err))
	}
	if err := d.validate(tempPath); err != nil {
		os.Remove(tempPath)
		return d.fail(rule, path, start, pages, fmt.Errorf("validate output: %w", err))
	}

	if rule.SourceAction == rules.ActionArchive {
		archiveDir := d.resolver.DynamicPath(rule.ArchivePathPattern)
		if err := os.MkdirAll(archiveDir, 0o755); err != nil {
			os.Remove(tempPath)
			return d.fail(rule, path, start, pages, fmt.Errorf("create archive folder %s: %w", archiveDir, err))
		}
		archived := filepath.Join(archiveDir, filepath.Base(path))
		if err := moveFile(path, archived); err != nil {
			os.Remove(tempPath)
			return d.fail(rule, path, start, pages, fmt.Errorf("archive original: %w", err))
		}
		log.Info("original archived", slog.String("archive", archived))
	}

	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return d.fail(rule, path, start, pages, fmt.Errorf("place output: %w", err))
	}

	if rule.SourceAction == rules.ActionOverwrite && finalPath != path {
		if err := os.Remove(path); err != nil {
			log.Warn("could not remove original after overwrite", slog.String("error", err.Error()))
		}
	}

	log.Info("processed",
		slog.String("output", finalPath),
		slog.Int("pages", pages),
		slog.String("disposition", string(rule.SourceAction)),
		slog.Duration("elapsed", time.Since(start)))
	d.record(history.Entry{
		SourcePath:  path,
		OutputPath:  finalPath,
		Disposition: string(rule.SourceAction),
		Status:      history.StatusProcessed,
		Pages:       pages,
		Duration:    time.Since(start),
	})
	return nil
}

// outputDir resolves where the produced file goes. The default is a
// Processed_OCR subfolder next to the source.
func (d *Dispatcher) outputDir(rule rules.Rule, path string) string {
	srcDir := filepath.Dir(path)
	switch rule.OutputDestType {
	case rules.DestSameFolder:
		return srcDir
	case rules.DestSpecific:
		return d.resolver.DynamicPath(rule.OutputPathPattern)
	default:
		return filepath.Join(srcDir, rules.ProcessedSubfolder)
	}
}

func (d *Dispatcher) fail(rule rules.Rule, path string, start time.Time, pages int, err error) error {
	d.log.Error("processing failed",
		slog.String("path", path),
		slog.String("error", err.Error()))
	d.record(history.Entry{
		SourcePath:  path,
		Disposition: string(rule.SourceAction),
		Status:      history.StatusFailed,
		Error:       err.Error(),
		Pages:       pages,
		Duration:    time.Since(start),
	})
	return err
}

func (d *Dispatcher) record(e history.Entry) {
	if d.rec == nil {
		return
	}
	if err := d.rec.Record(e); err != nil {
		d.log.Warn("history record failed", slog.String("error", err.Error()))
	}
}

// moveFile renames src to dst, falling back to copy-and-delete when the
// destination is on another filesystem.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
