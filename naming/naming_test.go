package naming

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apoussier/socrate/rules"
)

type fakeCounter struct {
	value string
	calls int
}

func (f *fakeCounter) Next(string, rules.CounterReset, int) (string, error) {
	f.calls++
	return f.value, nil
}

func fixedResolver(c CounterSource, pages func(string) int) *Resolver {
	at := time.Date(2026, 8, 28, 14, 30, 5, 0, time.UTC)
	return New(c, pages,
		WithClock(func() time.Time { return at }),
		WithIdentity(func() string { return "alice" }, func() string { return "workstation" }),
	)
}

func TestFormatFileSize(t *testing.T) {
	cases := []struct {
		size int64
		want string
	}{
		{0, "0B"},
		{1, "1.0B"},
		{512, "512.0B"},
		{1024, "1.0Ko"},
		{1536, "1.5Ko"},
		{1048576, "1.0Mo"},
		{5 * 1024 * 1024 * 1024, "5.0Go"},
		{2 * 1024 * 1024 * 1024 * 1024, "2.0To"},
	}
	for _, tc := range cases {
		if got := FormatFileSize(tc.size); got != tc.want {
			t.Errorf("FormatFileSize(%d) = %q, want %q", tc.size, got, tc.want)
		}
	}
}

func TestSanitize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"invoice_ocr", "invoice_ocr"},
		{"a/b\\c:d", "abcd"},
		{"été 2026", "t 2026"},
		{"x[1]y", "x1y"},
		{"report v1.2 - final_", "report v1.2 - final_"},
	}
	for _, tc := range cases {
		if got := Sanitize(tc.in); got != tc.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFilenameExpandsTokens(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "invoice.pdf")
	if err := os.WriteFile(src, make([]byte, 2048), 0o644); err != nil {
		t.Fatal(err)
	}

	fc := &fakeCounter{value: "007"}
	r := fixedResolver(fc, func(string) int { return 3 })

	rule := rules.Rule{
		Path:          dir,
		RenamePattern: "[NOM_ORIGINAL]_[DATE]_[HEURE]_[COMPTEUR]_[POIDS_FICHIER]_[NOMBRE_PAGES]",
	}
	got, err := r.Filename(rule, src)
	if err != nil {
		t.Fatal(err)
	}
	want := "invoice_2026-08-28_14-30-05_007_2.0Ko_3.pdf"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if fc.calls != 1 {
		t.Errorf("counter consumed %d times, want 1", fc.calls)
	}
}

func TestFilenameCounterOnlyConsumedWhenPresent(t *testing.T) {
	fc := &fakeCounter{value: "001"}
	r := fixedResolver(fc, nil)

	rule := rules.Rule{Path: "/in", RenamePattern: "[NOM_ORIGINAL]_ocr"}
	got, err := r.Filename(rule, "/in/scan.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if got != "scan_ocr.pdf" {
		t.Errorf("got %q", got)
	}
	if fc.calls != 0 {
		t.Errorf("counter consumed %d times, want 0", fc.calls)
	}
}

// Tokens not part of the vocabulary stay literal (minus the brackets the
// sanitizer strips).
func TestFilenameUnknownTokenStaysLiteral(t *testing.T) {
	r := fixedResolver(&fakeCounter{value: "1"}, nil)
	rule := rules.Rule{Path: "/in", RenamePattern: "[NOM_ORIGINAL]-[MYSTERE]"}
	got, err := r.Filename(rule, "/in/doc.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if got != "doc-MYSTERE.pdf" {
		t.Errorf("got %q", got)
	}
}

func TestFilenamePreservesExtension(t *testing.T) {
	r := fixedResolver(&fakeCounter{value: "1"}, nil)
	rule := rules.Rule{Path: "/in", RenamePattern: "[NOM_ORIGINAL]"}
	got, err := r.Filename(rule, "/in/archive.PDF")
	if err != nil {
		t.Fatal(err)
	}
	if got != "archive.PDF" {
		t.Errorf("got %q, want extension preserved verbatim", got)
	}
}

func TestFilenameMissingSourceSizeFallsBack(t *testing.T) {
	r := fixedResolver(&fakeCounter{value: "1"}, nil)
	rule := rules.Rule{Path: "/in", RenamePattern: "[NOM_ORIGINAL]_[POIDS_FICHIER]_[NOMBRE_PAGES]"}
	got, err := r.Filename(rule, "/in/ghost.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if got != "ghost_0B_0.pdf" {
		t.Errorf("got %q", got)
	}
}

func TestDynamicPath(t *testing.T) {
	r := fixedResolver(&fakeCounter{value: "1"}, nil)
	got := r.DynamicPath(filepath.Join("/archive", "[NOM_ORDINATEUR]", "[NOM_UTILISATEUR]", "[DATE]"))
	want := filepath.Clean("/archive/workstation/alice/2026-08-28")
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
