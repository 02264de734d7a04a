package history

import (
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndList(t *testing.T) {
	s := openTestStore(t)

	entries := []Entry{
		{SourcePath: "/in/a.pdf", OutputPath: "/in/Processed_OCR/a_ocr.pdf",
			Disposition: "keep", Status: StatusProcessed, Pages: 3, Duration: 4 * time.Second},
		{SourcePath: "/in/b.pdf", Disposition: "keep", Status: StatusSkipped},
		{SourcePath: "/in/c.pdf", Disposition: "archive", Status: StatusFailed, Error: "ocr: boom"},
	}
	base := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	for i := range entries {
		entries[i].CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := s.Record(entries[i]); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.List(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].SourcePath != "/in/c.pdf" {
		t.Errorf("newest first: got %q", got[0].SourcePath)
	}
	if got[0].Status != StatusFailed || got[0].Error != "ocr: boom" {
		t.Errorf("failed entry = %+v", got[0])
	}
	if got[2].Pages != 3 || got[2].Duration != 4*time.Second {
		t.Errorf("processed entry = %+v", got[2])
	}
	if got[2].ID == "" {
		t.Error("ID not generated")
	}
}

func TestListLimit(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		if err := s.Record(Entry{SourcePath: "/in/x.pdf", Disposition: "keep", Status: StatusProcessed}); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.List(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

func TestCleanupRemovesOldEntries(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	old := Entry{SourcePath: "/in/old.pdf", Disposition: "keep", Status: StatusProcessed,
		CreatedAt: now.AddDate(0, 0, -40)}
	fresh := Entry{SourcePath: "/in/fresh.pdf", Disposition: "keep", Status: StatusProcessed,
		CreatedAt: now.AddDate(0, 0, -5)}
	for _, e := range []Entry{old, fresh} {
		if err := s.Record(e); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.Cleanup(30)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("removed = %d, want 1", n)
	}
	got, err := s.List(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].SourcePath != "/in/fresh.pdf" {
		t.Errorf("remaining = %+v", got)
	}
}

func TestCleanupDisabled(t *testing.T) {
	s := openTestStore(t)
	if err := s.Record(Entry{SourcePath: "/in/a.pdf", Disposition: "keep", Status: StatusProcessed,
		CreatedAt: time.Now().AddDate(-1, 0, 0)}); err != nil {
		t.Fatal(err)
	}
	n, err := s.Cleanup(0)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("removed = %d with retention disabled", n)
	}
}
