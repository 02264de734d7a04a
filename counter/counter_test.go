package counter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/apoussier/socrate/rules"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestNeverResetSequence(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "state.json"))
	for i := 1; i <= 12; i++ {
		got, err := s.Next("/watch/in", rules.ResetNever, 3)
		if err != nil {
			t.Fatal(err)
		}
		want := fmt.Sprintf("%03d", i)
		if got != want {
			t.Fatalf("call %d: got %q, want %q", i, got, want)
		}
	}
}

func TestIndependentRulePaths(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "state.json"))
	if v, _ := s.Next("/a", rules.ResetNever, 1); v != "1" {
		t.Errorf("first /a = %q", v)
	}
	if v, _ := s.Next("/b", rules.ResetNever, 1); v != "1" {
		t.Errorf("first /b = %q, want its own sequence", v)
	}
	if v, _ := s.Next("/a", rules.ResetNever, 1); v != "2" {
		t.Errorf("second /a = %q", v)
	}
}

func TestDailyReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	day1 := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	s := New(path, WithClock(fixedClock(day1)))
	s.Next("/in", rules.ResetDaily, 2)
	if v, _ := s.Next("/in", rules.ResetDaily, 2); v != "02" {
		t.Fatalf("same day: got %q, want 02", v)
	}

	day2 := day1.Add(24 * time.Hour)
	s2 := New(path, WithClock(fixedClock(day2)))
	if v, _ := s2.Next("/in", rules.ResetDaily, 2); v != "01" {
		t.Errorf("next day: got %q, want reset to 01", v)
	}
}

func TestMonthlyAndYearlyReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	jan := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	nextYear := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)

	s := New(path, WithClock(fixedClock(jan)))
	s.Next("/m", rules.ResetMonthly, 1)
	s.Next("/y", rules.ResetYearly, 1)
	s.Next("/y", rules.ResetYearly, 1)

	s = New(path, WithClock(fixedClock(feb)))
	if v, _ := s.Next("/m", rules.ResetMonthly, 1); v != "1" {
		t.Errorf("month boundary: got %q, want 1", v)
	}
	if v, _ := s.Next("/y", rules.ResetYearly, 1); v != "3" {
		t.Errorf("same year: got %q, want 3", v)
	}

	s = New(path, WithClock(fixedClock(nextYear)))
	if v, _ := s.Next("/y", rules.ResetYearly, 1); v != "1" {
		t.Errorf("year boundary: got %q, want 1", v)
	}
}

// Padding is a minimum width: once the value outgrows it, digits win.
func TestPaddingIsMinimumWidth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	today := time.Now().Format("2006-01-02")
	seed := fmt.Sprintf(`{"counters": {"/in": {"value": 999, "last_used": %q}}}`, today)
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(path)
	got, err := s.Next("/in", rules.ResetNever, 3)
	if err != nil {
		t.Fatal(err)
	}
	if got != "1000" {
		t.Errorf("got %q, want 1000", got)
	}
}

func TestCorruptStateStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("][ nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := New(path)
	if v, _ := s.Next("/in", rules.ResetNever, 3); v != "001" {
		t.Errorf("got %q, want 001 after corrupt state", v)
	}
}

func TestPersistedAfterEveryCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := New(path)
	s.Next("/in", rules.ResetNever, 3)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var state struct {
		Counters map[string]Record `json:"counters"`
	}
	if err := json.Unmarshal(data, &state); err != nil {
		t.Fatal(err)
	}
	if state.Counters["/in"].Value != 1 {
		t.Errorf("persisted value = %d, want 1", state.Counters["/in"].Value)
	}
}

// Concurrent consumption for one rule path must not lose increments.
func TestConcurrentNext(t *testing.T) {
	const n = 40
	s := New(filepath.Join(t.TempDir(), "state.json"))

	var wg sync.WaitGroup
	seen := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.Next("/in", rules.ResetNever, 1)
			if err != nil {
				t.Error(err)
				return
			}
			seen <- v
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[string]bool)
	max := 0
	for v := range seen {
		if unique[v] {
			t.Fatalf("value %q assigned twice", v)
		}
		unique[v] = true
		if n, _ := strconv.Atoi(v); n > max {
			max = n
		}
	}
	if len(unique) != n || max != n {
		t.Errorf("got %d unique values, max %d; want %d/%d", len(unique), max, n, n)
	}
}
