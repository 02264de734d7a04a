// Package counter persists the per-rule [COMPTEUR] sequence. State lives
// in a single JSON file that is re-read and rewritten on every
// consumption, so external edits take effect on the next call.
package counter

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/apoussier/socrate/rules"
)

const dateLayout = "2006-01-02"

// Record is the persisted state for one rule path.
type Record struct {
	Value    int    `json:"value"`
	LastUsed string `json:"last_used"`
}

type stateFile struct {
	Counters map[string]Record `json:"counters"`
}

// Store hands out counter values. Calls for the same rule path are
// serialized by a per-path mutex; the file read-modify-write itself is
// serialized by fileMu so concurrent rules cannot lose each other's
// updates.
type Store struct {
	path string
	now  func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	fileMu sync.Mutex
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store persisting to the given file path.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:  path,
		now:   time.Now,
		locks: make(map[string]*sync.Mutex),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Next consumes one counter value for the rule path and returns it
// zero-padded. The value resets to 1 when the reset policy's period
// boundary has been crossed since the last use; otherwise it increments
// by one. State is persisted before returning.
func (s *Store) Next(rulePath string, reset rules.CounterReset, padding int) (string, error) {
	if padding < 1 {
		padding = rules.DefaultCounterPadding
	}
	if padding > rules.MaxCounterPadding {
		padding = rules.MaxCounterPadding
	}

	lock := s.ruleLock(rulePath)
	lock.Lock()
	defer lock.Unlock()

	s.fileMu.Lock()
	defer s.fileMu.Unlock()

	state := s.load()
	rec, ok := state.Counters[rulePath]
	if !ok {
		rec = Record{Value: 0, LastUsed: "1970-01-01"}
	}

	today := s.now()
	value := rec.Value + 1
	if resetDue(reset, rec.LastUsed, today) {
		value = 1
	}

	state.Counters[rulePath] = Record{Value: value, LastUsed: today.Format(dateLayout)}
	if err := s.persist(state); err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", padding, value), nil
}

func (s *Store) ruleLock(rulePath string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[rulePath]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[rulePath] = lock
	}
	return lock
}

// load reads the state file. Missing or corrupt state starts empty.
func (s *Store) load() stateFile {
	state := stateFile{Counters: make(map[string]Record)}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return state
	}
	if err := json.Unmarshal(data, &state); err != nil || state.Counters == nil {
		return stateFile{Counters: make(map[string]Record)}
	}
	return state
}

func (s *Store) persist(state stateFile) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal counter state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write counter state: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace counter state: %w", err)
	}
	return nil
}

// resetDue reports whether the policy's period boundary lies between the
// last-used date and today. An unparseable last-used date counts as the
// epoch, which resets every policy except Never.
func resetDue(reset rules.CounterReset, lastUsed string, today time.Time) bool {
	last, err := time.Parse(dateLayout, lastUsed)
	if err != nil {
		last = time.Unix(0, 0).UTC()
	}
	switch reset {
	case rules.ResetDaily:
		ly, lm, ld := last.Date()
		ty, tm, td := today.Date()
		return ly != ty || lm != tm || ld != td
	case rules.ResetMonthly:
		return last.Year() != today.Year() || last.Month() != today.Month()
	case rules.ResetYearly:
		return last.Year() != today.Year()
	default:
		return false
	}
}
