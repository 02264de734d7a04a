package rules

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// configFile is the on-disk shape of the rule list. The key name is kept
// from the original product so existing config files keep working.
type configFile struct {
	MonitoredConfigs []Rule `json:"monitored_configs"`
}

// Store owns the rule list and its JSON file. All mutations rewrite the
// file wholesale under the store's mutex.
type Store struct {
	path string
	log  *slog.Logger

	mu    sync.Mutex
	rules []Rule
}

// Load reads the rule file at path. A missing or corrupt file yields an
// empty store with a warning, never an error.
func Load(path string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{path: path, log: log}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("rules: unreadable config file, starting empty", "path", path, "error", err)
		}
		return s
	}

	var cf configFile
	if err := json.Unmarshal(data, &cf); err != nil {
		log.Warn("rules: corrupt config file, starting empty", "path", path, "error", err)
		return s
	}
	for i := range cf.MonitoredConfigs {
		cf.MonitoredConfigs[i].Normalize()
	}
	s.rules = cf.MonitoredConfigs
	return s
}

// List returns a copy of all rules.
func (s *Store) List() []Rule {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Get returns the rule for a folder path.
func (s *Store) Get(path string) (Rule, bool) {
	path = filepath.Clean(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rules {
		if r.Path == path {
			return r, true
		}
	}
	return Rule{}, false
}

// Add appends a new rule. The folder path must not already be watched.
func (s *Store) Add(r Rule) error {
	r.Normalize()
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rules {
		if existing.Path == r.Path {
			return ErrExists
		}
	}
	s.rules = append(s.rules, r)
	return s.save()
}

// Update replaces the rule for r.Path. Edits apply to files processed
// after the update; in-flight files keep the rule they started with.
func (s *Store) Update(r Rule) error {
	r.Normalize()
	if err := r.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.rules {
		if existing.Path == r.Path {
			s.rules[i] = r
			return s.save()
		}
	}
	return ErrNotFound
}

// Remove deletes the rule for a folder path.
func (s *Store) Remove(path string) error {
	path = filepath.Clean(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.rules {
		if existing.Path == path {
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			return s.save()
		}
	}
	return ErrNotFound
}

// save rewrites the whole file. Caller holds s.mu.
func (s *Store) save() error {
	data, err := json.MarshalIndent(configFile{MonitoredConfigs: s.rules}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal rules: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write rules: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace rules file: %w", err)
	}
	return nil
}
