// Package naming expands the user-facing token patterns into concrete
// file names and folder paths. Tokens are the original product's French
// markers; translating them would break every deployed rule file.
package naming

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/apoussier/socrate/rules"
)

// Filename tokens.
const (
	TokenOriginalName = "[NOM_ORIGINAL]"
	TokenDate         = "[DATE]"
	TokenTime         = "[HEURE]"
	TokenCounter      = "[COMPTEUR]"
	TokenFileSize     = "[POIDS_FICHIER]"
	TokenPageCount    = "[NOMBRE_PAGES]"
)

// Folder tokens ([DATE] is shared with filenames).
const (
	TokenUsername = "[NOM_UTILISATEUR]"
	TokenHostname = "[NOM_ORDINATEUR]"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15-04-05"
)

// CounterSource hands out the next [COMPTEUR] value for a rule path.
type CounterSource interface {
	Next(rulePath string, reset rules.CounterReset, padding int) (string, error)
}

// Resolver expands token patterns. The clock, identity, and page-count
// sources are injectable so resolution is deterministic under test.
type Resolver struct {
	counter   CounterSource
	pageCount func(path string) int
	now       func() time.Time
	username  func() string
	hostname  func() string
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithIdentity overrides the username/hostname sources.
func WithIdentity(username, hostname func() string) Option {
	return func(r *Resolver) {
		r.username = username
		r.hostname = hostname
	}
}

// New creates a Resolver. pageCount may be nil when [NOMBRE_PAGES] is
// never used; it then expands to 0.
func New(counter CounterSource, pageCount func(path string) int, opts ...Option) *Resolver {
	r := &Resolver{
		counter:   counter,
		pageCount: pageCount,
		now:       time.Now,
		username:  currentUsername,
		hostname:  currentHostname,
	}
	if r.pageCount == nil {
		r.pageCount = func(string) int { return 0 }
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Filename expands the rule's rename pattern for the given source file.
// The [COMPTEUR] token consumes one counter value as a side effect, but
// only when the pattern actually contains it. The result is sanitized
// and the source file's extension is appended verbatim.
func (r *Resolver) Filename(rule rules.Rule, originalPath string) (string, error) {
	pattern := rule.RenamePattern
	if pattern == "" {
		pattern = rules.DefaultRenamePattern
	}

	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	now := r.now()
	name := pattern
	name = strings.ReplaceAll(name, TokenOriginalName, stem)
	name = strings.ReplaceAll(name, TokenDate, now.Format(dateLayout))
	name = strings.ReplaceAll(name, TokenTime, now.Format(timeLayout))

	if strings.Contains(name, TokenCounter) {
		value, err := r.counter.Next(rule.Path, rule.CounterReset, rule.CounterPadding)
		if err != nil {
			return "", fmt.Errorf("counter for %s: %w", rule.Path, err)
		}
		name = strings.ReplaceAll(name, TokenCounter, value)
	}
	if strings.Contains(name, TokenFileSize) {
		name = strings.ReplaceAll(name, TokenFileSize, fileSizeOf(originalPath))
	}
	if strings.Contains(name, TokenPageCount) {
		name = strings.ReplaceAll(name, TokenPageCount, strconv.Itoa(r.pageCount(originalPath)))
	}

	return Sanitize(name) + ext, nil
}

// DynamicPath expands the folder tokens of an output or archive path
// pattern and normalizes the result.
func (r *Resolver) DynamicPath(pattern string) string {
	now := r.now()
	path := pattern
	path = strings.ReplaceAll(path, TokenUsername, r.username())
	path = strings.ReplaceAll(path, TokenHostname, r.hostname())
	path = strings.ReplaceAll(path, TokenDate, now.Format(dateLayout))
	return filepath.Clean(path)
}

// Sanitize drops every character outside [A-Za-z0-9 ._-].
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == ' ' || c == '.' || c == '_' || c == '-':
			b.WriteRune(c)
		}
	}
	return b.String()
}

// FormatFileSize renders a byte count as a human-readable magnitude with
// one decimal place, using the original product's binary units.
func FormatFileSize(size int64) string {
	if size == 0 {
		return "0B"
	}
	units := []string{"B", "Ko", "Mo", "Go", "To"}
	value := float64(size)
	i := 0
	for value >= 1024 && i < len(units)-1 {
		value /= 1024
		i++
	}
	return fmt.Sprintf("%.1f%s", value, units[i])
}

func fileSizeOf(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "0B"
	}
	return FormatFileSize(info.Size())
}

func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}

func currentHostname() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "unknown"
}
