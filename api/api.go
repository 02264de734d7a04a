// Package api is the daemon's admin surface: rule CRUD, processing
// history, and a live log stream. It is meant for the local management
// UI, not for exposure beyond the host.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/apoussier/socrate/history"
	"github.com/apoussier/socrate/observability"
	"github.com/apoussier/socrate/rules"
)

// RuleStore is the subset of the rule store the API needs.
type RuleStore interface {
	List() []rules.Rule
	Add(r rules.Rule) error
	Update(r rules.Rule) error
	Remove(path string) error
}

// HistoryLister reads processing outcomes. May be nil.
type HistoryLister interface {
	List(limit int) ([]history.Entry, error)
}

// Server serves the admin API.
type Server struct {
	log     *slog.Logger
	store   RuleStore
	hist    HistoryLister
	stream  *observability.Stream
	changed func()
}

// NewServer builds the API around the given stores. changed is invoked
// after every successful rule mutation so the daemon can re-arm the
// watcher; it may be nil.
func NewServer(log *slog.Logger, store RuleStore, hist HistoryLister, stream *observability.Stream, changed func()) *Server {
	return &Server{
		log:     log.With(slog.String("component", "api")),
		store:   store,
		hist:    hist,
		stream:  stream,
		changed: changed,
	}
}

// Router returns the chi router for the admin API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/rules", s.listRules)
		r.Post("/rules", s.addRule)
		r.Put("/rules", s.updateRule)
		r.Delete("/rules", s.removeRule)
		r.Get("/history", s.listHistory)
		r.Get("/logs/stream", s.streamLogs)
	})
	return r
}

func (s *Server) listRules(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, 200, s.store.List())
}

func (s *Server) addRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := decodeRule(w, r)
	if !ok {
		return
	}
	if err := s.store.Add(rule); err != nil {
		writeStoreError(w, err)
		return
	}
	s.log.Info("rule added", slog.String("folder", rule.Path))
	s.notifyChanged()
	writeJSON(w, 201, map[string]any{"ok": true})
}

func (s *Server) updateRule(w http.ResponseWriter, r *http.Request) {
	rule, ok := decodeRule(w, r)
	if !ok {
		return
	}
	if err := s.store.Update(rule); err != nil {
		writeStoreError(w, err)
		return
	}
	s.log.Info("rule updated", slog.String("folder", rule.Path))
	s.notifyChanged()
	writeJSON(w, 200, map[string]any{"ok": true})
}

func (s *Server) removeRule(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeJSON(w, 400, map[string]any{"ok": false, "error": "path query parameter is required"})
		return
	}
	if err := s.store.Remove(path); err != nil {
		writeStoreError(w, err)
		return
	}
	s.log.Info("rule removed", slog.String("folder", path))
	s.notifyChanged()
	writeJSON(w, 200, map[string]any{"ok": true})
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	if s.hist == nil {
		writeJSON(w, 200, []history.Entry{})
		return
	}
	limit := queryInt(r, "limit", 100)
	entries, err := s.hist.List(limit)
	if err != nil {
		writeJSON(w, 500, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	writeJSON(w, 200, entries)
}

// streamLogs sends log lines as server-sent events until the client
// disconnects.
func (s *Server) streamLogs(w http.ResponseWriter, r *http.Request) {
	if s.stream == nil {
		http.Error(w, "log stream unavailable", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	lines, cancel := s.stream.Subscribe()
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", line)
			flusher.Flush()
		}
	}
}

func (s *Server) notifyChanged() {
	if s.changed != nil {
		s.changed()
	}
}

func decodeRule(w http.ResponseWriter, r *http.Request) (rules.Rule, bool) {
	var rule rules.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, 400, map[string]any{"ok": false, "error": err.Error()})
		return rules.Rule{}, false
	}
	rule.Normalize()
	if err := rule.Validate(); err != nil {
		writeJSON(w, 400, map[string]any{"ok": false, "error": err.Error()})
		return rules.Rule{}, false
	}
	return rule, true
}

func writeStoreError(w http.ResponseWriter, err error) {
	code := 400
	switch {
	case errors.Is(err, rules.ErrExists):
		code = 409
	case errors.Is(err, rules.ErrNotFound):
		code = 404
	}
	writeJSON(w, code, map[string]any{"ok": false, "error": err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string, def int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
