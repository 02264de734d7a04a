package api

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/apoussier/socrate/history"
	"github.com/apoussier/socrate/observability"
	"github.com/apoussier/socrate/rules"
)

type fakeHistory struct {
	entries []history.Entry
	limit   int
}

func (f *fakeHistory) List(limit int) ([]history.Entry, error) {
	f.limit = limit
	return f.entries, nil
}

func newTestServer(t *testing.T) (*Server, *rules.Store, *fakeHistory, *observability.Stream) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := rules.Load(t.TempDir()+"/config.json", log)
	hist := &fakeHistory{}
	stream := observability.NewStream()
	return NewServer(log, store, hist, stream, nil), store, hist, stream
}

func validRuleJSON(path string) string {
	return `{"path":"` + path + `","lang":"fra","source_action":"keep","output_dest_type":"subfolder","rename_pattern":"[NOM_ORIGINAL]_ocr","counter_reset":"never","counter_padding":3}`
}

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRuleCRUDRoundTrip(t *testing.T) {
	srv, store, _, _ := newTestServer(t)
	h := srv.Router()

	rec := doRequest(t, h, "POST", "/api/rules", validRuleJSON("/watch/in"))
	if rec.Code != 201 {
		t.Fatalf("add: code = %d body = %s", rec.Code, rec.Body)
	}

	rec = doRequest(t, h, "GET", "/api/rules", "")
	var list []rules.Rule
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Path != "/watch/in" {
		t.Fatalf("list = %+v", list)
	}

	update := strings.Replace(validRuleJSON("/watch/in"), `"lang":"fra"`, `"lang":"eng"`, 1)
	rec = doRequest(t, h, "PUT", "/api/rules", update)
	if rec.Code != 200 {
		t.Fatalf("update: code = %d body = %s", rec.Code, rec.Body)
	}
	if got, _ := store.Get("/watch/in"); got.Lang != "eng" {
		t.Errorf("lang after update = %q", got.Lang)
	}

	rec = doRequest(t, h, "DELETE", "/api/rules?path=/watch/in", "")
	if rec.Code != 200 {
		t.Fatalf("remove: code = %d body = %s", rec.Code, rec.Body)
	}
	if len(store.List()) != 0 {
		t.Error("rule not removed")
	}
}

func TestErrorMapping(t *testing.T) {
	srv, _, _, _ := newTestServer(t)
	h := srv.Router()

	if rec := doRequest(t, h, "POST", "/api/rules", `{"path":"relative/path"}`); rec.Code != 400 {
		t.Errorf("invalid rule: code = %d", rec.Code)
	}
	if rec := doRequest(t, h, "POST", "/api/rules", `{broken`); rec.Code != 400 {
		t.Errorf("bad json: code = %d", rec.Code)
	}

	doRequest(t, h, "POST", "/api/rules", validRuleJSON("/watch/dup"))
	if rec := doRequest(t, h, "POST", "/api/rules", validRuleJSON("/watch/dup")); rec.Code != 409 {
		t.Errorf("duplicate: code = %d", rec.Code)
	}

	if rec := doRequest(t, h, "PUT", "/api/rules", validRuleJSON("/watch/absent")); rec.Code != 404 {
		t.Errorf("update absent: code = %d", rec.Code)
	}
	if rec := doRequest(t, h, "DELETE", "/api/rules?path=/watch/absent", ""); rec.Code != 404 {
		t.Errorf("remove absent: code = %d", rec.Code)
	}
	if rec := doRequest(t, h, "DELETE", "/api/rules", ""); rec.Code != 400 {
		t.Errorf("remove without path: code = %d", rec.Code)
	}

	var body map[string]any
	rec := doRequest(t, h, "PUT", "/api/rules", validRuleJSON("/watch/absent"))
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["ok"] != false || body["error"] == "" {
		t.Errorf("error body = %v", body)
	}
}

func TestMutationNotifiesChange(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := rules.Load(t.TempDir()+"/config.json", log)
	notified := 0
	srv := NewServer(log, store, nil, nil, func() { notified++ })
	h := srv.Router()

	doRequest(t, h, "POST", "/api/rules", validRuleJSON("/watch/in"))
	doRequest(t, h, "DELETE", "/api/rules?path=/watch/in", "")
	if notified != 2 {
		t.Errorf("notified = %d, want 2", notified)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	srv, _, hist, _ := newTestServer(t)
	h := srv.Router()
	hist.entries = []history.Entry{{
		SourcePath: "/in/a.pdf",
		Status:     history.StatusProcessed,
		CreatedAt:  time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC),
	}}

	rec := doRequest(t, h, "GET", "/api/history?limit=5", "")
	if rec.Code != 200 {
		t.Fatalf("code = %d", rec.Code)
	}
	if hist.limit != 5 {
		t.Errorf("limit passed = %d", hist.limit)
	}
	var got []history.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].SourcePath != "/in/a.pdf" {
		t.Errorf("entries = %+v", got)
	}
}

func TestLogStreamSSE(t *testing.T) {
	srv, _, _, stream := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/logs/stream")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	// Give the handler a moment to subscribe before publishing.
	go func() {
		for i := 0; i < 20; i++ {
			stream.Publish("[INFO] document processed")
			time.Sleep(20 * time.Millisecond)
		}
	}()

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(line, []byte("data: [INFO] document processed")) {
		t.Errorf("line = %q", line)
	}
}
