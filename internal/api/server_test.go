package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/energizer-project/discord-echo/internal/channel"
	"github.com/energizer-project/discord-echo/internal/config"
	"github.com/energizer-project/discord-echo/internal/db"
	intnet "github.com/energizer-project/discord-echo/internal/network"
	"github.com/energizer-project/discord-echo/internal/protocol"
	"github.com/energizer-project/discord-echo/internal/relay"
)

type captureSender struct {
	mu      sync.Mutex
	packets [][]byte
}

func (s *captureSender) Send(buf []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets = append(s.packets, buf)
}

type fakeTransport struct{}

func (fakeTransport) Addr() string { return "127.0.0.1:5121" }
func (fakeTransport) Stats() intnet.TransportStats {
	return intnet.TransportStats{Sent: 4, Failed: 1}
}

type fakeHistory struct {
	err error
}

func (h fakeHistory) Recent(ctx context.Context, limit int) ([]db.Entry, error) {
	if h.err != nil {
		return nil, h.err
	}
	out := []db.Entry{
		{ID: 2, Outcome: db.OutcomeRelayed, Channel: "main", Username: "<ann>"},
		{ID: 1, Outcome: db.OutcomeDropped, Channel: "99", Username: "bot", Reason: "bot"},
	}
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (h fakeHistory) CountByOutcome(ctx context.Context) (map[string]int64, error) {
	return map[string]int64{db.OutcomeRelayed: 1, db.OutcomeDropped: 1}, h.err
}

func (h fakeHistory) Total(ctx context.Context) (int64, error) {
	return 2, h.err
}

func newTestServer(t *testing.T, history HistoryStore) (*Server, *captureSender) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.ApplicationData.Logging.Directory = t.TempDir()

	channels := channel.New(map[string]uint64{"main": 100, "trade": 200})
	sender := &captureSender{}
	deps := Dependencies{
		Channels:  channels,
		Relay:     relay.New(channels, sender),
		Transport: fakeTransport{},
		History:   history,
	}
	return NewServer(cfg, deps), sender
}

func doRequest(t *testing.T, s *Server, method, path string, body []byte) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: invalid JSON %q", method, path, rec.Body.String())
	}
	return rec, out
}

func TestPublicRoutes(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec, body := doRequest(t, s, http.MethodGet, "/api/public/ping", nil)
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("ping: %d %v", rec.Code, body)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("security headers missing")
	}

	_, body = doRequest(t, s, http.MethodGet, "/api/public/version", nil)
	if body["name"] != "discord-echo" {
		t.Fatalf("version: %v", body)
	}
}

func TestGetChannels(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec, body := doRequest(t, s, http.MethodGet, "/api/monitor/channels", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	channels := body["channels"].([]interface{})
	if len(channels) != 2 {
		t.Fatalf("channels = %v", channels)
	}
	first := channels[0].(map[string]interface{})
	if first["name"] != "main" || first["discord_id"] != "100" {
		t.Fatalf("first = %v", first)
	}
	if body["unmapped_policy"] != "drop" {
		t.Fatalf("policy = %v", body["unmapped_policy"])
	}
}

func TestGetStats(t *testing.T) {
	s, _ := newTestServer(t, nil)

	_, body := doRequest(t, s, http.MethodGet, "/api/monitor/stats", nil)
	transport := body["transport"].(map[string]interface{})
	if transport["sent"] != float64(4) || transport["failed"] != float64(1) {
		t.Fatalf("transport = %v", transport)
	}
	if body["map_server"] != "127.0.0.1:5121" {
		t.Fatalf("map_server = %v", body["map_server"])
	}
}

func TestGetHistory(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec, _ := doRequest(t, s, http.MethodGet, "/api/monitor/history", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("disabled history status = %d", rec.Code)
	}

	s, _ = newTestServer(t, fakeHistory{})
	rec, body := doRequest(t, s, http.MethodGet, "/api/monitor/history?limit=1", nil)
	if rec.Code != http.StatusOK || body["count"] != float64(1) || body["stored"] != float64(2) {
		t.Fatalf("history: %d %v", rec.Code, body)
	}

	s, _ = newTestServer(t, fakeHistory{err: errors.New("locked")})
	rec, _ = doRequest(t, s, http.MethodGet, "/api/monitor/history", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("failing history status = %d", rec.Code)
	}
}

func TestGetConfig_RedactsSecrets(t *testing.T) {
	s, _ := newTestServer(t, nil)
	s.cfg.BridgeData.DiscordToken = "super-secret"

	rec, _ := doRequest(t, s, http.MethodGet, "/api/monitor/config", nil)
	if strings.Contains(rec.Body.String(), "super-secret") {
		t.Fatal("token leaked")
	}
	if !strings.Contains(rec.Body.String(), redacted) {
		t.Fatal("token not masked")
	}
}

func TestGetLogEntries(t *testing.T) {
	s, _ := newTestServer(t, nil)
	dir := s.cfg.ApplicationData.Logging.Directory
	lines := `{"level":"info","time":"2026-01-01T00:00:00Z","message":"first","component":"relay"}
not json
{"level":"warn","time":"2026-01-01T00:00:01Z","message":"last"}
`
	if err := os.WriteFile(filepath.Join(dir, "discord-echo_2026-01-01.log"), []byte(lines), 0644); err != nil {
		t.Fatal(err)
	}

	_, body := doRequest(t, s, http.MethodGet, "/api/monitor/logs?limit=2", nil)
	entries := body["entries"].([]interface{})
	if len(entries) != 2 {
		t.Fatalf("entries = %v", entries)
	}
	if entries[0].(map[string]interface{})["message"] != "not json" {
		t.Fatalf("entries[0] = %v", entries[0])
	}
	if entries[1].(map[string]interface{})["level"] != "warn" {
		t.Fatalf("entries[1] = %v", entries[1])
	}
}

func TestSendMessage(t *testing.T) {
	s, sender := newTestServer(t, nil)

	rec, _ := doRequest(t, s, http.MethodPost, "/api/control/send", []byte(`{"channel":"trade","message":"hello"}`))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if len(sender.packets) != 1 {
		t.Fatalf("sent %d packets", len(sender.packets))
	}
	msg, err := protocol.DecodeDiscordMessage(sender.packets[0])
	if err != nil {
		t.Fatal(err)
	}
	if msg.Channel != "trade" || msg.Username != "<operator>" || msg.Message != "hello" {
		t.Fatalf("msg = %+v", msg)
	}

	rec, _ = doRequest(t, s, http.MethodPost, "/api/control/send", []byte(`{"channel":"nowhere","message":"x"}`))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown channel status = %d", rec.Code)
	}

	rec, _ = doRequest(t, s, http.MethodPost, "/api/control/send", []byte(`{"channel":"main"}`))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing message status = %d", rec.Code)
	}
}

func TestUnknownAPIRoute(t *testing.T) {
	s, _ := newTestServer(t, nil)
	rec, _ := doRequest(t, s, http.MethodGet, "/api/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(1)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	// Burst is twice the rate.
	if !rl.allow("a") || !rl.allow("a") {
		t.Fatal("burst requests rejected")
	}
	if rl.allow("a") {
		t.Fatal("third request allowed")
	}
	if !rl.allow("b") {
		t.Fatal("other client limited")
	}

	now = now.Add(time.Second)
	if !rl.allow("a") {
		t.Fatal("bucket did not refill")
	}
}
