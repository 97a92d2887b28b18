package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/relayd/internal/auth"
	"github.com/mattjoyce/relayd/internal/dispatch"
	"github.com/mattjoyce/relayd/internal/events"
)

type stubActions []string

func (s stubActions) Actions() []string { return s }

type stubSessions struct {
	n   int
	err error
}

func (s stubSessions) ActiveSessions(context.Context) (int, error) { return s.n, s.err }

type published struct {
	Type  string
	Data  map[string]any
	Topic string
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (p *recordingPublisher) Publish(notifType string, data map[string]any, topic string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{notifType, data, topic})
	return nil
}

type fixture struct {
	srv *Server
	hub *events.Hub
	pub *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hub := events.NewHub(16)
	t.Cleanup(hub.Close)
	pub := &recordingPublisher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(Config{
		APIKey: "admin-key",
		Tokens: []auth.TokenConfig{
			{Token: "reader", Scopes: []string{"actions:ro", "events:ro"}},
			{Token: "notifier", Scopes: []string{"notify:rw"}},
		},
	}, stubActions{"auth.login", "test.ping"}, stubSessions{n: 3}, pub, hub, logger)
	return &fixture{srv: srv, hub: hub, pub: pub}
}

func (f *fixture) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthzNoAuth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, resp.Actions)
	assert.Equal(t, 3, resp.ActiveSessions)
	assert.Nil(t, resp.Dispatch)
}

type stubDispatch dispatch.Stats

func (s stubDispatch) Stats() dispatch.Stats { return dispatch.Stats(s) }

func TestHealthzReportsDispatchStats(t *testing.T) {
	f := newFixture(t)
	f.srv.WithDispatch(stubDispatch{Requests: 7, Errors: 2})
	rec := f.do(t, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Dispatch)
	assert.Equal(t, int64(7), resp.Dispatch.Requests)
	assert.Equal(t, int64(2), resp.Dispatch.Errors)
}

func TestHealthzSessionError(t *testing.T) {
	f := newFixture(t)
	f.srv.sessions = stubSessions{err: errors.New("redis down")}
	rec := f.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAuthAndScopes(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   string
		want   int
	}{
		{"missing token", http.MethodGet, "/v1/actions", "", "", http.StatusUnauthorized},
		{"wrong token", http.MethodGet, "/v1/actions", "nope", "", http.StatusUnauthorized},
		{"reader lists actions", http.MethodGet, "/v1/actions", "reader", "", http.StatusOK},
		{"notifier cannot list", http.MethodGet, "/v1/actions", "notifier", "", http.StatusForbidden},
		{"reader cannot notify", http.MethodPost, "/v1/notify", "reader", `{"type":"x"}`, http.StatusForbidden},
		{"notifier notifies", http.MethodPost, "/v1/notify", "notifier", `{"type":"x"}`, http.StatusAccepted},
		{"admin reads events", http.MethodGet, "/v1/events", "admin-key", "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}
}

func TestActionsList(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/v1/actions", "reader", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ActionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"auth.login", "test.ping"}, resp.Actions)
}

func TestEventSnapshotSince(t *testing.T) {
	f := newFixture(t)
	f.hub.Publish("session.created", map[string]any{"username": "admin"})
	f.hub.Publish("session.closed", map[string]any{"username": "admin"})

	rec := f.do(t, http.MethodGet, "/v1/events", "reader", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all EventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	require.Len(t, all.Events, 2)
	assert.Equal(t, int64(2), all.LastID)

	rec = f.do(t, http.MethodGet, "/v1/events?since=1", "reader", "")
	var later EventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &later))
	require.Len(t, later.Events, 1)
	assert.Equal(t, "session.closed", later.Events[0].Type)

	rec = f.do(t, http.MethodGet, "/v1/events?since=5", "reader", "")
	var none EventsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &none))
	assert.Empty(t, none.Events)
	assert.Equal(t, int64(5), none.LastID)

	rec = f.do(t, http.MethodGet, "/v1/events?since=abc", "reader", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotify(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/v1/notify", "notifier", `{"type":"maintenance","data":{"in":"5m"},"topic":"ops"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, f.pub.sent, 1)
	assert.Equal(t, "maintenance", f.pub.sent[0].Type)
	assert.Equal(t, "ops", f.pub.sent[0].Topic)
	assert.Equal(t, "5m", f.pub.sent[0].Data["in"])
}

func TestNotifyRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	for _, body := range []string{`not json`, `{"type":"  "}`, `{"type":"x","topic":"a:b"}`} {
		rec := f.do(t, http.MethodPost, "/v1/notify", "notifier", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
	assert.Empty(t, f.pub.sent)
}

func TestNotifyPublisherFailure(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("socket closed")
	rec := f.do(t, http.MethodPost, "/v1/notify", "notifier", `{"type":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestEventStream(t *testing.T) {
	f := newFixture(t)
	f.hub.Publish("session.created", map[string]any{"n": 1})

	ts := httptest.NewServer(f.srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/events/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer reader")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readEvent := func() []string {
		var lines []string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\n")
			if line == "" {
				return lines
			}
			lines = append(lines, line)
		}
	}

	first := readEvent()
	assert.Equal(t, []string{"id: 1", "event: session.created", `data: {"n":1}`}, first)

	f.hub.Publish("session.closed", map[string]any{"n": 2})
	second := readEvent()
	assert.Equal(t, "id: 2", second[0])
	assert.Equal(t, "event: session.closed", second[1])
}

func TestParseLastEventID(t *testing.T) {
	assert.Equal(t, int64(0), parseLastEventID(""))
	assert.Equal(t, int64(0), parseLastEventID("x"))
	assert.Equal(t, int64(0), parseLastEventID("-3"))
	assert.Equal(t, int64(7), parseLastEventID("7"))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	f := newFixture(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
