package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"dashsync-go/internal/config"
	"dashsync-go/internal/dashboard"
	"dashsync-go/internal/realtime"
	"dashsync-go/internal/runtime"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type fakeView struct {
	mu      sync.Mutex
	view    dashboard.View
	running bool
	subs    map[int]func(dashboard.View)
	next    int
}

func newFakeView(v dashboard.View, running bool) *fakeView {
	return &fakeView{view: v, running: running, subs: map[int]func(dashboard.View){}}
}

func (f *fakeView) View() dashboard.View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view.Clone()
}

func (f *fakeView) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeView) Subscribe(fn func(dashboard.View)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	id := f.next
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

func (f *fakeView) push(v dashboard.View) {
	f.mu.Lock()
	f.view = v
	subs := make([]func(dashboard.View), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(v.Clone())
	}
}

type fakeChannel struct{ state realtime.State }

func (f fakeChannel) State() realtime.State { return f.state }
func (f fakeChannel) Stats() realtime.Stats {
	return realtime.Stats{State: f.state.String(), URL: "ws://backend/api/ws", Attempts: 3, Reconnects: 2}
}

type fakeSession struct {
	token   string
	expired bool
}

func (f fakeSession) Get(context.Context) (string, bool) { return f.token, f.token != "" }
func (f fakeSession) Expired() bool                      { return f.expired }

func sampleView() dashboard.View {
	return dashboard.View{
		Stats: map[string]any{"api_calls": float64(100)},
		APIs:  []map[string]any{{"id": float64(1), "name": "orders"}},
	}
}

func localRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "127.0.0.1:50000"
	return req
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthz(t *testing.T) {
	cases := []struct {
		name    string
		deps    Dependencies
		status  string
		channel string
		session string
	}{
		{
			name:    "healthy",
			deps:    Dependencies{View: newFakeView(sampleView(), true), Channel: fakeChannel{realtime.Connected}, Session: fakeSession{token: "t"}},
			status:  "ok",
			channel: "connected",
			session: "active",
		},
		{
			name:    "reconnecting",
			deps:    Dependencies{View: newFakeView(sampleView(), true), Channel: fakeChannel{realtime.Reconnecting}, Session: fakeSession{token: "t"}},
			status:  "degraded",
			channel: "reconnecting",
			session: "active",
		},
		{
			name:    "expired session without channel",
			deps:    Dependencies{View: newFakeView(dashboard.View{}, false), Session: fakeSession{expired: true}},
			status:  "degraded",
			channel: "disabled",
			session: "expired",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := New("127.0.0.1:0", tc.deps)
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			require.Equal(t, http.StatusOK, w.Code)
			body := decode(t, w)
			require.Equal(t, tc.status, body["status"])
			require.Equal(t, tc.channel, body["channel_state"])
			require.Equal(t, tc.session, body["session"])
		})
	}
}

func TestViewRequiresLoopbackOrKey(t *testing.T) {
	view := newFakeView(sampleView(), true)

	s := New("127.0.0.1:0", Dependencies{View: view})
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/view", nil))
	require.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, localRequest(http.MethodGet, "/v1/view"))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	require.Equal(t, true, body["running"])
	stats := body["view"].(map[string]any)["stats"].(map[string]any)
	require.Equal(t, float64(100), stats["api_calls"])

	cfg := config.Default()
	cfg.Server.AdminKey = "k"
	s = New("127.0.0.1:0", Dependencies{View: view, Config: func() *config.Config { return cfg }})
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, localRequest(http.MethodGet, "/v1/view"))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/view", nil)
	req.Header.Set("X-API-Key", "k")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestChannelAndTasksEndpoints(t *testing.T) {
	tm := runtime.NewTaskManager(context.Background())
	require.NoError(t, tm.Start("noop", "", func(context.Context) error { return nil }))
	tm.Wait()

	s := New("127.0.0.1:0", Dependencies{Channel: fakeChannel{realtime.Connected}, Tasks: tm})

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, localRequest(http.MethodGet, "/v1/channel"))
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	require.Equal(t, "connected", body["state"])
	require.Equal(t, float64(2), body["reconnects"])

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, localRequest(http.MethodGet, "/v1/tasks"))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"noop"`)

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, localRequest(http.MethodGet, "/v1/view"))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := New("127.0.0.1:0", Dependencies{})
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "dashsync_")
}

func readFrame(t *testing.T, conn *websocket.Conn) ViewFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame ViewFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestViewStreamPushesLatestThenUpdates(t *testing.T) {
	view := newFakeView(sampleView(), true)
	s := New("127.0.0.1:0", Dependencies{View: view})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	defer s.Broadcaster().Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/view/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	first := readFrame(t, conn)
	require.Equal(t, float64(100), first.View.Stats["api_calls"])
	require.Eventually(t, func() bool { return s.Broadcaster().Count() == 1 }, time.Second, 5*time.Millisecond)

	next := sampleView()
	next.Stats["api_calls"] = float64(150)
	view.push(next)

	second := readFrame(t, conn)
	require.Greater(t, second.Seq, first.Seq)
	require.Equal(t, float64(150), second.View.Stats["api_calls"])
}

func TestViewStreamRejectsWhenFull(t *testing.T) {
	s := New("127.0.0.1:0", Dependencies{View: newFakeView(sampleView(), true)})
	s.broadcaster.maxConnections = 1
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	defer s.Broadcaster().Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/view/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	readFrame(t, conn)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestBroadcasterCloseDisconnectsClients(t *testing.T) {
	s := New("127.0.0.1:0", Dependencies{View: newFakeView(sampleView(), true)})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/view/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	readFrame(t, conn)

	s.Broadcaster().Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	require.False(t, s.Broadcaster().Accepting())
}

func TestServeShutsDownOnContextCancel(t *testing.T) {
	s := New("127.0.0.1:0", Dependencies{View: newFakeView(sampleView(), true)})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
