package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wsServer is a scripted websocket endpoint for transport tests.
type wsServer struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu       sync.Mutex
	received []ClientMessage
	conns    []*websocket.Conn

	// script messages are written to the client right after the first
	// inbound message (the setup) arrives.
	script []ServerMessage

	srv *httptest.Server
}

func newWSServer(t *testing.T, script ...ServerMessage) *wsServer {
	s := &wsServer{t: t, script: script}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.mu.Unlock()

	scripted := false
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.t.Errorf("server received unparseable message: %v", err)
			continue
		}
		s.mu.Lock()
		s.received = append(s.received, msg)
		s.mu.Unlock()

		if !scripted {
			scripted = true
			for i := range s.script {
				if err := conn.WriteJSON(&s.script[i]); err != nil {
					return
				}
			}
		}
	}
}

func (s *wsServer) messages() []ClientMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ClientMessage, len(s.received))
	copy(out, s.received)
	return out
}

func (s *wsServer) dropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		conn.Close()
	}
}

func testConfig(primary, fallback string) Config {
	cfg := DefaultConfig()
	cfg.PrimaryEndpoint = primary
	cfg.FallbackEndpoint = fallback
	cfg.APIKey = "test-key"
	cfg.HandshakeTimeout = 2 * time.Second
	return cfg
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestConnectSendsSetupFirst(t *testing.T) {
	srv := newWSServer(t)
	cfg := testConfig(srv.url(), "")

	setup := &SetupPayload{Model: "models/test"}
	tr, err := Connect(context.Background(), cfg, setup, NewDispatcher(nil), nil)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer tr.Close()

	if err := tr.Send(&ClientMessage{ClientContent: &ClientContent{TurnComplete: true}}); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	waitFor(t, func() bool { return len(srv.messages()) >= 2 }, "server never received both messages")

	msgs := srv.messages()
	if msgs[0].Setup == nil {
		t.Fatal("expected first message on the wire to be setup")
	}
	if msgs[0].Setup.Model != "models/test" {
		t.Errorf("expected model models/test, got %q", msgs[0].Setup.Model)
	}
	if msgs[1].ClientContent == nil {
		t.Error("expected second message to be client content")
	}
}

func TestConnectFallsBackOnce(t *testing.T) {
	srv := newWSServer(t)
	// Primary refuses the handshake; the fallback must carry the session.
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusServiceUnavailable)
	}))
	defer dead.Close()

	cfg := testConfig("ws"+strings.TrimPrefix(dead.URL, "http"), srv.url())

	tr, err := Connect(context.Background(), cfg, &SetupPayload{Model: "m"}, NewDispatcher(nil), nil)
	if err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	defer tr.Close()

	waitFor(t, func() bool { return len(srv.messages()) >= 1 }, "fallback server never received setup")
}

func TestConnectBothEndpointsFail(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusServiceUnavailable)
	}))
	defer dead.Close()
	deadURL := "ws" + strings.TrimPrefix(dead.URL, "http")

	cfg := testConfig(deadURL, deadURL)

	_, err := Connect(context.Background(), cfg, &SetupPayload{Model: "m"}, NewDispatcher(nil), nil)
	if err == nil {
		t.Fatal("expected connect error")
	}
	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConnectError, got %T", err)
	}
	if ce.Primary == nil || ce.Fallback == nil {
		t.Errorf("expected both attempts recorded, got %+v", ce)
	}
}

func TestConnectNoFallbackConfigured(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusServiceUnavailable)
	}))
	defer dead.Close()

	cfg := testConfig("ws"+strings.TrimPrefix(dead.URL, "http"), "")

	_, err := Connect(context.Background(), cfg, &SetupPayload{Model: "m"}, NewDispatcher(nil), nil)
	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConnectError, got %v", err)
	}
	if ce.Fallback != nil {
		t.Errorf("expected no fallback attempt, got %v", ce.Fallback)
	}
}

func TestTransportDispatchesInOrder(t *testing.T) {
	srv := newWSServer(t,
		ServerMessage{SetupComplete: &SetupComplete{}},
		ServerMessage{ServerContent: &ServerContent{ModelTurn: &Content{Parts: []Part{{Text: "one"}}}}},
		ServerMessage{ServerContent: &ServerContent{ModelTurn: &Content{Parts: []Part{{Text: "two"}}}}},
		ServerMessage{ServerContent: &ServerContent{TurnComplete: true}},
	)
	cfg := testConfig(srv.url(), "")

	var mu sync.Mutex
	var events []string
	d := NewDispatcher(nil)
	d.OnSetupComplete = func() {
		mu.Lock()
		events = append(events, "setup")
		mu.Unlock()
	}
	d.OnText = func(s string) {
		mu.Lock()
		events = append(events, s)
		mu.Unlock()
	}
	d.OnTurnComplete = func() {
		mu.Lock()
		events = append(events, "done")
		mu.Unlock()
	}

	tr, err := Connect(context.Background(), cfg, &SetupPayload{Model: "m"}, d, nil)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer tr.Close()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 4
	}, "not all events dispatched")

	mu.Lock()
	defer mu.Unlock()
	want := []string{"setup", "one", "two", "done"}
	for i, w := range want {
		if events[i] != w {
			t.Errorf("event %d: expected %q, got %q", i, w, events[i])
		}
	}
}

func TestTransportReportsDrop(t *testing.T) {
	srv := newWSServer(t)
	cfg := testConfig(srv.url(), "")

	dropped := make(chan error, 1)
	tr, err := Connect(context.Background(), cfg, &SetupPayload{Model: "m"}, NewDispatcher(nil), func(err error) {
		dropped <- err
	})
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer tr.Close()

	waitFor(t, func() bool { return len(srv.messages()) >= 1 }, "server never received setup")
	srv.dropConnections()

	select {
	case err := <-dropped:
		if err == nil {
			t.Error("expected a non-nil drop error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("drop callback never fired")
	}
}

func TestTransportCloseSuppressesDropCallback(t *testing.T) {
	srv := newWSServer(t)
	cfg := testConfig(srv.url(), "")

	dropped := make(chan error, 1)
	tr, err := Connect(context.Background(), cfg, &SetupPayload{Model: "m"}, NewDispatcher(nil), func(err error) {
		dropped <- err
	})
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	waitFor(t, func() bool { return len(srv.messages()) >= 1 }, "server never received setup")
	tr.Close()

	select {
	case err := <-dropped:
		t.Errorf("drop callback fired after Close: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	if err := tr.Send(&ClientMessage{ClientContent: &ClientContent{}}); err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected after close, got %v", err)
	}
}

func TestTransportCloseWaitsForDropCallback(t *testing.T) {
	srv := newWSServer(t)
	cfg := testConfig(srv.url(), "")

	entered := make(chan struct{})
	release := make(chan struct{})
	tr, err := Connect(context.Background(), cfg, &SetupPayload{Model: "m"}, NewDispatcher(nil), func(err error) {
		close(entered)
		<-release
	})
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	waitFor(t, func() bool { return len(srv.messages()) >= 1 }, "server never received setup")
	srv.dropConnections()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("drop callback never fired")
	}

	closed := make(chan struct{})
	go func() {
		tr.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while the drop callback was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close never returned after the drop callback finished")
	}
}

func TestTransportCloseIdempotent(t *testing.T) {
	srv := newWSServer(t)
	cfg := testConfig(srv.url(), "")

	tr, err := Connect(context.Background(), cfg, &SetupPayload{Model: "m"}, NewDispatcher(nil), nil)
	if err != nil {
		t.Fatalf("connect failed: %v", err)
	}

	if err := tr.Close(); err != nil {
		t.Errorf("first close: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}
