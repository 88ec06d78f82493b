package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// readTimeout is reset on every inbound message.
	readTimeout = 120 * time.Second

	// pingInterval keeps the connection alive through idle periods.
	pingInterval = 30 * time.Second

	// writeTimeout bounds a single websocket write.
	writeTimeout = 10 * time.Second
)

// Transport owns the live connection to the remote endpoint. It is the
// only component aware of the wire protocol.
type Transport interface {
	// Send enqueues a message for delivery. It never blocks on the
	// network; messages are delivered in send order.
	Send(msg *ClientMessage) error

	// Close tears the connection down. No callbacks fire after Close
	// returns; it must not be called from inside the drop callback.
	Close() error
}

// WSTransport is the production websocket transport.
type WSTransport struct {
	conn   *websocket.Conn
	logger *slog.Logger

	sendCh chan []byte
	done   chan struct{}
	wg     sync.WaitGroup
	cbWg   sync.WaitGroup

	closed       atomic.Bool
	shutdownOnce sync.Once

	dispatcher *Dispatcher
	onClosed   func(error)
}

// Connect dials the primary endpoint and, if that fails, retries the
// fallback endpoint exactly once before surfacing a ConnectError. This
// is a deterministic single retry, not a backoff loop: repeated
// flapping is a fatal connect failure.
//
// On success the setup payload is the first message on the wire and the
// read/write pumps are running.
func Connect(ctx context.Context, cfg Config, setup *SetupPayload, d *Dispatcher, onClosed func(error)) (*WSTransport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	header := http.Header{}
	if cfg.TokenProvider != nil {
		token, err := cfg.TokenProvider.Token(ctx)
		if err != nil {
			return nil, &ConnectError{Primary: err}
		}
		header.Set("Authorization", "Bearer "+token)
	}

	conn, primaryErr := dialEndpoint(ctx, cfg.PrimaryEndpoint, cfg, header)
	if primaryErr != nil {
		if cfg.FallbackEndpoint == "" {
			return nil, &ConnectError{Primary: primaryErr}
		}

		var fallbackErr error
		conn, fallbackErr = dialEndpoint(ctx, cfg.FallbackEndpoint, cfg, header)
		if fallbackErr != nil {
			return nil, &ConnectError{Primary: primaryErr, Fallback: fallbackErr}
		}
	}

	t := &WSTransport{
		conn:       conn,
		logger:     slog.Default().With("component", "transport"),
		sendCh:     make(chan []byte, cfg.SendQueueSize),
		done:       make(chan struct{}),
		dispatcher: d,
		onClosed:   onClosed,
	}

	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeTimeout))
	})

	t.wg.Add(2)
	go t.readPump()
	go t.writePump()

	// Setup goes through the queue so it is the first message sent.
	if err := t.Send(&ClientMessage{Setup: setup}); err != nil {
		t.Close()
		return nil, &ConnectError{Primary: fmt.Errorf("send setup: %w", err)}
	}

	return t, nil
}

// dialEndpoint performs one websocket handshake against one endpoint.
func dialEndpoint(ctx context.Context, endpoint string, cfg Config, header http.Header) (*websocket.Conn, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if cfg.APIKey != "" {
		q := u.Query()
		q.Set("key", cfg.APIKey)
		u.RawQuery = q.Encode()
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Host, err)
	}
	return conn, nil
}

// Send marshals and enqueues a message. Returns ErrSendQueueFull when
// the network is too slow to keep up; the caller drops and moves on.
func (t *WSTransport) Send(msg *ClientMessage) error {
	if t.closed.Load() {
		return ErrNotConnected
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	select {
	case t.sendCh <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// writePump is the single writer for the connection.
func (t *WSTransport) writePump() {
	defer t.wg.Done()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case data := <-t.sendCh:
			t.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if !t.closed.Load() {
					t.logger.Warn("websocket write failed", "error", err)
				}
				return
			}
		case <-ticker.C:
			if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

// readPump reads, parses, and dispatches inbound messages in order.
func (t *WSTransport) readPump() {
	defer t.wg.Done()

	for {
		t.conn.SetReadDeadline(time.Now().Add(readTimeout))

		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if !t.closed.Load() && t.onClosed != nil {
				// Mid-session failure. The callback goroutine is
				// tracked so Close cannot return while it runs; the
				// handler must not call Close itself (the transport
				// is already shutting down and needs no closing).
				t.cbWg.Add(1)
				go func() {
					defer t.cbWg.Done()
					t.onClosed(err)
				}()
			}
			// Stop the write pump and free the connection even when
			// nobody ever calls Close.
			t.shutdown()
			return
		}

		var msg ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.logger.Warn("dropping unparseable server message", "error", err)
			continue
		}

		t.dispatcher.Dispatch(&msg)
	}
}

// shutdown tears the connection down without waiting for the pumps.
func (t *WSTransport) shutdown() {
	t.shutdownOnce.Do(func() {
		t.closed.Store(true)
		close(t.done)
		_ = t.conn.Close()
	})
}

// Close tears down the connection and waits for both pumps and any
// in-flight drop callback to finish, so no dispatch or drop callback
// fires after it returns. Must not be called from inside the drop
// callback itself.
func (t *WSTransport) Close() error {
	t.shutdown()
	t.wg.Wait()
	t.cbWg.Wait()
	return nil
}

// Ensure WSTransport implements Transport.
var _ Transport = (*WSTransport)(nil)
