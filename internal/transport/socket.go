// Package transport owns the websocket connection to the chat backend: it
// dials, keeps the connection alive, decodes the inbound event stream, and
// reconnects with backoff when the link drops. Everything downstream sees
// decoded domain events in arrival order through a single handler; the
// transport never reorders or duplicates events from one connection.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/driftlabs/go-chat-sdk/internal/domain"
)

const (
	// writeWait bounds each control-frame write.
	writeWait = 10 * time.Second

	// pongWait is how long we tolerate silence from the server before
	// declaring the connection dead. Pings go out at a third of this.
	pongWait   = 60 * time.Second
	pingPeriod = pongWait / 3

	// maxMessageSize caps inbound frames; events are small, bulk data goes
	// over HTTP.
	maxMessageSize = 1 << 20

	// Reconnect backoff window.
	minBackoff = 500 * time.Millisecond
	maxBackoff = 30 * time.Second
)

// ErrSocketClosed is returned by Connect after Close has been called.
var ErrSocketClosed = errors.New("transport: socket closed")

// Handler consumes decoded events. It is called from the single read-loop
// goroutine, so calls are strictly ordered.
type Handler interface {
	Route(event domain.Event)
}

// Socket is the resilient websocket consumer. One Socket serves one
// authenticated session; Connect starts the read loop and Close ends it.
type Socket struct {
	wsURL   string
	apiKey  string
	userID  string
	token   string
	handler Handler
	logger  zerolog.Logger
	dialer  *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
	done   chan struct{}
}

// SocketOptions configures a Socket.
type SocketOptions struct {
	// WSURL is the websocket endpoint, e.g. "ws://localhost:8080/connect".
	WSURL string
	// APIKey, UserID, and Token authenticate the connection as query
	// parameters, mirroring the HTTP surface.
	APIKey string
	UserID string
	Token  string
	// Handler receives every decoded event.
	Handler Handler
	Logger  zerolog.Logger
}

// NewSocket builds a Socket from options.
func NewSocket(opts SocketOptions) *Socket {
	return &Socket{
		wsURL:   opts.WSURL,
		apiKey:  opts.APIKey,
		userID:  opts.UserID,
		token:   opts.Token,
		handler: opts.Handler,
		logger:  opts.Logger.With().Str("component", "socket").Logger(),
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		done:    make(chan struct{}),
	}
}

// Connect dials the backend and runs the read loop until ctx is cancelled or
// Close is called, reconnecting with jittered exponential backoff after
// failures. It blocks; run it in its own goroutine. A synthetic disconnected
// event is routed every time an established connection drops.
func (s *Socket) Connect(ctx context.Context) error {
	backoff := minBackoff
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return ErrSocketClosed
		}
		s.mu.Unlock()

		conn, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("dial failed")
			if err := s.sleep(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = minBackoff

		err = s.readLoop(ctx, conn)
		s.routeDisconnected(err)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return ErrSocketClosed
		}
		s.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("connection lost, reconnecting")
		if err := s.sleep(ctx, backoff); err != nil {
			return err
		}
		backoff = nextBackoff(backoff)
	}
}

// Close tears the socket down permanently. Safe to call more than once.
func (s *Socket) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	if s.conn != nil {
		deadline := time.Now().Add(writeWait)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = s.conn.Close()
	}
}

// dial opens one websocket connection with the credential query parameters.
func (s *Socket) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(s.wsURL)
	if err != nil {
		return nil, fmt.Errorf("transport: parse ws url: %w", err)
	}
	q := u.Query()
	q.Set("api_key", s.apiKey)
	q.Set("user_id", s.userID)
	if s.token != "" {
		q.Set("token", s.token)
	}
	u.RawQuery = q.Encode()

	conn, _, err := s.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", u.Host, err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return nil, ErrSocketClosed
	}
	s.conn = conn
	s.mu.Unlock()
	return conn, nil
}

// readLoop reads, decodes, and routes events until the connection fails.
// It also runs the ping keepalive for this connection.
func (s *Socket) readLoop(ctx context.Context, conn *websocket.Conn) error {
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return err
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go s.pingLoop(ctx, conn, stopPing)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("transport: read: %w", err)
			}
			return err
		}

		var env domain.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.logger.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		event, err := domain.DecodeEvent(env)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrUnknownEvent):
				s.logger.Debug().Str("op", env.Op).Msg("ignoring unknown event op")
			default:
				s.logger.Warn().Err(err).Str("op", env.Op).Msg("dropping malformed event")
			}
			continue
		}
		s.handler.Route(event)
	}
}

// pingLoop keeps the connection alive until stop closes or the write fails.
func (s *Socket) pingLoop(ctx context.Context, conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			deadline := time.Now().Add(writeWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

// routeDisconnected publishes a synthetic disconnected event so state and UI
// observers learn about the drop even though the server could not tell us.
func (s *Socket) routeDisconnected(cause error) {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	s.handler.Route(domain.NewLocalDisconnectedEvent(reason, time.Now()))
}

// sleep waits for d or until the socket is shut down.
func (s *Socket) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSocketClosed
	}
}

// nextBackoff doubles the delay with jitter, capped at maxBackoff.
func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > maxBackoff {
		next = maxBackoff
	}
	jitter := time.Duration(rand.Int63n(int64(next) / 4))
	return next - jitter
}
