// Package socket owns the single realtime connection to the backend:
// dialing with the session credential, typed send/receive, and bounded
// reconnection. Exactly one physical connection exists per process; the
// session controller is the only creator/destroyer.
package socket

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/overwork-game/client/internal/intercept"
	"github.com/overwork-game/client/pkg/proto"
)

// ErrNotConnected is returned by Emit when no open connection exists.
// There is no outbound queue; the caller owns retry policy.
var ErrNotConnected = errors.New("socket: not connected")

const writeTimeout = 3 * time.Second

// Status is the connection state surfaced to the UI.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// Handler observes inbound frames subscribed via On, independent of the
// interceptor registry.
type Handler func(proto.Frame)

// Options configures dialing and reconnection.
type Options struct {
	URL               string
	DialTimeout       time.Duration
	ReconnectAttempts int
	BackoffMin        time.Duration
	BackoffMax        time.Duration
}

func (o *Options) defaults() {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 10 * time.Second
	}
	if o.ReconnectAttempts <= 0 {
		o.ReconnectAttempts = 5
	}
	if o.BackoffMin <= 0 {
		o.BackoffMin = 500 * time.Millisecond
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 8 * time.Second
	}
}

// Socket is the event channel adapter.
type Socket struct {
	opts Options
	reg  *intercept.Registry
	log  *zap.Logger

	mu           sync.Mutex
	conn         *websocket.Conn
	status       Status
	credential   string
	gen          int
	listeners    map[proto.EventType]map[int]Handler
	nextListener int
	statusSubs   map[int]chan Status
	nextSub      int
	onAuthReject func()
}

func New(opts Options, reg *intercept.Registry, log *zap.Logger) *Socket {
	opts.defaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Socket{
		opts:       opts,
		reg:        reg,
		log:        log,
		status:     StatusDisconnected,
		listeners:  make(map[proto.EventType]map[int]Handler),
		statusSubs: make(map[int]chan Status),
	}
}

// Connect establishes the connection carrying credential as the auth
// token. Idempotent: an open connection for the same credential is kept.
// A different credential, or a half-closed prior connection, is torn down
// first so credentials never leak across sessions.
func (s *Socket) Connect(ctx context.Context, credential string) error {
	s.mu.Lock()
	if s.conn != nil && s.status == StatusConnected && s.credential == credential {
		s.mu.Unlock()
		return nil
	}
	s.teardownLocked(websocket.StatusNormalClosure, "reconnecting")
	s.credential = credential
	s.gen++
	gen := s.gen
	s.setStatusLocked(StatusConnecting)
	s.mu.Unlock()

	conn, err := s.dial(ctx, credential)
	if err != nil {
		s.mu.Lock()
		if s.gen == gen {
			s.setStatusLocked(StatusDisconnected)
		}
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	if s.gen != gen {
		// Disconnect or a newer Connect raced us.
		s.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "stale")
		return ErrNotConnected
	}
	s.conn = conn
	s.setStatusLocked(StatusConnected)
	s.mu.Unlock()

	s.log.Info("socket connected", zap.String("conn_id", uuid.NewString()))
	go s.readLoop(gen, conn)
	return nil
}

// Disconnect closes and clears the connection. No-op when already
// disconnected.
func (s *Socket) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil && s.status == StatusDisconnected {
		return
	}
	s.gen++
	s.teardownLocked(websocket.StatusNormalClosure, "bye")
	s.setStatusLocked(StatusDisconnected)
}

// Emit sends one command frame immediately, or fails with ErrNotConnected.
func (s *Socket) Emit(event proto.EventType, payload any) error {
	s.mu.Lock()
	conn := s.conn
	connected := s.status == StatusConnected
	s.mu.Unlock()
	if conn == nil || !connected {
		return ErrNotConnected
	}

	frame, err := proto.NewFrame(event, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}

// On subscribes a raw listener for event and returns its unsubscribe
// function. Raw listeners are independent of the interceptor registry.
func (s *Socket) On(event proto.EventType, h Handler) (off func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextListener++
	id := s.nextListener
	if s.listeners[event] == nil {
		s.listeners[event] = make(map[int]Handler)
	}
	s.listeners[event][id] = h
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners[event], id)
	}
}

// Status returns the current connection state.
func (s *Socket) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// StatusChanges subscribes to connection state transitions.
func (s *Socket) StatusChanges() (<-chan Status, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSub++
	id := s.nextSub
	ch := make(chan Status, 8)
	s.statusSubs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.statusSubs, id)
	}
}

// OnAuthReject sets the hook invoked when the server rejects the
// connection credential (connect_error event). The adapter disconnects
// itself first; the hook owns the logout/redirect.
func (s *Socket) OnAuthReject(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onAuthReject = f
}

func (s *Socket) dial(ctx context.Context, credential string) (*websocket.Conn, error) {
	u, err := url.Parse(s.opts.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", credential)
	u.RawQuery = q.Encode()

	dialCtx, cancel := context.WithTimeout(ctx, s.opts.DialTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, u.String(), nil)
	return conn, err
}

func (s *Socket) readLoop(gen int, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(context.Background())
		if err != nil {
			s.mu.Lock()
			stale := s.gen != gen
			s.mu.Unlock()
			if stale {
				// Disconnect or a newer Connect already took over.
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				s.mu.Lock()
				s.teardownLocked(websocket.StatusNormalClosure, "")
				s.setStatusLocked(StatusDisconnected)
				s.mu.Unlock()
				return
			}
			s.log.Warn("socket read failed, reconnecting", zap.Error(err))
			s.reconnect(gen)
			return
		}

		var frame proto.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.log.Warn("dropping malformed frame", zap.Error(err))
			continue
		}
		s.dispatch(frame)
	}
}

// reconnect retries the dial with capped doubling backoff plus jitter.
// A Disconnect or fresh Connect bumps gen and cancels the attempt.
func (s *Socket) reconnect(gen int) {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.setStatusLocked(StatusConnecting)
	credential := s.credential
	s.mu.Unlock()

	delay := s.opts.BackoffMin
	for attempt := 1; attempt <= s.opts.ReconnectAttempts; attempt++ {
		time.Sleep(delay + time.Duration(rand.Int63n(int64(delay/2+1))))
		if delay *= 2; delay > s.opts.BackoffMax {
			delay = s.opts.BackoffMax
		}

		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		conn, err := s.dial(context.Background(), credential)
		if err != nil {
			s.log.Warn("reconnect attempt failed",
				zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			conn.Close(websocket.StatusNormalClosure, "stale")
			return
		}
		s.conn = conn
		s.setStatusLocked(StatusConnected)
		s.mu.Unlock()
		s.log.Info("socket reconnected", zap.Int("attempt", attempt))
		go s.readLoop(gen, conn)
		return
	}

	s.mu.Lock()
	if s.gen == gen {
		s.setStatusLocked(StatusDisconnected)
	}
	s.mu.Unlock()
	s.log.Error("socket gave up reconnecting",
		zap.Int("attempts", s.opts.ReconnectAttempts))
}

func (s *Socket) dispatch(frame proto.Frame) {
	if s.reg != nil {
		s.reg.Dispatch(frame)
	}

	s.mu.Lock()
	var handlers []Handler
	for _, h := range s.listeners[frame.Event] {
		handlers = append(handlers, h)
	}
	authReject := s.onAuthReject
	s.mu.Unlock()

	for _, h := range handlers {
		h(frame)
	}

	if frame.Event == proto.EvtConnectError {
		// Auth rejection is an application event, not a transport error.
		s.log.Warn("connection credential rejected")
		s.Disconnect()
		if authReject != nil {
			authReject()
		}
	}
}

func (s *Socket) teardownLocked(status websocket.StatusCode, reason string) {
	if s.conn != nil {
		s.conn.Close(status, reason)
		s.conn = nil
	}
}

func (s *Socket) setStatusLocked(status Status) {
	if s.status == status {
		return
	}
	s.status = status
	for _, ch := range s.statusSubs {
		select {
		case ch <- status:
		default:
		}
	}
}
