// Package backendtest runs an in-process stand-in for the real backend:
// the REST surface behind the {data, message, success} envelope plus the
// realtime channel endpoint. Tests script inbound events and observe the
// commands the client sends.
package backendtest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/overwork-game/client/pkg/proto"
)

// Token is the bearer credential the fake login issues.
const Token = "backendtest-token"

// Backend is one fake backend instance.
type Backend struct {
	server *httptest.Server

	mu        sync.Mutex
	rooms     map[string]proto.RoomSnapshot
	history   map[string][]proto.ChatMessage
	conns     []*websocket.Conn
	always401 bool

	commands chan proto.Frame
}

// New starts the fake backend. Close it when done.
func New() *Backend {
	b := &Backend{
		rooms:    make(map[string]proto.RoomSnapshot),
		history:  make(map[string][]proto.ChatMessage),
		commands: make(chan proto.Frame, 64),
	}

	r := chi.NewRouter()
	r.Post("/api/auth/login", b.handleLogin)
	r.Post("/api/auth/logout", b.handleOK)
	r.Post("/api/auth/refresh", b.handleLogin)
	r.Get("/api/auth/me", b.handleMe)
	r.Get("/api/rooms", b.handleRooms)
	r.Get("/api/rooms/{roomID}", b.handleRoom)
	r.Get("/api/rooms/{roomID}/chat", b.handleChatHistory)
	r.Get("/ws", b.handleWS)

	b.server = httptest.NewServer(r)
	return b
}

func (b *Backend) Close() {
	b.mu.Lock()
	conns := b.conns
	b.conns = nil
	b.mu.Unlock()
	for _, c := range conns {
		c.Close(websocket.StatusNormalClosure, "shutdown")
	}
	b.server.Close()
}

// APIBase is the REST base URL for config.
func (b *Backend) APIBase() string { return b.server.URL + "/api" }

// SocketURL is the realtime channel endpoint for config.
func (b *Backend) SocketURL() string {
	return "ws" + strings.TrimPrefix(b.server.URL, "http") + "/ws"
}

// AddRoom seeds a room snapshot.
func (b *Backend) AddRoom(snap proto.RoomSnapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rooms[snap.ID] = snap
}

// SeedHistory seeds persisted chat rows for a room.
func (b *Backend) SeedHistory(roomID string, msgs ...proto.ChatMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history[roomID] = append(b.history[roomID], msgs...)
}

// SetAlways401 makes every REST endpoint answer 401 from now on.
func (b *Backend) SetAlways401(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.always401 = v
}

// Send pushes one inbound event to every connected client.
func (b *Backend) Send(event proto.EventType, payload any) error {
	frame, err := proto.NewFrame(event, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	b.mu.Lock()
	conns := append([]*websocket.Conn(nil), b.conns...)
	b.mu.Unlock()
	for _, c := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err = c.Write(ctx, websocket.MessageText, data)
		cancel()
	}
	return err
}

// WaitCommand waits for the next command the client emitted, skipping
// nothing. ok is false on timeout.
func (b *Backend) WaitCommand(within time.Duration) (proto.Frame, bool) {
	select {
	case f := <-b.commands:
		return f, true
	case <-time.After(within):
		return proto.Frame{}, false
	}
}

// ConnCount reports how many realtime connections are open.
func (b *Backend) ConnCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

func (b *Backend) unauthorized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.always401
}

func writeEnvelope(w http.ResponseWriter, status int, data any, message string) {
	env := proto.Envelope{Message: message, Success: status >= 200 && status < 300}
	if data != nil {
		raw, _ := json.Marshal(data)
		env.Data = raw
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func (b *Backend) guard(w http.ResponseWriter) bool {
	if b.unauthorized() {
		writeEnvelope(w, http.StatusUnauthorized, nil, "unauthorized")
		return false
	}
	return true
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !b.guard(w) {
		return
	}
	writeEnvelope(w, http.StatusOK, proto.Account{
		ID:       "me",
		Email:    "dev@example.com",
		Nickname: "Dev",
		Token:    Token,
	}, "")
}

func (b *Backend) handleOK(w http.ResponseWriter, r *http.Request) {
	if !b.guard(w) {
		return
	}
	writeEnvelope(w, http.StatusOK, nil, "")
}

func (b *Backend) handleMe(w http.ResponseWriter, r *http.Request) {
	if !b.guard(w) {
		return
	}
	writeEnvelope(w, http.StatusOK, proto.Account{ID: "me", Email: "dev@example.com", Nickname: "Dev"}, "")
}

func (b *Backend) handleRooms(w http.ResponseWriter, r *http.Request) {
	if !b.guard(w) {
		return
	}
	b.mu.Lock()
	infos := make([]proto.RoomInfo, 0, len(b.rooms))
	for _, snap := range b.rooms {
		infos = append(infos, proto.RoomInfo{
			ID:         snap.ID,
			Name:       snap.Name,
			NumPlayers: len(snap.Players),
			MaxPlayers: snap.MaxPlayers,
		})
	}
	b.mu.Unlock()
	writeEnvelope(w, http.StatusOK, infos, "")
}

func (b *Backend) handleRoom(w http.ResponseWriter, r *http.Request) {
	if !b.guard(w) {
		return
	}
	b.mu.Lock()
	snap, ok := b.rooms[chi.URLParam(r, "roomID")]
	b.mu.Unlock()
	if !ok {
		writeEnvelope(w, http.StatusNotFound, nil, "room not found")
		return
	}
	writeEnvelope(w, http.StatusOK, snap, "")
}

func (b *Backend) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	if !b.guard(w) {
		return
	}
	b.mu.Lock()
	msgs := append([]proto.ChatMessage(nil), b.history[chi.URLParam(r, "roomID")]...)
	b.mu.Unlock()
	writeEnvelope(w, http.StatusOK, proto.ChatHistoryPage{Messages: msgs}, "")
}

func (b *Backend) handleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}

	send := func(event proto.EventType, payload any) {
		frame, _ := proto.NewFrame(event, payload)
		data, _ := json.Marshal(frame)
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		_ = conn.Write(ctx, websocket.MessageText, data)
		cancel()
	}

	if token != Token {
		// Auth rejection is an application event, not a transport error.
		send(proto.EvtConnectError, proto.ErrorPayload{Message: "invalid token"})
		time.Sleep(50 * time.Millisecond)
		conn.Close(websocket.StatusNormalClosure, "rejected")
		return
	}

	send(proto.EvtConnectSuccess, map[string]string{"session_id": uuid.NewString()})

	b.mu.Lock()
	b.conns = append(b.conns, conn)
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		for i, c := range b.conns {
			if c == conn {
				b.conns = append(b.conns[:i], b.conns[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
	}()

	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}
		var frame proto.Frame
		if json.Unmarshal(data, &frame) != nil {
			continue
		}
		select {
		case b.commands <- frame:
		default:
		}
	}
}
