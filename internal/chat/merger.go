// Package chat merges a paginated history fetch with live streamed
// messages for one room. Lobby and game chat are independent logical
// streams multiplexed over the same connection; the merger is configured
// for one channel at a time and filters everything else out.
package chat

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/overwork-game/client/internal/intercept"
	"github.com/overwork-game/client/pkg/proto"
)

// Emitter sends outbound commands on the realtime channel.
type Emitter interface {
	Emit(event proto.EventType, payload any) error
}

// HistoryFetcher is the external chat-history collaborator.
type HistoryFetcher interface {
	ChatHistory(ctx context.Context, roomID string, page, size int) (*proto.ChatHistoryPage, error)
}

// Merger maintains the in-memory ordered message sequence for one room
// and one configured channel.
type Merger struct {
	roomID   string
	pageSize int
	emit     Emitter
	history  HistoryFetcher
	reg      *intercept.Registry
	regs     []*intercept.Registration
	log      *zap.Logger

	mu      sync.Mutex
	channel proto.Channel
	msgs    []proto.ChatMessage
	seen    map[string]struct{}
}

// New builds a merger for roomID starting on channel. Call Open to seed
// history and start receiving live messages.
func New(roomID string, channel proto.Channel, emit Emitter, history HistoryFetcher, reg *intercept.Registry, pageSize int, log *zap.Logger) *Merger {
	if pageSize <= 0 {
		pageSize = 50
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Merger{
		roomID:   roomID,
		pageSize: pageSize,
		emit:     emit,
		history:  history,
		reg:      reg,
		log:      log,
		channel:  channel,
		seen:     make(map[string]struct{}),
	}
}

// Open registers the live-message interceptors and, for the lobby
// channel, seeds one page of history. The game channel always starts
// empty: game chat is scoped to the current play session.
func (m *Merger) Open(ctx context.Context) error {
	m.regs = append(m.regs,
		m.reg.Register(proto.EvtLobbyMessage, m.onLive, 20),
		m.reg.Register(proto.EvtGameMessage, m.onLive, 20),
	)

	m.mu.Lock()
	channel := m.channel
	m.mu.Unlock()
	if channel != proto.ChannelLobby {
		return nil
	}

	page, err := m.history.ChatHistory(ctx, m.roomID, 0, m.pageSize)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range page.Messages {
		if msg.Channel != m.channel || msg.RoomID != m.roomID {
			continue
		}
		if _, dup := m.seen[msg.ID]; dup {
			continue
		}
		m.seen[msg.ID] = struct{}{}
		m.msgs = append(m.msgs, msg)
	}
	return nil
}

// Close unregisters the live-message interceptors.
func (m *Merger) Close() {
	for _, reg := range m.regs {
		m.reg.Unregister(reg)
	}
	m.regs = nil
}

func (m *Merger) onLive(frame proto.Frame) {
	var msg proto.ChatMessage
	if err := frame.Decode(&msg); err != nil {
		m.log.Warn("dropping malformed chat message", zap.Error(err))
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.RoomID != m.roomID || msg.Channel != m.channel {
		return
	}
	if _, dup := m.seen[msg.ID]; dup {
		return
	}
	m.seen[msg.ID] = struct{}{}
	m.msgs = append(m.msgs, msg)
}

// SetChannel switches the configured channel and immediately re-filters
// local state to it. Discarded messages are only recoverable through a
// history re-fetch, which never happens automatically for the game
// channel.
func (m *Merger) SetChannel(channel proto.Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if channel == m.channel {
		return
	}
	m.channel = channel
	kept := m.msgs[:0]
	seen := make(map[string]struct{})
	for _, msg := range m.msgs {
		if msg.Channel != channel {
			continue
		}
		kept = append(kept, msg)
		seen[msg.ID] = struct{}{}
	}
	m.msgs = kept
	m.seen = seen
}

// Send posts text to the configured channel. Blank input is a local
// no-op. The message is not appended locally; the server echo renders it.
func (m *Merger) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	m.mu.Lock()
	cmd := m.channel.SendCommand()
	m.mu.Unlock()
	return m.emit.Emit(cmd, proto.SendMessagePayload{RoomID: m.roomID, Body: text})
}

// Messages returns a copy of the current merged sequence in arrival
// order.
func (m *Merger) Messages() []proto.ChatMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]proto.ChatMessage(nil), m.msgs...)
}
