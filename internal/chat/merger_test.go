package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/overwork-game/client/internal/intercept"
	"github.com/overwork-game/client/pkg/proto"
)

type fakeEmitter struct {
	events   []proto.EventType
	payloads []any
}

func (f *fakeEmitter) Emit(event proto.EventType, payload any) error {
	f.events = append(f.events, event)
	f.payloads = append(f.payloads, payload)
	return nil
}

type fakeHistory struct {
	page  proto.ChatHistoryPage
	calls int
}

func (f *fakeHistory) ChatHistory(ctx context.Context, roomID string, page, size int) (*proto.ChatHistoryPage, error) {
	f.calls++
	return &f.page, nil
}

func lobbyMsg(id, body string) proto.ChatMessage {
	return proto.ChatMessage{
		ID: id, RoomID: "r1", SenderID: "p1", Sender: "P1",
		Channel: proto.ChannelLobby, Body: body, CreatedAt: time.Now(),
	}
}

func gameMsg(id, body string) proto.ChatMessage {
	m := lobbyMsg(id, body)
	m.Channel = proto.ChannelGame
	return m
}

func dispatch(reg *intercept.Registry, event proto.EventType, payload any) {
	frame, _ := proto.NewFrame(event, payload)
	reg.Dispatch(frame)
}

func TestOpen_LobbySeedsHistoryGameDoesNot(t *testing.T) {
	reg := intercept.NewRegistry(nil)
	hist := &fakeHistory{page: proto.ChatHistoryPage{Messages: []proto.ChatMessage{
		lobbyMsg("h1", "hello"),
		gameMsg("h2", "leaked game row"), // filtered out by channel tag
	}}}

	m := New("r1", proto.ChannelLobby, &fakeEmitter{}, hist, reg, 50, nil)
	require.NoError(t, m.Open(context.Background()))
	defer m.Close()

	msgs := m.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "h1", msgs[0].ID)

	g := New("r1", proto.ChannelGame, &fakeEmitter{}, hist, reg, 50, nil)
	require.NoError(t, g.Open(context.Background()))
	defer g.Close()
	require.Equal(t, 1, hist.calls, "game channel must not fetch history")
	require.Empty(t, g.Messages())
}

func TestLiveMessages_DeduplicatedById(t *testing.T) {
	reg := intercept.NewRegistry(nil)
	m := New("r1", proto.ChannelLobby, &fakeEmitter{}, &fakeHistory{}, reg, 50, nil)
	require.NoError(t, m.Open(context.Background()))
	defer m.Close()

	dispatch(reg, proto.EvtLobbyMessage, lobbyMsg("m1", "hi"))
	dispatch(reg, proto.EvtLobbyMessage, lobbyMsg("m1", "hi"))

	require.Len(t, m.Messages(), 1)
}

func TestLiveMessages_NonMatchingChannelIgnored(t *testing.T) {
	reg := intercept.NewRegistry(nil)
	m := New("r1", proto.ChannelLobby, &fakeEmitter{}, &fakeHistory{}, reg, 50, nil)
	require.NoError(t, m.Open(context.Background()))
	defer m.Close()

	dispatch(reg, proto.EvtGameMessage, gameMsg("g1", "psst"))

	require.Empty(t, m.Messages())
}

func TestLiveMessages_OtherRoomIgnored(t *testing.T) {
	reg := intercept.NewRegistry(nil)
	m := New("r1", proto.ChannelLobby, &fakeEmitter{}, &fakeHistory{}, reg, 50, nil)
	require.NoError(t, m.Open(context.Background()))
	defer m.Close()

	msg := lobbyMsg("m1", "hi")
	msg.RoomID = "r2"
	dispatch(reg, proto.EvtLobbyMessage, msg)

	require.Empty(t, m.Messages())
}

func TestSetChannel_RefiltersExistingState(t *testing.T) {
	reg := intercept.NewRegistry(nil)
	m := New("r1", proto.ChannelLobby, &fakeEmitter{}, &fakeHistory{}, reg, 50, nil)
	require.NoError(t, m.Open(context.Background()))
	defer m.Close()

	dispatch(reg, proto.EvtLobbyMessage, lobbyMsg("m1", "pre-game"))
	require.Len(t, m.Messages(), 1)

	// Game starts: lobby backlog is discarded, game stream accepted.
	m.SetChannel(proto.ChannelGame)
	require.Empty(t, m.Messages())

	dispatch(reg, proto.EvtGameMessage, gameMsg("g1", "in game"))
	dispatch(reg, proto.EvtLobbyMessage, lobbyMsg("m2", "stray lobby"))

	msgs := m.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "g1", msgs[0].ID)
}

func TestSend_BlankIsLocalNoop(t *testing.T) {
	reg := intercept.NewRegistry(nil)
	emit := &fakeEmitter{}
	m := New("r1", proto.ChannelLobby, emit, &fakeHistory{}, reg, 50, nil)
	require.NoError(t, m.Open(context.Background()))
	defer m.Close()

	require.NoError(t, m.Send("   \t "))
	require.Empty(t, emit.events)
}

func TestSend_RoutesByChannelAndDoesNotAppendLocally(t *testing.T) {
	reg := intercept.NewRegistry(nil)
	emit := &fakeEmitter{}
	m := New("r1", proto.ChannelLobby, emit, &fakeHistory{}, reg, 50, nil)
	require.NoError(t, m.Open(context.Background()))
	defer m.Close()

	require.NoError(t, m.Send("hello"))
	require.Equal(t, []proto.EventType{proto.CmdSendLobbyMessage}, emit.events)
	require.Empty(t, m.Messages(), "sent message must wait for the server echo")

	m.SetChannel(proto.ChannelGame)
	require.NoError(t, m.Send("gg"))
	require.Equal(t, proto.CmdSendGameMessage, emit.events[1])
}
