package proto

import "time"

// Channel tags one of the two logical chat streams multiplexed over the
// same connection.
type Channel string

const (
	ChannelLobby Channel = "lobby"
	ChannelGame  Channel = "game"
)

// Event returns the inbound live event type carrying messages for the
// channel.
func (c Channel) Event() EventType {
	if c == ChannelGame {
		return EvtGameMessage
	}
	return EvtLobbyMessage
}

// SendCommand returns the outbound command that posts to the channel.
func (c Channel) SendCommand() EventType {
	if c == ChannelGame {
		return CmdSendGameMessage
	}
	return CmdSendLobbyMessage
}

// ChatMessage is one chat entry, either from the history fetch or from a
// live event. Encrypted is an opaque passthrough flag; the client does not
// process it.
type ChatMessage struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	SenderID  string    `json:"sender_id"`
	Sender    string    `json:"sender"`
	Channel   Channel   `json:"channel"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	Encrypted bool      `json:"encrypted,omitempty"`
}
