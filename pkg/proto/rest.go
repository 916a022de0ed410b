package proto

import "encoding/json"

// Envelope wraps every REST response body.
type Envelope struct {
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Success bool            `json:"success"`
}

// Account is the authenticated user as returned by login/refresh/me.
type Account struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Nickname string `json:"nickname"`
	Token    string `json:"token,omitempty"`
}

// Profile is the editable slice of an account.
type Profile struct {
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar,omitempty"`
	Bio      string `json:"bio,omitempty"`
}

// RoomInfo is one row of the lobby room listing.
type RoomInfo struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	HostName   string `json:"host_name"`
	NumPlayers int    `json:"num_players"`
	MaxPlayers int    `json:"max_players"`
	HasLock    bool   `json:"has_lock"`
	Playing    bool   `json:"playing"`
}

// ChatHistoryPage is one page of persisted lobby chat.
type ChatHistoryPage struct {
	Messages []ChatMessage `json:"messages"`
	Page     int           `json:"page"`
	HasMore  bool          `json:"has_more"`
}
