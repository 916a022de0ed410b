package proto

// ErrorCode is the structured reason on an error event. Older backends
// only send the human-readable message; Is falls back to matching those
// legacy sentences so the classification keeps working against them.
type ErrorCode string

const (
	// CodeWaitRejoin: the server wants the client to wait briefly before
	// re-attempting a join (timing race with a previous leave).
	CodeWaitRejoin ErrorCode = "wait_rejoin"
	// CodeRejoiningInProgress: a game is running and the server is
	// re-admitting the client as an existing player.
	CodeRejoiningInProgress ErrorCode = "rejoining_in_progress"
	// CodeAlreadyJoining: a join for this exact context is already
	// outstanding server-side. Never retried.
	CodeAlreadyJoining ErrorCode = "already_joining"
	// CodeRoomNotFound: the room no longer exists. Terminal.
	CodeRoomNotFound ErrorCode = "room_not_found"
	// CodeGameStateNotFound: no game state exists yet for the room; the
	// projector bootstraps one with create_game.
	CodeGameStateNotFound ErrorCode = "game_state_not_found"
)

var legacyMessages = map[ErrorCode][]string{
	CodeWaitRejoin:          {"잠시 후 다시 입장해 주세요."},
	CodeRejoiningInProgress: {"게임이 진행 중입니다. 기존 플레이어로 재입장합니다."},
	CodeAlreadyJoining:      {"이미 입장 처리 중입니다."},
	CodeRoomNotFound:        {"방을 찾을 수 없습니다."},
	CodeGameStateNotFound:   {"게임 상태를 찾을 수 없습니다."},
}

// ErrorPayload is the body of an inbound error event. RoomID scopes the
// error to one room; legacy backends omit it and send unscoped errors.
type ErrorPayload struct {
	Code    ErrorCode `json:"code,omitempty"`
	Message string    `json:"message,omitempty"`
	RoomID  string    `json:"room_id,omitempty"`
}

// Is reports whether the payload carries the given reason, preferring the
// structured code and falling back to the legacy message text.
func (e ErrorPayload) Is(code ErrorCode) bool {
	if e.Code != "" {
		return e.Code == code
	}
	for _, m := range legacyMessages[code] {
		if e.Message == m {
			return true
		}
	}
	return false
}

func (e ErrorPayload) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}
