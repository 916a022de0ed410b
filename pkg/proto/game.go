package proto

// Phase is one stage of the server-authoritative game progression.
type Phase string

const (
	PhaseWaiting          Phase = "waiting"
	PhaseContextCreation  Phase = "context_creation"
	PhaseAgendaCreation   Phase = "agenda_creation"
	PhaseTaskCreation     Phase = "task_creation"
	PhaseOvertimeCreation Phase = "overtime_creation"
	PhasePlaying          Phase = "playing"
	PhaseExplanation      Phase = "explanation"
	PhaseResult           Phase = "result"
	PhaseFinished         Phase = "finished"
)

var phaseOrder = []Phase{
	PhaseWaiting,
	PhaseContextCreation,
	PhaseAgendaCreation,
	PhaseTaskCreation,
	PhaseOvertimeCreation,
	PhasePlaying,
	PhaseExplanation,
	PhaseResult,
	PhaseFinished,
}

// Index returns the position of p in the phase progression, or -1 for an
// unknown tag.
func (p Phase) Index() int {
	for i, q := range phaseOrder {
		if p == q {
			return i
		}
	}
	return -1
}

// Known reports whether p is one of the defined phase tags.
func (p Phase) Known() bool { return p.Index() >= 0 }

// Player is one roster entry as the server broadcasts it.
type Player struct {
	ID       string `json:"id"`
	Nickname string `json:"nickname"`
	Ready    bool   `json:"ready"`
	Host     bool   `json:"host"`
}

// RoomSnapshot is the authoritative room state fetched over REST after a
// membership delta. The roster is ordered by join time.
type RoomSnapshot struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	HostID     string   `json:"host_id"`
	Players    []Player `json:"players"`
	MaxPlayers int      `json:"max_players"`
	HasLock    bool     `json:"has_lock"`
	Playing    bool     `json:"playing"`
}

// Agenda is one agenda card produced by the agenda-creation phase.
type Agenda struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
}

// Task is one task card with its selectable options, keyed to a player.
type Task struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Options []string `json:"options,omitempty"`
}

// Ranking is one row of the final result board.
type Ranking struct {
	PlayerID string `json:"player_id"`
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
	Rank     int    `json:"rank"`
}

// GameState is the full phase snapshot the server pushes on every phase
// edge and on progress replies. Payload fields are only meaningful for the
// phases that produce them; the server is free to omit earlier-phase
// fields in later messages.
type GameState struct {
	RoomID         string            `json:"room_id"`
	Phase          Phase             `json:"phase"`
	CurrentTurn    int               `json:"current_turn"`
	MaxTurn        int               `json:"max_turn"`
	Story          string            `json:"story,omitempty"`
	CompanyContext map[string]string `json:"company_context,omitempty"`
	PlayerContexts map[string]string `json:"player_contexts,omitempty"`
	AgendaList     []Agenda          `json:"agenda_list,omitempty"`
	TaskLists      map[string][]Task `json:"task_lists,omitempty"`
	OvertimeLists  map[string][]Task `json:"overtime_lists,omitempty"`
	Explanation    string            `json:"explanation,omitempty"`
	Result         string            `json:"result,omitempty"`
	Rankings       []Ranking         `json:"rankings,omitempty"`
}

// TaskChoice pairs a task with the option a player settled on.
type TaskChoice struct {
	TaskID string `json:"task_id"`
	Option string `json:"option"`
}

// Outbound command payloads.
type (
	JoinRoomPayload struct {
		RoomID   string `json:"room_id"`
		Password string `json:"password,omitempty"`
	}

	LeaveRoomPayload struct {
		RoomID string `json:"room_id"`
	}

	ToggleReadyPayload struct {
		RoomID string `json:"room_id"`
		Ready  bool   `json:"ready"`
	}

	SendMessagePayload struct {
		RoomID string `json:"room_id"`
		Body   string `json:"body"`
	}

	CreateGamePayload struct {
		RoomID  string   `json:"room_id"`
		Players []string `json:"players"`
	}

	CreateContextPayload struct {
		RoomID  string `json:"room_id"`
		MaxTurn int    `json:"max_turn"`
		Story   string `json:"story"`
	}

	// RoomIDPayload serves the commands that carry nothing but the room:
	// create_agenda, create_task, create_overtime, create_explanation,
	// calculate_result, get_game_progress, start_game, finish_game.
	RoomIDPayload struct {
		RoomID string `json:"room_id"`
	}

	UpdateContextPayload struct {
		RoomID            string                  `json:"room_id"`
		AgendaSelections  map[string]string       `json:"agenda_selections"`
		TaskSelections    map[string][]TaskChoice `json:"task_selections"`
		OvertimeSelection map[string][]TaskChoice `json:"overtime_selections"`
	}
)

// Inbound membership payloads.
type (
	UserJoinedPayload struct {
		RoomID string `json:"room_id"`
		Player Player `json:"player"`
	}

	UserLeftPayload struct {
		RoomID   string `json:"room_id"`
		PlayerID string `json:"player_id"`
	}

	ReadyChangedPayload struct {
		RoomID   string `json:"room_id"`
		PlayerID string `json:"player_id"`
		Ready    bool   `json:"ready"`
	}

	RoomDeletedPayload struct {
		RoomID string `json:"room_id"`
	}
)
