package proto

// EventType names one kind of frame on the realtime channel.
type EventType string

// Wildcard subscribes an interceptor to every inbound event type.
const Wildcard EventType = "*"

// Server -> Client
const (
	EvtConnectSuccess  EventType = "connect_success"
	EvtConnectError    EventType = "connect_error"
	EvtDisconnect      EventType = "disconnect"
	EvtUserJoined      EventType = "user_joined"
	EvtUserLeft        EventType = "user_left"
	EvtReadyChanged    EventType = "ready_changed"
	EvtReadyReset      EventType = "ready_reset"
	EvtRoomDeleted     EventType = "room_deleted"
	EvtForceDisconnect EventType = "force_disconnect"

	EvtGameCreated        EventType = "game_created"
	EvtContextCreated     EventType = "context_created"
	EvtAgendaCreated      EventType = "agenda_created"
	EvtTaskCreated        EventType = "task_created"
	EvtOvertimeCreated    EventType = "overtime_created"
	EvtContextUpdated     EventType = "context_updated"
	EvtExplanationCreated EventType = "explanation_created"
	EvtResultCalculated   EventType = "result_calculated"
	EvtGameProgress       EventType = "game_progress"
	EvtGameFinished       EventType = "game_finished"

	EvtLobbyMessage EventType = "lobby_message"
	EvtGameMessage  EventType = "game_message"
	EvtError        EventType = "error"
)

// Client -> Server
const (
	CmdJoinRoom    EventType = "join_room"
	CmdLeaveRoom   EventType = "leave_room"
	CmdToggleReady EventType = "toggle_ready"
	CmdStartGame   EventType = "start_game"
	CmdFinishGame  EventType = "finish_game"

	CmdSendLobbyMessage EventType = "send_lobby_message"
	CmdSendGameMessage  EventType = "send_game_message"

	CmdCreateGame        EventType = "create_game"
	CmdCreateContext     EventType = "create_context"
	CmdCreateAgenda      EventType = "create_agenda"
	CmdCreateTask        EventType = "create_task"
	CmdCreateOvertime    EventType = "create_overtime"
	CmdUpdateContext     EventType = "update_context"
	CmdCreateExplanation EventType = "create_explanation"
	CmdCalculateResult   EventType = "calculate_result"
	CmdGetGameProgress   EventType = "get_game_progress"
)

// PhaseEvents lists the inbound events that carry a full game state
// snapshot. Receiving any of them replaces the projected state wholesale.
var PhaseEvents = []EventType{
	EvtGameCreated,
	EvtContextCreated,
	EvtAgendaCreated,
	EvtTaskCreated,
	EvtOvertimeCreated,
	EvtContextUpdated,
	EvtExplanationCreated,
	EvtResultCalculated,
	EvtGameProgress,
	EvtGameFinished,
}
