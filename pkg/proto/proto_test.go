package proto

import (
	"encoding/json"
	"testing"
)

func TestPhaseIndex_FollowsProgression(t *testing.T) {
	order := []Phase{
		PhaseWaiting, PhaseContextCreation, PhaseAgendaCreation,
		PhaseTaskCreation, PhaseOvertimeCreation, PhasePlaying,
		PhaseExplanation, PhaseResult, PhaseFinished,
	}
	for i, p := range order {
		if p.Index() != i {
			t.Fatalf("%s at index %d, want %d", p, p.Index(), i)
		}
	}
	if Phase("lunch_break").Known() {
		t.Fatal("unknown phase reported as known")
	}
}

func TestErrorPayload_StructuredCodeWins(t *testing.T) {
	p := ErrorPayload{Code: CodeRoomNotFound, Message: "게임 상태를 찾을 수 없습니다."}
	if !p.Is(CodeRoomNotFound) {
		t.Fatal("structured code not matched")
	}
	if p.Is(CodeGameStateNotFound) {
		t.Fatal("message text must be ignored when a code is present")
	}
}

func TestErrorPayload_LegacyMessageFallback(t *testing.T) {
	p := ErrorPayload{Message: "게임 상태를 찾을 수 없습니다."}
	if !p.Is(CodeGameStateNotFound) {
		t.Fatal("legacy message not classified")
	}
	if p.Is(CodeRoomNotFound) {
		t.Fatal("wrong code matched from message text")
	}
}

func TestFrame_RoundTripsPayload(t *testing.T) {
	frame, err := NewFrame(CmdJoinRoom, JoinRoomPayload{RoomID: "r1", Password: "pw"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	var back Frame
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	var payload JoinRoomPayload
	if err := back.Decode(&payload); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if back.Event != CmdJoinRoom || payload.RoomID != "r1" || payload.Password != "pw" {
		t.Fatalf("round trip lost data: %+v %+v", back, payload)
	}
}

func TestChannel_EventAndCommandRouting(t *testing.T) {
	if ChannelLobby.Event() != EvtLobbyMessage || ChannelGame.Event() != EvtGameMessage {
		t.Fatal("channel event routing wrong")
	}
	if ChannelLobby.SendCommand() != CmdSendLobbyMessage || ChannelGame.SendCommand() != CmdSendGameMessage {
		t.Fatal("channel send routing wrong")
	}
}
