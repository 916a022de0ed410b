// Package game mirrors the server-authoritative game state machine. The
// projector never advances phases on its own: it issues fire-and-forget
// commands and replaces its snapshot wholesale from inbound phase events.
// The only client-owned state is the selection scratch for the playing
// phase.
package game

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/overwork-game/client/internal/intercept"
	"github.com/overwork-game/client/pkg/proto"
)

// Emitter sends outbound commands on the realtime channel.
type Emitter interface {
	Emit(event proto.EventType, payload any) error
}

// Selections is the per-player scratch state for the playing phase. It is
// created empty when the phase is entered, cleared when it is left, and
// never persisted.
type Selections struct {
	Agenda   map[string]string             // player id -> agenda id
	Task     map[string][]proto.TaskChoice // player id -> task choices
	Overtime map[string][]proto.TaskChoice // player id -> overtime choices
}

func newSelections() Selections {
	return Selections{
		Agenda:   make(map[string]string),
		Task:     make(map[string][]proto.TaskChoice),
		Overtime: make(map[string][]proto.TaskChoice),
	}
}

func (s Selections) clone() Selections {
	out := newSelections()
	for k, v := range s.Agenda {
		out.Agenda[k] = v
	}
	for k, v := range s.Task {
		out.Task[k] = append([]proto.TaskChoice(nil), v...)
	}
	for k, v := range s.Overtime {
		out.Overtime[k] = append([]proto.TaskChoice(nil), v...)
	}
	return out
}

// SelectionComplete reports whether every player in roster has exactly
// one agenda choice, at least one task choice, and at least one overtime
// choice recorded. The submit control stays disabled until this holds.
func SelectionComplete(roster []string, sel Selections) bool {
	if len(roster) == 0 {
		return false
	}
	for _, id := range roster {
		if sel.Agenda[id] == "" {
			return false
		}
		if len(sel.Task[id]) == 0 {
			return false
		}
		if len(sel.Overtime[id]) == 0 {
			return false
		}
	}
	return true
}

// View is a read-only copy of the projection.
type View struct {
	State      *proto.GameState
	Selections Selections
	LastErr    string
}

type msg interface{ isGameMsg() }

type frameMsg struct{ frame proto.Frame }

type pollFire struct{ gen int }

type selectAgendaMsg struct{ playerID, agendaID string }

type taskChoiceMsg struct {
	playerID string
	choice   proto.TaskChoice
	overtime bool
}

type viewReq struct{ reply chan View }

func (frameMsg) isGameMsg()        {}
func (pollFire) isGameMsg()        {}
func (selectAgendaMsg) isGameMsg() {}
func (taskChoiceMsg) isGameMsg()   {}
func (viewReq) isGameMsg()         {}

// Projector maintains the local read-only mirror of one room's game.
type Projector struct {
	inbox        chan msg
	ctx          context.Context
	cancel       context.CancelFunc
	roomID       string
	emit         Emitter
	roster       func() []string
	reg          *intercept.Registry
	regs         []*intercept.Registration
	pollInterval time.Duration
	log          *zap.Logger

	// Loop-owned state.
	state        *proto.GameState
	selections   Selections
	bootstrapped bool
	pollGen      int
	lastErr      string
}

// New starts a projector for roomID, requests an initial progress
// snapshot, and begins polling until one arrives and then while a game
// is running. roster supplies the room's current player ids for the
// create_game bootstrap; nil is allowed when no roster source exists.
// pollInterval <= 0 defaults to 5s.
func New(parent context.Context, roomID string, emit Emitter, roster func() []string, reg *intercept.Registry, pollInterval time.Duration, log *zap.Logger) *Projector {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	p := &Projector{
		inbox:        make(chan msg, 64),
		ctx:          ctx,
		cancel:       cancel,
		roomID:       roomID,
		emit:         emit,
		roster:       roster,
		reg:          reg,
		pollInterval: pollInterval,
		log:          log,
		selections:   newSelections(),
	}
	for _, evt := range proto.PhaseEvents {
		p.regs = append(p.regs, reg.Register(evt, p.forward, 10))
	}
	p.regs = append(p.regs, reg.Register(proto.EvtError, p.forward, 10))
	go p.loop()
	p.GetProgress()
	return p
}

func (p *Projector) forward(frame proto.Frame) {
	select {
	case p.inbox <- frameMsg{frame: frame}:
	case <-p.ctx.Done():
	}
}

// Close stops the loop, the poll timer, and the interceptors.
func (p *Projector) Close() { p.cancel() }

// Phase transition commands. Each is fire and forget: the resulting phase
// change arrives asynchronously on the inbound channel, never as a direct
// response.

func (p *Projector) CreateGame(players []string) error {
	return p.emit.Emit(proto.CmdCreateGame, proto.CreateGamePayload{RoomID: p.roomID, Players: players})
}

func (p *Projector) CreateContext(maxTurn int, story string) error {
	return p.emit.Emit(proto.CmdCreateContext, proto.CreateContextPayload{RoomID: p.roomID, MaxTurn: maxTurn, Story: story})
}

func (p *Projector) CreateAgenda() error {
	return p.emit.Emit(proto.CmdCreateAgenda, proto.RoomIDPayload{RoomID: p.roomID})
}

func (p *Projector) CreateTask() error {
	return p.emit.Emit(proto.CmdCreateTask, proto.RoomIDPayload{RoomID: p.roomID})
}

func (p *Projector) CreateOvertime() error {
	return p.emit.Emit(proto.CmdCreateOvertime, proto.RoomIDPayload{RoomID: p.roomID})
}

func (p *Projector) CreateExplanation() error {
	return p.emit.Emit(proto.CmdCreateExplanation, proto.RoomIDPayload{RoomID: p.roomID})
}

func (p *Projector) CalculateResult() error {
	return p.emit.Emit(proto.CmdCalculateResult, proto.RoomIDPayload{RoomID: p.roomID})
}

// SubmitSelections sends the scratch selections as the update_context
// command. Callers should gate this on SelectionComplete.
func (p *Projector) SubmitSelections() error {
	v := p.View()
	return p.emit.Emit(proto.CmdUpdateContext, proto.UpdateContextPayload{
		RoomID:            p.roomID,
		AgendaSelections:  v.Selections.Agenda,
		TaskSelections:    v.Selections.Task,
		OvertimeSelection: v.Selections.Overtime,
	})
}

// GetProgress requests a fresh snapshot of the full phase state.
func (p *Projector) GetProgress() {
	if err := p.emit.Emit(proto.CmdGetGameProgress, proto.RoomIDPayload{RoomID: p.roomID}); err != nil {
		p.log.Debug("progress request failed", zap.Error(err))
	}
}

// SelectAgenda records the single agenda choice for a player.
func (p *Projector) SelectAgenda(playerID, agendaID string) {
	select {
	case p.inbox <- selectAgendaMsg{playerID: playerID, agendaID: agendaID}:
	case <-p.ctx.Done():
	}
}

// AddTaskChoice records one task option for a player.
func (p *Projector) AddTaskChoice(playerID string, choice proto.TaskChoice) {
	select {
	case p.inbox <- taskChoiceMsg{playerID: playerID, choice: choice}:
	case <-p.ctx.Done():
	}
}

// AddOvertimeChoice records one overtime option for a player.
func (p *Projector) AddOvertimeChoice(playerID string, choice proto.TaskChoice) {
	select {
	case p.inbox <- taskChoiceMsg{playerID: playerID, choice: choice, overtime: true}:
	case <-p.ctx.Done():
	}
}

// SelectionRoster is the set of players who must complete selections:
// everyone present in the player-context map of the current state.
func (v View) SelectionRoster() []string {
	if v.State == nil {
		return nil
	}
	roster := make([]string, 0, len(v.State.PlayerContexts))
	for id := range v.State.PlayerContexts {
		roster = append(roster, id)
	}
	return roster
}

// SelectionComplete applies the completeness rule to the current view.
func (v View) SelectionComplete() bool {
	return SelectionComplete(v.SelectionRoster(), v.Selections)
}

// View returns a copy of the projection.
func (p *Projector) View() View {
	reply := make(chan View, 1)
	select {
	case p.inbox <- viewReq{reply: reply}:
	case <-p.ctx.Done():
		return View{}
	}
	select {
	case v := <-reply:
		return v
	case <-p.ctx.Done():
		return View{}
	}
}

func (p *Projector) loop() {
	defer func() {
		for _, reg := range p.regs {
			p.reg.Unregister(reg)
		}
	}()
	p.armPoll()
	for {
		select {
		case <-p.ctx.Done():
			return
		case m := <-p.inbox:
			switch msg := m.(type) {
			case frameMsg:
				p.handleFrame(msg.frame)
			case pollFire:
				p.handlePoll(msg.gen)
			case selectAgendaMsg:
				p.selections.Agenda[msg.playerID] = msg.agendaID
			case taskChoiceMsg:
				if msg.overtime {
					p.selections.Overtime[msg.playerID] = append(p.selections.Overtime[msg.playerID], msg.choice)
				} else {
					p.selections.Task[msg.playerID] = append(p.selections.Task[msg.playerID], msg.choice)
				}
			case viewReq:
				msg.reply <- p.view()
			}
		}
	}
}

func (p *Projector) handleFrame(frame proto.Frame) {
	if frame.Event == proto.EvtError {
		var e proto.ErrorPayload
		if frame.Decode(&e) != nil {
			return
		}
		if e.RoomID != "" && e.RoomID != p.roomID {
			return
		}
		if e.Is(proto.CodeGameStateNotFound) {
			p.bootstrap()
		}
		return
	}

	var state proto.GameState
	if err := frame.Decode(&state); err != nil {
		p.log.Warn("dropping malformed game state", zap.Error(err))
		return
	}
	if state.RoomID != p.roomID {
		return
	}

	prevPhase := proto.PhaseWaiting
	if p.state != nil {
		prevPhase = p.state.Phase
	}

	// Wholesale replacement: the new snapshot is the whole truth. Fields
	// the server did not resend are gone, never merged from the old one.
	p.state = &state
	p.bootstrapped = false

	if state.Phase == proto.PhasePlaying && prevPhase != proto.PhasePlaying {
		p.selections = newSelections()
	}
	if state.Phase != proto.PhasePlaying && prevPhase == proto.PhasePlaying {
		p.selections = newSelections()
	}
}

// bootstrap issues create_game once per missing-state condition: game
// creation is lazy server-side, so the first progress request for a fresh
// room reports no state.
func (p *Projector) bootstrap() {
	if p.bootstrapped {
		return
	}
	p.bootstrapped = true
	if err := p.emit.Emit(proto.CmdCreateGame, proto.CreateGamePayload{RoomID: p.roomID, Players: p.bootstrapPlayers()}); err != nil {
		p.lastErr = err.Error()
		p.bootstrapped = false
	}
}

// bootstrapPlayers resolves the create_game roster. Missing state is the
// condition that triggers bootstrap, so the room's roster source is the
// primary answer; the state's player contexts only cover the rare case
// of a re-bootstrap after a snapshot was already seen.
func (p *Projector) bootstrapPlayers() []string {
	if p.roster != nil {
		if ids := p.roster(); len(ids) > 0 {
			return ids
		}
	}
	ids := make([]string, 0)
	if p.state != nil {
		for id := range p.state.PlayerContexts {
			ids = append(ids, id)
		}
	}
	return ids
}

func (p *Projector) armPoll() {
	p.pollGen++
	gen := p.pollGen
	time.AfterFunc(p.pollInterval, func() {
		select {
		case p.inbox <- pollFire{gen: gen}:
		case <-p.ctx.Done():
		}
	})
}

// handlePoll re-requests progress on a timer to tolerate missed push
// events and a lost mount-time request, but not while the game is parked
// in a terminal or pre-start phase.
func (p *Projector) handlePoll(gen int) {
	if gen != p.pollGen {
		return
	}
	switch {
	case p.state == nil:
		// The first request can be lost while the socket is still coming
		// up; keep asking until any snapshot arrives.
		p.GetProgress()
	case p.state.Phase == proto.PhaseWaiting, p.state.Phase == proto.PhaseFinished:
		// Nothing to tolerate; keep the timer alive for a later start.
	default:
		p.GetProgress()
	}
	p.armPoll()
}

func (p *Projector) view() View {
	v := View{
		Selections: p.selections.clone(),
		LastErr:    p.lastErr,
	}
	if p.state != nil {
		state := *p.state
		v.State = &state
	}
	return v
}
