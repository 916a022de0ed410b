// Package room drives the join/leave handshake for a room and keeps a
// local projection of the roster and ready state. All state is owned by a
// single loop goroutine fed through an inbox channel, so overlapping
// broadcasts, timers, and user actions are serialized without locks.
package room

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/overwork-game/client/internal/intercept"
	"github.com/overwork-game/client/pkg/proto"
)

var (
	// ErrJoinInFlight: a join is already outstanding, here or server-side.
	ErrJoinInFlight = errors.New("room: join already in flight")
	// ErrOtherRoom: joined to a different room; leave it first.
	ErrOtherRoom = errors.New("room: already joined to another room")
	// ErrRoomGone: the room no longer exists. The caller must navigate away.
	ErrRoomGone = errors.New("room: room no longer exists")
	// ErrLeftRoom: the room was left while the join was still pending.
	ErrLeftRoom = errors.New("room: left while join pending")
	// ErrClosed: the controller shut down while the join was pending.
	ErrClosed = errors.New("room: controller closed")
)

// Status is the join state machine position.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusJoining Status = "joining"
	StatusJoined  Status = "joined"
)

// Emitter sends outbound commands on the realtime channel.
type Emitter interface {
	Emit(event proto.EventType, payload any) error
}

// SnapshotFetcher fetches the authoritative room snapshot over REST.
type SnapshotFetcher interface {
	Room(ctx context.Context, id string) (*proto.RoomSnapshot, error)
}

// Timings controls the controller's timers. Zero values take defaults;
// tests shrink them.
type Timings struct {
	RetryShort      time.Duration // silent retry after a recoverable rejection
	RetryLong       time.Duration // single retry after other rejections
	RefetchDebounce time.Duration // membership-delta refetch coalescing window
}

func (t *Timings) defaults() {
	if t.RetryShort <= 0 {
		t.RetryShort = time.Second
	}
	if t.RetryLong <= 0 {
		t.RetryLong = 3 * time.Second
	}
	if t.RefetchDebounce <= 0 {
		t.RefetchDebounce = 400 * time.Millisecond
	}
}

// View is a read-only copy of the projection.
type View struct {
	Status   Status
	RoomID   string
	Players  []proto.Player
	HostID   string
	AllReady bool
	LastErr  string
}

// Signal tells the owner to navigate away from a dead room.
type Signal struct {
	RoomID string
	Reason string
}

type msg interface{ isRoomMsg() }

type joinReq struct {
	roomID   string
	password string
	reply    chan error
}

type leaveReq struct{ done chan struct{} }

type readyReq struct {
	roomID string
	ready  bool
}

type frameMsg struct{ frame proto.Frame }

type retryFire struct{ gen int }

type refetchFire struct{ gen int }

type fetchResult struct {
	snap *proto.RoomSnapshot
	err  error
}

type viewReq struct{ reply chan View }

func (joinReq) isRoomMsg()     {}
func (leaveReq) isRoomMsg()    {}
func (readyReq) isRoomMsg()    {}
func (frameMsg) isRoomMsg()    {}
func (retryFire) isRoomMsg()   {}
func (refetchFire) isRoomMsg() {}
func (fetchResult) isRoomMsg() {}
func (viewReq) isRoomMsg()     {}

// Controller is the room membership controller.
type Controller struct {
	inbox   chan msg
	ctx     context.Context
	cancel  context.CancelFunc
	selfID  string
	emit    Emitter
	fetch   SnapshotFetcher
	reg     *intercept.Registry
	regs    []*intercept.Registration
	timings Timings
	signals chan Signal
	log     *zap.Logger

	// Everything below is owned by the loop goroutine.
	status        Status
	roomID        string
	password      string
	joinReply     chan error
	awaitingRetry bool
	retriedLong   bool
	retryGen      int
	players       []proto.Player
	hostID        string
	lastErr       string
	refetchGen    int
	refetchArmed  bool
	fetchInFlight bool
}

// New starts a controller for the local user selfID. It registers
// interceptors for the membership events and begins its loop; Close
// unregisters them and stops every timer.
func New(parent context.Context, selfID string, emit Emitter, fetch SnapshotFetcher, reg *intercept.Registry, timings Timings, log *zap.Logger) *Controller {
	timings.defaults()
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	c := &Controller{
		inbox:   make(chan msg, 64),
		ctx:     ctx,
		cancel:  cancel,
		selfID:  selfID,
		emit:    emit,
		fetch:   fetch,
		reg:     reg,
		timings: timings,
		signals: make(chan Signal, 4),
		log:     log,
		status:  StatusIdle,
	}
	for _, evt := range []proto.EventType{
		proto.EvtUserJoined,
		proto.EvtUserLeft,
		proto.EvtReadyChanged,
		proto.EvtReadyReset,
		proto.EvtRoomDeleted,
		proto.EvtError,
	} {
		c.regs = append(c.regs, reg.Register(evt, c.forward, 10))
	}
	go c.loop()
	return c
}

func (c *Controller) forward(frame proto.Frame) {
	select {
	case c.inbox <- frameMsg{frame: frame}:
	case <-c.ctx.Done():
	}
}

// JoinRoom joins roomID, retrying recoverable rejections internally.
// Fails fast when another join is in flight or a different room is
// already joined; succeeds immediately when this room is already joined.
func (c *Controller) JoinRoom(ctx context.Context, roomID, password string) error {
	reply := make(chan error, 1)
	select {
	case c.inbox <- joinReq{roomID: roomID, password: password, reply: reply}:
	case <-c.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-c.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LeaveRoom emits the leave intent and clears local room state without
// waiting for server acknowledgment. Navigation may race ahead of it.
func (c *Controller) LeaveRoom() {
	done := make(chan struct{})
	select {
	case c.inbox <- leaveReq{done: done}:
	case <-c.ctx.Done():
		return
	}
	select {
	case <-done:
	case <-c.ctx.Done():
	}
}

// ToggleReady optimistically flips the local ready flag and emits the
// change. Server-pushed ready deltas overwrite the optimistic value.
func (c *Controller) ToggleReady(roomID string, ready bool) {
	select {
	case c.inbox <- readyReq{roomID: roomID, ready: ready}:
	case <-c.ctx.Done():
	}
}

// StartGame asks the server to start the game. Fire and forget; the
// host's UI gates this on the all-ready aggregate.
func (c *Controller) StartGame(roomID string) error {
	return c.emit.Emit(proto.CmdStartGame, proto.RoomIDPayload{RoomID: roomID})
}

// FinishGame asks the server to end the current game.
func (c *Controller) FinishGame(roomID string) error {
	return c.emit.Emit(proto.CmdFinishGame, proto.RoomIDPayload{RoomID: roomID})
}

// View returns a copy of the current projection.
func (c *Controller) View() View {
	reply := make(chan View, 1)
	select {
	case c.inbox <- viewReq{reply: reply}:
	case <-c.ctx.Done():
		return View{Status: StatusIdle}
	}
	select {
	case v := <-reply:
		return v
	case <-c.ctx.Done():
		return View{Status: StatusIdle}
	}
}

// Signals delivers navigate-away notifications (room deleted or gone).
func (c *Controller) Signals() <-chan Signal { return c.signals }

// Close stops the loop, cancels pending timers, unregisters interceptors,
// and fails any pending join with ErrClosed.
func (c *Controller) Close() { c.cancel() }

func (c *Controller) loop() {
	defer func() {
		for _, reg := range c.regs {
			c.reg.Unregister(reg)
		}
		if c.joinReply != nil {
			c.joinReply <- ErrClosed
			c.joinReply = nil
		}
	}()
	for {
		select {
		case <-c.ctx.Done():
			return
		case m := <-c.inbox:
			switch msg := m.(type) {
			case joinReq:
				c.handleJoin(msg)
			case leaveReq:
				c.handleLeave()
				close(msg.done)
			case readyReq:
				c.handleReady(msg)
			case frameMsg:
				c.handleFrame(msg.frame)
			case retryFire:
				c.handleRetryFire(msg.gen)
			case refetchFire:
				c.handleRefetchFire(msg.gen)
			case fetchResult:
				c.handleFetchResult(msg)
			case viewReq:
				msg.reply <- c.view()
			}
		}
	}
}

func (c *Controller) handleJoin(req joinReq) {
	switch {
	case c.status == StatusJoined && c.roomID == req.roomID:
		// Idempotent: no duplicate join command.
		req.reply <- nil
	case c.status == StatusJoining:
		req.reply <- ErrJoinInFlight
	case c.status == StatusJoined:
		req.reply <- ErrOtherRoom
	default:
		c.status = StatusJoining
		c.roomID = req.roomID
		c.password = req.password
		c.joinReply = req.reply
		c.awaitingRetry = false
		c.retriedLong = false
		c.lastErr = ""
		c.emitJoin()
	}
}

func (c *Controller) emitJoin() {
	err := c.emit.Emit(proto.CmdJoinRoom, proto.JoinRoomPayload{
		RoomID:   c.roomID,
		Password: c.password,
	})
	if err != nil {
		c.failJoin(err)
	}
}

func (c *Controller) failJoin(err error) {
	c.status = StatusIdle
	c.awaitingRetry = false
	c.lastErr = err.Error()
	if c.joinReply != nil {
		c.joinReply <- err
		c.joinReply = nil
	}
}

func (c *Controller) handleLeave() {
	if c.status == StatusIdle {
		return
	}
	roomID := c.roomID
	c.reset()
	// Fire and forget; the caller is free to navigate immediately.
	if err := c.emit.Emit(proto.CmdLeaveRoom, proto.LeaveRoomPayload{RoomID: roomID}); err != nil {
		c.log.Warn("leave emit failed", zap.Error(err))
	}
}

func (c *Controller) handleReady(req readyReq) {
	for i := range c.players {
		if c.players[i].ID == c.selfID {
			c.players[i].Ready = req.ready
		}
	}
	if err := c.emit.Emit(proto.CmdToggleReady, proto.ToggleReadyPayload{
		RoomID: req.roomID,
		Ready:  req.ready,
	}); err != nil {
		c.lastErr = err.Error()
	}
}

func (c *Controller) handleFrame(frame proto.Frame) {
	switch frame.Event {
	case proto.EvtUserJoined:
		var p proto.UserJoinedPayload
		if frame.Decode(&p) != nil || p.RoomID != c.roomID {
			return
		}
		if p.Player.ID == c.selfID && c.status == StatusJoining {
			c.status = StatusJoined
			c.awaitingRetry = false
			if c.joinReply != nil {
				c.joinReply <- nil
				c.joinReply = nil
			}
		}
		c.applyJoined(p.Player)
		c.scheduleRefetch()

	case proto.EvtUserLeft:
		var p proto.UserLeftPayload
		if frame.Decode(&p) != nil || p.RoomID != c.roomID {
			return
		}
		if p.PlayerID == c.selfID {
			c.reset()
			return
		}
		c.removePlayer(p.PlayerID)
		c.scheduleRefetch()

	case proto.EvtReadyChanged:
		var p proto.ReadyChangedPayload
		if frame.Decode(&p) != nil || p.RoomID != c.roomID {
			return
		}
		// Authoritative: overwrites any optimistic local value.
		for i := range c.players {
			if c.players[i].ID == p.PlayerID {
				c.players[i].Ready = p.Ready
			}
		}

	case proto.EvtReadyReset:
		for i := range c.players {
			c.players[i].Ready = false
		}

	case proto.EvtRoomDeleted:
		var p proto.RoomDeletedPayload
		if frame.Decode(&p) != nil || p.RoomID != c.roomID || c.status == StatusIdle {
			return
		}
		roomID := c.roomID
		if c.joinReply != nil {
			c.joinReply <- ErrRoomGone
			c.joinReply = nil
		}
		c.reset()
		c.signal(Signal{RoomID: roomID, Reason: "room deleted"})

	case proto.EvtError:
		if c.status != StatusJoining || c.awaitingRetry {
			return
		}
		var p proto.ErrorPayload
		if frame.Decode(&p) != nil {
			return
		}
		// Unscoped errors still classify; the legacy backend omits room_id.
		if p.RoomID != "" && p.RoomID != c.roomID {
			return
		}
		c.classifyJoinRejection(p)
	}
}

// classifyJoinRejection applies the retry policy of one join rejection.
func (c *Controller) classifyJoinRejection(p proto.ErrorPayload) {
	switch {
	case p.Is(proto.CodeWaitRejoin), p.Is(proto.CodeRejoiningInProgress):
		// Recoverable timing race: retry silently, bounded only by the
		// controller's lifetime.
		c.scheduleRetry(c.timings.RetryShort)

	case p.Is(proto.CodeRoomNotFound):
		roomID := c.roomID
		if c.joinReply != nil {
			c.joinReply <- ErrRoomGone
			c.joinReply = nil
		}
		c.reset()
		c.signal(Signal{RoomID: roomID, Reason: p.Error()})

	case p.Is(proto.CodeAlreadyJoining):
		// Retrying would amplify a duplicate-join storm.
		c.failJoin(ErrJoinInFlight)

	default:
		if c.retriedLong {
			c.failJoin(&p)
			return
		}
		c.retriedLong = true
		c.scheduleRetry(c.timings.RetryLong)
	}
}

func (c *Controller) scheduleRetry(d time.Duration) {
	c.awaitingRetry = true
	c.retryGen++
	gen := c.retryGen
	time.AfterFunc(d, func() {
		select {
		case c.inbox <- retryFire{gen: gen}:
		case <-c.ctx.Done():
		}
	})
}

func (c *Controller) handleRetryFire(gen int) {
	if gen != c.retryGen || c.status != StatusJoining || !c.awaitingRetry {
		// Stale timer from an attempt that was cancelled or superseded.
		return
	}
	c.awaitingRetry = false
	c.emitJoin()
}

// scheduleRefetch coalesces membership-delta refetches: an armed timer or
// an in-flight fetch suppresses new ones.
func (c *Controller) scheduleRefetch() {
	if c.refetchArmed || c.fetchInFlight {
		return
	}
	c.refetchArmed = true
	c.refetchGen++
	gen := c.refetchGen
	time.AfterFunc(c.timings.RefetchDebounce, func() {
		select {
		case c.inbox <- refetchFire{gen: gen}:
		case <-c.ctx.Done():
		}
	})
}

func (c *Controller) handleRefetchFire(gen int) {
	if gen != c.refetchGen || !c.refetchArmed {
		return
	}
	c.refetchArmed = false
	if c.status == StatusIdle || c.fetchInFlight {
		return
	}
	c.fetchInFlight = true
	roomID := c.roomID
	go func() {
		snap, err := c.fetch.Room(c.ctx, roomID)
		select {
		case c.inbox <- fetchResult{snap: snap, err: err}:
		case <-c.ctx.Done():
		}
	}()
}

func (c *Controller) handleFetchResult(res fetchResult) {
	c.fetchInFlight = false
	if res.err != nil {
		c.lastErr = res.err.Error()
		return
	}
	if res.snap == nil || res.snap.ID != c.roomID {
		return
	}
	// Wholesale replacement of the roster projection.
	c.players = append([]proto.Player(nil), res.snap.Players...)
	c.hostID = res.snap.HostID
}

func (c *Controller) applyJoined(p proto.Player) {
	for i := range c.players {
		if c.players[i].ID == p.ID {
			c.players[i] = p
			return
		}
	}
	c.players = append(c.players, p)
}

func (c *Controller) removePlayer(id string) {
	for i := range c.players {
		if c.players[i].ID == id {
			c.players = append(c.players[:i], c.players[i+1:]...)
			return
		}
	}
}

// reset cancels pending timers (via generation bumps), clears all
// room-scoped state, and fails any join still waiting for its ack.
func (c *Controller) reset() {
	if c.joinReply != nil {
		c.joinReply <- ErrLeftRoom
		c.joinReply = nil
	}
	c.status = StatusIdle
	c.roomID = ""
	c.password = ""
	c.awaitingRetry = false
	c.retriedLong = false
	c.retryGen++
	c.refetchGen++
	c.refetchArmed = false
	c.players = nil
	c.hostID = ""
	c.joinReply = nil
}

func (c *Controller) signal(sig Signal) {
	select {
	case c.signals <- sig:
	default:
		c.log.Warn("dropping room signal", zap.String("room_id", sig.RoomID))
	}
}

func (c *Controller) view() View {
	v := View{
		Status:  c.status,
		RoomID:  c.roomID,
		Players: append([]proto.Player(nil), c.players...),
		HostID:  c.hostID,
		LastErr: c.lastErr,
	}
	v.AllReady = len(c.players) > 0
	for _, p := range c.players {
		if p.ID == c.hostID {
			// The host is exempt from the ready gate.
			continue
		}
		if !p.Ready {
			v.AllReady = false
			break
		}
	}
	return v
}
