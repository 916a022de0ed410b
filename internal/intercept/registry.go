// Package intercept fans inbound realtime events out to independent
// observers. Many features (room controller, phase projector, chat
// merger, loggers) watch overlapping subsets of the same stream; the
// registry decouples them from whoever owns the connection.
package intercept

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/overwork-game/client/pkg/proto"
)

// Handler observes one inbound frame. Handlers must not block; they run
// on the connection's read loop.
type Handler func(proto.Frame)

// Registration identifies one registered handler. Go function values are
// not comparable, so unregistration goes through the handle returned by
// Register instead of the handler itself.
type Registration struct {
	event    proto.EventType
	handler  Handler
	priority int
	seq      int
	enabled  bool
}

// Registry is a process-wide, priority-ordered table of event handlers.
// Registration and unregistration are safe from any goroutine, including
// from a handler running mid-dispatch.
type Registry struct {
	mu      sync.Mutex
	seq     int
	entries map[proto.EventType][]*Registration
	log     *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		entries: make(map[proto.EventType][]*Registration),
		log:     log,
	}
}

// Register adds a handler for event. Lower priorities dispatch first;
// ties break by registration order. proto.Wildcard subscribes to every
// inbound event and always dispatches after the exact-type handlers.
func (r *Registry) Register(event proto.EventType, h Handler, priority int) *Registration {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	reg := &Registration{
		event:    event,
		handler:  h,
		priority: priority,
		seq:      r.seq,
		enabled:  true,
	}
	r.entries[event] = append(r.entries[event], reg)
	return reg
}

// Unregister removes exactly that registration. Unregistering a handle
// that was never registered, or twice, is a no-op.
func (r *Registry) Unregister(reg *Registration) {
	if reg == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	reg.enabled = false
	list := r.entries[reg.event]
	for i, e := range list {
		if e == reg {
			r.entries[reg.event] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Dispatch runs all handlers for the frame's event type, exact-type
// handlers first, then wildcard handlers, each group in ascending
// priority order. The registration list is snapshotted up front so a
// handler may (un)register mid-dispatch without corrupting the loop.
// A handler panicking is logged and does not stop the chain.
func (r *Registry) Dispatch(frame proto.Frame) {
	for _, reg := range r.snapshot(frame.Event) {
		r.run(reg, frame)
	}
	for _, reg := range r.snapshot(proto.Wildcard) {
		r.run(reg, frame)
	}
}

func (r *Registry) snapshot(event proto.EventType) []*Registration {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.entries[event]
	if len(list) == 0 {
		return nil
	}
	out := make([]*Registration, len(list))
	copy(out, list)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority < out[j].priority
		}
		return out[i].seq < out[j].seq
	})
	return out
}

func (r *Registry) run(reg *Registration, frame proto.Frame) {
	r.mu.Lock()
	enabled := reg.enabled
	r.mu.Unlock()
	if !enabled {
		// Unregistered by an earlier handler in this same dispatch.
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("interceptor panicked",
				zap.String("event", string(frame.Event)),
				zap.Any("panic", p))
		}
	}()
	reg.handler(frame)
}
