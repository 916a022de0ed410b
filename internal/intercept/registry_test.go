package intercept

import (
	"testing"

	"github.com/overwork-game/client/pkg/proto"
)

func TestDispatchOrder_PriorityThenRegistration(t *testing.T) {
	r := NewRegistry(nil)
	var got []string
	add := func(name string, prio int) {
		r.Register(proto.EvtUserJoined, func(proto.Frame) { got = append(got, name) }, prio)
	}
	add("b", 10)
	add("a", 0)
	add("c", 10)

	r.Dispatch(proto.Frame{Event: proto.EvtUserJoined})

	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("dispatched %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dispatched %v, want %v", got, want)
		}
	}
}

func TestDispatch_WildcardRunsAfterExact(t *testing.T) {
	r := NewRegistry(nil)
	var got []string
	r.Register(proto.Wildcard, func(proto.Frame) { got = append(got, "wild") }, 0)
	r.Register(proto.EvtError, func(proto.Frame) { got = append(got, "exact") }, 100)

	r.Dispatch(proto.Frame{Event: proto.EvtError})

	if len(got) != 2 || got[0] != "exact" || got[1] != "wild" {
		t.Fatalf("got %v, want [exact wild]", got)
	}
}

func TestDispatch_WildcardSeesUnmatchedTypes(t *testing.T) {
	r := NewRegistry(nil)
	n := 0
	r.Register(proto.Wildcard, func(proto.Frame) { n++ }, 0)

	r.Dispatch(proto.Frame{Event: proto.EventType("unknown_event")})

	if n != 1 {
		t.Fatalf("wildcard ran %d times, want 1", n)
	}
}

func TestDispatch_PanicDoesNotStopChain(t *testing.T) {
	r := NewRegistry(nil)
	ran := false
	r.Register(proto.EvtError, func(proto.Frame) { panic("boom") }, 0)
	r.Register(proto.EvtError, func(proto.Frame) { ran = true }, 5)

	r.Dispatch(proto.Frame{Event: proto.EvtError})

	if !ran {
		t.Fatal("second handler did not run after panic in first")
	}
}

func TestUnregister_MidDispatchAndTwice(t *testing.T) {
	r := NewRegistry(nil)
	var got []string
	var second *Registration
	first := r.Register(proto.EvtError, func(proto.Frame) {
		got = append(got, "first")
		r.Unregister(second)
	}, 0)
	second = r.Register(proto.EvtError, func(proto.Frame) { got = append(got, "second") }, 1)

	r.Dispatch(proto.Frame{Event: proto.EvtError})
	if len(got) != 1 || got[0] != "first" {
		t.Fatalf("got %v, want [first]", got)
	}

	// Already-removed and nil handles are no-ops.
	r.Unregister(second)
	r.Unregister(first)
	r.Unregister(first)
	r.Unregister(nil)

	r.Dispatch(proto.Frame{Event: proto.EvtError})
	if len(got) != 1 {
		t.Fatalf("handlers ran after unregistration: %v", got)
	}
}
