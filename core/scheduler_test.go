package core

import (
	"math/rand/v2"
	"testing"

	"github.com/signalsfoundry/seqlogic/model"
)

func newTestScheduler(t *testing.T, nodes map[string]model.Node, wires map[string]model.Wire) (*Scheduler, *Topology) {
	t.Helper()
	s := NewScheduler(rand.New(rand.NewPCG(1, 2)))
	topo := Resolve(nodes, wires, nil)
	s.reseed(topo, nil, func(root string) bool { return topo.sources[root].fixed })
	return s, topo
}

func TestSchedulerSchedulesAtMostOneFlipPerRoot(t *testing.T) {
	s, _ := newTestScheduler(t,
		map[string]model.Node{"a": node(0, 0, false), "b": node(0, 0, false)},
		map[string]model.Wire{"w": {Start: "a", End: "b", Not: true}},
	)
	s.Activate("b")
	s.Activate("b")

	count := 0
	for _, bucket := range s.toggle {
		if _, ok := bucket["b"]; ok {
			count++
		}
	}
	if count != 1 || s.Pending() != 1 {
		t.Fatalf("b scheduled in %d buckets, pending=%d", count, s.Pending())
	}
}

func TestSchedulerAdvanceBatchesSuccessors(t *testing.T) {
	s, _ := newTestScheduler(t,
		map[string]model.Node{
			"p": node(0, 0, false),
			"q": node(0, 0, false),
			"r": node(0, 0, false),
		},
		map[string]model.Wire{
			"pr": {Start: "p", End: "r", Not: true},
			"qr": {Start: "q", End: "r", Not: true},
		},
	)
	s.cancel("r")
	s.status["r"].active = true
	for _, root := range []string{"p", "q"} {
		s.status[root].pending = true
		s.status[root].nextTick = s.current
	}
	s.toggle[s.current] = map[string]struct{}{"p": {}, "q": {}}

	flipped := s.Advance()
	if len(flipped) != 2 || flipped[0] != "p" || flipped[1] != "q" {
		t.Fatalf("flipped = %v, want [p q]", flipped)
	}
	if s.Current() != 1 {
		t.Fatalf("Current = %d, want 1", s.Current())
	}
	st := s.status["r"]
	if !st.pending || st.nextTick < MinDelay || st.nextTick > MaxDelay {
		t.Fatalf("r = %+v, want one pending flip", *st)
	}
	if s.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", s.Pending())
	}
}

func TestSchedulerDelayWithinRange(t *testing.T) {
	s := NewScheduler(rand.New(rand.NewPCG(9, 9)))
	seen := map[int]bool{}
	for i := 0; i < 200; i++ {
		d := s.delay()
		if d < MinDelay || d > MaxDelay {
			t.Fatalf("delay %d out of range", d)
		}
		seen[d] = true
	}
	if len(seen) != MaxDelay-MinDelay+1 {
		t.Fatalf("delays drawn = %v, want every value in range", seen)
	}
}
