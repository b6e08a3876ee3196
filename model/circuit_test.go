package model

import (
	"testing"
	"time"
)

func TestClockAlternatesEveryDuration(t *testing.T) {
	c := Clock{Offset: 0, Duration: 500}

	cases := []struct {
		ms   int64
		want bool
	}{
		{0, true},
		{499, true},
		{500, false},
		{999, false},
		{1000, true},
	}
	for _, tc := range cases {
		if got := c.At(time.UnixMilli(tc.ms)); got != tc.want {
			t.Errorf("At(%dms) = %v, want %v", tc.ms, got, tc.want)
		}
	}
}

func TestClockOffsetShiftsPhase(t *testing.T) {
	c := Clock{Offset: 250, Duration: 500}
	if c.At(time.UnixMilli(100)) {
		t.Fatalf("expected low phase before the offset")
	}
	if !c.At(time.UnixMilli(300)) {
		t.Fatalf("expected high phase just after the offset")
	}
}

func TestClockWithoutDurationIsLow(t *testing.T) {
	if (Clock{Duration: 0}).At(time.UnixMilli(0)) {
		t.Fatalf("zero-duration clock should evaluate low")
	}
}

func TestPoweredSourceVariants(t *testing.T) {
	now := time.UnixMilli(0)

	if !Fixed(true).At(now) || Fixed(false).At(now) {
		t.Fatalf("fixed sources should evaluate to their value")
	}
	src := Clocked(Clock{Duration: 100})
	if !src.IsClocked() {
		t.Fatalf("clocked source should report IsClocked")
	}
	if src.Value() {
		t.Fatalf("clocked source has no fixed value")
	}
	if _, ok := Fixed(true).Clock(); ok {
		t.Fatalf("fixed source should not expose a clock")
	}
}

func TestClockedSourceKeepsStoredValue(t *testing.T) {
	src := Clocked(Clock{Duration: 100}).WithStored(true)
	if !src.Stored() {
		t.Fatalf("stored value lost")
	}
	if src.Value() {
		t.Fatalf("stored value must not leak into the fixed value of a clock")
	}
	// Low phase of the clock wins over the stored value.
	if src.At(time.UnixMilli(150)) {
		t.Fatalf("clocked source evaluated high in its low phase")
	}
	if !Fixed(true).Stored() || Fixed(false).Stored() {
		t.Fatalf("fixed sources store their value")
	}
}

func TestWireConnects(t *testing.T) {
	w := Wire{Start: "a", End: "b"}
	if !w.Connects("a", "b") || !w.Connects("b", "a") {
		t.Fatalf("wire should connect its endpoints in both orders")
	}
	if w.Connects("a", "c") {
		t.Fatalf("wire should not connect a and c")
	}
	if !w.Touches("b") || w.Touches("c") {
		t.Fatalf("Touches mismatch")
	}
}

func TestWireDuplicates(t *testing.T) {
	cases := []struct {
		a, b Wire
		want bool
	}{
		{Wire{Start: "a", End: "b"}, Wire{Start: "b", End: "a"}, true},
		{Wire{Start: "a", End: "b"}, Wire{Start: "b", End: "a", Not: true}, true},
		{Wire{Start: "a", End: "b", Not: true}, Wire{Start: "a", End: "b", Not: true}, true},
		{Wire{Start: "a", End: "b", Not: true}, Wire{Start: "b", End: "a", Not: true}, true},
		{Wire{Start: "a", End: "b"}, Wire{Start: "a", End: "c"}, false},
	}
	for _, tc := range cases {
		if got := tc.a.Duplicates(tc.b); got != tc.want {
			t.Fatalf("%+v.Duplicates(%+v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
		if got := tc.b.Duplicates(tc.a); got != tc.want {
			t.Fatalf("Duplicates not symmetric for %+v, %+v", tc.a, tc.b)
		}
	}
}

func TestStorageCloneDoesNotAlias(t *testing.T) {
	s := BlankStorage()
	s.Nodes["n"] = Node{Coordinate: Coordinate{X: 1}}

	c := s.Clone()
	c.Nodes["n"] = Node{Coordinate: Coordinate{X: 2}}
	c.Nodes["m"] = Node{}

	if s.Nodes["n"].X != 1 || len(s.Nodes) != 1 {
		t.Fatalf("clone mutated the original: %+v", s.Nodes)
	}
}
