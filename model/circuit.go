package model

import (
	"math"
	"time"
)

// Coordinate is a position on the diagram canvas.
type Coordinate struct {
	X float64
	Y float64
}

// Clock describes a periodic source. The powered value alternates every
// Duration milliseconds, phase-shifted by Offset milliseconds.
type Clock struct {
	Offset   float64
	Duration float64
}

// At reports whether the clock is in its high phase at now.
func (c Clock) At(now time.Time) bool {
	if c.Duration <= 0 {
		return false
	}
	ms := float64(now.UnixMilli())
	phase := math.Floor((ms - c.Offset) / c.Duration)
	return math.Mod(phase, 2) == 0
}

// PoweredSource is either a fixed value or a clock. A clocked source still
// carries the boolean it was stored with so documents round-trip, but only
// the clock drives simulation.
type PoweredSource struct {
	clocked bool
	value   bool
	clock   Clock
}

// Fixed returns a source that is always v.
func Fixed(v bool) PoweredSource {
	return PoweredSource{value: v}
}

// Clocked returns a source driven by c.
func Clocked(c Clock) PoweredSource {
	return PoweredSource{clocked: true, clock: c}
}

// WithStored returns a copy of p whose stored boolean is v. For a fixed
// source this is the same as Fixed(v).
func (p PoweredSource) WithStored(v bool) PoweredSource {
	p.value = v
	return p
}

// Stored returns the boolean the source was stored with, clocked or not.
func (p PoweredSource) Stored() bool { return p.value }

// IsClocked reports whether the source is a clock.
func (p PoweredSource) IsClocked() bool { return p.clocked }

// Clock returns the clock and true for clocked sources.
func (p PoweredSource) Clock() (Clock, bool) {
	return p.clock, p.clocked
}

// Value returns the fixed value. It is false for clocked sources.
func (p PoweredSource) Value() bool {
	return !p.clocked && p.value
}

// At evaluates the source at now.
func (p PoweredSource) At(now time.Time) bool {
	if p.clocked {
		return p.clock.At(now)
	}
	return p.value
}

// Node is a binary signal carrier. A powered node sources a high signal on
// its own; an unpowered one only reflects what flows to it.
type Node struct {
	Coordinate
	Powered PoweredSource
}

// Wire connects two nodes. Plain wires join both ends instantly and in both
// directions. NOT wires invert Start into End after a short delay.
type Wire struct {
	Start string
	End   string
	Not   bool
}

// Connects reports whether the wire joins a and b in either direction.
func (w Wire) Connects(a, b string) bool {
	return (w.Start == a && w.End == b) || (w.Start == b && w.End == a)
}

// Duplicates reports whether w and o join the same pair of nodes, in
// either direction and whatever their kind. At most one wire may join a
// pair.
func (w Wire) Duplicates(o Wire) bool {
	return w.Connects(o.Start, o.End)
}

// Touches reports whether id is one of the wire's endpoints.
func (w Wire) Touches(id string) bool {
	return w.Start == id || w.End == id
}

// Text is a free-standing annotation. It never takes part in simulation.
type Text struct {
	Coordinate
	Label string
	Size  string
}

// Viewport is UI state carried along with a diagram.
type Viewport struct {
	Coordinate
	Scale float64
}

// Status is the simulated state of a node's group.
type Status struct {
	// Powered is the resting value injected by the group's sources.
	Powered bool
	// Active is the current simulated value.
	Active bool
	// NextTick is the tick at which Active flips, if one is pending.
	NextTick *int
}
