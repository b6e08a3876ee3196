package core

import "time"

// SimulationEngine drives a Diagram tick by tick and fans the results out
// to listeners.
type SimulationEngine struct {
	Diagram       *Diagram
	tickListeners []func(tick int, now time.Time, flipped []string)
}

func NewSimulationEngine(d *Diagram) *SimulationEngine {
	return &SimulationEngine{
		Diagram:       d,
		tickListeners: []func(int, time.Time, []string){},
	}
}

// RegisterTickListener adds fn to the listeners notified after every tick.
func (se *SimulationEngine) RegisterTickListener(fn func(tick int, now time.Time, flipped []string)) {
	se.tickListeners = append(se.tickListeners, fn)
}

// Step commits one tick at now and returns the roots that flipped.
func (se *SimulationEngine) Step(now time.Time) []string {
	tick := se.Diagram.CurrentTick()
	flipped := se.Diagram.AdvanceTick(now)
	for _, fn := range se.tickListeners {
		fn(tick, now, flipped)
	}
	return flipped
}

// Run commits ticks ticks, the first at start and each following one
// interval later. It returns the total number of flips.
func (se *SimulationEngine) Run(ticks int, start time.Time, interval time.Duration) int {
	flips := 0
	now := start
	for i := 0; i < ticks; i++ {
		flips += len(se.Step(now))
		now = now.Add(interval)
	}
	return flips
}
