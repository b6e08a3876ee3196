// Package timectrl drives simulation frames from a wall-clock ticker or as
// fast as the caller can consume them.
package timectrl

import (
	"context"
	"sync"
	"time"
)

// SimClock gives components read access to simulation time without
// depending on the concrete controller.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
	// Frame returns the number of frames delivered so far.
	Frame() int
}

// Mode describes how the TimeController advances simulation time.
type Mode int

const (
	// RealTime advances according to wall-clock time.
	RealTime Mode = iota
	// Accelerated advances as quickly as the listeners return while still
	// stepping simulation time by Tick.
	Accelerated
)

// String returns the flag spelling of m.
func (m Mode) String() string {
	if m == Accelerated {
		return "accelerated"
	}
	return "realtime"
}

// FrameListener is called once per frame with the frame index and the
// simulation time of that frame.
type FrameListener func(frame int, simTime time.Time)

// TimeController drives simulation time and notifies registered listeners.
// Listeners run on the controller's goroutine, one frame at a time.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode

	currentTime time.Time
	frame       int

	listeners []FrameListener
}

// NewTimeController constructs a controller.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime:   start,
		Tick:        tick,
		Mode:        mode,
		currentTime: start,
	}
}

// Now returns the current simulation time. Implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.currentTime
}

// Frame returns the number of frames delivered so far. Implements SimClock.
func (tc *TimeController) Frame() int {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.frame
}

// SetTime moves simulation time without delivering a frame.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.currentTime = t
}

// AddListener registers a callback invoked on every frame. It must not be
// called while the controller is running.
func (tc *TimeController) AddListener(fn FrameListener) {
	tc.listeners = append(tc.listeners, fn)
}

// Start delivers frames in a separate goroutine, beginning at StartTime and
// stepping by Tick. It stops after frames frames, or when ctx is cancelled
// if frames is not positive. The returned channel is closed when the
// controller finishes.
func (tc *TimeController) Start(ctx context.Context, frames int) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		tc.mu.Lock()
		simTime := tc.StartTime
		tc.currentTime = simTime
		tc.frame = 0
		tc.mu.Unlock()

		var tick <-chan time.Time
		if tc.Mode == RealTime && tc.Tick > 0 {
			ticker := time.NewTicker(tc.Tick)
			defer ticker.Stop()
			tick = ticker.C
		}

		for frame := 0; frames <= 0 || frame < frames; frame++ {
			if tick != nil {
				select {
				case <-ctx.Done():
					return
				case <-tick:
				}
			} else if ctx.Err() != nil {
				return
			}

			for _, fn := range tc.listeners {
				fn(frame, simTime)
			}

			simTime = simTime.Add(tc.Tick)
			tc.mu.Lock()
			tc.currentTime = simTime
			tc.frame = frame + 1
			tc.mu.Unlock()
		}
	}()
	return done
}
