package core

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/signalsfoundry/seqlogic/internal/logging"
)

var (
	// ErrNotFound indicates a lookup or removal of an id that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidWire indicates a wire edit that would create a self-loop or
	// duplicate an existing wire.
	ErrInvalidWire = errors.New("invalid wire")
)

// MetricsRecorder receives diagram and simulation measurements.
type MetricsRecorder interface {
	SetDiagramCounts(nodes, wires, texts, groups int)
	ObserveResolve(d time.Duration)
	RecordTick(tick, flips, pending int)
}

// FileReader is the read half of the file collaborator.
type FileReader interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
}

// FileWriter is the write half of the file collaborator.
type FileWriter interface {
	WriteFile(ctx context.Context, path string, data []byte) error
}

// Option customises Diagram construction.
type Option func(*Diagram)

// WithLogger attaches a structured logger.
func WithLogger(l logging.Logger) Option {
	return func(d *Diagram) {
		if l != nil {
			d.log = l
		}
	}
}

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(d *Diagram) {
		d.metrics = m
	}
}

// WithRand sets the random source used for propagation delays and paste
// offsets. A seeded source makes a run reproducible.
func WithRand(r *rand.Rand) Option {
	return func(d *Diagram) {
		d.rng = r
	}
}

// WithSeed is WithRand over a PCG source seeded with seed.
func WithSeed(seed uint64) Option {
	return WithRand(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// WithStartTime sets the time at which clocked sources are first evaluated.
func WithStartTime(now time.Time) Option {
	return func(d *Diagram) {
		d.now = now
	}
}

// WithIDGenerator replaces the uuid generator used for new entities.
func WithIDGenerator(fn func() string) Option {
	return func(d *Diagram) {
		if fn != nil {
			d.newID = fn
		}
	}
}

func defaultID() string { return uuid.NewString() }
