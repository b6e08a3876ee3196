// Package history provides keyed entity stores with transactional,
// snapshot-diff undo and redo.
package history

import (
	"errors"
	"fmt"
	"iter"
	"slices"
)

var (
	// ErrMisuse marks programming errors in how a Collection is driven.
	ErrMisuse = errors.New("history misuse")
	// ErrUncommitted is returned by Undo and Redo while changes are pending.
	ErrUncommitted = fmt.Errorf("%w: uncommitted changes", ErrMisuse)
)

// Modification is the net change of one id within a frame. A nil side means
// the id was absent.
type Modification[T any] struct {
	Deleted  *T
	Inserted *T
}

type frame[T any] map[string]*Modification[T]

// Collection maps ids to values of one entity type and records every change
// so that committed batches can be undone and redone.
//
// T must be a value type without shared references: values are copied on
// the way in and out, which is what keeps callers from aliasing the store.
//
// A Collection is not safe for concurrent use.
type Collection[T any] struct {
	items  map[string]T
	frames []frame[T]
	// applied counts the frames currently reflected in items.
	applied int
	open    frame[T]
}

// New returns a Collection seeded with items. The seed is not part of the
// history, so it can never be undone.
func New[T any](items map[string]T) *Collection[T] {
	c := &Collection[T]{items: make(map[string]T, len(items))}
	for id, v := range items {
		c.items[id] = v
	}
	return c
}

// Get returns a copy of the value stored under id.
func (c *Collection[T]) Get(id string) (T, bool) {
	v, ok := c.items[id]
	return v, ok
}

// Has reports whether id is present.
func (c *Collection[T]) Has(id string) bool {
	_, ok := c.items[id]
	return ok
}

// Len returns the number of stored entities.
func (c *Collection[T]) Len() int { return len(c.items) }

// IDs returns every id in ascending order.
func (c *Collection[T]) IDs() []string {
	ids := make([]string, 0, len(c.items))
	for id := range c.items {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// All iterates over copies of every entry in ascending id order. The
// collection must not be modified during iteration.
func (c *Collection[T]) All() iter.Seq2[string, T] {
	return func(yield func(string, T) bool) {
		for _, id := range c.IDs() {
			if !yield(id, c.items[id]) {
				return
			}
		}
	}
}

// Snapshot returns a copy of every entry.
func (c *Collection[T]) Snapshot() map[string]T {
	out := make(map[string]T, len(c.items))
	for id, v := range c.items {
		out[id] = v
	}
	return out
}

// Set stores v under id and records the change in the open frame.
func (c *Collection[T]) Set(id string, v T) {
	inserted := v
	c.record(id, &inserted)
	c.items[id] = v
}

// Delete removes id and records the change in the open frame. It reports
// whether id was present.
func (c *Collection[T]) Delete(id string) bool {
	if _, ok := c.items[id]; !ok {
		return false
	}
	c.record(id, nil)
	delete(c.items, id)
	return true
}

// record keeps the first Deleted baseline of id within the open frame so a
// commit nets out however many times the id was touched.
func (c *Collection[T]) record(id string, inserted *T) {
	if c.open == nil {
		c.open = frame[T]{}
	}
	if m, ok := c.open[id]; ok {
		m.Inserted = inserted
		return
	}
	m := &Modification[T]{Inserted: inserted}
	if prev, ok := c.items[id]; ok {
		m.Deleted = &prev
	}
	c.open[id] = m
}

// Pending reports whether the open frame holds changes.
func (c *Collection[T]) Pending() bool { return len(c.open) > 0 }

// Commit seals the open frame, which may be empty, as one undoable unit and
// discards anything that could have been redone.
func (c *Collection[T]) Commit() {
	f := c.open
	if f == nil {
		f = frame[T]{}
	}
	c.frames = append(c.frames[:c.applied], f)
	c.applied = len(c.frames)
	c.open = nil
}

// CanUndo reports whether a committed frame is available to undo.
func (c *Collection[T]) CanUndo() bool { return c.applied > 0 }

// CanRedo reports whether an undone frame is available to redo.
func (c *Collection[T]) CanRedo() bool { return c.applied < len(c.frames) }

// Undo reverts the most recent applied frame. It returns false at the
// oldest frame.
func (c *Collection[T]) Undo() (bool, error) {
	if c.Pending() {
		return false, ErrUncommitted
	}
	if !c.CanUndo() {
		return false, nil
	}
	c.applied--
	for id, m := range c.frames[c.applied] {
		if m.Deleted != nil {
			c.items[id] = *m.Deleted
		} else {
			delete(c.items, id)
		}
	}
	return true, nil
}

// Redo reapplies the next undone frame. It returns false at the newest
// frame.
func (c *Collection[T]) Redo() (bool, error) {
	if c.Pending() {
		return false, ErrUncommitted
	}
	if !c.CanRedo() {
		return false, nil
	}
	for id, m := range c.frames[c.applied] {
		if m.Inserted != nil {
			c.items[id] = *m.Inserted
		} else {
			delete(c.items, id)
		}
	}
	c.applied++
	return true, nil
}

// Depth returns the number of applied and the total number of committed
// frames.
func (c *Collection[T]) Depth() (applied, total int) {
	return c.applied, len(c.frames)
}
