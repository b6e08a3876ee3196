package recent

import (
	"context"
	"slices"
	"testing"
	"time"
)

type fakeClock struct {
	t    time.Time
	step time.Duration
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(c.step)
	return c.t
}

func openTestStore(t *testing.T, capacity int, step time.Duration) *Store {
	t.Helper()
	clock := &fakeClock{t: time.UnixMilli(1_700_000_000_000), step: step}
	s, err := Open(Config{InMemory: true, Capacity: capacity, Now: clock.now})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func touch(t *testing.T, s *Store, paths ...string) {
	t.Helper()
	for _, p := range paths {
		if err := s.Touch(context.Background(), p); err != nil {
			t.Fatalf("Touch(%s): %v", p, err)
		}
	}
}

func list(t *testing.T, s *Store) []Entry {
	t.Helper()
	entries, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	return entries
}

func paths(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

func expectPaths(t *testing.T, s *Store, want ...string) []Entry {
	t.Helper()
	entries := list(t, s)
	if got := paths(entries); !slices.Equal(got, want) {
		t.Fatalf("List = %v, want %v", got, want)
	}
	return entries
}

func TestListEmpty(t *testing.T) {
	s := openTestStore(t, 0, time.Second)
	if entries := list(t, s); len(entries) != 0 {
		t.Fatalf("List on a new store = %v, want empty", entries)
	}
}

func TestTouchOrdersMostRecentFirst(t *testing.T) {
	s := openTestStore(t, 0, time.Second)
	touch(t, s, "a.seq.json", "b.seq.json", "a.seq.json")

	entries := expectPaths(t, s, "a.seq.json", "b.seq.json")
	if !entries[0].Updated.After(entries[1].Updated) {
		t.Fatalf("entries not stamped in touch order: %+v", entries)
	}
}

func TestTouchWithinSameMillisecond(t *testing.T) {
	s := openTestStore(t, 0, 0)

	touch(t, s, "a", "b")
	expectPaths(t, s, "b", "a")

	touch(t, s, "a")
	expectPaths(t, s, "a", "b")
}

func TestTouchEvictsBeyondCapacity(t *testing.T) {
	s := openTestStore(t, 2, time.Second)
	touch(t, s, "1", "2", "3")
	expectPaths(t, s, "3", "2")
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, 0, time.Second)

	touch(t, s, "keep", "drop")
	for _, p := range []string{"drop", "never-there"} {
		if err := s.Remove(ctx, p); err != nil {
			t.Fatalf("Remove(%s): %v", p, err)
		}
	}
	expectPaths(t, s, "keep")
}

func TestPersistentStoreSurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(Config{Path: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	touch(t, s, "x.seq.json")
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s, err = Open(Config{Path: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	expectPaths(t, s, "x.seq.json")
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(Config{}); err == nil {
		t.Fatalf("Open without a path or InMemory succeeded")
	}
}
