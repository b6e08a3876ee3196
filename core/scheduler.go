package core

import (
	"math/rand/v2"
	"slices"
)

// Gate propagation latency, in ticks, of a NOT wire. Drawing it from a
// range keeps oscillators that share a topology from running in lock-step.
const (
	MinDelay = 3
	MaxDelay = 4
)

type groupStatus struct {
	powered  bool
	active   bool
	nextTick int
	pending  bool
}

// Scheduler tracks, per group root, the simulated value and at most one
// pending flip, and commits due flips one tick at a time.
type Scheduler struct {
	current int
	toggle  map[int]map[string]struct{}
	status  map[string]*groupStatus
	topo    *Topology
	rng     *rand.Rand
}

// NewScheduler returns a Scheduler at tick zero. A nil rng draws delays
// from an unseeded source.
func NewScheduler(rng *rand.Rand) *Scheduler {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Scheduler{
		toggle: make(map[int]map[string]struct{}),
		status: make(map[string]*groupStatus),
		rng:    rng,
	}
}

// Current returns the index of the next tick to be committed.
func (s *Scheduler) Current() int { return s.current }

func (s *Scheduler) delay() int {
	return MinDelay + s.rng.IntN(MaxDelay-MinDelay+1)
}

// Activate re-evaluates root. A root whose desired value already matches
// its active value loses any pending flip; otherwise a flip is scheduled
// unless one is already pending.
func (s *Scheduler) Activate(root string) {
	st, ok := s.status[root]
	if !ok {
		return
	}
	desired := st.powered
	for _, p := range s.topo.Predecessors(root) {
		if ps, ok := s.status[p]; ok && !ps.active {
			desired = true
			break
		}
	}
	if desired == st.active {
		s.cancel(root)
		return
	}
	if st.pending {
		return
	}
	st.nextTick = s.current + s.delay()
	st.pending = true
	bucket, ok := s.toggle[st.nextTick]
	if !ok {
		bucket = make(map[string]struct{})
		s.toggle[st.nextTick] = bucket
	}
	bucket[root] = struct{}{}
}

func (s *Scheduler) cancel(root string) {
	st, ok := s.status[root]
	if !ok || !st.pending {
		return
	}
	if bucket, ok := s.toggle[st.nextTick]; ok {
		delete(bucket, root)
		if len(bucket) == 0 {
			delete(s.toggle, st.nextTick)
		}
	}
	st.pending = false
	st.nextTick = 0
}

// Advance commits every flip due at the current tick, then re-evaluates
// each successor of a flipped group exactly once so all of them observe the
// same post-flip snapshot. It returns the flipped roots in ascending order.
func (s *Scheduler) Advance() []string {
	bucket := s.toggle[s.current]
	delete(s.toggle, s.current)

	flipped := make([]string, 0, len(bucket))
	for root := range bucket {
		if _, ok := s.status[root]; ok {
			flipped = append(flipped, root)
		}
	}
	slices.Sort(flipped)

	seen := make(map[string]struct{})
	var worklist []string
	for _, root := range flipped {
		st := s.status[root]
		st.active = !st.active
		st.pending = false
		st.nextTick = 0
		for _, succ := range s.topo.Successors(root) {
			if _, dup := seen[succ]; dup {
				continue
			}
			seen[succ] = struct{}{}
			worklist = append(worklist, succ)
		}
	}
	for _, succ := range worklist {
		s.Activate(succ)
	}
	s.current++
	return flipped
}

// Pending returns the number of scheduled flips.
func (s *Scheduler) Pending() int {
	n := 0
	for _, bucket := range s.toggle {
		n += len(bucket)
	}
	return n
}

// reseed installs a new topology. Surviving roots keep their state; new
// roots inherit the active value of the group they belonged to before, or
// start at their powered value when they are brand new. Anything that is no
// longer a root is dropped along with its pending flip.
func (s *Scheduler) reseed(topo *Topology, previous *Topology, powered func(root string) bool) {
	next := make(map[string]*groupStatus, topo.GroupCount())
	for _, root := range topo.Roots() {
		if st, ok := s.status[root]; ok {
			st.powered = powered(root)
			next[root] = st
			continue
		}
		st := &groupStatus{powered: powered(root)}
		st.active = st.powered
		if previous != nil {
			if old := previous.Root(root); old != "" {
				if ost, ok := s.status[old]; ok {
					st.active = ost.active
				}
			}
		}
		next[root] = st
	}
	for root := range s.status {
		if _, ok := next[root]; !ok {
			s.cancel(root)
		}
	}
	s.status = next
	s.topo = topo
	for _, root := range topo.Roots() {
		s.Activate(root)
	}
}

// setPowered updates the resting value of root and re-evaluates it when the
// value changed.
func (s *Scheduler) setPowered(root string, powered bool) {
	st, ok := s.status[root]
	if !ok || st.powered == powered {
		return
	}
	st.powered = powered
	s.Activate(root)
}

func (s *Scheduler) statusOf(root string) (groupStatus, bool) {
	st, ok := s.status[root]
	if !ok {
		return groupStatus{}, false
	}
	return *st, true
}
