package core

import (
	"slices"
	"time"

	"github.com/signalsfoundry/seqlogic/model"
)

// groupSource is the OR of every powered source merged into one group.
type groupSource struct {
	fixed  bool
	clocks []model.Clock
}

func (g groupSource) at(now time.Time) bool {
	if g.fixed {
		return true
	}
	for _, c := range g.clocks {
		if c.At(now) {
			return true
		}
	}
	return false
}

func (g *groupSource) merge(other groupSource) {
	g.fixed = g.fixed || other.fixed
	g.clocks = append(g.clocks, other.clocks...)
}

// Topology is the connectivity of a diagram at one point in its history:
// the union-find partition of nodes joined by plain wires and the delayed
// dependencies between the resulting groups.
type Topology struct {
	parent      map[string]string
	wiresByNode map[string][]string
	sources     map[string]groupSource
	prec        map[string][]string
	succ        map[string][]string
	roots       []string
}

// Resolve rebuilds connectivity from the current nodes and wires. Plain
// wires merge their endpoints into one group whose powered source is the
// OR of its members. NOT wires become precedence edges between groups.
//
// keep decides, when two groups merge, which root survives: it is called
// with both roots and returns true when the first should absorb the second.
// A nil keep always folds the start side into the end side.
func Resolve(nodes map[string]model.Node, wires map[string]model.Wire, keep func(a, b string) bool) *Topology {
	t := &Topology{
		parent:      make(map[string]string, len(nodes)),
		wiresByNode: make(map[string][]string, len(nodes)),
		sources:     make(map[string]groupSource, len(nodes)),
		prec:        make(map[string][]string),
		succ:        make(map[string][]string),
	}

	nodeIDs := sortedKeys(nodes)
	wireIDs := sortedKeys(wires)

	for _, id := range nodeIDs {
		t.parent[id] = id
		t.wiresByNode[id] = nil
		n := nodes[id]
		var src groupSource
		if c, ok := n.Powered.Clock(); ok {
			src.clocks = []model.Clock{c}
		} else {
			src.fixed = n.Powered.Value()
		}
		t.sources[id] = src
	}

	for _, wid := range wireIDs {
		w := wires[wid]
		if _, ok := t.parent[w.Start]; !ok {
			continue
		}
		if _, ok := t.parent[w.End]; !ok {
			continue
		}
		t.wiresByNode[w.Start] = append(t.wiresByNode[w.Start], wid)
		if w.End != w.Start {
			t.wiresByNode[w.End] = append(t.wiresByNode[w.End], wid)
		}
	}

	for _, wid := range wireIDs {
		w := wires[wid]
		if w.Not || !t.known(w.Start) || !t.known(w.End) {
			continue
		}
		from, into := t.Root(w.Start), t.Root(w.End)
		if from == into {
			continue
		}
		if keep != nil && keep(from, into) {
			from, into = into, from
		}
		t.parent[from] = into
		src := t.sources[into]
		src.merge(t.sources[from])
		t.sources[into] = src
		delete(t.sources, from)
	}

	for _, id := range nodeIDs {
		if t.Root(id) == id {
			t.roots = append(t.roots, id)
		}
	}

	precSet := make(map[[2]string]struct{})
	for _, wid := range wireIDs {
		w := wires[wid]
		if !w.Not || !t.known(w.Start) || !t.known(w.End) {
			continue
		}
		start, end := t.parent[w.Start], t.parent[w.End]
		edge := [2]string{start, end}
		if _, dup := precSet[edge]; dup {
			continue
		}
		precSet[edge] = struct{}{}
		t.prec[end] = append(t.prec[end], start)
		t.succ[start] = append(t.succ[start], end)
	}

	return t
}

func (t *Topology) known(id string) bool {
	_, ok := t.parent[id]
	return ok
}

// Root returns the representative of id's group, compressing the path on
// the way. Unknown ids return "".
func (t *Topology) Root(id string) string {
	p, ok := t.parent[id]
	if !ok {
		return ""
	}
	if p == id {
		return id
	}
	r := t.Root(p)
	t.parent[id] = r
	return r
}

// Roots returns every group root in ascending order.
func (t *Topology) Roots() []string { return slices.Clone(t.roots) }

// IsRoot reports whether id currently represents a group.
func (t *Topology) IsRoot(id string) bool {
	return t.known(id) && t.parent[id] == id
}

// WiresOf returns the ids of every wire touching node id.
func (t *Topology) WiresOf(id string) []string { return slices.Clone(t.wiresByNode[id]) }

// Predecessors returns the groups whose inverted value feeds root.
func (t *Topology) Predecessors(root string) []string { return t.prec[root] }

// Successors returns the groups that listen to root.
func (t *Topology) Successors(root string) []string { return t.succ[root] }

// Powered evaluates the merged source of root at now.
func (t *Topology) Powered(root string, now time.Time) bool {
	return t.sources[root].at(now)
}

// Clocked reports whether root's source depends on time.
func (t *Topology) Clocked(root string) bool {
	return len(t.sources[root].clocks) > 0
}

// Members returns every node of root's group in ascending order.
func (t *Topology) Members(root string) []string {
	var out []string
	for id := range t.parent {
		if t.Root(id) == root {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// GroupCount returns the number of groups.
func (t *Topology) GroupCount() int { return len(t.roots) }

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
