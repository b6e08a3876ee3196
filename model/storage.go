package model

import "maps"

// DiagramStorage is the persisted shape of a diagram. IDs are opaque strings
// assigned at creation and kept stable across saves.
type DiagramStorage struct {
	Nodes    map[string]Node
	Wires    map[string]Wire
	Texts    map[string]Text
	Viewport Viewport
}

// BlankStorage returns an empty diagram with a unit-scale viewport.
func BlankStorage() DiagramStorage {
	return DiagramStorage{
		Nodes:    map[string]Node{},
		Wires:    map[string]Wire{},
		Texts:    map[string]Text{},
		Viewport: Viewport{Scale: 1},
	}
}

// Clone returns a deep copy. Entity values hold no references, so copying
// the maps is enough.
func (s DiagramStorage) Clone() DiagramStorage {
	out := DiagramStorage{
		Nodes:    maps.Clone(s.Nodes),
		Wires:    maps.Clone(s.Wires),
		Texts:    maps.Clone(s.Texts),
		Viewport: s.Viewport,
	}
	if out.Nodes == nil {
		out.Nodes = map[string]Node{}
	}
	if out.Wires == nil {
		out.Wires = map[string]Wire{}
	}
	if out.Texts == nil {
		out.Texts = map[string]Text{}
	}
	return out
}
