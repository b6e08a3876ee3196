package storage

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/signalsfoundry/seqlogic/model"
)

// document mirrors the persisted JSON layout. Pointer fields let the
// validator tell a missing field from a zero value.
type document struct {
	Nodes    map[string]*nodeDoc `json:"nodes" yaml:"nodes" validate:"required,dive,required"`
	Wires    map[string]*wireDoc `json:"wires" yaml:"wires" validate:"required,dive,required"`
	Texts    map[string]*textDoc `json:"texts" yaml:"texts" validate:"required,dive,required"`
	Viewport *viewportDoc        `json:"viewport" yaml:"viewport" validate:"required"`
}

type nodeDoc struct {
	X       *float64    `json:"x" yaml:"x" validate:"required"`
	Y       *float64    `json:"y" yaml:"y" validate:"required"`
	Powered *poweredDoc `json:"powered" yaml:"powered" validate:"required"`
	Clock   *clockDoc   `json:"clock,omitempty" yaml:"clock,omitempty" validate:"omitempty"`
}

type clockDoc struct {
	Offset   *float64 `json:"offset" yaml:"offset" validate:"required"`
	Duration *float64 `json:"duration" yaml:"duration" validate:"required"`
}

// poweredDoc accepts either a boolean or an inline clock object.
type poweredDoc struct {
	Value bool
	Clock *clockDoc
}

func (p *poweredDoc) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var c clockDoc
		if err := json.Unmarshal(data, &c); err != nil {
			return err
		}
		p.Clock = &c
		return nil
	}
	return json.Unmarshal(data, &p.Value)
}

func (p poweredDoc) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Value)
}

func (p poweredDoc) MarshalYAML() (any, error) {
	return p.Value, nil
}

type wireDoc struct {
	Start *string `json:"start" yaml:"start" validate:"required"`
	End   *string `json:"end" yaml:"end" validate:"required"`
	Not   *bool   `json:"not" yaml:"not" validate:"required"`
}

type textDoc struct {
	X    *float64 `json:"x" yaml:"x" validate:"required"`
	Y    *float64 `json:"y" yaml:"y" validate:"required"`
	Text *string  `json:"text" yaml:"text" validate:"required"`
	Size string   `json:"size" yaml:"size"`
}

type viewportDoc struct {
	X     *float64 `json:"x" yaml:"x" validate:"required"`
	Y     *float64 `json:"y" yaml:"y" validate:"required"`
	Scale *float64 `json:"scale" yaml:"scale" validate:"required,gt=0"`
}

func (d *document) toModel() (model.DiagramStorage, error) {
	out := model.DiagramStorage{
		Nodes: make(map[string]model.Node, len(d.Nodes)),
		Wires: make(map[string]model.Wire, len(d.Wires)),
		Texts: make(map[string]model.Text, len(d.Texts)),
		Viewport: model.Viewport{
			Coordinate: model.Coordinate{X: *d.Viewport.X, Y: *d.Viewport.Y},
			Scale:      *d.Viewport.Scale,
		},
	}
	for id, n := range d.Nodes {
		node := model.Node{
			Coordinate: model.Coordinate{X: *n.X, Y: *n.Y},
			Powered:    model.Fixed(n.Powered.Value),
		}
		clock := n.Clock
		if n.Powered.Clock != nil {
			clock = n.Powered.Clock
		}
		if clock != nil {
			if clock.Offset == nil || clock.Duration == nil {
				return model.DiagramStorage{}, fmt.Errorf("node %q: clock needs offset and duration", id)
			}
			node.Powered = model.Clocked(model.Clock{Offset: *clock.Offset, Duration: *clock.Duration}).
				WithStored(n.Powered.Value)
		}
		out.Nodes[id] = node
	}
	for id, w := range d.Wires {
		out.Wires[id] = model.Wire{Start: *w.Start, End: *w.End, Not: *w.Not}
	}
	for id, t := range d.Texts {
		out.Texts[id] = model.Text{
			Coordinate: model.Coordinate{X: *t.X, Y: *t.Y},
			Label:      *t.Text,
			Size:       t.Size,
		}
	}
	return out, nil
}

func fromModel(s model.DiagramStorage) *document {
	d := &document{
		Nodes: make(map[string]*nodeDoc, len(s.Nodes)),
		Wires: make(map[string]*wireDoc, len(s.Wires)),
		Texts: make(map[string]*textDoc, len(s.Texts)),
		Viewport: &viewportDoc{
			X:     ptr(s.Viewport.X),
			Y:     ptr(s.Viewport.Y),
			Scale: ptr(s.Viewport.Scale),
		},
	}
	for id, n := range s.Nodes {
		nd := &nodeDoc{
			X:       ptr(n.X),
			Y:       ptr(n.Y),
			Powered: &poweredDoc{Value: n.Powered.Stored()},
		}
		if c, ok := n.Powered.Clock(); ok {
			nd.Clock = &clockDoc{Offset: ptr(c.Offset), Duration: ptr(c.Duration)}
		}
		d.Nodes[id] = nd
	}
	for id, w := range s.Wires {
		d.Wires[id] = &wireDoc{Start: ptr(w.Start), End: ptr(w.End), Not: ptr(w.Not)}
	}
	for id, t := range s.Texts {
		d.Texts[id] = &textDoc{X: ptr(t.X), Y: ptr(t.Y), Text: ptr(t.Label), Size: t.Size}
	}
	return d
}

func ptr[T any](v T) *T { return &v }
