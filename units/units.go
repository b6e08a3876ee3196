// Package units ships ready-made circuits that can be pasted into a
// diagram: basic gates built from inverting wires, and the latches and
// flip-flops made from them.
//
// Inputs are unpowered nodes named after their pins (a, b, d, e, clk) and
// outputs are named out, q and qn, so a unit loaded directly into a diagram
// can be driven by setting the powered value of its input nodes.
package units

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	"github.com/signalsfoundry/seqlogic/model"
	"github.com/signalsfoundry/seqlogic/storage"
)

//go:embed circuits/*.seq.json
var circuits embed.FS

// ErrUnknownUnit is returned for a name that is not in the library.
var ErrUnknownUnit = errors.New("unknown unit")

// popular lists the units offered first, in display order.
var popular = []string{"and", "or", "nand", "d-latch", "d-trigger"}

// Names returns every unit name in ascending order.
func Names() []string {
	entries, err := fs.ReadDir(circuits, "circuits")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), storage.FileSuffix))
	}
	slices.Sort(names)
	return names
}

// Popular returns the most commonly used units in display order.
func Popular() []string {
	return slices.Clone(popular)
}

// Raw returns the stored document of the named unit.
func Raw(name string) ([]byte, error) {
	data, err := circuits.ReadFile("circuits/" + name + storage.FileSuffix)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownUnit, name)
	}
	return data, nil
}

// Load decodes the named unit.
func Load(name string) (model.DiagramStorage, error) {
	data, err := Raw(name)
	if err != nil {
		return model.DiagramStorage{}, err
	}
	s, err := storage.Decode(data)
	if err != nil {
		return model.DiagramStorage{}, fmt.Errorf("unit %s: %w", name, err)
	}
	return s, nil
}
