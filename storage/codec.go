// Package storage encodes, decodes and validates the persisted diagram
// document.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/seqlogic/model"
)

var (
	// ErrInvalidFormat indicates a document that does not satisfy the
	// storage shape.
	ErrInvalidFormat = errors.New("invalid diagram format")
	// ErrDanglingWire indicates a wire whose endpoint is not a known node.
	ErrDanglingWire = fmt.Errorf("%w: wire references unknown node", ErrInvalidFormat)
)

// FileSuffix is the conventional extension of diagram files.
const FileSuffix = ".seq.json"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Decode parses and validates a JSON diagram document. Unknown fields are
// ignored. Any shape violation is reported as ErrInvalidFormat.
func Decode(data []byte) (model.DiagramStorage, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return model.DiagramStorage{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if err := validate.Struct(&doc); err != nil {
		return model.DiagramStorage{}, fmt.Errorf("%w: %s", ErrInvalidFormat, describe(err))
	}
	s, err := doc.toModel()
	if err != nil {
		return model.DiagramStorage{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return s, nil
}

// Encode renders s as a JSON document. Map keys come out sorted, so equal
// storages encode to equal bytes.
func Encode(s model.DiagramStorage) ([]byte, error) {
	data, err := json.Marshal(fromModel(s))
	if err != nil {
		return nil, fmt.Errorf("encode diagram: %w", err)
	}
	return data, nil
}

// EncodeIndent is Encode with two-space indentation.
func EncodeIndent(s model.DiagramStorage) ([]byte, error) {
	data, err := json.MarshalIndent(fromModel(s), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode diagram: %w", err)
	}
	return data, nil
}

// EncodeYAML renders s as YAML using the same field names as the JSON form.
func EncodeYAML(s model.DiagramStorage) ([]byte, error) {
	data, err := yaml.Marshal(fromModel(s))
	if err != nil {
		return nil, fmt.Errorf("encode diagram yaml: %w", err)
	}
	return data, nil
}

// Validate checks an in-memory storage: the viewport scale must be positive
// and every wire endpoint must name a node in the same storage.
func Validate(s model.DiagramStorage) error {
	if !(s.Viewport.Scale > 0) {
		return fmt.Errorf("%w: viewport scale must be positive, got %v", ErrInvalidFormat, s.Viewport.Scale)
	}
	for id, w := range s.Wires {
		if _, ok := s.Nodes[w.Start]; !ok {
			return fmt.Errorf("%w: wire %q start %q", ErrDanglingWire, id, w.Start)
		}
		if _, ok := s.Nodes[w.End]; !ok {
			return fmt.Errorf("%w: wire %q end %q", ErrDanglingWire, id, w.End)
		}
	}
	return nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	msg := fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag())
	if len(verrs) > 1 {
		msg += fmt.Sprintf(" (and %d more)", len(verrs)-1)
	}
	return msg
}
