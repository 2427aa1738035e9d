package api

import (
	"bytes"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// tableDocument is the YAML shape of a transition table:
//
//	initial: CREATED
//	states: [CREATED, VALIDATED, PROCESSING, COMPLETED, FAILED]
//	transitions:
//	  - {op: validate, from: CREATED, to: VALIDATED}
type tableDocument struct {
	Initial     State   `yaml:"initial"`
	States      []State `yaml:"states"`
	Transitions []Edge  `yaml:"transitions"`
}

// ParseTransitionTable decodes a YAML table document. Unknown fields are
// rejected.
func ParseTransitionTable(data []byte) (*TransitionTable, error) {
	return LoadTransitionTable(bytes.NewReader(data))
}

// LoadTransitionTable decodes a YAML table document from r.
func LoadTransitionTable(r io.Reader) (*TransitionTable, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc tableDocument
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidTable)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidTable, err)
	}
	return NewTransitionTable(doc.Initial, doc.States, doc.Transitions)
}

// MarshalYAML implements yaml.Marshaler so tables round-trip through the
// same document shape LoadTransitionTable reads.
func (t *TransitionTable) MarshalYAML() (any, error) {
	return tableDocument{
		Initial:     t.initial,
		States:      t.States(),
		Transitions: t.Edges(),
	}, nil
}
