package schema

import "fmt"

// Kind is the declared type of a datapoint.
type Kind string

const (
	KindText    Kind = "text"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindEnum    Kind = "enum"
)

// Valid returns true if k is one of the four declared kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindNumber, KindBoolean, KindEnum:
		return true
	}
	return false
}

// Definition is the declared type (and, for enums, allowed values) of a
// datapoint, scoped to a rule group.
type Definition struct {
	Name   string   `json:"name"`
	Kind   Kind     `json:"type"`
	Values []string `json:"values"`
}

// Complete returns true if the definition can be used for typing decisions.
// An enum definition needs at least one allowed value.
func (d Definition) Complete() bool {
	if !d.Kind.Valid() {
		return false
	}
	if d.Kind == KindEnum {
		return len(d.Values) > 0
	}
	return true
}

// Validate checks structural invariants on a single definition.
func (d Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("datapoint definition missing name")
	}
	if !d.Kind.Valid() {
		return fmt.Errorf("datapoint %s: unknown type %q", d.Name, d.Kind)
	}
	if d.Kind == KindEnum && len(d.Values) == 0 {
		return fmt.Errorf("datapoint %s: enum requires at least one value", d.Name)
	}
	if d.Kind != KindEnum && len(d.Values) > 0 {
		return fmt.Errorf("datapoint %s: values are only allowed on enum", d.Name)
	}
	return nil
}

// AllowsValue reports whether v is an allowed enum value. For non-enum
// definitions it always returns true.
func (d Definition) AllowsValue(v string) bool {
	if d.Kind != KindEnum {
		return true
	}
	for _, allowed := range d.Values {
		if allowed == v {
			return true
		}
	}
	return false
}
