// Package negotiate collects type assignments for datapoints a rule proposal
// referenced but the schema model does not know yet.
package negotiate

import (
	"fmt"
	"strings"

	"rulemaker-backend/internal/schema"
)

// Row is the working state for one pending datapoint: its kind (initially
// unset) and, for enums, the accumulated values plus a staging buffer for
// comma-separated entry.
type Row struct {
	Name   string      `json:"name"`
	Kind   schema.Kind `json:"type"` // empty until the user picks one
	Values []string    `json:"values"`
	Buffer string      `json:"buffer"`
}

// Flow is the per-negotiation-turn editing state. Once saved it becomes
// terminal: all mutating calls fail.
type Flow struct {
	rows  []Row
	saved bool
}

// NewFlow creates one row per pending name, in the given order.
func NewFlow(pendingNames []string) *Flow {
	rows := make([]Row, len(pendingNames))
	for i, name := range pendingNames {
		rows[i] = Row{Name: name}
	}
	return &Flow{rows: rows}
}

// Rows returns a copy of the working rows.
func (f *Flow) Rows() []Row {
	out := make([]Row, len(f.rows))
	copy(out, f.rows)
	return out
}

// Saved reports whether the flow has been saved and is now terminal.
func (f *Flow) Saved() bool {
	return f.saved
}

func (f *Flow) row(i int) (*Row, error) {
	if f.saved {
		return nil, fmt.Errorf("negotiation already saved")
	}
	if i < 0 || i >= len(f.rows) {
		return nil, fmt.Errorf("row index %d out of range", i)
	}
	return &f.rows[i], nil
}

// SetKind assigns a type to the row. Changing the kind resets the row's value
// set and buffer: a definition cannot carry enum values while typed as
// text/number/boolean.
func (f *Flow) SetKind(i int, kind schema.Kind) error {
	r, err := f.row(i)
	if err != nil {
		return err
	}
	if !kind.Valid() {
		return fmt.Errorf("unknown datapoint type %q", kind)
	}
	r.Kind = kind
	r.Values = nil
	r.Buffer = ""
	return nil
}

// SetBuffer replaces the row's staging input buffer.
func (f *Flow) SetBuffer(i int, s string) error {
	r, err := f.row(i)
	if err != nil {
		return err
	}
	if r.Kind != schema.KindEnum {
		return fmt.Errorf("row %s is not enum-typed", r.Name)
	}
	r.Buffer = s
	return nil
}

// AddEnumValues splits the staging buffer on commas, trims each piece, drops
// empty pieces and pieces already present in the row, appends the remainder
// in order and clears the buffer.
func (f *Flow) AddEnumValues(i int) error {
	r, err := f.row(i)
	if err != nil {
		return err
	}
	if r.Kind != schema.KindEnum {
		return fmt.Errorf("row %s is not enum-typed", r.Name)
	}
	present := make(map[string]bool, len(r.Values))
	for _, v := range r.Values {
		present[v] = true
	}
	for _, piece := range strings.Split(r.Buffer, ",") {
		v := strings.TrimSpace(piece)
		if v == "" || present[v] {
			continue
		}
		present[v] = true
		r.Values = append(r.Values, v)
	}
	r.Buffer = ""
	return nil
}

// RemoveEnumValue removes a value by exact match.
func (f *Flow) RemoveEnumValue(i int, value string) error {
	r, err := f.row(i)
	if err != nil {
		return err
	}
	for j, v := range r.Values {
		if v == value {
			r.Values = append(r.Values[:j], r.Values[j+1:]...)
			return nil
		}
	}
	return fmt.Errorf("value %q not present on %s", value, r.Name)
}

// CanSave reports whether every row has a kind and every enum row has at
// least one value.
func (f *Flow) CanSave() bool {
	if f.saved {
		return false
	}
	for _, r := range f.rows {
		if r.Kind == "" {
			return false
		}
		if r.Kind == schema.KindEnum && len(r.Values) == 0 {
			return false
		}
	}
	return true
}

// Definitions materializes the rows as schema definitions. Only valid when
// CanSave holds.
func (f *Flow) Definitions() ([]schema.Definition, error) {
	if !f.CanSave() {
		return nil, fmt.Errorf("negotiation incomplete: every row needs a type, enum rows need values")
	}
	defs := make([]schema.Definition, len(f.rows))
	for i, r := range f.rows {
		values := r.Values
		if r.Kind != schema.KindEnum {
			values = nil
		}
		defs[i] = schema.Definition{Name: r.Name, Kind: r.Kind, Values: values}
	}
	return defs, nil
}

// MarkSaved makes the flow terminal. Called only after the definitions were
// persisted and merged; a failed save leaves the flow open and re-saveable.
func (f *Flow) MarkSaved() {
	f.saved = true
}
