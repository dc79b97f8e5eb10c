// Package testrun builds the typed evaluation context for the test console.
// The console operates over the datapoints of the rule under test, not the
// whole schema model: each datapoint gets an input descriptor derived from
// its definition, and at run time the raw string inputs are coerced into the
// JSON types the evaluation service expects.
package testrun

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"rulemaker-backend/internal/schema"
)

// InputKind selects the input widget a client should render for a field.
type InputKind string

const (
	FreeText InputKind = "free_text"
	Numeric  InputKind = "numeric"
	Boolean  InputKind = "boolean"
	Choice   InputKind = "choice"
)

// Input describes one test-console field. Values is populated only for
// Choice inputs.
type Input struct {
	Name   string    `json:"name"`
	Kind   InputKind `json:"kind"`
	Values []string  `json:"values,omitempty"`
}

// Inputs maps the rule's datapoint names to input descriptors using the
// session's schema model. A name without a definition, or defined as text,
// falls back to free text. An enum definition with no values is not a real
// choice yet, so it also falls back to free text.
func Inputs(datapoints []string, model *schema.Model) []Input {
	inputs := make([]Input, 0, len(datapoints))
	for _, name := range datapoints {
		in := Input{Name: name, Kind: FreeText}
		if def, ok := model.Lookup(name); ok {
			switch def.Kind {
			case schema.KindBoolean:
				in.Kind = Boolean
			case schema.KindNumber:
				in.Kind = Numeric
			case schema.KindEnum:
				if len(def.Values) > 0 {
					in.Kind = Choice
					in.Values = append([]string(nil), def.Values...)
				}
			}
		}
		inputs = append(inputs, in)
	}
	return inputs
}

// FieldError is a per-field coercion failure.
type FieldError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// ValidationError aggregates the field errors of one run attempt. A run that
// produces any field error aborts before the evaluation call.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Name, f.Message))
	}
	return "invalid test context: " + strings.Join(parts, "; ")
}

// BuildContext coerces the raw console inputs into a typed context map.
// Only populated fields participate; a blank value means the field is
// omitted, never defaulted. Coercion follows the field's definition:
// booleans are true only for the literal "true", numbers must parse or the
// field is rejected, enums pass through as strings. A field without a
// definition is sniffed: a finite numeric string becomes a number, anything
// else stays a string.
func BuildContext(datapoints []string, raw map[string]string, model *schema.Model) (map[string]any, error) {
	ctx := make(map[string]any, len(raw))
	var fieldErrs []FieldError

	for _, name := range datapoints {
		value, ok := raw[name]
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}

		def, defined := model.Lookup(name)
		if !defined {
			ctx[name] = sniff(value)
			continue
		}

		switch def.Kind {
		case schema.KindBoolean:
			ctx[name] = value == "true"
		case schema.KindNumber:
			n, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if err != nil || math.IsInf(n, 0) || math.IsNaN(n) {
				fieldErrs = append(fieldErrs, FieldError{
					Name:    name,
					Message: fmt.Sprintf("%q is not a number", value),
				})
				continue
			}
			ctx[name] = n
		default:
			ctx[name] = value
		}
	}

	if len(fieldErrs) > 0 {
		return nil, &ValidationError{Fields: fieldErrs}
	}
	return ctx, nil
}

// sniff types an undefined field's value: finite numeric strings become
// numbers, everything else stays a string.
func sniff(value string) any {
	trimmed := strings.TrimSpace(value)
	n, err := strconv.ParseFloat(trimmed, 64)
	if err != nil || math.IsInf(n, 0) || math.IsNaN(n) {
		return value
	}
	return n
}
