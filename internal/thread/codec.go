package thread

import (
	"encoding/json"
	"fmt"
)

// EncodeTurn serializes a turn to its kind discriminator plus JSON payload,
// the shape stored in the session journal.
func EncodeTurn(t Turn) (kind string, payload []byte, err error) {
	payload, err = json.Marshal(t)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s turn: %w", t.Kind(), err)
	}
	return t.Kind(), payload, nil
}

// DecodeTurn is the inverse of EncodeTurn.
func DecodeTurn(kind string, payload []byte) (Turn, error) {
	var t Turn
	switch kind {
	case "assistant":
		var v Assistant
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, fmt.Errorf("decode assistant turn: %w", err)
		}
		t = v
	case "user":
		var v User
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, fmt.Errorf("decode user turn: %w", err)
		}
		t = v
	case "rule_proposal":
		var v RuleProposal
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, fmt.Errorf("decode rule proposal turn: %w", err)
		}
		t = v
	case "schema_negotiation":
		var v SchemaNegotiation
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, fmt.Errorf("decode schema negotiation turn: %w", err)
		}
		t = v
	default:
		return nil, fmt.Errorf("unknown turn kind %q", kind)
	}
	return t, nil
}
