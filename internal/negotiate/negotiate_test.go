package negotiate

import (
	"reflect"
	"testing"

	"rulemaker-backend/internal/schema"
)

func TestNewFlowOneRowPerName(t *testing.T) {
	f := NewFlow([]string{"amount", "status"})
	rows := f.Rows()
	if len(rows) != 2 || rows[0].Name != "amount" || rows[1].Name != "status" {
		t.Fatalf("unexpected rows: %v", rows)
	}
	if rows[0].Kind != "" {
		t.Fatal("kind must start unset")
	}
	if f.CanSave() {
		t.Fatal("untyped rows must not be saveable")
	}
}

func TestAddEnumValuesSplitsTrimsAndDedups(t *testing.T) {
	f := NewFlow([]string{"tier"})
	if err := f.SetKind(0, schema.KindEnum); err != nil {
		t.Fatal(err)
	}
	if err := f.SetBuffer(0, " gold , silver ,, gold ,bronze"); err != nil {
		t.Fatal(err)
	}
	if err := f.AddEnumValues(0); err != nil {
		t.Fatal(err)
	}

	rows := f.Rows()
	want := []string{"gold", "silver", "bronze"}
	if !reflect.DeepEqual(rows[0].Values, want) {
		t.Fatalf("values = %v, want %v", rows[0].Values, want)
	}
	if rows[0].Buffer != "" {
		t.Fatal("buffer must be cleared after commit")
	}

	// Re-adding an existing value is a no-op.
	f.SetBuffer(0, "silver")
	f.AddEnumValues(0)
	if got := f.Rows()[0].Values; !reflect.DeepEqual(got, want) {
		t.Fatalf("duplicate add changed values: %v", got)
	}
}

func TestRemoveEnumValueExactMatch(t *testing.T) {
	f := NewFlow([]string{"tier"})
	f.SetKind(0, schema.KindEnum)
	f.SetBuffer(0, "gold,silver")
	f.AddEnumValues(0)

	if err := f.RemoveEnumValue(0, "gold"); err != nil {
		t.Fatal(err)
	}
	if got := f.Rows()[0].Values; !reflect.DeepEqual(got, []string{"silver"}) {
		t.Fatalf("values = %v, want [silver]", got)
	}
	if err := f.RemoveEnumValue(0, "Gold"); err == nil {
		t.Fatal("removal must be exact-match")
	}
}

func TestKindChangeResetsValuesAndBuffer(t *testing.T) {
	f := NewFlow([]string{"tier"})
	f.SetKind(0, schema.KindEnum)
	f.SetBuffer(0, "gold")
	f.AddEnumValues(0)
	f.SetBuffer(0, "pending")

	if err := f.SetKind(0, schema.KindNumber); err != nil {
		t.Fatal(err)
	}
	r := f.Rows()[0]
	if len(r.Values) != 0 || r.Buffer != "" {
		t.Fatalf("kind change must reset values and buffer: %+v", r)
	}
	if err := f.SetBuffer(0, "x"); err == nil {
		t.Fatal("buffer is only meaningful on enum rows")
	}
}

func TestCanSavePrecondition(t *testing.T) {
	f := NewFlow([]string{"amount", "tier"})
	f.SetKind(0, schema.KindNumber)
	if f.CanSave() {
		t.Fatal("untyped tier row must block saving")
	}
	f.SetKind(1, schema.KindEnum)
	if f.CanSave() {
		t.Fatal("enum row without values must block saving")
	}
	f.SetBuffer(1, "gold")
	f.AddEnumValues(1)
	if !f.CanSave() {
		t.Fatal("fully typed rows should be saveable")
	}
}

func TestDefinitionsAndTerminality(t *testing.T) {
	f := NewFlow([]string{"amount"})
	if _, err := f.Definitions(); err == nil {
		t.Fatal("incomplete flow must not materialize definitions")
	}
	f.SetKind(0, schema.KindNumber)

	defs, err := f.Definitions()
	if err != nil {
		t.Fatal(err)
	}
	if len(defs) != 1 || defs[0].Name != "amount" || defs[0].Kind != schema.KindNumber {
		t.Fatalf("unexpected definitions: %v", defs)
	}

	f.MarkSaved()
	if !f.Saved() {
		t.Fatal("expected saved flow")
	}
	if err := f.SetKind(0, schema.KindText); err == nil {
		t.Fatal("saved negotiation must be terminal and non-interactive")
	}
	if f.CanSave() {
		t.Fatal("saved flow must not be re-saveable")
	}
}
