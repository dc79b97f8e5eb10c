package schema

// Model is the in-session cache of datapoint definitions for the active rule
// group. It is the single source of truth for typing decisions: the
// negotiation flow writes it (through Merge), the test console reads it.
// Order is preserved so definitions render in the order they were declared.
type Model struct {
	defs  []Definition
	index map[string]int
}

// NewModel creates a Model seeded with the given definitions. Later
// definitions with a duplicate name overwrite earlier ones in place.
func NewModel(defs []Definition) *Model {
	m := &Model{index: make(map[string]int)}
	m.Merge(defs)
	return m
}

// Lookup returns the definition for name and whether one exists.
func (m *Model) Lookup(name string) (Definition, bool) {
	i, ok := m.index[name]
	if !ok {
		return Definition{}, false
	}
	return m.defs[i], true
}

// Has returns true if a definition for name exists.
func (m *Model) Has(name string) bool {
	_, ok := m.index[name]
	return ok
}

// All returns a copy of the definitions in declaration order.
func (m *Model) All() []Definition {
	out := make([]Definition, len(m.defs))
	copy(out, m.defs)
	return out
}

// Names returns the defined names in declaration order.
func (m *Model) Names() []string {
	names := make([]string, len(m.defs))
	for i, d := range m.defs {
		names[i] = d.Name
	}
	return names
}

// Len returns the number of definitions.
func (m *Model) Len() int {
	return len(m.defs)
}

// Merge overlays incoming definitions by name: a definition with an existing
// name replaces it in place, a new name is appended in incoming order. No
// existing definition is ever dropped.
func (m *Model) Merge(incoming []Definition) {
	for _, d := range incoming {
		if i, ok := m.index[d.Name]; ok {
			m.defs[i] = d
			continue
		}
		m.index[d.Name] = len(m.defs)
		m.defs = append(m.defs, d)
	}
}

// Missing returns the subset of names with no definition, preserving the
// input order. Used to compute pending names after a rule proposal.
func (m *Model) Missing(names []string) []string {
	var missing []string
	for _, n := range names {
		if !m.Has(n) {
			missing = append(missing, n)
		}
	}
	return missing
}
