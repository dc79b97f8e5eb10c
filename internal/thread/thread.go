// Package thread is the append-only conversation log that sequences the
// authoring workflow. Each entry is one of four turn variants; entries are
// immutable once appended and keep insertion order.
package thread

// Proposal is the translation service's structured response, held as an
// immutable payload on a rule-proposal turn. It is re-fetched per translation
// and never edited by the client.
type Proposal struct {
	Name       string   `json:"name"`
	RuleLogic  string   `json:"rule_logic"`
	EdgeCases  []string `json:"edge_cases"`
	Datapoints []string `json:"datapoints"`
}

// Turn is one conversation step. Exactly four variants exist: Assistant,
// User, RuleProposal and SchemaNegotiation. Modelling them as distinct types
// makes a turn carrying both a proposal and a negotiation payload
// unrepresentable.
type Turn interface {
	// Kind returns the wire discriminator for the variant.
	Kind() string
}

// Assistant is a reply rendered on the assistant side: guidance, confirmations
// and surfaced errors.
type Assistant struct {
	Text string `json:"text"`
}

func (Assistant) Kind() string { return "assistant" }

// User is a snapshot of the builder's human-readable form at submission time.
type User struct {
	Text string `json:"text"`
}

func (User) Kind() string { return "user" }

// RuleProposal carries the translation result for review.
type RuleProposal struct {
	Proposal Proposal `json:"proposal"`
}

func (RuleProposal) Kind() string { return "rule_proposal" }

// SchemaNegotiation asks the user to assign types to datapoints the proposal
// referenced but the schema model does not know. PendingNames keeps the
// proposal's own ordering.
type SchemaNegotiation struct {
	PendingNames []string `json:"pending_names"`
}

func (SchemaNegotiation) Kind() string { return "schema_negotiation" }

// Entry is a turn with its stable monotonic id.
type Entry struct {
	ID   int  `json:"id"`
	Turn Turn `json:"-"`
}

// Thread is the ordered, append-only sequence of entries. Insertion order is
// both display order and causal order.
type Thread struct {
	entries []Entry
	nextID  int
}

// New returns an empty thread whose first entry will get id 1.
func New() *Thread {
	return &Thread{nextID: 1}
}

// Append adds a turn and returns its entry. O(1); existing entries are never
// touched.
func (t *Thread) Append(turn Turn) Entry {
	e := Entry{ID: t.nextID, Turn: turn}
	t.nextID++
	t.entries = append(t.entries, e)
	return e
}

// Restore re-inserts a previously journaled entry, keeping ids monotonic.
// Entries must arrive in ascending id order.
func (t *Thread) Restore(e Entry) {
	t.entries = append(t.entries, e)
	if e.ID >= t.nextID {
		t.nextID = e.ID + 1
	}
}

// Entries returns the entries in insertion order. The slice is a copy; the
// turns themselves are shared and must not be mutated.
func (t *Thread) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Get returns the entry with the given id.
func (t *Thread) Get(id int) (Entry, bool) {
	for _, e := range t.entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Len returns the number of entries.
func (t *Thread) Len() int {
	return len(t.entries)
}
