// Package taxonomy holds the fixed trait and vibe vocabularies that
// contributions and imports are scored against.
package taxonomy

import "strings"

// Category groups traits on a profile.
type Category string

const (
	CategoryWork       Category = "work"
	CategoryCollab     Category = "collaboration"
	CategoryLeadership Category = "leadership"
	CategoryCharacter  Category = "character"
)

// Entry is one vocabulary item.
type Entry struct {
	ID       string
	Label    string
	Category Category
}

var traits = []Entry{
	{ID: "reliable", Label: "Reliable", Category: CategoryWork},
	{ID: "detail_oriented", Label: "Detail-oriented", Category: CategoryWork},
	{ID: "creative", Label: "Creative", Category: CategoryWork},
	{ID: "strategic", Label: "Strategic", Category: CategoryWork},
	{ID: "problem_solver", Label: "Problem solver", Category: CategoryWork},
	{ID: "fast_learner", Label: "Fast learner", Category: CategoryWork},
	{ID: "collaborative", Label: "Collaborative", Category: CategoryCollab},
	{ID: "communicator", Label: "Clear communicator", Category: CategoryCollab},
	{ID: "supportive", Label: "Supportive", Category: CategoryCollab},
	{ID: "good_listener", Label: "Good listener", Category: CategoryCollab},
	{ID: "leader", Label: "Natural leader", Category: CategoryLeadership},
	{ID: "mentor", Label: "Mentor", Category: CategoryLeadership},
	{ID: "decisive", Label: "Decisive", Category: CategoryLeadership},
	{ID: "visionary", Label: "Visionary", Category: CategoryLeadership},
	{ID: "honest", Label: "Honest", Category: CategoryCharacter},
	{ID: "kind", Label: "Kind", Category: CategoryCharacter},
	{ID: "resilient", Label: "Resilient", Category: CategoryCharacter},
	{ID: "humble", Label: "Humble", Category: CategoryCharacter},
}

var vibes = []Entry{
	{ID: "energizing", Label: "Energizing"},
	{ID: "calm", Label: "Calm"},
	{ID: "funny", Label: "Funny"},
	{ID: "thoughtful", Label: "Thoughtful"},
	{ID: "inspiring", Label: "Inspiring"},
	{ID: "warm", Label: "Warm"},
	{ID: "focused", Label: "Focused"},
	{ID: "positive", Label: "Positive"},
}

// Vocabulary resolves values by id or by label, case-insensitively.
type Vocabulary struct {
	entries []Entry
	byKey   map[string]Entry
}

func newVocabulary(entries []Entry) *Vocabulary {
	v := &Vocabulary{entries: entries, byKey: make(map[string]Entry, len(entries)*2)}
	for _, e := range entries {
		v.byKey[strings.ToLower(e.ID)] = e
		v.byKey[strings.ToLower(e.Label)] = e
	}
	return v
}

// Traits is the trait vocabulary. Imports may only carry trait labels from it.
var Traits = newVocabulary(traits)

// Vibes is the vibe vocabulary.
var Vibes = newVocabulary(vibes)

// Lookup finds value by id, then by label. Older contributions stored ids and
// newer ones store labels, so both are accepted.
func (v *Vocabulary) Lookup(value string) (Entry, bool) {
	e, ok := v.byKey[strings.ToLower(strings.TrimSpace(value))]
	return e, ok
}

// Canonical returns the canonical label for value, or false when value is
// outside the vocabulary.
func (v *Vocabulary) Canonical(value string) (string, bool) {
	e, ok := v.Lookup(value)
	return e.Label, ok
}

// Filter maps values onto canonical labels, dropping unknown entries and
// duplicates, and keeps at most limit results (limit <= 0 keeps all).
func (v *Vocabulary) Filter(values []string, limit int) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, raw := range values {
		label, ok := v.Canonical(raw)
		if !ok {
			continue
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Labels returns every label in declaration order.
func (v *Vocabulary) Labels() []string {
	out := make([]string, len(v.entries))
	for i, e := range v.entries {
		out[i] = e.Label
	}
	return out
}

// Entries returns a copy of the vocabulary.
func (v *Vocabulary) Entries() []Entry {
	return append([]Entry(nil), v.entries...)
}
