// Package signals turns confirmed contributions and approved imports into the
// trait and vibe summary shown on a profile.
package signals

import (
	"sort"
	"strings"

	"github.com/stephdmurray-sys/nomee-sub001/internal/sanitize"
	"github.com/stephdmurray-sys/nomee-sub001/internal/store"
	"github.com/stephdmurray-sys/nomee-sub001/internal/taxonomy"
)

// Source weights.
const (
	WeightContribution   = 1.0
	WeightImportHigh     = 0.5
	WeightImportLow      = 0.3
	HighImportConfidence = 0.7
)

// MaxExamples caps the excerpts kept per signal.
const MaxExamples = 3

const exampleRunes = 200

// Level is a display hint describing how much evidence backs a profile.
type Level string

const (
	LevelLow    Level = "Low"
	LevelMedium Level = "Medium"
	LevelHigh   Level = "High"
)

// Signal is one trait or vibe with its evidence.
type Signal struct {
	Label string `json:"label"`
	// Count is the number of sources mentioning the label.
	Count int `json:"count"`
	// Weighted sums the trust weight of those sources.
	Weighted float64  `json:"weighted"`
	Examples []string `json:"examples"`
}

// Result is the aggregate for one profile.
type Result struct {
	Traits            []Signal `json:"traits"`
	Vibes             []Signal `json:"vibes"`
	ContributionCount int      `json:"contributionCount"`
	ImportCount       int      `json:"importCount"`
	ConfidenceLevel   Level    `json:"confidenceLevel"`
}

// Options tunes eligibility.
type Options struct {
	// IncludeFlagged counts contributions flagged by moderation.
	IncludeFlagged bool
}

// ImportWeight returns the trust weight for an import with confidence c.
func ImportWeight(c float64) float64 {
	if c >= HighImportConfidence {
		return WeightImportHigh
	}
	return WeightImportLow
}

// LevelFor maps the number of eligible sources to a Level.
func LevelFor(sources int) Level {
	switch {
	case sources >= 5:
		return LevelHigh
	case sources >= 2:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Aggregate counts traits and vibes across eligible sources. It has no side
// effects and does not depend on input order beyond which examples are kept.
func Aggregate(contributions []store.Contribution, imports []store.ImportedFeedback, opts Options) Result {
	traits := newTally(taxonomy.Traits)
	vibes := newTally(taxonomy.Vibes)
	var res Result

	for i := range contributions {
		c := &contributions[i]
		if c.Status != store.StatusConfirmed || (c.Flagged && !opts.IncludeFlagged) {
			continue
		}
		res.ContributionCount++
		traits.add(c.Traits, WeightContribution, c.Message)
		vibes.add(c.Vibes, WeightContribution, c.Message)
	}

	for i := range imports {
		f := &imports[i]
		if !f.ApprovedByOwner || f.Visibility != store.VisibilityPublic {
			continue
		}
		res.ImportCount++
		traits.add(f.Traits, ImportWeight(f.Confidence), f.Excerpt)
	}

	res.Traits = traits.signals()
	res.Vibes = vibes.signals()
	res.ConfidenceLevel = LevelFor(res.ContributionCount + res.ImportCount)
	return res
}

type tally struct {
	vocab *taxonomy.Vocabulary
	byKey map[string]*Signal
}

func newTally(v *taxonomy.Vocabulary) *tally {
	return &tally{vocab: v, byKey: make(map[string]*Signal)}
}

// add records one source. A label repeated within a source counts once.
func (t *tally) add(values []string, weight float64, excerpt string) {
	excerpt = sanitize.Line(excerpt, exampleRunes)
	seen := make(map[string]struct{}, len(values))
	for _, raw := range values {
		label, ok := t.vocab.Canonical(raw)
		if !ok {
			// Contributor-entered values outside the vocabulary still count.
			label = strings.TrimSpace(raw)
		}
		if label == "" {
			continue
		}
		key := strings.ToLower(label)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		sig, ok := t.byKey[key]
		if !ok {
			sig = &Signal{Label: label, Examples: []string{}}
			t.byKey[key] = sig
		}
		sig.Count++
		sig.Weighted += weight
		if excerpt != "" && len(sig.Examples) < MaxExamples {
			sig.Examples = append(sig.Examples, excerpt)
		}
	}
}

func (t *tally) signals() []Signal {
	out := make([]Signal, 0, len(t.byKey))
	for _, sig := range t.byKey {
		out = append(out, *sig)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].Weighted != out[j].Weighted {
			return out[i].Weighted > out[j].Weighted
		}
		return out[i].Label < out[j].Label
	})
	return out
}
