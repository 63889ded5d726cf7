package taxonomy

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup_ByIDOrLabel(t *testing.T) {
	tests := []struct {
		in    string
		label string
		ok    bool
	}{
		{"reliable", "Reliable", true},
		{"Reliable", "Reliable", true},
		{"  DETAIL-ORIENTED ", "Detail-oriented", true},
		{"detail_oriented", "Detail-oriented", true},
		{"problem solver", "Problem solver", true},
		{"rockstar", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			label, ok := Traits.Canonical(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.label, label)
		})
	}
}

func TestVibes(t *testing.T) {
	e, ok := Vibes.Lookup("energizing")
	assert.True(t, ok)
	assert.Equal(t, "Energizing", e.Label)
	assert.Len(t, Vibes.Labels(), 8)

	_, ok = Vibes.Lookup("Reliable")
	assert.False(t, ok, "trait must not resolve as a vibe")
}

func TestFilter(t *testing.T) {
	got := Traits.Filter([]string{"creative", "Rockstar", "CREATIVE", "Mentor", "kind", "honest"}, 3)
	assert.Equal(t, []string{"Creative", "Mentor", "Kind"}, got)

	assert.Empty(t, Traits.Filter([]string{"ninja", "guru"}, 3))
	assert.Len(t, Traits.Filter(Traits.Labels(), 0), len(Traits.Labels()))
}

func TestVocabulary_NoCollisions(t *testing.T) {
	for _, v := range []*Vocabulary{Traits, Vibes} {
		want := 0
		for _, e := range v.entries {
			want += 2
			if strings.EqualFold(e.ID, e.Label) {
				want--
			}
		}
		assert.Len(t, v.byKey, want)
	}
}
