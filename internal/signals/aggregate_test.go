package signals

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stephdmurray-sys/nomee-sub001/internal/apperr"
	"github.com/stephdmurray-sys/nomee-sub001/internal/plans"
	"github.com/stephdmurray-sys/nomee-sub001/internal/store"
)

func confirmed(msg string, traits ...string) store.Contribution {
	return store.Contribution{Status: store.StatusConfirmed, Message: msg, Traits: traits}
}

func approvedImport(conf float64, traits ...string) store.ImportedFeedback {
	return store.ImportedFeedback{
		ApprovedByOwner: true,
		Visibility:      store.VisibilityPublic,
		Confidence:      conf,
		Excerpt:         "imported praise",
		Traits:          traits,
	}
}

func find(t *testing.T, sigs []Signal, label string) Signal {
	t.Helper()
	for _, s := range sigs {
		if s.Label == label {
			return s
		}
	}
	t.Fatalf("signal %q not found in %+v", label, sigs)
	return Signal{}
}

func TestAggregate_CountAndWeightAreDistinct(t *testing.T) {
	res := Aggregate(
		[]store.Contribution{confirmed("one", "Reliable"), confirmed("two", "reliable")},
		[]store.ImportedFeedback{approvedImport(0.8, "Reliable")},
		Options{},
	)

	got := find(t, res.Traits, "Reliable")
	assert.Equal(t, 3, got.Count)
	assert.InDelta(t, 2.5, got.Weighted, 1e-9)
	assert.Equal(t, []string{"one", "two", "imported praise"}, got.Examples)
	assert.Equal(t, LevelMedium, res.ConfidenceLevel)
}

func TestAggregate_Eligibility(t *testing.T) {
	pending := confirmed("pending", "Kind")
	pending.Status = store.StatusPendingConfirmation
	flagged := confirmed("flagged", "Kind")
	flagged.Flagged = true
	private := approvedImport(0.9, "Kind")
	private.Visibility = store.VisibilityPrivate
	unapproved := approvedImport(0.9, "Kind")
	unapproved.ApprovedByOwner = false

	contribs := []store.Contribution{confirmed("ok", "Kind"), pending, flagged}
	imports := []store.ImportedFeedback{private, unapproved, approvedImport(0.69, "Kind")}

	res := Aggregate(contribs, imports, Options{})
	got := find(t, res.Traits, "Kind")
	assert.Equal(t, 2, got.Count)
	assert.InDelta(t, 1.3, got.Weighted, 1e-9)
	assert.Equal(t, 1, res.ContributionCount)
	assert.Equal(t, 1, res.ImportCount)

	res = Aggregate(contribs, imports, Options{IncludeFlagged: true})
	assert.Equal(t, 3, find(t, res.Traits, "Kind").Count)
}

func TestAggregate_Matching(t *testing.T) {
	res := Aggregate([]store.Contribution{
		{Status: store.StatusConfirmed, Message: "a", Traits: []string{"detail_oriented", " Pirate ", "", "pirate"}, Vibes: []string{"calm"}},
		{Status: store.StatusConfirmed, Message: "b", Traits: []string{"Detail-oriented"}, Vibes: []string{"Calm", "Funny"}},
	}, nil, Options{})

	assert.Equal(t, 2, find(t, res.Traits, "Detail-oriented").Count)
	assert.Equal(t, 1, find(t, res.Traits, "Pirate").Count, "novel traits count verbatim once per source")
	assert.Len(t, res.Traits, 2)
	assert.Equal(t, 2, find(t, res.Vibes, "Calm").Count)
	assert.Equal(t, "Calm", res.Vibes[0].Label)
}

func TestAggregate_Ordering(t *testing.T) {
	res := Aggregate(
		[]store.Contribution{confirmed("a", "Kind", "Humble"), confirmed("b", "Kind")},
		[]store.ImportedFeedback{approvedImport(0.9, "Honest"), approvedImport(0.1, "Creative")},
		Options{},
	)
	labels := make([]string, len(res.Traits))
	for i, s := range res.Traits {
		labels[i] = s.Label
	}
	// Kind by count; Humble outweighs Honest; Honest outweighs Creative.
	assert.Equal(t, []string{"Kind", "Humble", "Honest", "Creative"}, labels)
}

func TestAggregate_ExamplesCapped(t *testing.T) {
	var contribs []store.Contribution
	for _, m := range []string{"1", "2", "3", "4"} {
		contribs = append(contribs, confirmed(m, "Mentor"))
	}
	res := Aggregate(contribs, nil, Options{})
	got := find(t, res.Traits, "Mentor")
	assert.Equal(t, 4, got.Count)
	assert.Len(t, got.Examples, MaxExamples)
	assert.Equal(t, LevelMedium, res.ConfidenceLevel)
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		n    int
		want Level
	}{
		{0, LevelLow}, {1, LevelLow}, {2, LevelMedium}, {4, LevelMedium}, {5, LevelHigh}, {50, LevelHigh},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelFor(tt.n), "n=%d", tt.n)
	}
}

func TestImportWeight(t *testing.T) {
	assert.Equal(t, WeightImportHigh, ImportWeight(0.7))
	assert.Equal(t, WeightImportLow, ImportWeight(0.6999))
	assert.Equal(t, WeightImportLow, ImportWeight(0))
}

func TestService_ForProfile(t *testing.T) {
	st := store.NewTestStore(t)
	owner := store.SeedProfile(t, st, plans.Free)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, status := range []store.ContributionStatus{store.StatusConfirmed, store.StatusConfirmed, store.StatusPendingConfirmation} {
		require.NoError(t, st.InsertContribution(ctx, &store.Contribution{
			ID: uuid.NewString(), OwnerID: owner.ID, Message: "Steady hands.", Relationship: "colleague",
			Traits: []string{"reliable"}, Status: status, CreatedAt: now,
		}))
	}
	imp := &store.ImportedFeedback{
		ID: uuid.NewString(), OwnerID: owner.ID, ImageKey: "imports/x/y.png", ImageURL: "memory://imports/x/y.png",
		State: store.ImportPendingProcessing, Excerpt: "Great.", GiverName: "Ana", SourceType: "other",
		Visibility: store.VisibilityPrivate, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, st.InsertImport(ctx, imp))
	imp.Confidence = 0.8
	imp.State = store.ImportExtracted
	imp.Traits = []string{"Reliable"}
	require.NoError(t, st.SaveExtraction(ctx, imp))
	approvedAt := now
	imp.ApprovedAt = &approvedAt
	imp.Visibility = store.VisibilityPublic
	require.NoError(t, st.ApproveImport(ctx, imp))

	svc := NewService(st, Options{}, nil)

	got, err := svc.ForProfile(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, got.ProfileID)
	rel := find(t, got.Traits, "Reliable")
	assert.Equal(t, 3, rel.Count)
	assert.InDelta(t, 2.5, rel.Weighted, 1e-9)
	assert.Equal(t, LevelMedium, got.ConfidenceLevel)

	bySlug, err := svc.ForProfile(ctx, owner.Slug)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, bySlug.ProfileID)

	_, err = svc.ForProfile(ctx, "nobody")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
