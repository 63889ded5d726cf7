package plans

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotas(t *testing.T) {
	tests := []struct {
		plan     Plan
		featured int
		imports  int
		pro      bool
	}{
		{Free, 1, 5, false},
		{Starter, 3, 15, true},
		{Premier, Unlimited, Unlimited, true},
		{Plan("legacy"), 1, 5, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.plan), func(t *testing.T) {
			assert.Equal(t, tt.featured, tt.plan.FeaturedQuota())
			assert.Equal(t, tt.imports, tt.plan.ImportLimit())
			assert.Equal(t, tt.pro, tt.plan.IsPro())
		})
	}
}

func TestParse(t *testing.T) {
	p, err := Parse(" Starter ")
	require.NoError(t, err)
	assert.Equal(t, Starter, p)

	_, err = Parse("gold")
	assert.Error(t, err)
}

func TestImportLimits(t *testing.T) {
	assert.Equal(t, Limits{Remaining: 3, Limit: 5, CurrentCount: 2, IsPro: false, Plan: Free}, ImportLimits(Free, 2))
	assert.Equal(t, Limits{Remaining: 0, Limit: 5, CurrentCount: 7, IsPro: false, Plan: Free}, ImportLimits(Free, 7))
	assert.Equal(t, Limits{Remaining: 12, Limit: 15, CurrentCount: 3, IsPro: true, Plan: Starter}, ImportLimits(Starter, 3))
	assert.Equal(t, Limits{Remaining: Unlimited, Limit: Unlimited, CurrentCount: 40, IsPro: true, Plan: Premier}, ImportLimits(Premier, 40))
}

func TestAllows(t *testing.T) {
	assert.True(t, Allows(1, 0))
	assert.False(t, Allows(1, 1))
	assert.True(t, Allows(Unlimited, 1000))
}
