package freshness

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTracker(t *testing.T) {
	tr := New()

	assert.True(t, tr.IsStale())
	assert.Equal(t, "never generated", tr.Reason())
	assert.True(t, tr.LastGeneratedAt().IsZero())

	tr.MarkGenerated()
	assert.False(t, tr.IsStale())
	assert.Equal(t, "up to date", tr.Reason())
	assert.False(t, tr.LastGeneratedAt().IsZero())

	tr.MarkDirty("2 validation errors")
	assert.True(t, tr.IsStale())
	assert.Equal(t, "2 validation errors", tr.Reason())

	// generation time survives a dirty flip
	assert.False(t, tr.LastGeneratedAt().IsZero())
}
