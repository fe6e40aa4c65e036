package domain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestValidationStateTerminal(t *testing.T) {
	assert.False(t, StatePending.Terminal())
	assert.True(t, StateValidated.Terminal())
	assert.True(t, StateUnvalidatable.Terminal())
}

func TestNewForecast(t *testing.T) {
	frozen := time.Date(2026, 1, 12, 6, 0, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(frozen))
	defer SetClock(nil)

	f := NewForecast("bundle-1")

	assert.NotEmpty(t, f.ID)
	assert.Equal(t, "bundle-1", f.BundleID)
	assert.Equal(t, frozen, f.CreatedAt)
	assert.Equal(t, StatePending, f.State)

	other := NewForecast("bundle-1")
	assert.NotEqual(t, f.ID, other.ID)
}

func TestSetClock_NilResetsToRealTime(t *testing.T) {
	SetClock(clockwork.NewFakeClockAt(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)))
	SetClock(nil)

	f := NewForecast("bundle-1")
	assert.WithinDuration(t, time.Now().UTC(), f.CreatedAt, time.Minute)
}
