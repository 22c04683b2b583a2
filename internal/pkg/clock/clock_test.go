package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManual(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := NewManual(base)
	assert.Equal(t, base, c.Now())

	c.Advance(90 * time.Minute)
	assert.Equal(t, base.Add(90*time.Minute), c.Now())

	c.Set(base)
	assert.Equal(t, base, c.Now())
}

func TestSystemClockIsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, SystemClock{}.Now().Location())
}
