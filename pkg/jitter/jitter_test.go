package jitter

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDuration(t *testing.T) {
	base := 100 * time.Millisecond

	for i := 0; i < 100; i++ {
		got := Duration(base, DefaultJitter)
		assert.GreaterOrEqual(t, got, base)
		assert.LessOrEqual(t, got, base+base/2)
	}
}

func TestDurationWithSeed(t *testing.T) {
	base := 100 * time.Millisecond

	first := DurationWithSeed(base, DefaultJitter, rand.New(rand.NewSource(42)))
	second := DurationWithSeed(base, DefaultJitter, rand.New(rand.NewSource(42)))
	assert.Equal(t, first, second)

	assert.Equal(t, base, DurationWithSeed(base, 0, rand.New(rand.NewSource(1))))
}

func TestExponentialBackoff(t *testing.T) {
	base := 50 * time.Millisecond
	max := 400 * time.Millisecond

	tests := []struct {
		name    string
		attempt int
		want    time.Duration
	}{
		{name: "first attempt", attempt: 0, want: 50 * time.Millisecond},
		{name: "second attempt doubles", attempt: 1, want: 100 * time.Millisecond},
		{name: "capped at max", attempt: 10, want: 400 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExponentialBackoff(base, max, tt.attempt, 0)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("jitter stays within bounds", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			got := ExponentialBackoff(base, max, 2, DefaultJitter)
			assert.GreaterOrEqual(t, got, 200*time.Millisecond)
			assert.LessOrEqual(t, got, 300*time.Millisecond)
		}
	})
}
