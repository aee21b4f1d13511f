package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSchedule(t *testing.T) {
	p := Default()

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		1600 * time.Millisecond,
		3200 * time.Millisecond,
		6400 * time.Millisecond,
		12800 * time.Millisecond,
		25600 * time.Millisecond,
		30000 * time.Millisecond,
	}

	for retry, d := range want {
		assert.Equal(t, d, p.Delay(retry), "retry %d", retry)
		assert.False(t, p.GiveUp(retry), "retry %d should not give up", retry)
	}
	assert.True(t, p.GiveUp(10), "the 11th failure must give up")
	assert.Equal(t, want, p.Schedule())
}

func TestDelayIsCappedAndMonotonic(t *testing.T) {
	p := Default()

	prev := time.Duration(0)
	for retry := 0; retry < 200; retry++ {
		d := p.Delay(retry)
		require.GreaterOrEqual(t, d, prev, "retry %d", retry)
		require.LessOrEqual(t, d, p.Cap, "retry %d", retry)
		prev = d
	}
	assert.Equal(t, p.Cap, p.Delay(5000))
}

func TestDelayNegativeRetry(t *testing.T) {
	p := Default()
	assert.Equal(t, p.Base, p.Delay(-3))
}

func TestGiveUpUnlimited(t *testing.T) {
	p := Default()
	p.MaxAttempts = 0

	assert.False(t, p.GiveUp(1_000_000))
	assert.Nil(t, p.Schedule())
}

func TestJitterStaysInBounds(t *testing.T) {
	p := Default()
	p.Jitter = true

	for i := 0; i < 50; i++ {
		d := p.Delay(4)
		assert.GreaterOrEqual(t, d, p.Base)
		assert.LessOrEqual(t, d, 1600*time.Millisecond)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		p    Policy
		err  error
	}{
		{"default", Default(), nil},
		{"zero base", Policy{Cap: time.Second}, ErrInvalidBase},
		{"cap below base", Policy{Base: time.Second, Cap: time.Millisecond}, ErrInvalidCap},
		{"negative attempts", Policy{Base: time.Millisecond, Cap: time.Second, MaxAttempts: -1}, ErrInvalidAttempts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.p.Validate(), tt.err)
		})
	}
}
