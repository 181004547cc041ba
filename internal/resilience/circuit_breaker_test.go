// SPDX-License-Identifier: MIT

package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockClock struct {
	now time.Time
}

func (m *mockClock) Now() time.Time { return m.now }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 3, 30*time.Second, WithClock(clock))

	fail := func() error { return errors.New("boom") }

	for i := 0; i < 2; i++ {
		require.Error(t, cb.Execute(fail))
		assert.Equal(t, string(StateClosed), cb.State())
	}

	require.Error(t, cb.Execute(fail))
	assert.Equal(t, string(StateOpen), cb.State())

	// While open, calls fail fast without invoking fn.
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 1, 10*time.Second, WithClock(clock))

	require.Error(t, cb.Execute(func() error { return errors.New("boom") }))
	assert.Equal(t, string(StateOpen), cb.State())

	// After the reset timeout, a probe is allowed.
	clock.now = clock.now.Add(11 * time.Second)
	require.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, string(StateClosed), cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &mockClock{now: time.Now()}
	cb := NewCircuitBreaker("test", 1, 10*time.Second, WithClock(clock))

	require.Error(t, cb.Execute(func() error { return errors.New("boom") }))
	clock.now = clock.now.Add(11 * time.Second)
	require.Error(t, cb.Execute(func() error { return errors.New("still down") }))
	assert.Equal(t, string(StateOpen), cb.State())
}
