package resilience

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

var errWrite = errors.New("write failed")

func fail() error    { return errWrite }
func succeed() error { return nil }

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		calls         []bool // true = success
		expectedState State
	}{
		{name: "stays closed on successes", calls: []bool{true, true, true}, expectedState: StateClosed},
		{name: "opens after consecutive failures", calls: []bool{false, false, false}, expectedState: StateOpen},
		{name: "success resets the streak", calls: []bool{false, false, true, false, false}, expectedState: StateClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			breaker := New("test", Settings{FailureThreshold: 3, OpenTimeout: time.Minute})
			for _, success := range tt.calls {
				if success {
					_ = breaker.Do(succeed)
				} else {
					_ = breaker.Do(fail)
				}
			}
			assert.Equal(t, tt.expectedState, breaker.State())
		})
	}
}

func TestBreakerOpenFailsFast(t *testing.T) {
	breaker := New("test", Settings{FailureThreshold: 2, OpenTimeout: time.Minute})
	assert.ErrorIs(t, breaker.Do(fail), errWrite)
	assert.ErrorIs(t, breaker.Do(fail), errWrite)

	called := false
	err := breaker.Do(func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpen(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	breaker := New("test", Settings{
		FailureThreshold: 1,
		HalfOpenProbes:   2,
		OpenTimeout:      5 * time.Second,
		Now:              clock.Now,
	})

	_ = breaker.Do(fail)
	assert.Equal(t, StateOpen, breaker.State())

	clock.Advance(5 * time.Second)
	assert.Equal(t, StateHalfOpen, breaker.State())

	require.NoError(t, breaker.Do(succeed))
	assert.Equal(t, StateHalfOpen, breaker.State())
	require.NoError(t, breaker.Do(succeed))
	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	breaker := New("test", Settings{FailureThreshold: 1, OpenTimeout: time.Second, Now: clock.Now})

	_ = breaker.Do(fail)
	clock.Advance(time.Second)
	_ = breaker.Do(fail)
	assert.Equal(t, StateOpen, breaker.State())
}

func TestBreakerIsFailure(t *testing.T) {
	breaker := New("test", Settings{
		FailureThreshold: 1,
		IsFailure: func(err error) bool {
			return err != nil && !errors.Is(err, io.EOF)
		},
	})

	assert.ErrorIs(t, breaker.Do(func() error { return io.EOF }), io.EOF)
	assert.Equal(t, StateClosed, breaker.State())
	assert.Equal(t, uint32(1), breaker.Counts().ConsecutiveSuccesses)
}

func TestBreakerCallbacks(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	var transitions []string
	breaker := New("test", Settings{
		FailureThreshold: 2,
		OpenTimeout:      time.Second,
		Now:              clock.Now,
		OnStateChange: func(name string, from State, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = breaker.Do(fail)
	_ = breaker.Do(fail)
	clock.Advance(time.Second)
	_ = breaker.Do(succeed)

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreakerPanicCountsAsFailure(t *testing.T) {
	breaker := New("test", Settings{FailureThreshold: 1})
	assert.Panics(t, func() {
		_ = breaker.Do(func() error { panic("boom") })
	})
	assert.Equal(t, StateOpen, breaker.State())
}
