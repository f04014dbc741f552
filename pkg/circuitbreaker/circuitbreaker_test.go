package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("provider down")

func failing() error { return errBoom }
func ok() error      { return nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 3, SuccessThreshold: 1, CoolDown: time.Hour})

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Do(failing), errBoom)
	}

	err := b.Do(ok)
	assert.ErrorIs(t, err, ErrOpen)
	assert.Equal(t, Open, b.State())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New(Config{FailureThreshold: 2, SuccessThreshold: 1, CoolDown: time.Hour})

	require.Error(t, b.Do(failing))
	require.NoError(t, b.Do(ok))
	require.Error(t, b.Do(failing))

	// Never two consecutive failures, so still closed.
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_ClosesAfterHalfOpenSuccesses(t *testing.T) {
	b := New(Config{FailureThreshold: 1, SuccessThreshold: 2, CoolDown: 100 * time.Millisecond})

	require.Error(t, b.Do(failing))
	assert.ErrorIs(t, b.Do(ok), ErrOpen)

	time.Sleep(150 * time.Millisecond)

	require.NoError(t, b.Do(ok))
	require.NoError(t, b.Do(ok))
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := New(Config{FailureThreshold: 1, SuccessThreshold: 2, CoolDown: 100 * time.Millisecond})

	require.Error(t, b.Do(failing))
	time.Sleep(150 * time.Millisecond)

	require.ErrorIs(t, b.Do(failing), errBoom)
	assert.ErrorIs(t, b.Do(ok), ErrOpen)
}
