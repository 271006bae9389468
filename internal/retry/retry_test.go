package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      1.5,
	}
}

func TestDo(t *testing.T) {
	errFlaky := errors.New("flaky")

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), fastPolicy(3), func() error {
			calls++
			if calls < 3 {
				return errFlaky
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops at attempt budget", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), fastPolicy(2), func() error {
			calls++
			return errFlaky
		})
		assert.ErrorIs(t, err, errFlaky)
		assert.Equal(t, 2, calls)
	})

	t.Run("permanent error is not retried", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), fastPolicy(5), func() error {
			calls++
			return Permanent(errFlaky)
		})
		assert.ErrorIs(t, err, errFlaky)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := Do(ctx, Policy{MaxAttempts: 10, InitialInterval: 50 * time.Millisecond}, func() error {
			calls++
			cancel()
			return errFlaky
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

func TestPolicyDefaults(t *testing.T) {
	p := Policy{}.withDefaults()
	assert.Equal(t, DefaultPolicy(), p)
	assert.NoError(t, Permanent(nil))
}
