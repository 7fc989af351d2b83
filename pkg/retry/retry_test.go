package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsAfterTransientFailures(t *testing.T) {
	policy := Policy{
		Name:               "test",
		InitialInterval:    time.Millisecond,
		BackoffCoefficient: 1.0,
		MaximumInterval:    time.Millisecond,
		MaximumAttempts:    3,
	}
	attempts := 0
	err := Do(context.Background(), policy, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDo_ExhaustsMaximumAttempts(t *testing.T) {
	policy := Policy{
		Name:               "test",
		InitialInterval:    time.Millisecond,
		BackoffCoefficient: 1.0,
		MaximumInterval:    time.Millisecond,
		MaximumAttempts:    3,
	}
	attempts := 0
	err := Do(context.Background(), policy, func(ctx context.Context) error {
		attempts++
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "boom")
}

func TestDo_NonRetryableAbortsImmediately(t *testing.T) {
	policy := Policy{
		Name:               "test",
		InitialInterval:    time.Millisecond,
		BackoffCoefficient: 1.0,
		MaximumInterval:    time.Millisecond,
		MaximumAttempts:    5,
	}
	attempts := 0
	sentinel := errors.New("validation error")
	err := Do(context.Background(), policy, func(ctx context.Context) error {
		attempts++
		return NonRetryable(sentinel)
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, sentinel)
}

func TestNamedPolicies_MatchDocumentedParameters(t *testing.T) {
	assert.Equal(t, 1*time.Second, Default.InitialInterval)
	assert.Equal(t, 2.0, Default.BackoffCoefficient)
	assert.Equal(t, 60*time.Second, Default.MaximumInterval)
	assert.Equal(t, uint(3), Default.MaximumAttempts)

	assert.Equal(t, uint(5), LLMAPI.MaximumAttempts)
	assert.Equal(t, 300*time.Second, LLMAPI.PerAttemptTimeout)

	assert.Equal(t, uint(1), FastFail.MaximumAttempts)
	assert.Equal(t, 1.0, FastFail.BackoffCoefficient)

	assert.Equal(t, uint(5), Persistence.MaximumAttempts)
	assert.Equal(t, 1.5, Persistence.BackoffCoefficient)
}
