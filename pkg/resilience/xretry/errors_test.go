package xretry

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPermanentError(t *testing.T) {
	base := errors.New("gone")
	err := NewPermanentError(base)

	assert.Equal(t, "gone", err.Error())
	assert.False(t, err.Retryable())
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "permanent error", (&PermanentError{}).Error())
}

func TestTemporaryError(t *testing.T) {
	base := errors.New("flaky")
	err := NewTemporaryError(base)

	assert.Equal(t, "flaky", err.Error())
	assert.True(t, err.Retryable())
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "temporary error", (&TemporaryError{}).Error())
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("x"), true},
		{"permanent", NewPermanentError(errors.New("x")), false},
		{"temporary", NewTemporaryError(errors.New("x")), true},
		{"wrapped permanent", fmt.Errorf("op: %w", NewPermanentError(errors.New("x"))), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryableError(tt.err))
			if tt.err != nil {
				assert.Equal(t, !tt.want, IsPermanent(tt.err))
			}
		})
	}
	assert.False(t, IsPermanent(nil))
}
