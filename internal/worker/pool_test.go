package worker

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dealscout/pipeline/internal/domain"
)

func TestShouldRequeue(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "already claimed never requeues",
			err:  fmt.Errorf("job already claimed: %w", domain.ErrJobAlreadyClaimed),
			want: false,
		},
		{
			name: "max attempts never requeues",
			err:  domain.ErrMaxAttemptsExceeded,
			want: false,
		},
		{
			name: "unknown subscription never requeues",
			err:  fmt.Errorf("deliver job.completed: %w", domain.ErrSubscriptionNotFound),
			want: false,
		},
		{
			name: "validation never requeues",
			err:  fmt.Errorf("invalid payload: %w", domain.NewValidationError("zip", "is required")),
			want: false,
		},
		{
			name: "retryable infra error requeues",
			err:  domain.NewRetryableError(errors.New("db connection lost")),
			want: true,
		},
		{
			name: "plain error does not requeue",
			err:  errors.New("something unexpected"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, shouldRequeue(tt.err))
		})
	}
}
