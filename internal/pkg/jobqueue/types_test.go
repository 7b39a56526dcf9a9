package jobqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStateTransitions(t *testing.T) {
	job := &Job{
		ID:              "test-job",
		Queue:           QueueEmail,
		Kind:            KindWelcomeEmail,
		State:           StateWaiting,
		AttemptsAllowed: 3,
	}

	job.MarkActive()
	assert.Equal(t, StateActive, job.State)
	assert.Equal(t, 1, job.AttemptsMade)
	require.NotNil(t, job.StartedAt)

	job.MarkFailed("smtp timeout")
	assert.Equal(t, StateFailed, job.State)
	assert.Equal(t, "smtp timeout", job.ErrorMsg)
	assert.True(t, job.Retryable())

	job.MarkWaiting()
	assert.Equal(t, StateWaiting, job.State)
	assert.Nil(t, job.FinishedAt)

	job.MarkActive()
	job.MarkCompleted()
	assert.Equal(t, StateCompleted, job.State)
	assert.Equal(t, float64(100), job.Progress)
	assert.Empty(t, job.ErrorMsg)
	require.NotNil(t, job.FinishedAt)
}

func TestRetryableExhaustsAttempts(t *testing.T) {
	job := &Job{AttemptsAllowed: 3}

	for i := 1; i <= 3; i++ {
		job.MarkActive()
		job.MarkFailed("boom")
	}

	assert.Equal(t, 3, job.AttemptsMade)
	assert.False(t, job.Retryable())
	assert.Equal(t, StateFailed, job.State)
}

func TestNextDelay(t *testing.T) {
	tests := []struct {
		name         string
		backoff      Backoff
		attemptsMade int
		want         time.Duration
	}{
		{"fixed always base", Backoff{Type: BackoffFixed, BaseDelayMs: 500}, 1, 500 * time.Millisecond},
		{"fixed later attempt", Backoff{Type: BackoffFixed, BaseDelayMs: 500}, 4, 500 * time.Millisecond},
		{"exponential after first attempt", Backoff{Type: BackoffExponential, BaseDelayMs: 1000}, 1, time.Second},
		{"exponential after second attempt", Backoff{Type: BackoffExponential, BaseDelayMs: 1000}, 2, 2 * time.Second},
		{"exponential after fourth attempt", Backoff{Type: BackoffExponential, BaseDelayMs: 1000}, 4, 8 * time.Second},
		{"no base delay", Backoff{Type: BackoffExponential}, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &Job{Backoff: tt.backoff, AttemptsMade: tt.attemptsMade}
			assert.Equal(t, tt.want, job.NextDelay())
		})
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	welcome := WelcomeEmailPayload{Email: "a@b.com", FirstName: "Ada"}
	got, err := WelcomeEmailPayloadFromMap(welcome.ToMap())
	require.NoError(t, err)
	assert.Equal(t, &welcome, got)

	sync := DataSyncPayload{
		Table:   "users",
		Objects: []map[string]interface{}{{"id": "u_1"}},
	}
	gotSync, err := DataSyncPayloadFromMap(sync.ToMap())
	require.NoError(t, err)
	assert.Equal(t, "users", gotSync.Table)
	require.Len(t, gotSync.Objects, 1)
	assert.Equal(t, "u_1", gotSync.Objects[0]["id"])
}
