package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		want     bool
	}{
		{JobQueued, JobRunning, true},
		{JobQueued, JobFailed, true},
		{JobRunning, JobRunning, true},
		{JobRunning, JobCompleted, true},
		{JobRunning, JobQueued, false},
		{JobCompleted, JobRunning, false},
		{JobFailed, JobCompleted, false},
		{JobQueued, JobStatus("bogus"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestIngestJob_StatusMessage(t *testing.T) {
	j := &IngestJob{Status: JobRunning, CurrentStep: "Cloning repository", ErrorMessage: "ignored"}
	assert.Equal(t, "Cloning repository", j.StatusMessage())

	j.Status = JobFailed
	assert.Equal(t, "ignored", j.StatusMessage())
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short...", Preview("short"))
	long := "0123456789012345678901234567890123456789012345678901234567890"
	assert.Equal(t, long[:50]+"...", Preview(long))
}
