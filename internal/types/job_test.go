package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJobStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to JobStatus
		allowed  bool
	}{
		{JobStatusPending, JobStatusRunning, true},
		{JobStatusPending, JobStatusCanceled, true},
		{JobStatusPending, JobStatusSucceeded, false},
		{JobStatusRunning, JobStatusSucceeded, true},
		{JobStatusRunning, JobStatusFailed, true},
		{JobStatusRunning, JobStatusCanceled, true},
		{JobStatusRunning, JobStatusPending, false},
		{JobStatusSucceeded, JobStatusFailed, false},
		{JobStatusFailed, JobStatusRunning, false},
		{JobStatusCanceled, JobStatusRunning, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestJobStatus_Terminal(t *testing.T) {
	assert.False(t, JobStatusPending.Terminal())
	assert.False(t, JobStatusRunning.Terminal())
	assert.True(t, JobStatusSucceeded.Terminal())
	assert.True(t, JobStatusFailed.Terminal())
	assert.True(t, JobStatusCanceled.Terminal())
}

func TestJob_StatusString(t *testing.T) {
	job := &Job{Status: JobStatusFailed, ErrorKind: "empty_result"}
	assert.Equal(t, "failed:empty_result", job.StatusString())

	job = &Job{Status: JobStatusRunning}
	assert.Equal(t, "running", job.StatusString())
}

func TestJob_Clone(t *testing.T) {
	job := &Job{
		Status: JobStatusRunning,
		Stages: []StageRecord{{Name: "run_pipeline", Status: StageStatusInProgress}},
	}
	cp := job.Clone()
	cp.Stages[0].Status = StageStatusCompleted

	assert.Equal(t, StageStatusInProgress, job.Stages[0].Status)
	assert.NotNil(t, job.StageByName("run_pipeline"))
	assert.Nil(t, job.StageByName("missing"))
	assert.Nil(t, (*Job)(nil).Clone())
}
