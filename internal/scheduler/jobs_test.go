package scheduler

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/batch"
)

type fakeRunner struct {
	calls []batch.RunRequest
	err   error
}

func (f *fakeRunner) Run(_ context.Context, req batch.RunRequest) (*batch.RunReport, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return &batch.RunReport{RunID: "r1", Status: "completed"}, nil
}

func TestNightlyBatchJobRunsWithDefaults(t *testing.T) {
	runner := &fakeRunner{}
	job := NewNightlyBatchJob(runner, 0, zerolog.Nop())

	require.NoError(t, job.Run())
	require.Len(t, runner.calls, 1)

	req := runner.calls[0]
	assert.Empty(t, req.TargetDate, "target date is resolved by the orchestrator")
	assert.Zero(t, req.LookbackDays)
	assert.False(t, req.Force)
	assert.Equal(t, "scheduler", req.TriggeredBy)
}

func TestNightlyBatchJobPropagatesError(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("a batch run is already in progress")}
	job := NewNightlyBatchJob(runner, 0, zerolog.Nop())

	err := job.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in progress")
}
