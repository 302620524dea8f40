package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/batch"
)

// BatchRunner starts one batch invocation. Satisfied by the orchestrator.
type BatchRunner interface {
	Run(ctx context.Context, req batch.RunRequest) (*batch.RunReport, error)
}

// NightlyBatchJob triggers the nightly batch run with default settings.
// The orchestrator plans its own window, so a missed night is backfilled
// automatically on the next trigger.
type NightlyBatchJob struct {
	runner  BatchRunner
	timeout time.Duration
	log     zerolog.Logger
}

// NewNightlyBatchJob creates the nightly batch job
func NewNightlyBatchJob(runner BatchRunner, timeout time.Duration, log zerolog.Logger) *NightlyBatchJob {
	if timeout <= 0 {
		timeout = 2 * time.Hour
	}
	return &NightlyBatchJob{
		runner:  runner,
		timeout: timeout,
		log:     log.With().Str("job", "nightly_batch").Logger(),
	}
}

// Name returns the job name for the scheduler
func (j *NightlyBatchJob) Name() string {
	return "nightly_batch"
}

// Run executes the batch with an empty request: previous trading day as
// target, configured lookback, all active portfolios.
func (j *NightlyBatchJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	report, err := j.runner.Run(ctx, batch.RunRequest{TriggeredBy: "scheduler"})
	if err != nil {
		return err
	}

	j.log.Info().
		Str("run_id", report.RunID).
		Str("status", report.Status).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int("skipped_cached", report.SkippedCached).
		Msg("Nightly batch finished")

	return nil
}
