package reliability

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/bbalbale/SigmaSightCloneEdgar-sub016/internal/database"
)

// MaintenanceJob keeps the databases healthy between batch runs: integrity
// check, WAL truncation, and a disk space check on the data directory.
type MaintenanceJob struct {
	databases []*database.DB
	dataDir   string
	log       zerolog.Logger
}

// NewMaintenanceJob creates the daily maintenance job
func NewMaintenanceJob(databases []*database.DB, dataDir string, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		databases: databases,
		dataDir:   dataDir,
		log:       log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the job name for the scheduler
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run executes the maintenance steps. An integrity failure aborts so the
// problem is loud in the job log; WAL and disk issues log and continue.
func (j *MaintenanceJob) Run() error {
	started := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	for _, db := range j.databases {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("health check failed: %w", err)
		}

		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("WAL checkpoint failed")
		}

		stats, err := db.GetStats()
		if err != nil {
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("Failed to read database stats")
			continue
		}
		j.log.Info().
			Str("database", db.Name()).
			Int64("size_bytes", stats.SizeBytes).
			Int64("wal_size_bytes", stats.WALSizeBytes).
			Msg("Database stats")
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	j.log.Info().Dur("took", time.Since(started)).Msg("Maintenance completed")
	return nil
}

// checkDiskSpace errors when free space drops below 500MB so the failure
// shows up before a batch run fills the disk mid-write.
func (j *MaintenanceJob) checkDiskSpace() error {
	usage, err := disk.Usage(j.dataDir)
	if err != nil {
		return fmt.Errorf("failed to read disk usage: %w", err)
	}

	freeGB := float64(usage.Free) / 1e9
	switch {
	case freeGB < 0.5:
		return fmt.Errorf("only %.2f GB free on data volume", freeGB)
	case freeGB < 5.0:
		j.log.Warn().Float64("free_gb", freeGB).Msg("Disk space running low")
	default:
		j.log.Debug().Float64("free_gb", freeGB).Msg("Disk space ok")
	}
	return nil
}

// WeeklyBackupJob runs the backup service on a schedule
type WeeklyBackupJob struct {
	service *BackupService
	timeout time.Duration
	log     zerolog.Logger
}

// NewWeeklyBackupJob creates the weekly backup job
func NewWeeklyBackupJob(service *BackupService, timeout time.Duration, log zerolog.Logger) *WeeklyBackupJob {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &WeeklyBackupJob{
		service: service,
		timeout: timeout,
		log:     log.With().Str("job", "weekly_backup").Logger(),
	}
}

// Name returns the job name for the scheduler
func (j *WeeklyBackupJob) Name() string {
	return "weekly_backup"
}

// Run creates and uploads one backup
func (j *WeeklyBackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	return j.service.CreateBackup(ctx)
}
