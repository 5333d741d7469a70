package services

import (
	"context"

	"github.com/ppongpan/Q-Collector-sub006/internal/domain/models"
	"github.com/ppongpan/Q-Collector-sub006/internal/infrastructure/persistence"
)

// MigrationService is the read-and-recovery surface over the audit trail:
// history, rollback, and backup restore. Rollbacks go through the queue so
// they serialize with ordinary operations on the same table.
type MigrationService struct {
	migrations *persistence.MigrationRepository
	backups    *BackupService
	executor   *MigrationExecutor
	queue      *MigrationQueue
}

func NewMigrationService(migrations *persistence.MigrationRepository, backups *BackupService, executor *MigrationExecutor, queue *MigrationQueue) *MigrationService {
	return &MigrationService{
		migrations: migrations,
		backups:    backups,
		executor:   executor,
		queue:      queue,
	}
}

// History returns a form's complete migration trail, newest first
func (s *MigrationService) History(ctx context.Context, formID string) ([]*models.MigrationRecord, error) {
	return s.migrations.ListByForm(ctx, formID)
}

// Get loads one migration record
func (s *MigrationService) Get(ctx context.Context, migrationID string) (*models.MigrationRecord, error) {
	return s.migrations.GetByID(ctx, migrationID)
}

// Rollback reverses an applied migration, serialized on its table's queue
func (s *MigrationService) Rollback(ctx context.Context, migrationID string) (*models.MigrationRecord, error) {
	record, err := s.migrations.GetByID(ctx, migrationID)
	if err != nil {
		return nil, err
	}

	ticket, err := s.queue.EnqueueTask(record.TableName, func(taskCtx context.Context) (*models.MigrationRecord, error) {
		return s.executor.Rollback(taskCtx, migrationID)
	})
	if err != nil {
		return nil, err
	}
	return ticket.Wait(ctx, s.queue.WaitTimeout())
}

// GetBackup loads one backup's metadata
func (s *MigrationService) GetBackup(ctx context.Context, backupID string) (*models.ColumnBackup, error) {
	return s.backups.backups.GetBackup(ctx, backupID)
}

// RestoreBackup writes a backup's values back into its source table,
// serialized on the table's queue like any other schema-touching work.
func (s *MigrationService) RestoreBackup(ctx context.Context, backupID string) (int, error) {
	backup, err := s.backups.backups.GetBackup(ctx, backupID)
	if err != nil {
		return 0, err
	}

	restored := 0
	ticket, err := s.queue.EnqueueTask(backup.TableName, func(taskCtx context.Context) (*models.MigrationRecord, error) {
		n, restoreErr := s.backups.Restore(taskCtx, backupID)
		restored = n
		return nil, restoreErr
	})
	if err != nil {
		return 0, err
	}
	_, err = ticket.Wait(ctx, s.queue.WaitTimeout())
	return restored, err
}

// QueueStats snapshots the migration queues
func (s *MigrationService) QueueStats() []QueueStats {
	return s.queue.Stats()
}
