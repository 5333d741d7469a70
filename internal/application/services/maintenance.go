package services

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ppongpan/Q-Collector-sub006/pkg/constants"
)

// MaintenanceScheduler runs the background sweeps: backup retention cleanup
// and stale-PENDING reconciliation. Both are idempotent, so overlapping or
// repeated runs are harmless.
type MaintenanceScheduler struct {
	cron       *cron.Cron
	backups    *BackupService
	executor   *MigrationExecutor
	staleAfter time.Duration
}

func NewMaintenanceScheduler(backups *BackupService, executor *MigrationExecutor, staleAfter time.Duration) *MaintenanceScheduler {
	return &MaintenanceScheduler{
		cron:       cron.New(),
		backups:    backups,
		executor:   executor,
		staleAfter: staleAfter,
	}
}

// Start registers the sweeps and starts the scheduler
func (m *MaintenanceScheduler) Start() error {
	if _, err := m.cron.AddFunc(constants.DefaultRetentionSweepSpec, m.sweepBackups); err != nil {
		return err
	}
	if _, err := m.cron.AddFunc(constants.DefaultReconcileSweepSpec, m.reconcile); err != nil {
		return err
	}
	m.cron.Start()
	log.Printf("⏰ Maintenance scheduler started (retention %q, reconcile %q)",
		constants.DefaultRetentionSweepSpec, constants.DefaultReconcileSweepSpec)
	return nil
}

// Stop halts the scheduler, waiting for a running sweep to finish
func (m *MaintenanceScheduler) Stop() {
	ctx := m.cron.Stop()
	<-ctx.Done()
	log.Printf("⏰ Maintenance scheduler stopped")
}

func (m *MaintenanceScheduler) sweepBackups() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	if _, err := m.backups.SweepExpired(ctx); err != nil {
		log.Printf("⚠️ Backup retention sweep failed: %v", err)
	}
}

func (m *MaintenanceScheduler) reconcile() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if _, err := m.executor.Reconcile(ctx, m.staleAfter); err != nil {
		log.Printf("⚠️ Migration reconciliation sweep failed: %v", err)
	}
}
