package services

import (
	"database/sql"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/ppongpan/Q-Collector-sub006/internal/infrastructure/persistence"
	"github.com/ppongpan/Q-Collector-sub006/pkg/constants"
	"github.com/ppongpan/Q-Collector-sub006/pkg/identifier"
)

// ServiceManager wires the engine together: repositories, resolvers, the
// schema generator, the migration pipeline and the maintenance scheduler.
// One instance per process.
type ServiceManager struct {
	Forms       *FormService
	Migrations  *MigrationService
	Tables      *TableManager
	Maintenance *MaintenanceScheduler

	queue *MigrationQueue
}

// NewServiceManager builds the full service graph on top of an open
// database handle
func NewServiceManager(db *sql.DB) *ServiceManager {
	txManager := persistence.NewTransactionManager(db)
	formRepo := persistence.NewFormRepository(db)
	migrationRepo := persistence.NewMigrationRepository(db)
	backupRepo := persistence.NewBackupRepository(db)
	identRepo := persistence.NewIdentifierRepository(db)

	normalizer := identifier.NewNormalizer(envInt("IDENTIFIER_MAX_LEN", constants.DefaultIdentifierMaxLen))
	resolver := identifier.NewChain(
		identifier.NewDictionaryResolver(),
		NewCacheResolver(identRepo),
		identifier.NewHashResolver(),
	)

	generator := NewSchemaGenerator(resolver, normalizer, identRepo)
	tables := NewTableManager(db)

	batchSize := envInt("BACKUP_BATCH_SIZE", constants.DefaultBackupBatchSize)
	retention := time.Duration(envInt("BACKUP_RETENTION_DAYS", constants.DefaultBackupRetentionDays)) * 24 * time.Hour
	backups := NewBackupService(db, txManager, backupRepo, tables, batchSize, retention)

	executor := NewMigrationExecutor(db, txManager, tables, formRepo, migrationRepo, backups, generator, batchSize)

	waitTimeout := envDuration("QUEUE_WAIT_TIMEOUT", constants.DefaultQueueWaitTimeout)
	stmtTimeout := envDuration("STATEMENT_TIMEOUT", constants.DefaultStatementTimeout)
	queue := NewMigrationQueue(executor.Execute, waitTimeout).WithStatementTimeout(stmtTimeout)

	planner := NewMigrationPlanner()
	validator := NewRowValidator()

	staleAfter := envDuration("PENDING_STALE_AFTER", constants.DefaultPendingStaleAfter)
	maintenance := NewMaintenanceScheduler(backups, executor, staleAfter)

	log.Printf("🔧 Service manager initialized (batch=%d, retention=%s, queue wait=%s)",
		batchSize, retention, waitTimeout)

	return &ServiceManager{
		Forms:       NewFormService(db, txManager, formRepo, tables, generator, planner, queue, executor, validator),
		Migrations:  NewMigrationService(migrationRepo, backups, executor, queue),
		Tables:      tables,
		Maintenance: maintenance,
		queue:       queue,
	}
}

// Shutdown drains the migration queue and stops background work
func (m *ServiceManager) Shutdown() {
	m.Maintenance.Stop()
	m.queue.Shutdown()
}

func envInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			return v
		}
		log.Printf("⚠️ Ignoring invalid %s=%q", key, raw)
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil && v > 0 {
			return v
		}
		log.Printf("⚠️ Ignoring invalid %s=%q", key, raw)
	}
	return fallback
}
