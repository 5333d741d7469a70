package constants

import "time"

// Engine tuning defaults, overridable via environment
const (
	// DefaultIdentifierMaxLen is the MySQL identifier length limit
	DefaultIdentifierMaxLen = 64

	// DefaultBackupRetentionDays is how long column backups are kept
	DefaultBackupRetentionDays = 90

	// DefaultBackupBatchSize bounds the rows read per snapshot/restore batch
	DefaultBackupBatchSize = 500

	// DefaultStatementTimeout bounds every DDL and backup statement
	DefaultStatementTimeout = 60 * time.Second

	// DefaultQueueWaitTimeout bounds how long a caller waits for a queued migration
	DefaultQueueWaitTimeout = 5 * time.Minute

	// DefaultPendingStaleAfter is how old a PENDING record must be before the
	// reconciliation sweep treats it as orphaned
	DefaultPendingStaleAfter = 10 * time.Minute
)

// Default cron expressions for the maintenance scheduler
const (
	DefaultRetentionSweepSpec = "0 3 * * *"    // daily at 03:00
	DefaultReconcileSweepSpec = "*/10 * * * *" // every 10 minutes
)
