package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ppongpan/Q-Collector-sub006/internal/domain/models"
	"github.com/ppongpan/Q-Collector-sub006/pkg/constants"
	apperrors "github.com/ppongpan/Q-Collector-sub006/pkg/errors"
)

// ExecuteFunc runs one migration operation to completion
type ExecuteFunc func(ctx context.Context, op models.MigrationOperation) (*models.MigrationRecord, error)

// MigrationQueue serializes migration operations per table. Operations on
// the same table run strictly FIFO on a dedicated worker goroutine;
// operations on different tables run concurrently. DDL on a table must never
// interleave, and the queue is the only path to the executor.
type MigrationQueue struct {
	mu          sync.Mutex
	tables      map[string]*tableQueue
	execute     ExecuteFunc
	waitMax     time.Duration
	stmtTimeout time.Duration
	draining    bool
	wg          sync.WaitGroup
}

// Ticket is the caller's handle on an enqueued operation
type Ticket struct {
	tableName  string
	enqueuedAt time.Time

	mu        sync.Mutex
	started   bool
	cancelled bool

	done   chan struct{}
	record *models.MigrationRecord
	err    error
}

type queueTask func(ctx context.Context) (*models.MigrationRecord, error)

type tableQueue struct {
	name    string
	pending []*Ticket
	tasks   map[*Ticket]queueTask
	wake    chan struct{}
}

func NewMigrationQueue(execute ExecuteFunc, waitMax time.Duration) *MigrationQueue {
	return &MigrationQueue{
		tables:      make(map[string]*tableQueue),
		execute:     execute,
		waitMax:     waitMax,
		stmtTimeout: constants.DefaultStatementTimeout,
	}
}

// WithStatementTimeout overrides the execution bound applied to each
// operation. A wedged DDL statement must fail its record, not hold the
// table's worker forever.
func (q *MigrationQueue) WithStatementTimeout(d time.Duration) *MigrationQueue {
	if d > 0 {
		q.stmtTimeout = d
	}
	return q
}

// Enqueue appends an operation to its table's queue and returns a ticket the
// caller can wait on or cancel. The worker goroutine for the table is created
// lazily on first use.
func (q *MigrationQueue) Enqueue(op models.MigrationOperation) (*Ticket, error) {
	return q.EnqueueTask(op.TableName, func(ctx context.Context) (*models.MigrationRecord, error) {
		return q.execute(ctx, op)
	})
}

// EnqueueTask schedules an arbitrary migration-domain task on a table's
// queue. Rollbacks use this so they serialize against regular operations on
// the same table.
func (q *MigrationQueue) EnqueueTask(tableName string, task queueTask) (*Ticket, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.draining {
		return nil, apperrors.NewConflictError("queue", "state", "shutting down")
	}

	tq, ok := q.tables[tableName]
	if !ok {
		tq = &tableQueue{
			name:  tableName,
			tasks: make(map[*Ticket]queueTask),
			wake:  make(chan struct{}, 1),
		}
		q.tables[tableName] = tq
		q.wg.Add(1)
		go q.worker(tq)
	}

	t := &Ticket{
		tableName:  tableName,
		enqueuedAt: time.Now(),
		done:       make(chan struct{}),
	}
	tq.pending = append(tq.pending, t)
	tq.tasks[t] = task

	select {
	case tq.wake <- struct{}{}:
	default:
	}
	return t, nil
}

func (q *MigrationQueue) worker(tq *tableQueue) {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		var t *Ticket
		for len(tq.pending) > 0 {
			head := tq.pending[0]
			tq.pending = tq.pending[1:]
			head.mu.Lock()
			if head.cancelled {
				head.mu.Unlock()
				delete(tq.tasks, head)
				continue
			}
			head.started = true
			head.mu.Unlock()
			t = head
			break
		}
		if t == nil {
			if q.draining {
				q.mu.Unlock()
				return
			}
			q.mu.Unlock()
			<-tq.wake
			continue
		}
		task := tq.tasks[t]
		delete(tq.tasks, t)
		q.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), q.stmtTimeout)
		record, err := task(ctx)
		cancel()
		t.record = record
		t.err = err
		close(t.done)
	}
}

// Wait blocks until the operation reaches a terminal state, the caller's
// context ends, or the queue wait timeout elapses before execution starts.
// A timed-out operation that never started is cancelled and safe to retry.
func (t *Ticket) Wait(ctx context.Context, waitMax time.Duration) (*models.MigrationRecord, error) {
	timer := time.NewTimer(waitMax)
	defer timer.Stop()

	for {
		select {
		case <-t.done:
			return t.record, t.err
		case <-ctx.Done():
			if t.Cancel() {
				return nil, &apperrors.QueueTimeoutError{TableName: t.tableName}
			}
			// Already executing; the result is the truth, wait for it.
			<-t.done
			return t.record, t.err
		case <-timer.C:
			if t.Cancel() {
				log.Printf("⏱️ Queued migration on `%s` timed out before starting", t.tableName)
				return nil, &apperrors.QueueTimeoutError{TableName: t.tableName}
			}
			<-t.done
			return t.record, t.err
		}
	}
}

// Cancel removes the operation from the queue if it has not started.
// Returns false once execution has begun: in-flight DDL is never interrupted.
func (t *Ticket) Cancel() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return false
	}
	t.cancelled = true
	return true
}

// QueueStats reports the depth and oldest waiting age of one table's queue
type QueueStats struct {
	TableName string        `json:"tableName"`
	Depth     int           `json:"depth"`
	OldestAge time.Duration `json:"oldestAgeMs"`
}

// Stats returns a snapshot of every table queue that has waiting work
func (q *MigrationQueue) Stats() []QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var out []QueueStats
	for name, tq := range q.tables {
		depth := 0
		var oldest time.Duration
		for _, t := range tq.pending {
			t.mu.Lock()
			cancelled := t.cancelled
			t.mu.Unlock()
			if cancelled {
				continue
			}
			depth++
			if age := now.Sub(t.enqueuedAt); age > oldest {
				oldest = age
			}
		}
		if depth > 0 {
			out = append(out, QueueStats{TableName: name, Depth: depth, OldestAge: oldest})
		}
	}
	return out
}

// WaitTimeout returns the queue's configured wait ceiling
func (q *MigrationQueue) WaitTimeout() time.Duration {
	return q.waitMax
}

// Shutdown stops accepting work and waits for in-flight operations to
// finish. Pending operations that never started are abandoned; their
// callers receive queue timeouts.
func (q *MigrationQueue) Shutdown() {
	q.mu.Lock()
	q.draining = true
	for _, tq := range q.tables {
		select {
		case tq.wake <- struct{}{}:
		default:
		}
	}
	q.mu.Unlock()
	q.wg.Wait()
}
