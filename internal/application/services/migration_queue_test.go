package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppongpan/Q-Collector-sub006/internal/application/services"
	"github.com/ppongpan/Q-Collector-sub006/internal/domain/models"
	"github.com/ppongpan/Q-Collector-sub006/pkg/constants"
	apperrors "github.com/ppongpan/Q-Collector-sub006/pkg/errors"
)

func TestQueue_FIFOPerTable(t *testing.T) {
	var mu sync.Mutex
	var order []string

	q := services.NewMigrationQueue(func(_ context.Context, op models.MigrationOperation) (*models.MigrationRecord, error) {
		mu.Lock()
		order = append(order, op.FieldID)
		mu.Unlock()
		return &models.MigrationRecord{ID: op.FieldID}, nil
	}, time.Second)
	defer q.Shutdown()

	var tickets []*services.Ticket
	for _, id := range []string{"op-1", "op-2", "op-3"} {
		ticket, err := q.Enqueue(models.MigrationOperation{
			Type: constants.OpAddField, TableName: "contact_form", FieldID: id,
		})
		require.NoError(t, err)
		tickets = append(tickets, ticket)
	}

	for _, ticket := range tickets {
		_, err := ticket.Wait(context.Background(), time.Second)
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"op-1", "op-2", "op-3"}, order)
}

func TestQueue_TablesRunConcurrently(t *testing.T) {
	release := make(chan struct{})

	q := services.NewMigrationQueue(func(_ context.Context, op models.MigrationOperation) (*models.MigrationRecord, error) {
		if op.TableName == "slow_table" {
			<-release
		}
		return &models.MigrationRecord{ID: op.FieldID}, nil
	}, time.Second)
	defer q.Shutdown()

	slow, err := q.Enqueue(models.MigrationOperation{Type: constants.OpAddField, TableName: "slow_table", FieldID: "slow"})
	require.NoError(t, err)
	fast, err := q.Enqueue(models.MigrationOperation{Type: constants.OpAddField, TableName: "fast_table", FieldID: "fast"})
	require.NoError(t, err)

	// The fast table's operation completes while the slow table is blocked.
	record, err := fast.Wait(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "fast", record.ID)

	close(release)
	record, err = slow.Wait(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "slow", record.ID)
}

func TestQueue_WaitTimesOutBeforeStart(t *testing.T) {
	release := make(chan struct{})

	q := services.NewMigrationQueue(func(_ context.Context, _ models.MigrationOperation) (*models.MigrationRecord, error) {
		<-release
		return nil, nil
	}, 50*time.Millisecond)
	defer q.Shutdown()
	defer close(release)

	_, err := q.Enqueue(models.MigrationOperation{Type: constants.OpAddField, TableName: "t", FieldID: "blocker"})
	require.NoError(t, err)

	queued, err := q.Enqueue(models.MigrationOperation{Type: constants.OpAddField, TableName: "t", FieldID: "queued"})
	require.NoError(t, err)

	_, err = queued.Wait(context.Background(), 50*time.Millisecond)
	require.Error(t, err)
	var timeout *apperrors.QueueTimeoutError
	assert.True(t, errors.As(err, &timeout))
	assert.Equal(t, "t", timeout.TableName)
}

func TestQueue_WaitSticksWithStartedOperation(t *testing.T) {
	release := make(chan struct{})

	q := services.NewMigrationQueue(func(_ context.Context, op models.MigrationOperation) (*models.MigrationRecord, error) {
		<-release
		return &models.MigrationRecord{ID: op.FieldID}, nil
	}, 50*time.Millisecond)
	defer q.Shutdown()

	ticket, err := q.Enqueue(models.MigrationOperation{Type: constants.OpAddField, TableName: "t", FieldID: "op-1"})
	require.NoError(t, err)

	go func() {
		time.Sleep(100 * time.Millisecond)
		close(release)
	}()

	// The operation starts immediately, so the short wait ceiling must not
	// abandon it; in-flight DDL is never interrupted.
	record, err := ticket.Wait(context.Background(), 50*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "op-1", record.ID)
}

func TestQueue_CancelPendingOperation(t *testing.T) {
	release := make(chan struct{})

	executed := make(chan string, 2)
	q := services.NewMigrationQueue(func(_ context.Context, op models.MigrationOperation) (*models.MigrationRecord, error) {
		executed <- op.FieldID
		<-release
		return nil, nil
	}, time.Second)
	defer q.Shutdown()
	defer close(release)

	blocker, err := q.Enqueue(models.MigrationOperation{Type: constants.OpAddField, TableName: "t", FieldID: "blocker"})
	require.NoError(t, err)
	<-executed
	assert.False(t, blocker.Cancel())

	queued, err := q.Enqueue(models.MigrationOperation{Type: constants.OpAddField, TableName: "t", FieldID: "queued"})
	require.NoError(t, err)
	assert.True(t, queued.Cancel())

	select {
	case id := <-executed:
		t.Fatalf("cancelled operation %s still executed", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestQueue_Stats(t *testing.T) {
	release := make(chan struct{})

	q := services.NewMigrationQueue(func(_ context.Context, _ models.MigrationOperation) (*models.MigrationRecord, error) {
		<-release
		return nil, nil
	}, time.Second)
	defer q.Shutdown()
	defer close(release)

	_, err := q.Enqueue(models.MigrationOperation{Type: constants.OpAddField, TableName: "t", FieldID: "running"})
	require.NoError(t, err)
	_, err = q.Enqueue(models.MigrationOperation{Type: constants.OpAddField, TableName: "t", FieldID: "waiting"})
	require.NoError(t, err)

	// Let the worker pick up the first operation.
	time.Sleep(20 * time.Millisecond)

	stats := q.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, "t", stats[0].TableName)
	assert.Equal(t, 1, stats[0].Depth)
	assert.Greater(t, stats[0].OldestAge, time.Duration(0))
}

func TestQueue_RejectsWorkWhileDraining(t *testing.T) {
	q := services.NewMigrationQueue(func(_ context.Context, _ models.MigrationOperation) (*models.MigrationRecord, error) {
		return nil, nil
	}, time.Second)
	q.Shutdown()

	_, err := q.Enqueue(models.MigrationOperation{Type: constants.OpAddField, TableName: "t"})
	assert.Error(t, err)
}

func TestQueue_EnqueueTaskSharesTableOrdering(t *testing.T) {
	var mu sync.Mutex
	var order []string

	q := services.NewMigrationQueue(func(_ context.Context, op models.MigrationOperation) (*models.MigrationRecord, error) {
		mu.Lock()
		order = append(order, "op:"+op.FieldID)
		mu.Unlock()
		return nil, nil
	}, time.Second)
	defer q.Shutdown()

	first, err := q.Enqueue(models.MigrationOperation{Type: constants.OpAddField, TableName: "t", FieldID: "1"})
	require.NoError(t, err)
	second, err := q.EnqueueTask("t", func(_ context.Context) (*models.MigrationRecord, error) {
		mu.Lock()
		order = append(order, "rollback")
		mu.Unlock()
		return nil, nil
	})
	require.NoError(t, err)

	_, err = first.Wait(context.Background(), time.Second)
	require.NoError(t, err)
	_, err = second.Wait(context.Background(), time.Second)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"op:1", "rollback"}, order)
}

func TestQueue_OperationsRunUnderDeadline(t *testing.T) {
	var deadline time.Time
	var bounded bool

	q := services.NewMigrationQueue(func(ctx context.Context, _ models.MigrationOperation) (*models.MigrationRecord, error) {
		deadline, bounded = ctx.Deadline()
		return nil, nil
	}, time.Second).WithStatementTimeout(30 * time.Second)
	defer q.Shutdown()

	ticket, err := q.Enqueue(models.MigrationOperation{TableName: "contact_form"})
	require.NoError(t, err)
	_, err = ticket.Wait(context.Background(), time.Second)
	require.NoError(t, err)

	require.True(t, bounded)
	assert.WithinDuration(t, time.Now().Add(30*time.Second), deadline, 5*time.Second)
}

func TestQueue_StatementTimeoutFreesWorker(t *testing.T) {
	q := services.NewMigrationQueue(func(ctx context.Context, op models.MigrationOperation) (*models.MigrationRecord, error) {
		if op.FieldID == "wedged" {
			// A stalled ALTER: blocks until the execution bound fires.
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &models.MigrationRecord{ID: op.FieldID}, nil
	}, time.Second).WithStatementTimeout(50 * time.Millisecond)
	defer q.Shutdown()

	wedged, err := q.Enqueue(models.MigrationOperation{TableName: "contact_form", FieldID: "wedged"})
	require.NoError(t, err)
	_, err = wedged.Wait(context.Background(), time.Second)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The table's worker is free again for the next operation.
	next, err := q.Enqueue(models.MigrationOperation{TableName: "contact_form", FieldID: "next"})
	require.NoError(t, err)
	rec, err := next.Wait(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "next", rec.ID)
}
