package test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"

	"podcast-pipeline/internal/db"
)

// MockTaskEnqueuer records enqueued tasks instead of talking to Redis.
type MockTaskEnqueuer struct {
	EnqueuedTasks []*asynq.Task
	Err           error
}

func (m *MockTaskEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.EnqueuedTasks = append(m.EnqueuedTasks, task)
	return &asynq.TaskInfo{ID: "test-task-id", Queue: "default"}, nil
}

// NewMockStore returns a Store backed by sqlmock. The connection is closed
// when the test ends.
func NewMockStore(t *testing.T) (*db.Store, sqlmock.Sqlmock) {
	mockDb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	t.Cleanup(func() { mockDb.Close() })

	return db.NewStore(sqlx.NewDb(mockDb, "sqlmock")), mock
}
