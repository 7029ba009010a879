package tasks

import (
	"context"

	"github.com/hibiken/asynq"
)

// TaskEnqueuer is the part of *asynq.Client the dispatcher and the retry
// sweep need. Tests substitute a recording fake.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}
