package repo

import (
	"context"

	"github.com/BuzzLyutic/task-sync/internal/model"
)

// TaskRepository is the server-side task storage.
type TaskRepository interface {
	Create(ctx context.Context, in model.TaskInput) (model.Task, error)
	Get(ctx context.Context, id int64) (model.Task, error)
	// List returns every task in creation order.
	List(ctx context.Context) ([]model.Task, error)
	Update(ctx context.Context, id int64, patch model.TaskPatch) (model.Task, error)
	// Delete reports whether a task was removed.
	Delete(ctx context.Context, id int64) (bool, error)
	SaveIdempotencyKey(ctx context.Context, key string, resourceID int64) error
	GetIdempotencyKey(ctx context.Context, key string) (int64, error)
	GetStats(ctx context.Context) (model.TaskStats, error)
}
