package service

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BuzzLyutic/task-sync/internal/model"
	"github.com/BuzzLyutic/task-sync/internal/notify"
	"github.com/BuzzLyutic/task-sync/internal/repo"
)

var (
	ErrValidation = errors.New("validation error")
)

// untitled is used by batch sync for created items without a title.
const untitled = "Untitled"

type TaskService struct {
	repo   repo.TaskRepository
	events notify.Publisher
	logger *zap.Logger

	creates singleflight.Group
}

// NewTaskService returns a service over repo. events may be nil.
func NewTaskService(repo repo.TaskRepository, events notify.Publisher, logger *zap.Logger) *TaskService {
	return &TaskService{repo: repo, events: events, logger: logger}
}

// Create stores a new task. A non-empty idempKey makes the call idempotent:
// every request carrying the same key gets the task created first.
func (s *TaskService) Create(ctx context.Context, in model.TaskInput, idempKey string) (model.Task, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return model.Task{}, ErrValidation
	}

	if idempKey == "" {
		return s.create(ctx, in)
	}

	// Concurrent requests with one key share a single creation.
	v, err, _ := s.creates.Do(idempKey, func() (any, error) {
		if existingID, err := s.repo.GetIdempotencyKey(ctx, idempKey); err == nil {
			return s.repo.Get(ctx, existingID)
		}

		task, err := s.create(ctx, in)
		if err != nil {
			return task, err
		}
		if err := s.repo.SaveIdempotencyKey(ctx, idempKey, task.ID); err != nil {
			s.logger.Warn("failed to save idempotency key", zap.String("key", idempKey), zap.Error(err))
		}
		return task, nil
	})
	task, _ := v.(model.Task)
	return task, err
}

func (s *TaskService) create(ctx context.Context, in model.TaskInput) (model.Task, error) {
	task, err := s.repo.Create(ctx, in)
	if err != nil {
		return task, err
	}
	s.publish(ctx, notify.EventCreated, task)
	return task, nil
}

func (s *TaskService) Get(ctx context.Context, id int64) (model.Task, error) {
	return s.repo.Get(ctx, id)
}

func (s *TaskService) List(ctx context.Context) ([]model.Task, error) {
	return s.repo.List(ctx)
}

// Update applies patch to the task. Only the fields present in patch change.
func (s *TaskService) Update(ctx context.Context, id int64, patch model.TaskPatch) (model.Task, error) {
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if title == "" {
			return model.Task{}, ErrValidation
		}
		patch.Title = &title
	}

	task, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return task, err
	}
	s.publish(ctx, notify.EventUpdated, task)
	return task, nil
}

// Delete removes the task and reports whether it existed.
func (s *TaskService) Delete(ctx context.Context, id int64) (bool, error) {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if deleted {
		s.publish(ctx, notify.EventDeleted, model.Task{ID: id})
	}
	return deleted, nil
}

func (s *TaskService) GetStats(ctx context.Context) (model.TaskStats, error) {
	return s.repo.GetStats(ctx)
}

// Sync applies a batch of device changes. Items with a local id and no
// server id are created, keyed by their local id so a replayed batch does
// not duplicate them; items with a server id are patched when the task
// still exists and ignored otherwise.
func (s *TaskService) Sync(ctx context.Context, items []model.SyncItem) (model.SyncResult, error) {
	res := model.SyncResult{
		Created: []model.Task{},
		Updated: []model.Task{},
		Mapping: []model.SyncMapping{},
	}

	for _, item := range items {
		switch {
		case item.LocalID != "" && item.ID == 0:
			task := model.Task{Title: untitled}
			item.TaskPatch.Apply(&task)
			if strings.TrimSpace(task.Title) == "" {
				task.Title = untitled
			}

			created, err := s.Create(ctx, task.Input(), item.LocalID)
			if err != nil {
				return res, err
			}
			res.Created = append(res.Created, created)
			res.Mapping = append(res.Mapping, model.SyncMapping{LocalID: item.LocalID, ServerID: created.ID})

		case item.ID != 0:
			updated, err := s.Update(ctx, item.ID, item.TaskPatch)
			if errors.Is(err, repo.ErrorNotFound) {
				s.logger.Debug("batch sync skipped unknown task", zap.Int64("task_id", item.ID))
				continue
			}
			if err != nil {
				return res, err
			}
			res.Updated = append(res.Updated, updated)
		}
	}
	return res, nil
}

// Notify broadcasts a free-form message to connected devices.
func (s *TaskService) Notify(ctx context.Context, title, body string) error {
	if s.events == nil {
		return nil
	}
	return s.events.Publish(ctx, notify.Event{
		Type:  notify.EventMessage,
		Title: title,
		Body:  body,
		At:    model.NowMillis(),
	})
}

func (s *TaskService) publish(ctx context.Context, typ notify.EventType, task model.Task) {
	if s.events == nil {
		return
	}
	ev := notify.Event{Type: typ, TaskID: task.ID, Title: task.Title, At: model.NowMillis()}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.logger.Warn("failed to publish task event",
			zap.String("type", string(typ)),
			zap.Int64("task_id", task.ID),
			zap.Error(err),
		)
	}
}
