package repo

import (
	"context"
	"sync"
	"time"

	"github.com/BuzzLyutic/task-sync/internal/model"
)

// MemoryRepo keeps tasks in process memory, in creation order.
type MemoryRepo struct {
	mu     sync.RWMutex
	tasks  []model.Task
	nextID int64
	keys   map[string]int64
	now    func() int64
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		nextID: 1,
		keys:   make(map[string]int64),
		now:    model.NowMillis,
	}
}

// SeedDemo inserts the two demo tasks a fresh server starts with.
func (r *MemoryRepo) SeedDemo() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, t := range []model.Task{
		{Title: "Buy milk", Description: "Whole milk 1L", CreatedAt: now - time.Hour.Milliseconds()},
		{Title: "Send report", Description: "Send the weekly report", CreatedAt: now - 2*time.Hour.Milliseconds()},
	} {
		t.ID = r.nextID
		r.nextID++
		r.tasks = append(r.tasks, t)
	}
}

func (r *MemoryRepo) Create(ctx context.Context, in model.TaskInput) (model.Task, error) {
	if err := ctx.Err(); err != nil {
		return model.Task{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	t := model.Task{ID: r.nextID, CreatedAt: r.now()}
	in.Patch().Apply(&t)
	r.nextID++
	r.tasks = append(r.tasks, t)
	return cloneTask(t), nil
}

func (r *MemoryRepo) Get(ctx context.Context, id int64) (model.Task, error) {
	if err := ctx.Err(); err != nil {
		return model.Task{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.indexOf(id)
	if i < 0 {
		return model.Task{}, ErrorNotFound
	}
	return cloneTask(r.tasks[i]), nil
}

func (r *MemoryRepo) List(ctx context.Context) ([]model.Task, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := make([]model.Task, len(r.tasks))
	for i, t := range r.tasks {
		tasks[i] = cloneTask(t)
	}
	return tasks, nil
}

func (r *MemoryRepo) Update(ctx context.Context, id int64, patch model.TaskPatch) (model.Task, error) {
	if err := ctx.Err(); err != nil {
		return model.Task{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return model.Task{}, ErrorNotFound
	}
	patch.Apply(&r.tasks[i])
	return cloneTask(r.tasks[i]), nil
}

func (r *MemoryRepo) Delete(ctx context.Context, id int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return false, nil
	}
	r.tasks = append(r.tasks[:i], r.tasks[i+1:]...)
	for key, resourceID := range r.keys {
		if resourceID == id {
			delete(r.keys, key)
		}
	}
	return true, nil
}

func (r *MemoryRepo) SaveIdempotencyKey(ctx context.Context, key string, resourceID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.keys[key]; !ok {
		r.keys[key] = resourceID
	}
	return nil
}

func (r *MemoryRepo) GetIdempotencyKey(ctx context.Context, key string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.keys[key]
	if !ok {
		return 0, ErrorNotFound
	}
	return id, nil
}

func (r *MemoryRepo) GetStats(ctx context.Context) (model.TaskStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := model.TaskStats{TotalTasks: len(r.tasks)}
	for _, t := range r.tasks {
		if t.Completed {
			s.Completed++
		}
	}
	s.Pending = s.TotalTasks - s.Completed
	return s, nil
}

func (r *MemoryRepo) indexOf(id int64) int {
	for i, t := range r.tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func cloneTask(t model.Task) model.Task {
	if t.Location != nil {
		loc := *t.Location
		t.Location = &loc
	}
	if t.Photo != nil {
		photo := *t.Photo
		t.Photo = &photo
	}
	return t
}
