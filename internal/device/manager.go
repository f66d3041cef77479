// Package device implements the task operations a user performs on the
// device. Every operation writes only to the local store; synchronization
// picks the changes up later.
package device

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-sync/internal/localstore"
	"github.com/BuzzLyutic/task-sync/internal/model"
)

var (
	ErrValidation = errors.New("validation error")
	ErrDeleted    = errors.New("task is deleted")
)

// Manager applies user edits to the local store.
type Manager struct {
	store  localstore.Store
	logger *zap.Logger
	now    func() int64

	// OnChange, when set, is called after every successful mutation.
	OnChange func(id model.ClientID)
}

func NewManager(store localstore.Store, logger *zap.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger,
		now:    model.NowMillis,
	}
}

// Create stores a new local-only task.
func (m *Manager) Create(ctx context.Context, in model.TaskInput) (model.Record, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if in.Title == "" {
		return model.Record{}, ErrValidation
	}

	rec := model.Record{
		ID:        model.NewLocalID(),
		CreatedAt: m.now(),
		State:     model.StateLocalNew,
		Rev:       1,
	}
	rec.SetInput(in)

	if err := m.store.Put(ctx, rec); err != nil {
		return model.Record{}, err
	}

	m.logger.Debug("task created locally", zap.String("client_id", rec.ID.String()))
	m.changed(rec.ID)
	return rec, nil
}

// Edit applies a partial update to a task and marks it for synchronization.
func (m *Manager) Edit(ctx context.Context, id model.ClientID, patch model.TaskPatch) (model.Record, error) {
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return model.Record{}, ErrValidation
	}

	rec, err := m.store.Update(ctx, id, func(r *model.Record) error {
		if r.Deleted() {
			return ErrDeleted
		}
		task := model.Task{Title: r.Title, Description: r.Description, Completed: r.Completed, Location: r.Location, Photo: r.Photo}
		patch.Apply(&task)
		task.Title = strings.TrimSpace(task.Title)
		r.SetInput(task.Input())
		markDirty(r)
		return nil
	})
	if err != nil {
		return model.Record{}, err
	}

	m.logger.Debug("task edited locally", zap.String("client_id", id.String()), zap.Stringer("state", rec.State))
	m.changed(id)
	return rec, nil
}

// SetCompleted toggles the completed flag.
func (m *Manager) SetCompleted(ctx context.Context, id model.ClientID, completed bool) (model.Record, error) {
	return m.Edit(ctx, id, model.TaskPatch{Completed: &completed})
}

// Delete removes a task. Tasks the server has never seen are purged right
// away; server tasks become tombstones until the deletion is confirmed.
func (m *Manager) Delete(ctx context.Context, id model.ClientID) error {
	if id.IsLocal() {
		// A sync may have re-keyed the record to its server id meanwhile.
		deleted, err := m.store.DeleteIf(ctx, id, func(model.Record) bool { return true })
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("%s: %w", id, localstore.ErrNotFound)
		}
		m.logger.Debug("local task purged", zap.String("client_id", id.String()))
		m.changed(id)
		return nil
	}

	_, err := m.store.Update(ctx, id, func(r *model.Record) error {
		if r.Deleted() {
			return localstore.ErrSkip
		}
		r.State = model.StateTombstoned
		r.Rev++
		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debug("task tombstoned", zap.String("client_id", id.String()))
	m.changed(id)
	return nil
}

// Get returns a single task, tombstones included.
func (m *Manager) Get(ctx context.Context, id model.ClientID) (model.Record, error) {
	return m.store.Get(ctx, id)
}

// List returns the visible tasks, newest first. Tombstones are hidden.
func (m *Manager) List(ctx context.Context) ([]model.Record, error) {
	all, err := m.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	visible := make([]model.Record, 0, len(all))
	for _, r := range all {
		if !r.Deleted() {
			visible = append(visible, r)
		}
	}
	return visible, nil
}

// Badge describes a record's sync status the way the task list shows it.
func Badge(r model.Record) string {
	switch {
	case r.ID.IsLocal():
		return "offline"
	case r.Dirty():
		return "pending"
	default:
		return "ok"
	}
}

func (m *Manager) changed(id model.ClientID) {
	if m.OnChange != nil {
		m.OnChange(id)
	}
}

func markDirty(r *model.Record) {
	if r.State == model.StateSynced {
		r.State = model.StateLocallyDirty
	}
	r.Rev++
}
