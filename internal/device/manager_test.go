package device

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-sync/internal/localstore"
	"github.com/BuzzLyutic/task-sync/internal/model"
)

func setupManager(t *testing.T) (*Manager, localstore.Store) {
	t.Helper()
	store, err := localstore.Open(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewManager(store, zap.NewNop()), store
}

func TestManager_Create(t *testing.T) {
	tests := []struct {
		name    string
		in      model.TaskInput
		wantErr error
	}{
		{name: "title only", in: model.TaskInput{Title: "Buy milk"}},
		{name: "trimmed title", in: model.TaskInput{Title: "  Buy milk  ", Description: " 1L "}},
		{name: "empty title", in: model.TaskInput{Title: ""}, wantErr: ErrValidation},
		{name: "whitespace title", in: model.TaskInput{Title: "   "}, wantErr: ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, store := setupManager(t)

			rec, err := m.Create(context.Background(), tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)

			assert.True(t, rec.ID.IsLocal())
			assert.True(t, rec.Dirty())
			assert.Equal(t, model.StateLocalNew, rec.State)
			assert.Equal(t, "Buy milk", rec.Title)
			assert.NotZero(t, rec.CreatedAt)
			_, hasServerID := rec.ServerID()
			assert.False(t, hasServerID)

			stored, err := store.Get(context.Background(), rec.ID)
			require.NoError(t, err)
			assert.Equal(t, rec, stored)
		})
	}
}

func TestManager_EditMarksServerRecordDirty(t *testing.T) {
	m, store := setupManager(t)
	ctx := context.Background()

	synced := model.Record{ID: model.RemoteID(42), Title: "Report", State: model.StateSynced, Rev: 4}
	require.NoError(t, store.Put(ctx, synced))

	rec, err := m.SetCompleted(ctx, synced.ID, true)
	require.NoError(t, err)
	assert.True(t, rec.Completed)
	assert.Equal(t, model.StateLocallyDirty, rec.State)
	assert.Equal(t, uint64(5), rec.Rev)
}

func TestManager_EditKeepsLocalNew(t *testing.T) {
	m, _ := setupManager(t)
	ctx := context.Background()

	rec, err := m.Create(ctx, model.TaskInput{Title: "Draft"})
	require.NoError(t, err)

	title := "Final"
	edited, err := m.Edit(ctx, rec.ID, model.TaskPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Final", edited.Title)
	assert.Equal(t, model.StateLocalNew, edited.State)
	assert.Greater(t, edited.Rev, rec.Rev)
}

func TestManager_EditValidation(t *testing.T) {
	m, store := setupManager(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, model.Record{ID: model.RemoteID(1), Title: "x", State: model.StateTombstoned}))

	empty := " "
	_, err := m.Edit(ctx, model.RemoteID(1), model.TaskPatch{Title: &empty})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = m.SetCompleted(ctx, model.RemoteID(1), true)
	assert.ErrorIs(t, err, ErrDeleted)

	_, err = m.SetCompleted(ctx, model.RemoteID(2), true)
	assert.ErrorIs(t, err, localstore.ErrNotFound)
}

func TestManager_Delete(t *testing.T) {
	m, store := setupManager(t)
	ctx := context.Background()

	t.Run("local record is purged", func(t *testing.T) {
		rec, err := m.Create(ctx, model.TaskInput{Title: "never synced"})
		require.NoError(t, err)

		require.NoError(t, m.Delete(ctx, rec.ID))
		_, err = store.Get(ctx, rec.ID)
		assert.ErrorIs(t, err, localstore.ErrNotFound)
	})

	t.Run("re-keyed local id reports not found", func(t *testing.T) {
		rec, err := m.Create(ctx, model.TaskInput{Title: "keep?"})
		require.NoError(t, err)

		// Simulate a sync adopting the record under its server id.
		adopted := rec
		adopted.ID = model.RemoteID(11)
		adopted.State = model.StateSynced
		require.NoError(t, store.Replace(ctx, rec.ID, adopted))

		var calls int
		m.OnChange = func(model.ClientID) { calls++ }
		defer func() { m.OnChange = nil }()

		err = m.Delete(ctx, rec.ID)
		assert.ErrorIs(t, err, localstore.ErrNotFound)
		assert.Zero(t, calls)

		got, err := store.Get(ctx, adopted.ID)
		require.NoError(t, err)
		assert.False(t, got.Deleted())
	})

	t.Run("server record is tombstoned", func(t *testing.T) {
		synced := model.Record{ID: model.RemoteID(7), Title: "shared", State: model.StateSynced}
		require.NoError(t, store.Put(ctx, synced))

		require.NoError(t, m.Delete(ctx, synced.ID))
		got, err := store.Get(ctx, synced.ID)
		require.NoError(t, err)
		assert.True(t, got.Deleted())
		assert.True(t, got.Dirty())

		// Deleting twice is harmless.
		require.NoError(t, m.Delete(ctx, synced.ID))

		visible, err := m.List(ctx)
		require.NoError(t, err)
		for _, r := range visible {
			assert.NotEqual(t, synced.ID, r.ID)
		}
	})
}

func TestManager_OnChange(t *testing.T) {
	m, _ := setupManager(t)
	var seen []model.ClientID
	m.OnChange = func(id model.ClientID) { seen = append(seen, id) }

	rec, err := m.Create(context.Background(), model.TaskInput{Title: "ping"})
	require.NoError(t, err)
	require.NoError(t, m.Delete(context.Background(), rec.ID))

	assert.Equal(t, []model.ClientID{rec.ID, rec.ID}, seen)
}

func TestBadge(t *testing.T) {
	assert.Equal(t, "offline", Badge(model.Record{ID: model.NewLocalID(), State: model.StateLocalNew}))
	assert.Equal(t, "pending", Badge(model.Record{ID: model.RemoteID(1), State: model.StateLocallyDirty}))
	assert.Equal(t, "ok", Badge(model.Record{ID: model.RemoteID(1), State: model.StateSynced}))
}
