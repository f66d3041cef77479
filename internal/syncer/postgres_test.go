package syncer

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-sync/internal/handler"
	"github.com/BuzzLyutic/task-sync/internal/repo"
	"github.com/BuzzLyutic/task-sync/internal/service"
	"github.com/BuzzLyutic/task-sync/internal/testutil"
)

func newPostgresServer(t *testing.T) *testServer {
	t.Helper()

	pool, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	logger := zap.NewNop()
	svc := service.NewTaskService(repo.NewTaskRepo(pool), nil, logger)
	srv := httptest.NewServer(handler.Routes(handler.NewTaskHandler(svc, logger), nil))
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, svc: svc}
}

func TestSync_PostgresTwoDevices(t *testing.T) {
	srv := newPostgresServer(t)
	ctx := context.Background()

	phone := newTestDevice(t, srv)
	laptop := newTestDevice(t, srv)

	phone.create(t, "Buy milk")
	phone.create(t, "Send report")
	res := phone.sync(t)
	assert.Equal(t, 2, res.Created)
	assert.ElementsMatch(t, []string{"Buy milk", "Send report"}, titles(srv.tasks(t)))

	laptop.sync(t)
	records := laptop.records(t)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.True(t, r.ID.IsRemote())
		assert.False(t, r.Dirty())
	}

	target := records[0].ID
	_, err := laptop.mgr.SetCompleted(ctx, target, true)
	require.NoError(t, err)
	res = laptop.sync(t)
	assert.Equal(t, 1, res.Updated)

	phone.sync(t)
	got, err := phone.store.Get(ctx, target)
	require.NoError(t, err)
	assert.True(t, got.Completed)

	require.NoError(t, phone.mgr.Delete(ctx, target))
	res = phone.sync(t)
	assert.Equal(t, 1, res.Deleted)

	laptop.sync(t)
	assert.Len(t, laptop.records(t), 1)
	assert.Len(t, srv.tasks(t), 1)
}

func TestSync_PostgresLostCreateResponse(t *testing.T) {
	srv := newPostgresServer(t)
	dev := newTestDevice(t, srv)

	dev.create(t, "Book flights")
	dev.remote.set(func(f *flakyRemote) { f.loseCreate = true })
	res := dev.sync(t)
	assert.True(t, res.Partial())

	dev.remote.set(func(f *flakyRemote) { f.loseCreate = false })
	dev.sync(t)

	assert.Len(t, srv.tasks(t), 1, "the idempotency key table prevents a duplicate")
	records := dev.records(t)
	require.Len(t, records, 1)
	assert.True(t, records[0].ID.IsRemote())
}
