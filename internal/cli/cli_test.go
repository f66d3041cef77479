package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-sync/internal/handler"
	"github.com/BuzzLyutic/task-sync/internal/model"
	"github.com/BuzzLyutic/task-sync/internal/repo"
	"github.com/BuzzLyutic/task-sync/internal/service"
	"github.com/BuzzLyutic/task-sync/internal/testutil"
)

type testEnv struct {
	cfgPath string
	dataDir string
	url     string
	svc     *service.TaskService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := zap.NewNop()
	svc := service.NewTaskService(repo.NewMemoryRepo(), nil, logger)
	srv := httptest.NewServer(handler.Routes(handler.NewTaskHandler(svc, logger), nil))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	cfg := "log_level: error\nsync_schedule: \"\"\nwatch_events: false\nrequest_timeout: 2s\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	return &testEnv{
		cfgPath: cfgPath,
		dataDir: filepath.Join(dir, "data"),
		url:     srv.URL,
		svc:     svc,
	}
}

// offlineURL returns the address of a server that is no longer listening.
func offlineURL(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(nil)
	srv.Close()
	return srv.URL
}

func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return e.runAt(context.Background(), e.url, "", args...)
}

func (e *testEnv) runAt(ctx context.Context, url, stdin string, args ...string) (string, error) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{
		"--config", e.cfgPath,
		"--data-dir", e.dataDir,
		"--server", url,
	}, args...))

	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func (e *testEnv) serverTasks(t *testing.T) []model.Task {
	t.Helper()
	tasks, err := e.svc.List(context.Background())
	require.NoError(t, err)
	return tasks
}

func (e *testEnv) records(t *testing.T) []map[string]any {
	t.Helper()
	out, err := e.run(t, "--no-sync", "list", "--json")
	require.NoError(t, err)

	var records []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	return records
}

func TestAdd_SyncsWhenOnline(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "add", "Buy", "bread", "-d", "whole wheat", "--lat", "52.5", "--lon", "13.4")
	require.NoError(t, err)
	assert.Contains(t, out, "added")

	tasks := env.serverTasks(t)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Buy bread", tasks[0].Title)
	assert.Equal(t, "whole wheat", tasks[0].Description)
	require.NotNil(t, tasks[0].Location)
	assert.Equal(t, 52.5, tasks[0].Location.Lat)

	out, err = env.run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Buy bread")
	assert.Contains(t, out, strconv.FormatInt(tasks[0].ID, 10))
	assert.Contains(t, out, "ok")
}

func TestAdd_OfflineQueuesUntilSync(t *testing.T) {
	env := newTestEnv(t)
	down := offlineURL(t)

	out, err := env.runAt(context.Background(), down, "", "add", "Call mom")
	require.NoError(t, err)
	assert.Contains(t, out, "offline: saved locally")

	out, err = env.runAt(context.Background(), down, "", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Call mom")
	assert.Contains(t, out, "offline")

	out, err = env.runAt(context.Background(), down, "", "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "offline: 1 changes waiting")
	assert.Empty(t, env.serverTasks(t))

	out, err = env.run(t, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "synced: 1 created")

	tasks := env.serverTasks(t)
	require.Len(t, tasks, 1)
	assert.Equal(t, "Call mom", tasks[0].Title)

	records := env.records(t)
	require.Len(t, records, 1)
	assert.Equal(t, "server:"+strconv.FormatInt(tasks[0].ID, 10), records[0]["clientId"])
}

func TestTaskLifecycle(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "add", "Write report")
	require.NoError(t, err)
	tasks := env.serverTasks(t)
	require.Len(t, tasks, 1)
	id := strconv.FormatInt(tasks[0].ID, 10)

	_, err = env.run(t, "done", id)
	require.NoError(t, err)
	assert.True(t, env.serverTasks(t)[0].Completed)

	_, err = env.run(t, "edit", "server:"+id, "--title", "Write final report", "-d", "due friday")
	require.NoError(t, err)
	got := env.serverTasks(t)[0]
	assert.Equal(t, "Write final report", got.Title)
	assert.Equal(t, "due friday", got.Description)
	assert.True(t, got.Completed)

	_, err = env.run(t, "undone", id)
	require.NoError(t, err)
	assert.False(t, env.serverTasks(t)[0].Completed)

	out, err := env.run(t, "rm", id)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted "+id)
	assert.Empty(t, env.serverTasks(t))
	assert.Empty(t, env.records(t))
}

func TestLocalPrefixID(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "--no-sync", "add", "Water plants")
	require.NoError(t, err)

	records := env.records(t)
	require.Len(t, records, 1)
	clientID := records[0]["clientId"].(string)
	require.True(t, strings.HasPrefix(clientID, "local:"))
	prefix := strings.TrimPrefix(clientID, "local:")[:6]

	_, err = env.run(t, "--no-sync", "done", prefix)
	require.NoError(t, err)
	assert.Equal(t, true, env.records(t)[0]["completed"])

	_, err = env.run(t, "--no-sync", "rm", prefix)
	require.NoError(t, err)
	assert.Empty(t, env.records(t))
}

func TestCommandErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "blank title", args: []string{"add", "   "}, wantErr: "title required"},
		{name: "unknown id", args: []string{"done", "42"}, wantErr: "task not found"},
		{name: "unknown prefix", args: []string{"rm", "zzzz"}, wantErr: "no task matches"},
		{name: "lat without lon", args: []string{"add", "x", "--lat", "1"}, wantErr: "lon"},
		{name: "missing photo", args: []string{"add", "x", "--photo", "/nonexistent.png"}, wantErr: "read photo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.run(t, append([]string{"--no-sync"}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("edit without changes", func(t *testing.T) {
		_, err := env.run(t, "add", "Something")
		require.NoError(t, err)
		id := strconv.FormatInt(env.serverTasks(t)[0].ID, 10)

		_, err = env.run(t, "edit", id)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nothing to change")
	})
}

func TestConfigCommands(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "server_url: "+env.url)
	assert.Contains(t, out, "request_timeout: 2s")

	out, err = env.run(t, "config", "path")
	require.NoError(t, err)
	assert.Contains(t, out, env.cfgPath)
	assert.Contains(t, out, filepath.Join(env.dataDir, "tasks.db"))
}

func TestDaemon_SyncsTypedCommands(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	var out string
	go func() {
		var err error
		out, err = env.runAt(ctx, env.url, "add \"From the daemon\" -d 'typed in'\n", "daemon")
		done <- err
	}()

	require.True(t, testutil.WaitForCondition(t, 5*time.Second, func() bool {
		tasks, err := env.svc.List(context.Background())
		return err == nil && len(tasks) == 1
	}))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}

	tasks := env.serverTasks(t)
	assert.Equal(t, "From the daemon", tasks[0].Title)
	assert.Equal(t, "typed in", tasks[0].Description)
	assert.Contains(t, out, "added")
}

func TestDaemon_ExitCommand(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.runAt(context.Background(), offlineURL(t), "list\nexit\n", "daemon")
	require.NoError(t, err)
	assert.Contains(t, out, "no tasks")
}

func TestSplitLine(t *testing.T) {
	tests := []struct {
		line    string
		want    []string
		wantErr bool
	}{
		{line: "", want: nil},
		{line: "   ", want: nil},
		{line: "list", want: []string{"list"}},
		{line: `add "Buy milk"  -d 'two liters'`, want: []string{"add", "Buy milk", "-d", "two liters"}},
		{line: `edit 3 --title ""`, want: []string{"edit", "3", "--title", ""}},
		{line: `add "it's fine"`, want: []string{"add", "it's fine"}},
		{line: `add Buy\ milk`, want: []string{"add", "Buy milk"}},
		{line: `add "say \"hi\""`, want: []string{"add", `say "hi"`}},
		{line: `add "open`, wantErr: true},
		{line: "rm 3; rm 4", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := splitLine(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMetricsStdoutExporter(t *testing.T) {
	env := newTestEnv(t)
	f, err := os.OpenFile(env.cfgPath, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("metrics: stdout\nmetrics_interval: 1h\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	out, err := env.run(t, "add", "Measure twice")
	require.NoError(t, err)
	assert.Contains(t, out, "added")
	assert.Contains(t, out, "tasksync.sync.cycles")
	assert.Contains(t, out, "tasksync.sync.records")
	assert.Contains(t, out, "push_create")
}

func TestPhotoDataURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pixel.png")
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	require.NoError(t, os.WriteFile(path, png, 0o644))

	got, err := photoDataURL(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "data:image/png;base64,"), got)
}
