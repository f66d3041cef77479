package respond

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var got map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	return got
}

func TestJSON_WritesBodyVerbatim(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, httptest.NewRequest(http.MethodGet, "/health", nil), http.StatusOK, map[string]string{"status": "ok"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{"status": "ok"}, decode(t, w))
}

func TestOK(t *testing.T) {
	type task struct {
		ID    int64  `json:"id"`
		Title string `json:"title"`
	}

	tests := []struct {
		name     string
		code     int
		fields   Fields
		wantBody map[string]any
	}{
		{
			name:     "bare acknowledgement",
			code:     http.StatusOK,
			wantBody: map[string]any{"ok": true},
		},
		{
			name:   "created task",
			code:   http.StatusCreated,
			fields: Fields{"task": task{ID: 7, Title: "Buy milk"}},
			wantBody: map[string]any{
				"ok":   true,
				"task": map[string]any{"id": float64(7), "title": "Buy milk"},
			},
		},
		{
			name:     "delete result",
			code:     http.StatusOK,
			fields:   Fields{"deleted": false},
			wantBody: map[string]any{"ok": true, "deleted": false},
		},
		{
			name:     "task list with timestamp",
			code:     http.StatusOK,
			fields:   Fields{"tasks": []task{}, "ts": int64(1700000000000)},
			wantBody: map[string]any{"ok": true, "tasks": []any{}, "ts": float64(1700000000000)},
		},
		{
			name:     "ok cannot be overridden",
			code:     http.StatusOK,
			fields:   Fields{"ok": false},
			wantBody: map[string]any{"ok": true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			OK(w, httptest.NewRequest(http.MethodGet, "/api/tasks", nil), tt.code, tt.fields)

			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.wantBody, decode(t, w))
		})
	}
}

func TestError(t *testing.T) {
	tests := []struct {
		code    int
		message string
	}{
		{http.StatusBadRequest, "title required"},
		{http.StatusNotFound, "not found"},
		{http.StatusInternalServerError, "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			w := httptest.NewRecorder()
			Error(w, httptest.NewRequest(http.MethodPost, "/api/tasks", nil), tt.code, tt.message)

			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, map[string]any{"ok": false, "error": tt.message}, decode(t, w))
		})
	}
}
