// Package remote talks to the Remote Task API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BuzzLyutic/task-sync/internal/model"
)

const DefaultTimeout = 10 * time.Second

var (
	// ErrNotFound is returned when the server does not know the task.
	ErrNotFound = errors.New("remote: task not found")
	// ErrRejected is returned for ok:false answers and other 4xx statuses.
	ErrRejected = errors.New("remote: request rejected")
	// ErrServer is returned for 5xx statuses.
	ErrServer = errors.New("remote: server error")
)

// RequestError describes one failed call to the Remote Task API. It is
// retryable: the record it concerns stays queued locally.
type RequestError struct {
	Op     string
	Status int
	Err    error
}

func (e *RequestError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// envelope is the response body shared by every endpoint.
type envelope struct {
	OK      bool          `json:"ok"`
	Error   string        `json:"error,omitempty"`
	Task    *model.Task   `json:"task,omitempty"`
	Tasks   *[]model.Task `json:"tasks,omitempty"`
	Deleted bool          `json:"deleted"`
}

// Client is an HTTP client for the Remote Task API.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// NewClient returns a client for the server at baseURL. timeout bounds each
// request; zero selects DefaultTimeout.
func NewClient(baseURL string, timeout time.Duration, httpClient *http.Client) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		timeout: timeout,
	}
}

// BaseURL returns the server address the client talks to.
func (c *Client) BaseURL() string { return c.baseURL }

// Ping checks that the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return &RequestError{Op: "ping", Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return &RequestError{Op: "ping", Status: resp.StatusCode, Err: ErrServer}
	}
	return nil
}

// ListTasks returns every task on the server. A reply without a tasks
// array is rejected rather than read as an empty list.
func (c *Client) ListTasks(ctx context.Context) ([]model.Task, error) {
	env, err := c.do(ctx, "list tasks", http.MethodGet, "/api/tasks", nil, nil)
	if err != nil {
		return nil, err
	}
	if env.Tasks == nil {
		return nil, &RequestError{Op: "list tasks", Status: http.StatusOK, Err: fmt.Errorf("%w: response without tasks", ErrRejected)}
	}
	return *env.Tasks, nil
}

// CreateTask creates a task. idempotencyKey, when set, lets the server
// recognise a retried create whose first response was lost.
func (c *Client) CreateTask(ctx context.Context, in model.TaskInput, idempotencyKey string) (model.Task, error) {
	headers := map[string]string{}
	if idempotencyKey != "" {
		headers["Idempotency-Key"] = idempotencyKey
	}

	env, err := c.do(ctx, "create task", http.MethodPost, "/api/tasks", in, headers)
	if err != nil {
		return model.Task{}, err
	}
	if env.Task == nil {
		return model.Task{}, &RequestError{Op: "create task", Err: fmt.Errorf("%w: response without task", ErrRejected)}
	}
	return *env.Task, nil
}

func (c *Client) UpdateTask(ctx context.Context, id int64, in model.TaskInput) (model.Task, error) {
	op := "update task " + strconv.FormatInt(id, 10)
	env, err := c.do(ctx, op, http.MethodPut, "/api/tasks/"+strconv.FormatInt(id, 10), in.Patch(), nil)
	if err != nil {
		return model.Task{}, err
	}
	if env.Task == nil {
		return model.Task{}, &RequestError{Op: op, Err: fmt.Errorf("%w: response without task", ErrRejected)}
	}
	return *env.Task, nil
}

// DeleteTask deletes a task and reports whether the server still had it.
func (c *Client) DeleteTask(ctx context.Context, id int64) (bool, error) {
	env, err := c.do(ctx, "delete task "+strconv.FormatInt(id, 10), http.MethodDelete, "/api/tasks/"+strconv.FormatInt(id, 10), nil, nil)
	if err != nil {
		return false, err
	}
	return env.Deleted, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body any, headers map[string]string) (envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return envelope{}, &RequestError{Op: op, Err: err}
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return envelope{}, &RequestError{Op: op, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return envelope{}, &RequestError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(resp.Body).Decode(&env)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return env, &RequestError{Op: op, Status: resp.StatusCode, Err: withMessage(ErrNotFound, env.Error)}
	case resp.StatusCode >= 500:
		return env, &RequestError{Op: op, Status: resp.StatusCode, Err: withMessage(ErrServer, env.Error)}
	case resp.StatusCode >= 300:
		return env, &RequestError{Op: op, Status: resp.StatusCode, Err: withMessage(ErrRejected, env.Error)}
	case decodeErr != nil:
		return env, &RequestError{Op: op, Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", decodeErr)}
	case !env.OK:
		return env, &RequestError{Op: op, Status: resp.StatusCode, Err: withMessage(ErrRejected, env.Error)}
	}
	return env, nil
}

func withMessage(err error, msg string) error {
	if msg == "" {
		return err
	}
	return fmt.Errorf("%w: %s", err, msg)
}
