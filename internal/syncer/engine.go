// Package syncer reconciles the device's local store with the Remote Task API.
//
// A cycle runs three phases strictly in order: push creations, push
// updates and deletions, pull. Each phase processes every eligible record
// before the next starts; a phase that leaves any record failed stops the
// cycle, and the failures are reported in the Result.
package syncer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BuzzLyutic/task-sync/internal/localstore"
	"github.com/BuzzLyutic/task-sync/internal/model"
	"github.com/BuzzLyutic/task-sync/internal/remote"
)

// RemoteAPI is the server contract the engine consumes.
type RemoteAPI interface {
	Ping(ctx context.Context) error
	ListTasks(ctx context.Context) ([]model.Task, error)
	CreateTask(ctx context.Context, in model.TaskInput, idempotencyKey string) (model.Task, error)
	UpdateTask(ctx context.Context, id int64, in model.TaskInput) (model.Task, error)
	DeleteTask(ctx context.Context, id int64) (bool, error)
}

// Engine runs synchronization cycles. At most one cycle is in flight per
// engine; concurrent Sync calls share the running cycle's outcome.
type Engine struct {
	store   localstore.Store
	remote  RemoteAPI
	logger  *zap.Logger
	metrics *Metrics

	flight singleflight.Group
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics sets the instruments the engine records to.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine returns an Engine that reconciles store with the server behind api.
func NewEngine(store localstore.Store, api RemoteAPI, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		remote: api,
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics, _ = NewMetrics(nil)
	}
	return e
}

// Sync runs one synchronization cycle.
//
// The returned error is non-nil only when the cycle was aborted: an
// OfflineError before anything was pushed, a localstore.StorageError, or the
// context's error. Per-record failures are reported in the Result and leave
// the records queued for the next cycle.
func (e *Engine) Sync(ctx context.Context) (*Result, error) {
	v, err, shared := e.flight.Do("sync", func() (any, error) {
		return e.run(ctx)
	})
	if shared {
		e.logger.Debug("sync request coalesced with in-flight cycle")
	}
	res, _ := v.(*Result)
	if res == nil {
		res = &Result{}
	}
	return res, err
}

func (e *Engine) run(ctx context.Context) (*Result, error) {
	start := time.Now()
	res := &Result{LastPhase: PhaseProbe}

	err := e.runPhases(ctx, res)
	res.Duration = time.Since(start)

	outcome := "synced"
	switch {
	case errors.Is(err, ErrOffline):
		outcome = "offline"
	case err != nil:
		outcome = "aborted"
	case res.Partial():
		outcome = "partial"
	}
	e.metrics.cycle(ctx, outcome, res.Duration.Seconds())

	fields := []zap.Field{
		zap.String("outcome", outcome),
		zap.Stringer("last_phase", res.LastPhase),
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("deleted", res.Deleted),
		zap.Int("pulled", res.Pulled),
		zap.Int("removed", res.Removed),
		zap.Int("failures", len(res.Failures)),
		zap.Duration("took", res.Duration),
	}
	if err != nil {
		e.logger.Warn("sync aborted", append(fields, zap.Error(err))...)
	} else {
		e.logger.Info("sync finished", fields...)
	}
	return res, err
}

func (e *Engine) runPhases(ctx context.Context, res *Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.remote.Ping(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &OfflineError{Err: err}
	}

	phases := []struct {
		phase Phase
		run   func(context.Context, *Result) error
	}{
		{PhaseCreate, e.pushCreates},
		{PhaseMutate, e.pushMutations},
		{PhasePull, e.pull},
	}

	for _, p := range phases {
		res.LastPhase = p.phase
		failed := len(res.Failures)

		if err := p.run(ctx, res); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(res.Failures) > failed {
			e.logger.Info("phase left records pending, stopping cycle",
				zap.Stringer("phase", p.phase),
				zap.Int("failures", len(res.Failures)-failed),
			)
			return nil
		}
	}
	return nil
}

// pushCreates sends every local-only record to the server and swaps its key
// for the server-assigned one.
func (e *Engine) pushCreates(ctx context.Context, res *Result) error {
	records, err := e.store.ListAll(ctx)
	if err != nil {
		return err
	}

	for _, r := range records {
		if !r.ID.IsLocal() || r.Deleted() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		task, err := e.remote.CreateTask(ctx, r.Input(), r.ID.Token())
		if err != nil {
			e.recordFailure(ctx, res, r.ID, PhaseCreate, err)
			continue
		}

		next, err := e.store.ReplaceFunc(ctx, r.ID, func(cur model.Record, found bool) (model.Record, error) {
			return adoptCreated(r, cur, found, task), nil
		})
		if err != nil {
			return err
		}

		res.Created++
		e.metrics.record(ctx, PhaseCreate, "ok")
		e.logger.Debug("task created on server",
			zap.String("local_id", r.ID.String()),
			zap.String("client_id", next.ID.String()),
			zap.Stringer("state", next.State),
		)
	}
	return nil
}

// adoptCreated builds the server-keyed record that replaces pushed once the
// server has acknowledged its creation. cur is the local row as it is now;
// edits made while the request was in flight are kept and stay dirty, and a
// row deleted meanwhile turns into a tombstone for the new server task.
func adoptCreated(pushed, cur model.Record, found bool, task model.Task) model.Record {
	next := model.FromServer(task)
	switch {
	case !found:
		next.State = model.StateTombstoned
		next.Rev = pushed.Rev + 1
	case cur.Rev != pushed.Rev:
		next.SetInput(cur.Input())
		next.State = model.StateLocallyDirty
		next.Rev = cur.Rev
	default:
		next.Rev = cur.Rev
	}
	return next
}

// pushMutations flushes tombstones and local edits of server-known records.
func (e *Engine) pushMutations(ctx context.Context, res *Result) error {
	records, err := e.store.ListAll(ctx)
	if err != nil {
		return err
	}

	for _, r := range records {
		serverID, ok := r.ServerID()
		if !ok || !r.Dirty() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		switch r.State {
		case model.StateTombstoned:
			if err := e.pushDelete(ctx, res, r, serverID); err != nil {
				return err
			}
		case model.StateLocallyDirty:
			if err := e.pushUpdate(ctx, res, r, serverID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) pushDelete(ctx context.Context, res *Result, r model.Record, serverID int64) error {
	_, err := e.remote.DeleteTask(ctx, serverID)
	if err != nil && !errors.Is(err, remote.ErrNotFound) {
		e.recordFailure(ctx, res, r.ID, PhaseMutate, err)
		return nil
	}

	if _, err := e.store.DeleteIf(ctx, r.ID, model.Record.Deleted); err != nil {
		return err
	}

	res.Deleted++
	e.metrics.record(ctx, PhaseMutate, "deleted")
	e.logger.Debug("task deleted on server", zap.Int64("server_id", serverID))
	return nil
}

func (e *Engine) pushUpdate(ctx context.Context, res *Result, r model.Record, serverID int64) error {
	task, err := e.remote.UpdateTask(ctx, serverID, r.Input())
	if errors.Is(err, remote.ErrNotFound) {
		return e.recreate(ctx, res, r)
	}
	if err != nil {
		e.recordFailure(ctx, res, r.ID, PhaseMutate, err)
		return nil
	}

	_, err = e.store.Update(ctx, r.ID, func(cur *model.Record) error {
		// Edited again while the request was in flight: keep it dirty.
		if cur.Rev != r.Rev || cur.State != model.StateLocallyDirty {
			return localstore.ErrSkip
		}
		next := model.FromServer(task)
		next.Rev = cur.Rev
		*cur = next
		return nil
	})
	if err != nil && !errors.Is(err, localstore.ErrNotFound) {
		return err
	}

	res.Updated++
	e.metrics.record(ctx, PhaseMutate, "updated")
	e.logger.Debug("task updated on server", zap.Int64("server_id", serverID))
	return nil
}

// recreate handles an edit to a task the server no longer has. The edit is
// kept by turning the row back into a local-only record, which the next
// cycle creates again.
func (e *Engine) recreate(ctx context.Context, res *Result, r model.Record) error {
	_, err := e.store.ReplaceFunc(ctx, r.ID, func(cur model.Record, found bool) (model.Record, error) {
		if !found || cur.Deleted() {
			return model.Record{}, localstore.ErrSkip
		}
		next := cur
		next.ID = model.NewLocalID()
		next.State = model.StateLocalNew
		next.Rev = cur.Rev + 1
		return next, nil
	})
	if errors.Is(err, localstore.ErrSkip) {
		return nil
	}
	if err != nil {
		return err
	}

	res.Recreated++
	e.metrics.record(ctx, PhaseMutate, "recreated")
	e.logger.Info("task missing on server, queued for re-creation", zap.String("client_id", r.ID.String()))
	return nil
}

// pull mirrors the server's list locally. Rows with unsynced local changes
// and local-only rows are never overwritten; clean mirrors of tasks the
// server no longer has are removed.
func (e *Engine) pull(ctx context.Context, res *Result) error {
	tasks, err := e.remote.ListTasks(ctx)
	if err != nil {
		e.recordFailure(ctx, res, model.ClientID{}, PhasePull, err)
		return nil
	}

	onServer := make(map[int64]struct{}, len(tasks))
	for _, t := range tasks {
		onServer[t.ID] = struct{}{}

		applied, err := e.upsertClean(ctx, t)
		if err != nil {
			return err
		}
		if applied {
			res.Pulled++
			e.metrics.record(ctx, PhasePull, "pulled")
		} else {
			res.Skipped++
			e.metrics.record(ctx, PhasePull, "skipped")
		}
	}

	records, err := e.store.ListAll(ctx)
	if err != nil {
		return err
	}
	for _, r := range records {
		id, ok := r.ServerID()
		if !ok {
			continue
		}
		if _, exists := onServer[id]; exists {
			continue
		}

		removed, err := e.store.DeleteIf(ctx, r.ID, func(cur model.Record) bool {
			return cur.State == model.StateSynced
		})
		if err != nil {
			return err
		}
		if removed {
			res.Removed++
			e.metrics.record(ctx, PhasePull, "removed")
			e.logger.Debug("stale task removed", zap.Int64("server_id", id))
		}
	}
	return nil
}

func (e *Engine) upsertClean(ctx context.Context, t model.Task) (bool, error) {
	applied := true
	_, err := e.store.Update(ctx, model.RemoteID(t.ID), func(cur *model.Record) error {
		if cur.Dirty() {
			applied = false
			return localstore.ErrSkip
		}
		next := model.FromServer(t)
		next.Rev = cur.Rev
		*cur = next
		return nil
	})
	if errors.Is(err, localstore.ErrNotFound) {
		err = e.store.Put(ctx, model.FromServer(t))
	}
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (e *Engine) recordFailure(ctx context.Context, res *Result, id model.ClientID, phase Phase, err error) {
	res.fail(id, phase, err)
	e.metrics.record(ctx, phase, "failed")
	e.logger.Warn("record left pending",
		zap.Stringer("phase", phase),
		zap.String("client_id", id.String()),
		zap.Error(err),
	)
}
