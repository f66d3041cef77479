// Package worker runs synchronization in the background: on demand, on a
// schedule, when connectivity comes back and when the server reports a change.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-sync/internal/syncer"
)

// Engine runs one synchronization cycle.
type Engine interface {
	Sync(ctx context.Context) (*syncer.Result, error)
}

// Pinger probes the server.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	// Schedule is a cron spec such as "@every 30s". Empty disables it.
	Schedule string
	// EventsURL is the websocket address of the server's change feed.
	// Empty disables the listener.
	EventsURL string

	// Reconnect bounds the delays of the connectivity watcher and of the
	// change-feed listener.
	ReconnectInitial time.Duration
	ReconnectMax     time.Duration

	// OnResult, when set, is called after every cycle.
	OnResult func(*syncer.Result, error)
}

// AutoSyncer serializes sync requests from every trigger source onto a
// single worker goroutine. Requests that arrive while one is pending are
// merged into it.
type AutoSyncer struct {
	engine Engine
	pinger Pinger
	logger *zap.Logger
	opts   Options

	triggers chan string
	watching atomic.Bool
	cron     *cron.Cron

	wg   sync.WaitGroup
	stop chan struct{}
	once sync.Once

	mu      sync.Mutex
	lastRes *syncer.Result
	lastErr error
	cycles  int
}

// NewAutoSyncer returns an AutoSyncer that drives engine; call Start to run it.
func NewAutoSyncer(engine Engine, pinger Pinger, logger *zap.Logger, opts Options) *AutoSyncer {
	if opts.ReconnectInitial <= 0 {
		opts.ReconnectInitial = time.Second
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = time.Minute
	}
	return &AutoSyncer{
		engine:   engine,
		pinger:   pinger,
		logger:   logger,
		opts:     opts,
		triggers: make(chan string, 1),
		stop:     make(chan struct{}),
	}
}

// Start launches the worker and the configured trigger sources.
func (a *AutoSyncer) Start(ctx context.Context) error {
	if a.opts.Schedule != "" {
		a.cron = cron.New()
		if _, err := a.cron.AddFunc(a.opts.Schedule, func() { a.Trigger("schedule") }); err != nil {
			return err
		}
		a.cron.Start()
	}

	a.logger.Info("starting auto-sync",
		zap.String("schedule", a.opts.Schedule),
		zap.String("events_url", a.opts.EventsURL),
	)

	a.wg.Add(1)
	go a.worker(ctx)

	if a.opts.EventsURL != "" {
		a.wg.Add(1)
		go a.listen(ctx)
	}
	return nil
}

// Stop ends every goroutine started by Start and waits for them. A cycle
// in progress is allowed to finish.
func (a *AutoSyncer) Stop() {
	a.once.Do(func() {
		a.logger.Info("stopping auto-sync...")
		if a.cron != nil {
			<-a.cron.Stop().Done()
		}
		close(a.stop)
		a.wg.Wait()
		a.logger.Info("auto-sync stopped")
	})
}

// Trigger requests a synchronization cycle without blocking.
func (a *AutoSyncer) Trigger(reason string) {
	select {
	case a.triggers <- reason:
		a.logger.Debug("sync requested", zap.String("reason", reason))
	default:
		a.logger.Debug("sync already pending", zap.String("reason", reason))
	}
}

// Status is the outcome of the most recent cycle.
type Status struct {
	Result *syncer.Result
	Err    error
	Cycles int
}

func (a *AutoSyncer) Last() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Status{Result: a.lastRes, Err: a.lastErr, Cycles: a.cycles}
}

func (a *AutoSyncer) worker(ctx context.Context) {
	defer a.wg.Done()

	for {
		select {
		case <-a.stop:
			return
		case <-ctx.Done():
			return
		case reason := <-a.triggers:
			a.runOnce(ctx, reason)
		}
	}
}

func (a *AutoSyncer) runOnce(ctx context.Context, reason string) {
	res, err := a.engine.Sync(ctx)

	a.mu.Lock()
	a.lastRes, a.lastErr = res, err
	a.cycles++
	a.mu.Unlock()

	switch {
	case errors.Is(err, syncer.ErrOffline):
		a.logger.Info("server unreachable, waiting for connectivity", zap.String("reason", reason))
		a.watchConnectivity(ctx)
	case err != nil:
		a.logger.Error("sync failed", zap.String("reason", reason), zap.Error(err))
	case res.Partial():
		a.logger.Warn("sync left records pending",
			zap.String("reason", reason),
			zap.Int("failures", len(res.Failures)),
		)
	}

	if a.opts.OnResult != nil {
		a.opts.OnResult(res, err)
	}
}

func (a *AutoSyncer) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = a.opts.ReconnectInitial
	b.MaxInterval = a.opts.ReconnectMax
	b.MaxElapsedTime = 0
	return backoff.WithContext(b, ctx)
}

// watchConnectivity probes the server with exponential backoff and requests
// a cycle once it answers. Only one watcher runs at a time.
func (a *AutoSyncer) watchConnectivity(ctx context.Context) {
	if a.pinger == nil || !a.watching.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.watching.Store(false)
		defer cancel()

		go func() {
			select {
			case <-a.stop:
				cancel()
			case <-ctx.Done():
			}
		}()

		err := backoff.Retry(func() error {
			return a.pinger.Ping(ctx)
		}, a.newBackOff(ctx))
		if err != nil {
			return
		}
		a.logger.Info("connectivity regained")
		a.Trigger("online")
	}()
}
