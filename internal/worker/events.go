package worker

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-sync/internal/notify"
)

// listen follows the server's change feed and requests a cycle for every
// task event. Lost connections are re-dialed with exponential backoff.
func (a *AutoSyncer) listen(ctx context.Context) {
	defer a.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-a.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	b := a.newBackOff(ctx)
	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, a.opts.EventsURL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.logger.Debug("change feed unavailable", zap.Error(err))
		} else {
			b.Reset()
			a.logger.Info("subscribed to change feed", zap.String("url", a.opts.EventsURL))
			// Events may have been missed while disconnected.
			a.Trigger("feed connected")
			a.consume(ctx, conn)
		}

		delay := b.NextBackOff()
		if delay < 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (a *AutoSyncer) consume(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		var ev notify.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() == nil {
				a.logger.Debug("change feed closed", zap.Error(err))
			}
			return
		}

		switch ev.Type {
		case notify.EventCreated, notify.EventUpdated, notify.EventDeleted:
			a.Trigger(string(ev.Type))
		case notify.EventMessage:
			a.logger.Info("server notification", zap.String("title", ev.Title), zap.String("body", ev.Body))
		}
	}
}
