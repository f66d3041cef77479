package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"

	"github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BuzzLyutic/task-sync/internal/model"
	"github.com/BuzzLyutic/task-sync/internal/syncer"
	"github.com/BuzzLyutic/task-sync/internal/worker"
)

func (a *app) daemonCmd() *cobra.Command {
	var noEvents bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Keep the task list synchronized in the background",
		Long: `daemon holds the local store open and synchronizes on the configured
schedule, when the server comes back online, and when the server reports a
change. Task commands (add, list, edit, done, undone, rm, sync) can be typed
on standard input, one per line; "exit" ends the session.`,
		Args: cobra.NoArgs,
		RunE: a.withStore(func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			out := &lockedWriter{w: cmd.OutOrStdout()}

			opts := worker.Options{
				Schedule: a.cfg.SyncSchedule,
				OnResult: func(res *syncer.Result, err error) {
					switch {
					case errors.Is(err, syncer.ErrOffline):
						fmt.Fprintln(out, "offline: waiting for the server")
					case err != nil:
						fmt.Fprintf(out, "sync failed: %v\n", err)
					default:
						writeResult(out, res)
					}
				},
			}
			if a.cfg.WatchEvents && !noEvents {
				opts.EventsURL = a.cfg.EventsURL()
			}

			a.auto = worker.NewAutoSyncer(a.engine, a.client, a.logger, opts)
			if err := a.auto.Start(ctx); err != nil {
				return fmt.Errorf("start auto-sync: %w", err)
			}
			defer func() {
				a.auto.Stop()
				a.auto = nil
				a.tasks.OnChange = nil
			}()

			a.tasks.OnChange = func(model.ClientID) { a.auto.Trigger("local change") }
			a.auto.Trigger("startup")

			a.logger.Info("daemon running",
				zap.String("server", a.cfg.ServerURL),
				zap.String("store", a.cfg.StorePath()),
			)

			lines := scanLines(ctx, cmd.InOrStdin())
			for {
				select {
				case <-ctx.Done():
					return nil
				case line, ok := <-lines:
					if !ok {
						lines = nil
						continue
					}
					if quit := a.runLine(cmd, out, line); quit {
						return nil
					}
				}
			}
		}),
	}
	cmd.Flags().BoolVar(&noEvents, "no-events", false, "Do not listen to the server change feed")
	return cmd
}

// runLine executes one command typed into the daemon session.
func (a *app) runLine(parent *cobra.Command, out io.Writer, line string) (quit bool) {
	args, err := splitLine(line)
	if err != nil {
		fmt.Fprintln(out, "Error:", err)
		return false
	}
	if len(args) == 0 {
		return false
	}
	if args[0] == "exit" || args[0] == "quit" {
		return true
	}

	sh := &cobra.Command{
		Use:           "tasksync",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	sh.AddCommand(a.taskCommands()...)
	sh.AddCommand(a.syncCmd())
	sh.SetArgs(args)
	sh.SetOut(out)
	sh.SetErr(out)

	if err := sh.ExecuteContext(parent.Context()); err != nil {
		fmt.Fprintln(out, "Error:", err)
	}
	return false
}

func scanLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// splitLine splits a typed command with shell quoting rules. Shell operators
// are rejected instead of silently dropping the rest of the line.
func splitLine(line string) ([]string, error) {
	p := shellwords.NewParser()
	args, err := p.Parse(line)
	if err != nil {
		return nil, err
	}
	if p.Position >= 0 {
		return nil, fmt.Errorf("shell operators are not supported: %s", line)
	}
	return args, nil
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
