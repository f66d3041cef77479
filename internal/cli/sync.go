package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/BuzzLyutic/task-sync/internal/syncer"
)

func (a *app) syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Synchronize with the server now",
		Args:  cobra.NoArgs,
		RunE: a.withStore(func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			res, err := a.engine.Sync(cmd.Context())
			if errors.Is(err, syncer.ErrOffline) {
				pending, lerr := a.pending(cmd)
				if lerr != nil {
					return lerr
				}
				fmt.Fprintf(out, "offline: %d changes waiting for %s\n", pending, a.cfg.ServerURL)
				return nil
			}
			if err != nil {
				return err
			}

			writeResult(out, res)
			if res.Partial() {
				return fmt.Errorf("%d tasks could not be synchronized", len(res.Failures))
			}
			return nil
		}),
	}
}

// pending counts records with unsynchronized changes, tombstones included.
func (a *app) pending(cmd *cobra.Command) (int, error) {
	records, err := a.store.ListAll(cmd.Context())
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range records {
		if r.Dirty() {
			n++
		}
	}
	return n, nil
}
