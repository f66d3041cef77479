package cli

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BuzzLyutic/task-sync/internal/device"
	"github.com/BuzzLyutic/task-sync/internal/localstore"
	"github.com/BuzzLyutic/task-sync/internal/model"
)

func (a *app) taskCommands() []*cobra.Command {
	return []*cobra.Command{
		a.addCmd(),
		a.listCmd(),
		a.editCmd(),
		a.completeCmd("done", true),
		a.completeCmd("undone", false),
		a.rmCmd(),
	}
}

// taskFields are the flags shared by add and edit.
type taskFields struct {
	title       string
	description string
	lat, lon    float64
	photo       string
}

func (f *taskFields) register(cmd *cobra.Command, withTitle bool) {
	if withTitle {
		cmd.Flags().StringVar(&f.title, "title", "", "New title")
	}
	cmd.Flags().StringVarP(&f.description, "description", "d", "", "Description")
	cmd.Flags().Float64Var(&f.lat, "lat", 0, "Latitude")
	cmd.Flags().Float64Var(&f.lon, "lon", 0, "Longitude")
	cmd.Flags().StringVar(&f.photo, "photo", "", "Image file to attach")
	cmd.MarkFlagsRequiredTogether("lat", "lon")
}

// patch returns the fields whose flags were set on cmd.
func (f *taskFields) patch(cmd *cobra.Command) (model.TaskPatch, error) {
	var p model.TaskPatch
	flags := cmd.Flags()

	if flags.Changed("title") {
		p.Title = &f.title
	}
	if flags.Changed("description") {
		p.Description = &f.description
	}
	if flags.Changed("lat") {
		p.Location = &model.Location{Lat: f.lat, Lon: f.lon}
	}
	if flags.Changed("photo") {
		photo, err := photoDataURL(f.photo)
		if err != nil {
			return p, err
		}
		p.Photo = &photo
	}
	return p, nil
}

// photoDataURL reads an image file into a data URL.
func photoDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read photo: %w", err)
	}
	mime, _, _ := strings.Cut(http.DetectContentType(data), ";")
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func (a *app) addCmd() *cobra.Command {
	var f taskFields

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.withStore(func(cmd *cobra.Command, args []string) error {
			p, err := f.patch(cmd)
			if err != nil {
				return err
			}

			in := model.TaskInput{
				Title:    strings.Join(args, " "),
				Location: p.Location,
				Photo:    p.Photo,
			}
			if p.Description != nil {
				in.Description = *p.Description
			}

			rec, err := a.tasks.Create(cmd.Context(), in)
			if err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", shortID(rec.ID))
			return a.afterChange(cmd)
		}),
	}
	f.register(cmd, false)
	return cmd
}

func (a *app) editCmd() *cobra.Command {
	var f taskFields

	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a task",
		Args:  cobra.ExactArgs(1),
		RunE: a.withStore(func(cmd *cobra.Command, args []string) error {
			id, err := a.resolveID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			p, err := f.patch(cmd)
			if err != nil {
				return err
			}
			if p == (model.TaskPatch{}) {
				return errors.New("nothing to change")
			}

			if _, err := a.tasks.Edit(cmd.Context(), id, p); err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", shortID(id))
			return a.afterChange(cmd)
		}),
	}
	f.register(cmd, true)
	return cmd
}

func (a *app) completeCmd(use string, completed bool) *cobra.Command {
	short := "Mark a task as done"
	if !completed {
		short = "Mark a task as not done"
	}

	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: a.withStore(func(cmd *cobra.Command, args []string) error {
			id, err := a.resolveID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if _, err := a.tasks.SetCompleted(cmd.Context(), id, completed); err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated %s\n", shortID(id))
			return a.afterChange(cmd)
		}),
	}
}

func (a *app) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: a.withStore(func(cmd *cobra.Command, args []string) error {
			id, err := a.resolveID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := a.tasks.Delete(cmd.Context(), id); err != nil {
				return describe(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", shortID(id))
			return a.afterChange(cmd)
		}),
	}
}

func (a *app) listCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List tasks, newest first",
		Args:    cobra.NoArgs,
		RunE: a.withStore(func(cmd *cobra.Command, args []string) error {
			records, err := a.tasks.List(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), records)
			}
			writeTaskTable(cmd.OutOrStdout(), records)
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print records as JSON")
	return cmd
}

// resolveID accepts a full client id, a bare server id, or a unique prefix
// of a local token.
func (a *app) resolveID(ctx context.Context, arg string) (model.ClientID, error) {
	if id, err := model.ParseClientID(arg); err == nil {
		return id, nil
	}
	if n, err := strconv.ParseInt(arg, 10, 64); err == nil && n > 0 {
		return model.RemoteID(n), nil
	}

	records, err := a.store.ListAll(ctx)
	if err != nil {
		return model.ClientID{}, err
	}

	var matches []model.ClientID
	for _, r := range records {
		if r.ID.IsLocal() && strings.HasPrefix(r.ID.Token(), arg) {
			matches = append(matches, r.ID)
		}
	}

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return model.ClientID{}, fmt.Errorf("no task matches %q", arg)
	default:
		return model.ClientID{}, fmt.Errorf("%q matches %d tasks", arg, len(matches))
	}
}

func describe(err error) error {
	switch {
	case errors.Is(err, device.ErrValidation):
		return errors.New("title required")
	case errors.Is(err, localstore.ErrNotFound):
		return errors.New("task not found")
	case errors.Is(err, device.ErrDeleted):
		return errors.New("task is deleted")
	}
	return err
}
