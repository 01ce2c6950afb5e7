package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rhuss/routeway/pkg/storage"
)

var errNoStore = errors.New("transcript storage is disabled; set storage.type to memory or postgres")

func newTranscriptsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcripts",
		Short: "Inspect recorded exchanges",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			if a.store == nil {
				return errNoStore
			}
			return nil
		},
	}

	var opts storage.ListOptions
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded transcripts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			page, err := a.store.List(a.scoped(cmd.Context()), opts)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tMODEL\tSTREAM\tSTATUS\tCREATED")
			for _, t := range page.Data {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%d\t%s\n", t.ID, t.Model, t.Stream, t.StatusCode, t.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if page.HasMore {
				fmt.Fprintf(cmd.OutOrStdout(), "more results: --after %s\n", page.LastID)
			}
			return nil
		},
	}
	lf := list.Flags()
	lf.StringVarP(&opts.Model, "model", "m", "", "only transcripts for this model")
	lf.StringVar(&opts.After, "after", "", "cursor: list transcripts after this ID")
	lf.StringVar(&opts.Before, "before", "", "cursor: list transcripts before this ID")
	lf.IntVar(&opts.Limit, "limit", 20, "page size (max 100)")
	lf.StringVar(&opts.Order, "order", "desc", "asc or desc by creation time")

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Print one transcript as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.store.Get(a.scoped(cmd.Context()), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), t)
		},
	}

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete one transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.store.Delete(a.scoped(cmd.Context()), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, get, del)
	return cmd
}
