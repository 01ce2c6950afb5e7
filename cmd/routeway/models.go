package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newModelsCommand(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List or inspect available models",
	}
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print raw JSON")

	list := &cobra.Command{
		Use:   "list",
		Short: "List available models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			models, err := a.client.ListModels(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), models)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tOWNED BY\tCREATED")
			for _, m := range models.Data {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", m.ID, m.OwnedBy, formatCreated(m.Created))
			}
			return tw.Flush()
		},
	}

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Show one model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.client.RetrieveModel(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), m)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "id:       %s\nowned_by: %s\ncreated:  %s\n", m.ID, m.OwnedBy, formatCreated(m.Created))
			return nil
		},
	}

	cmd.AddCommand(list, get)
	return cmd
}

func formatCreated(unix int64) string {
	if unix == 0 {
		return "-"
	}
	return time.Unix(unix, 0).UTC().Format(time.DateOnly)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
