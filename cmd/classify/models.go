package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// modelsCommand loads every configured model and prints its tensor layout.
func modelsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List configured models",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.load(cmd.Context()); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tBACKEND\tINPUT\tOUTPUT\tCLASSES\tWEIGHTS")
			for _, m := range a.registry.Models() {
				fmt.Fprintf(w, "%s\t%s\t%dx%d %s\t%s\t%d\t%s\n",
					m.ID, m.Backend, m.InputSide(), m.InputSide(), m.InputEncoding(), m.OutputEncoding(), m.OutputSize(), m.Config.WeightsPath)
			}
			return w.Flush()
		},
	}
}
