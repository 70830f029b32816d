package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ayusman/camgestures/internal/app"
	"github.com/ayusman/camgestures/internal/store"
)

func newGesturesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "gestures",
		Short: "List the gestures a run would train, in label order",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.New(opts.cfg.Store.Path)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			a, err := app.New(app.Config{Settings: opts.cfg, Store: st, Logger: opts.logger})
			if err != nil {
				return err
			}
			gestures, err := a.ResolveGestures()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "LABEL\tEVENT\tNAME\tACCURACY\tFIRE ONCE\tTHROTTLE")
			for i, g := range gestures {
				fmt.Fprintf(w, "%d\t%s\t%s\t%.0f%%\t%t\t%t\n", i, g.Event, g.Name, g.RequiredAccuracy, g.FireOnce, g.Throttle)
			}
			return w.Flush()
		},
	}
}
