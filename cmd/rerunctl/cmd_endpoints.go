package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/user/rerunctl/internal/endpoint"
	"github.com/user/rerunctl/internal/types"
)

func init() {
	rootCmd.AddCommand(endpointsCmd)
}

var endpointsCmd = &cobra.Command{
	Use:   "endpoints",
	Short: "Print the resolved backend endpoints",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		store, err := openState(cfg)
		if err != nil {
			return err
		}
		return printEndpoints(os.Stdout, newResolver(cfg), store.RecordingID())
	},
}

// printEndpoints writes one row per operation. Scoped operations show a
// placeholder while no recording is bound.
func printEndpoints(out io.Writer, r *endpoint.Resolver, id types.RecordingID) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "OPERATION\tKIND\tURL")
	for _, op := range endpoint.Operations {
		url, err := r.ResolveChecked(op, id)
		if err != nil {
			url = warnColor("(no recording bound)")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", op, endpoint.Catalog[op].Kind, url)
	}
	return w.Flush()
}
