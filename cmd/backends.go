package cmd

import (
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/camkit/camsink/internal/encoders"
)

// CreateBackendsCmd creates the backends command.
func CreateBackendsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List available encoder backends",
		Long:  `Prints the JPEG encoder backends this build can select, with the worker limit of each.`,
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Backend", "Max Workers"})
			for _, d := range encoders.Available() {
				limit := "unlimited"
				if d.MaxInstances > 0 {
					limit = strconv.Itoa(d.MaxInstances)
				}
				t.AppendRow(table.Row{d.Name, limit})
			}
			t.Render()
		},
	}
}
