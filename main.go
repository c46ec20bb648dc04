package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/camkit/camsink/cmd"
	"github.com/camkit/camsink/internal/version"
)

func main() {
	info := version.Get()

	root := &cobra.Command{
		Use:   "camsink",
		Short: "Shared-memory camera frame tools",
		Long: `camsink moves camera frames between processes through named shared-memory sinks: ` +
			`publish test frames, dump frames to a file or pipe, or re-encode them as JPEG.`,
		Version:       version.String(),
		SilenceErrors: true,
	}
	root.SetVersionTemplate(fmt.Sprintf("camsink %s (commit %s, built %s, %s)\n",
		info.Version, info.GitCommit, info.BuildDate, info.Platform))

	root.AddCommand(cmd.CreateSourceCmd())
	root.AddCommand(cmd.CreateDumpCmd())
	root.AddCommand(cmd.CreateEncodeCmd())
	root.AddCommand(cmd.CreateBackendsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
