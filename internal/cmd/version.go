package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v := crucible.GetVersion()
		if flagJSON {
			return printJSON(map[string]string{
				"version":    versionInfo.Version,
				"commit":     versionInfo.Commit,
				"build_date": versionInfo.BuildDate,
				"go":         runtime.Version(),
				"crucible":   v.Crucible,
				"gofulmen":   v.Gofulmen,
			})
		}
		_, _ = fmt.Fprintf(os.Stdout, "casegen %s (commit %s, built %s)\n", versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
		_, _ = fmt.Fprintf(os.Stdout, "%s %s/%s, gofulmen %s, crucible %s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH, v.Gofulmen, v.Crucible)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
