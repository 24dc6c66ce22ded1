package cmd

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/3leaps/casegen/pkg/view"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show file and case statistics with recent activity",
	Args:  cobra.NoArgs,
	RunE:  runDashboard,
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(cmd *cobra.Command, args []string) error {
	api, err := newAPI()
	if err != nil {
		return err
	}
	dv := view.NewDashboardView(api, viewOptions()...)
	if err := dv.Refresh(cmd.Context()); err != nil {
		return apiError("Failed to load dashboard", err)
	}
	d := dv.Data()
	if flagJSON {
		return printJSON(d)
	}

	s := d.Stats
	_, _ = fmt.Fprintf(os.Stdout, "Files: %d (%d recent)\n", s.TotalFiles, s.RecentFiles)
	_, _ = fmt.Fprintf(os.Stdout, "Cases: %d (%d recent)\n", s.TotalCases, s.RecentCases)
	printCounts("Cases by level", s.CaseStats.ByLevel)
	printCounts("Cases by status", s.CaseStats.ByStatus)
	printCounts("Files by status", s.FileStats.ByStatus)

	if len(d.RecentFiles) > 0 {
		_, _ = fmt.Fprintln(os.Stdout, "\nRecent files:")
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		for _, f := range d.RecentFiles {
			_, _ = fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", f.ID, f.Name, f.Status, formatTimestamp(f.CreatedAt))
		}
		_ = tw.Flush()
	}
	if len(d.RecentTasks) > 0 {
		_, _ = fmt.Fprintln(os.Stdout, "\nRecent tasks:")
		printTasks(d.RecentTasks)
	}
	return nil
}

func printCounts(title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	_, _ = fmt.Fprintf(os.Stdout, "\n%s:\n", title)
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for _, k := range keys {
		_, _ = fmt.Fprintf(tw, "  %s\t%d\n", valueOrDash(k), counts[k])
	}
	_ = tw.Flush()
}
