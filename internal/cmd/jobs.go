package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/3leaps/casegen/pkg/jobregistry"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Local record of generation jobs started from this machine",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded jobs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runJobsList,
}

var jobsPending bool

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsListCmd.Flags().BoolVar(&jobsPending, "pending", false, "Only jobs that have not reached a terminal state")
}

func runJobsList(cmd *cobra.Command, _ []string) error {
	dir, err := registryDir()
	if err != nil {
		return err
	}
	store := jobregistry.NewStore(dir)

	var jobs []jobregistry.JobRecord
	if jobsPending {
		jobs, err = store.Pending()
	} else {
		jobs, err = store.List()
	}
	if err != nil {
		return err
	}

	if flagJSON {
		if jobs == nil {
			jobs = []jobregistry.JobRecord{}
		}
		return printJSON(jobs)
	}
	if len(jobs) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No jobs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = w.Flush() }()

	_, _ = fmt.Fprintln(w, "JOB ID\tSTATE\tPROJECT\tMODULE\tFILE\tCASES\tSTARTED\tENDED")
	for _, j := range jobs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			j.JobID,
			j.State,
			valueOrDash(j.Project),
			valueOrDash(j.Module),
			valueOrDash(j.FileName),
			j.CasesCount,
			j.CreatedAt.Local().Format(time.DateTime),
			formatOptionalTime(j.EndedAt),
		)
	}
	return nil
}

func formatOptionalTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
