package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/casegen/internal/observability"
	"github.com/3leaps/casegen/pkg/gateway"
	"github.com/3leaps/casegen/pkg/view"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect background generation tasks",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Args:  cobra.NoArgs,
	RunE:  runTasksList,
}

var tasksGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksGet,
}

var tasksWatchCmd = &cobra.Command{
	Use:   "watch <id>",
	Short: "Poll a task until it completes or fails",
	Long: `Poll a task until it completes or fails. Every attempt is written to
stdout as a JSONL record, followed by a result record.`,
	Args: cobra.ExactArgs(1),
	RunE: runTasksWatch,
}

var tasksDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksDelete,
}

var (
	tasksType        string
	tasksStatus      string
	tasksPage        int
	tasksPageSize    int
	tasksDeleteCases bool
)

func init() {
	rootCmd.AddCommand(tasksCmd)
	tasksCmd.AddCommand(tasksListCmd, tasksGetCmd, tasksWatchCmd, tasksDeleteCmd)

	tasksListCmd.Flags().StringVar(&tasksType, "type", "", "Filter by type (generate)")
	tasksListCmd.Flags().StringVar(&tasksStatus, "status", "", "Filter by status (pending|processing|completed|failed)")
	tasksListCmd.Flags().IntVar(&tasksPage, "page", 1, "Page number")
	tasksListCmd.Flags().IntVar(&tasksPageSize, "page-size", gateway.DefaultPageSize, "Page size")

	tasksDeleteCmd.Flags().BoolVar(&tasksDeleteCases, "delete-cases", false, "Also delete the cases the task generated")
}

func newTasksView() (*view.TasksView, error) {
	api, err := newAPI()
	if err != nil {
		return nil, err
	}
	return view.NewTasksView(api, viewOptions()...), nil
}

func runTasksList(cmd *cobra.Command, args []string) error {
	tv, err := newTasksView()
	if err != nil {
		return err
	}
	tv.SetFilter(view.TaskFilter{Type: gateway.JobType(tasksType), Status: gateway.JobStatus(tasksStatus)})
	tv.SetPage(tasksPage, tasksPageSize)
	if err := tv.Refresh(cmd.Context()); err != nil {
		return apiError("Failed to list tasks", err)
	}

	items := tv.Items()
	if flagJSON {
		return printJSON(items)
	}
	if len(items) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No tasks found")
		return nil
	}
	printTasks(items)
	return nil
}

func printTasks(items []gateway.Job) {
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer func() { _ = tw.Flush() }()
	_, _ = fmt.Fprintln(tw, "TASK ID\tTYPE\tSTATUS\tPROGRESS\tCREATED\tUPDATED")
	for _, j := range items {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d%%\t%s\t%s\n",
			j.TaskID, valueOrDash(string(j.Type)), j.Status, j.Progress, formatTimestamp(j.CreatedAt), formatTimestamp(j.UpdatedAt))
	}
}

func runTasksGet(cmd *cobra.Command, args []string) error {
	tv, err := newTasksView()
	if err != nil {
		return err
	}
	job, err := tv.Get(cmd.Context(), args[0])
	if err != nil {
		return apiError("Failed to get task", err)
	}
	if flagJSON {
		return printJSON(job)
	}
	printJob(job)
	return nil
}

func printJob(job *gateway.Job) {
	_, _ = fmt.Fprintf(os.Stdout, "task_id=%s\n", job.TaskID)
	_, _ = fmt.Fprintf(os.Stdout, "type=%s\n", valueOrDash(string(job.Type)))
	_, _ = fmt.Fprintf(os.Stdout, "status=%s\n", job.Status)
	_, _ = fmt.Fprintf(os.Stdout, "progress=%d\n", job.Progress)
	if res := job.GenerateResult(); res != nil {
		_, _ = fmt.Fprintf(os.Stdout, "cases_count=%d\n", res.CasesCount)
		_, _ = fmt.Fprintf(os.Stdout, "project=%s\n", res.ProjectName)
		if res.ModuleName != "" {
			_, _ = fmt.Fprintf(os.Stdout, "module=%s\n", res.ModuleName)
		}
	}
	if job.Status == gateway.JobStatusFailed {
		_, _ = fmt.Fprintf(os.Stdout, "error=%s\n", job.FailureMessage())
	}
	_, _ = fmt.Fprintf(os.Stdout, "created_at=%s\n", formatTimestamp(job.CreatedAt))
	_, _ = fmt.Fprintf(os.Stdout, "updated_at=%s\n", formatTimestamp(job.UpdatedAt))
}

func runTasksWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	tv, err := newTasksView()
	if err != nil {
		return err
	}
	tracker, err := newTracker()
	if err != nil {
		observability.CLILogger.Debug("Job registry unavailable", zap.Error(err))
		tracker = nil
	}

	w := newJSONLWriter()
	defer func() { _ = w.Close() }()
	watch := &jobWatch{tracker: tracker, w: w}
	if _, err := watch.wait(ctx, tv, args[0]); err != nil {
		_ = w.WriteError(ctx, errorRecord(err, "", args[0]))
		return apiError("Task did not complete", err)
	}
	return nil
}

func runTasksDelete(cmd *cobra.Command, args []string) error {
	tv, err := newTasksView()
	if err != nil {
		return err
	}
	err = tv.Delete(cmd.Context(), args[0], tasksDeleteCases)
	if errors.Is(err, view.ErrNotConfirmed) {
		observability.CLILogger.Info("Aborted")
		return nil
	}
	if err != nil {
		return apiError("Failed to delete task", err)
	}

	if tracker, terr := newTracker(); terr == nil {
		_ = tracker.Store().Delete(args[0])
	}
	observability.CLILogger.Info("Deleted task " + args[0])
	return nil
}
