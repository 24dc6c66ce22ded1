package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/casegen/internal/observability"
	"github.com/3leaps/casegen/pkg/gateway"
	"github.com/3leaps/casegen/pkg/match"
	"github.com/3leaps/casegen/pkg/output"
	"github.com/3leaps/casegen/pkg/view"
)

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "Upload and manage requirement archives",
}

var filesUploadCmd = &cobra.Command{
	Use:   "upload <path|glob>...",
	Short: "Upload requirement archives",
	Long: `Upload requirement archives. Arguments may be files, directories or
doublestar globs; directories are walked recursively.

Progress is written to stdout as JSONL records.

Examples:
  casegen files upload spec.zip
  casegen files upload 'docs/**/*.zip' --exclude '**/old/**'
  casegen files upload spec.zip --generate --project Shop --module cart --wait`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFilesUpload,
}

var filesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List uploaded files",
	Args:  cobra.NoArgs,
	RunE:  runFilesList,
}

var filesGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one uploaded file",
	Args:  cobra.ExactArgs(1),
	RunE:  runFilesGet,
}

var filesDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete uploaded files",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFilesDelete,
}

var (
	filesExcludes      []string
	filesIncludeHidden bool
	filesGenerate      bool
	filesProject       string
	filesModule        string
	filesWait          bool

	filesStatus   string
	filesPage     int
	filesPageSize int
)

func init() {
	rootCmd.AddCommand(filesCmd)
	filesCmd.AddCommand(filesUploadCmd, filesListCmd, filesGetCmd, filesDeleteCmd)

	filesUploadCmd.Flags().StringArrayVar(&filesExcludes, "exclude", nil, "Exclude glob pattern (repeatable)")
	filesUploadCmd.Flags().BoolVar(&filesIncludeHidden, "include-hidden", false, "Include dotfiles when walking directories")
	filesUploadCmd.Flags().BoolVar(&filesGenerate, "generate", false, "Start case generation for every uploaded file")
	filesUploadCmd.Flags().StringVar(&filesProject, "project", "", "Project name for generation")
	filesUploadCmd.Flags().StringVar(&filesModule, "module", "", "Module name for generation")
	filesUploadCmd.Flags().BoolVar(&filesWait, "wait", false, "Wait for generation to finish")

	filesListCmd.Flags().StringVar(&filesStatus, "status", "", "Filter by status (pending|processing|completed|failed)")
	filesListCmd.Flags().IntVar(&filesPage, "page", 1, "Page number")
	filesListCmd.Flags().IntVar(&filesPageSize, "page-size", gateway.DefaultPageSize, "Page size")
}

func runFilesUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := currentConfig()

	if filesGenerate && filesProject == "" {
		return exitError(foundry.ExitInvalidArgument, "--generate requires --project", errors.New("project name is required"))
	}

	filter, err := match.NewFilterFromConfig(&cfg.Upload.Filter)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid upload filter", err)
	}
	sel, err := match.Expand(args, match.ExpandOptions{
		Excludes:      append(append([]string{}, cfg.Upload.Excludes...), filesExcludes...),
		IncludeHidden: filesIncludeHidden || cfg.Upload.IncludeHidden,
		Filter:        filter,
	})
	if sel != nil {
		for _, s := range sel.Skipped {
			observability.CLILogger.Info("Skipped", zap.String("path", s.Path), zap.String("reason", s.Reason))
		}
	}
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "No files to upload", err)
	}

	api, err := newAPI()
	if err != nil {
		return err
	}
	fv := view.NewFilesView(api, viewOptions()...)
	tv := view.NewTasksView(api, viewOptions()...)

	w := newJSONLWriter()
	defer func() { _ = w.Close() }()

	var watch *jobWatch
	if filesGenerate {
		tracker, err := newTracker()
		if err != nil {
			observability.CLILogger.Warn("Job registry unavailable", zap.Error(err))
		}
		watch = &jobWatch{tracker: tracker, w: w}
	}

	start := time.Now()
	sum := output.SummaryRecord{}
	for _, c := range sel.Files {
		item, err := uploadOne(cmd, fv, c.Path)
		if err != nil {
			sum.Errors++
			_ = w.WriteError(ctx, errorRecord(err, c.Path, ""))
			continue
		}
		sum.Files++
		_ = w.WriteFile(ctx, &output.FileRecord{
			Path:   c.Path,
			FileID: item.ID,
			Name:   item.Name,
			Size:   c.Size,
			Status: string(item.Status),
		})

		if watch == nil {
			continue
		}
		req := gateway.GenerateRequest{FileID: item.ID, ProjectName: filesProject, ModuleName: filesModule}
		jobID, err := fv.StartGeneration(ctx, req)
		if err != nil {
			sum.Errors++
			_ = w.WriteError(ctx, errorRecord(err, c.Path, ""))
			continue
		}
		sum.Jobs++
		if watch.tracker != nil {
			watch.tracker.Started(jobID, req, item.Name)
		}
		if !filesWait {
			_ = w.WriteJob(ctx, &output.JobRecord{JobID: jobID, Status: string(gateway.JobStatusPending)})
			continue
		}
		job, err := watch.wait(ctx, tv, jobID)
		if err != nil {
			sum.Errors++
			_ = w.WriteError(ctx, errorRecord(err, c.Path, jobID))
			continue
		}
		if res := job.GenerateResult(); res != nil {
			sum.Cases += res.CasesCount
		}
	}

	sum.Duration = time.Since(start)
	sum.DurationHuman = sum.Duration.Round(time.Millisecond).String()
	if err := w.WriteSummary(ctx, &sum); err != nil {
		return err
	}
	if sum.Errors > 0 {
		return exitError(foundry.ExitExternalServiceUnavailable, "Upload finished with errors",
			fmt.Errorf("%d of %d files failed", sum.Errors, len(sel.Files)))
	}
	return nil
}

func uploadOne(cmd *cobra.Command, fv *view.FilesView, path string) (*gateway.FileItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return fv.Upload(cmd.Context(), filepath.Base(path), f)
}

func runFilesList(cmd *cobra.Command, args []string) error {
	api, err := newAPI()
	if err != nil {
		return err
	}
	fv := view.NewFilesView(api, viewOptions()...)
	fv.SetStatus(gateway.FileStatus(filesStatus))
	fv.SetPage(filesPage, filesPageSize)
	if err := fv.Refresh(cmd.Context()); err != nil {
		return apiError("Failed to list files", err)
	}

	if flagJSON {
		return printJSON(gateway.Page[gateway.FileItem]{Total: fv.Total(), Items: fv.Items()})
	}
	items := fv.Items()
	if len(items) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No files found")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSTATUS\tCREATED")
	for _, f := range items {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", f.ID, f.Name, valueOrDash(f.Type), f.Status, formatTimestamp(f.CreatedAt))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(os.Stdout, "\n%d of %d files (page %d)\n", len(items), fv.Total(), filesPage)
	return nil
}

func runFilesGet(cmd *cobra.Command, args []string) error {
	api, err := newAPI()
	if err != nil {
		return err
	}
	item, err := view.NewFilesView(api, viewOptions()...).Get(cmd.Context(), args[0])
	if err != nil {
		return apiError("Failed to get file", err)
	}
	if flagJSON {
		return printJSON(item)
	}
	_, _ = fmt.Fprintf(os.Stdout, "id=%s\n", item.ID)
	_, _ = fmt.Fprintf(os.Stdout, "name=%s\n", item.Name)
	_, _ = fmt.Fprintf(os.Stdout, "status=%s\n", item.Status)
	if item.Type != "" {
		_, _ = fmt.Fprintf(os.Stdout, "type=%s\n", item.Type)
	}
	if item.Error != "" {
		_, _ = fmt.Fprintf(os.Stdout, "error=%s\n", item.Error)
	}
	_, _ = fmt.Fprintf(os.Stdout, "created_at=%s\n", formatTimestamp(item.CreatedAt))
	return nil
}

func runFilesDelete(cmd *cobra.Command, args []string) error {
	api, err := newAPI()
	if err != nil {
		return err
	}
	result, err := view.NewFilesView(api, viewOptions()...).Delete(cmd.Context(), args...)
	if errors.Is(err, view.ErrNotConfirmed) {
		observability.CLILogger.Info("Aborted")
		return nil
	}
	if err != nil {
		return apiError("Failed to delete files", err)
	}
	return printDeleteResult(result, "file")
}

// printDeleteResult reports per-id outcomes and fails when any id was not
// deleted.
func printDeleteResult(result map[string]bool, noun string) error {
	if flagJSON {
		if err := printJSON(result); err != nil {
			return err
		}
	}
	var failed int
	for id, ok := range result {
		if !ok {
			failed++
			observability.CLILogger.Warn(fmt.Sprintf("Could not delete %s %s", noun, id))
		}
	}
	observability.CLILogger.Info(fmt.Sprintf("Deleted %d of %d %ss", len(result)-failed, len(result), noun))
	if failed > 0 {
		return exitError(foundry.ExitExternalServiceUnavailable, "Some deletions failed", fmt.Errorf("%d %ss not deleted", failed, noun))
	}
	return nil
}

// formatTimestamp renders a server timestamp in local time.
func formatTimestamp(s string) string {
	t := gateway.ParseTime(s)
	if t.IsZero() {
		return valueOrDash(s)
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
