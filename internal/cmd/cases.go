package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/3leaps/casegen/internal/observability"
	"github.com/3leaps/casegen/pkg/gateway"
	"github.com/3leaps/casegen/pkg/output"
	"github.com/3leaps/casegen/pkg/view"
)

var casesCmd = &cobra.Command{
	Use:   "cases",
	Short: "Browse, edit, generate and export test cases",
}

var casesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List test cases",
	Args:  cobra.NoArgs,
	RunE:  runCasesList,
}

var casesGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show one test case with its steps",
	Args:  cobra.ExactArgs(1),
	RunE:  runCasesGet,
}

var casesEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit a test case",
	Long: `Edit the editable fields of a test case. Only fields that differ from
the stored case are sent.

--content-file reads the case body from a YAML or JSON file:

  precondition: logged in
  steps: [open cart, add item]
  expected: [cart shown, item listed]`,
	Args: cobra.ExactArgs(1),
	RunE: runCasesEdit,
}

var casesDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete test cases",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCasesDelete,
}

var casesGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate test cases from an uploaded file",
	Args:  cobra.NoArgs,
	RunE:  runCasesGenerate,
}

var casesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export test cases as a spreadsheet",
	Long: `Export the given cases, or every case matching the filter, as an
.xlsx spreadsheet. The file is saved as test_cases_<date>.xlsx in a local
directory or under an s3://bucket/prefix.

Examples:
  casegen cases export --project Shop
  casegen cases export --case c1 --case c2 --to ./exports
  casegen cases export --task task-9 --to s3://reports/casegen/`,
	Args: cobra.NoArgs,
	RunE: runCasesExport,
}

var (
	casesProject  string
	casesModule   string
	casesTask     string
	casesPage     int
	casesPageSize int
	casesAll      bool

	casesName        string
	casesLevel       string
	casesStatus      string
	casesContentFile string

	casesFile string
	casesWait bool

	casesIDs []string
	casesTo  string
)

func init() {
	rootCmd.AddCommand(casesCmd)
	casesCmd.AddCommand(casesListCmd, casesGetCmd, casesEditCmd, casesDeleteCmd, casesGenerateCmd, casesExportCmd)

	for _, c := range []*cobra.Command{casesListCmd, casesExportCmd} {
		c.Flags().StringVar(&casesProject, "project", "", "Filter by project")
		c.Flags().StringVar(&casesModule, "module", "", "Filter by module")
		c.Flags().StringVar(&casesTask, "task", "", "Filter by generating task")
	}
	casesListCmd.Flags().IntVar(&casesPage, "page", 1, "Page number")
	casesListCmd.Flags().IntVar(&casesPageSize, "page-size", gateway.DefaultPageSize, "Page size")
	casesListCmd.Flags().BoolVar(&casesAll, "all", false, "List every matching case")

	casesEditCmd.Flags().StringVar(&casesName, "name", "", "New name")
	casesEditCmd.Flags().StringVar(&casesLevel, "level", "", "New level")
	casesEditCmd.Flags().StringVar(&casesStatus, "status", "", "New status")
	casesEditCmd.Flags().StringVar(&casesContentFile, "content-file", "", "YAML or JSON file with the case body")

	casesGenerateCmd.Flags().StringVar(&casesFile, "file", "", "Uploaded file id")
	casesGenerateCmd.Flags().StringVar(&casesProject, "project", "", "Project name")
	casesGenerateCmd.Flags().StringVar(&casesModule, "module", "", "Module name")
	casesGenerateCmd.Flags().BoolVar(&casesWait, "wait", false, "Wait for generation to finish")

	casesExportCmd.Flags().StringArrayVar(&casesIDs, "case", nil, "Case id to export (repeatable)")
	casesExportCmd.Flags().StringVar(&casesTo, "to", "", "Destination directory or s3://bucket/prefix")
}

func newCasesView() (*view.CasesView, error) {
	api, err := newAPI()
	if err != nil {
		return nil, err
	}
	cv := view.NewCasesView(api, viewOptions()...)
	cv.SetFilter(view.CaseFilter{Project: casesProject, Module: casesModule, TaskID: casesTask})
	return cv, nil
}

func runCasesList(cmd *cobra.Command, args []string) error {
	cv, err := newCasesView()
	if err != nil {
		return err
	}

	var items []gateway.TestCase
	var total int
	if casesAll {
		items, total, err = listAllCases(cmd.Context(), cv)
	} else {
		cv.SetPage(casesPage, casesPageSize)
		err = cv.Refresh(cmd.Context())
		items, total = cv.Items(), cv.Total()
	}
	if err != nil {
		return apiError("Failed to list cases", err)
	}

	if flagJSON {
		return printJSON(gateway.Page[gateway.TestCase]{Total: total, Items: items})
	}
	if len(items) == 0 {
		_, _ = fmt.Fprintln(os.Stdout, "No cases found")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tPROJECT\tMODULE\tNAME\tLEVEL\tSTATUS")
	for _, c := range items {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.CaseID, valueOrDash(c.Project), valueOrDash(c.Module), c.Name, valueOrDash(c.Level), valueOrDash(c.Status))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(os.Stdout, "\n%d of %d cases\n", len(items), total)
	return nil
}

// listAllCases walks the listing page by page.
func listAllCases(ctx context.Context, cv *view.CasesView) ([]gateway.TestCase, int, error) {
	var all []gateway.TestCase
	for page := 1; ; page++ {
		cv.SetPage(page, view.SelectAllPageSize)
		if err := cv.Refresh(ctx); err != nil {
			return nil, 0, err
		}
		items := cv.Items()
		all = append(all, items...)
		if len(items) == 0 || len(all) >= cv.Total() {
			return all, cv.Total(), nil
		}
	}
}

func runCasesGet(cmd *cobra.Command, args []string) error {
	cv, err := newCasesView()
	if err != nil {
		return err
	}
	tc, err := cv.Get(cmd.Context(), args[0])
	if err != nil {
		return apiError("Failed to get case", err)
	}
	if flagJSON {
		return printJSON(tc)
	}
	printCase(tc)
	return nil
}

func printCase(tc *gateway.TestCase) {
	_, _ = fmt.Fprintf(os.Stdout, "%s  %s\n", tc.CaseID, tc.Name)
	_, _ = fmt.Fprintf(os.Stdout, "project=%s module=%s level=%s status=%s\n",
		valueOrDash(tc.Project), valueOrDash(tc.Module), valueOrDash(tc.Level), valueOrDash(tc.Status))
	if tc.Content.Precondition != "" {
		_, _ = fmt.Fprintf(os.Stdout, "\nPrecondition: %s\n", tc.Content.Precondition)
	}
	pairs := tc.Content.Pairs()
	if len(pairs) > 0 {
		_, _ = fmt.Fprintln(os.Stdout)
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "#\tSTEP\tEXPECTED\tACTUAL")
		for _, p := range pairs {
			_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", p.Index+1, valueOrDash(p.Step), valueOrDash(p.Expected), valueOrDash(p.Actual))
		}
		_ = tw.Flush()
	}
	if tc.Content.Remark != "" {
		_, _ = fmt.Fprintf(os.Stdout, "\nRemark: %s\n", tc.Content.Remark)
	}
}

func runCasesEdit(cmd *cobra.Command, args []string) error {
	cv, err := newCasesView()
	if err != nil {
		return err
	}
	draft, err := cv.Edit(cmd.Context(), args[0])
	if err != nil {
		return apiError("Failed to load case", err)
	}

	flags := cmd.Flags()
	if flags.Changed("name") {
		draft.Name = casesName
	}
	if flags.Changed("level") {
		draft.Level = casesLevel
	}
	if flags.Changed("status") {
		draft.Status = casesStatus
	}
	if casesContentFile != "" {
		content, err := readCaseContent(casesContentFile)
		if err != nil {
			return exitError(foundry.ExitFileReadError, "Failed to read content file", err)
		}
		draft.Content = content
	}

	if draft.Changes().Empty() {
		observability.CLILogger.Info("Nothing to change")
		return nil
	}
	tc, err := draft.Submit(cmd.Context())
	if err != nil {
		return apiError("Failed to update case", err)
	}
	if flagJSON {
		return printJSON(tc)
	}
	observability.CLILogger.Info("Updated case " + tc.CaseID)
	return nil
}

func readCaseContent(path string) (gateway.CaseContent, error) {
	var content gateway.CaseContent
	data, err := os.ReadFile(path)
	if err != nil {
		return content, err
	}
	if err := yaml.Unmarshal(data, &content); err != nil {
		return content, fmt.Errorf("parse %s: %w", path, err)
	}
	return content, nil
}

func runCasesDelete(cmd *cobra.Command, args []string) error {
	cv, err := newCasesView()
	if err != nil {
		return err
	}
	result, err := cv.Delete(cmd.Context(), args...)
	if errors.Is(err, view.ErrNotConfirmed) {
		observability.CLILogger.Info("Aborted")
		return nil
	}
	if err != nil {
		return apiError("Failed to delete cases", err)
	}
	return printDeleteResult(result, "case")
}

func runCasesGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	api, err := newAPI()
	if err != nil {
		return err
	}
	fv := view.NewFilesView(api, viewOptions()...)

	req := gateway.GenerateRequest{
		FileID:      strings.TrimSpace(casesFile),
		ProjectName: strings.TrimSpace(casesProject),
		ModuleName:  strings.TrimSpace(casesModule),
	}
	jobID, err := fv.StartGeneration(ctx, req)
	if err != nil {
		return apiError("Failed to start generation", err)
	}

	tracker, err := newTracker()
	if err != nil {
		observability.CLILogger.Warn("Job registry unavailable")
	} else {
		tracker.Started(jobID, req, "")
	}

	if !casesWait {
		if flagJSON {
			return printJSON(map[string]string{"task_id": jobID})
		}
		_, _ = fmt.Fprintln(os.Stdout, jobID)
		return nil
	}

	w := newJSONLWriter()
	defer func() { _ = w.Close() }()
	watch := &jobWatch{tracker: tracker, w: w}
	if _, err := watch.wait(ctx, view.NewTasksView(api, viewOptions()...), jobID); err != nil {
		_ = w.WriteError(ctx, errorRecord(err, "", jobID))
		return apiError("Generation did not complete", err)
	}
	return nil
}

func runCasesExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cv, err := newCasesView()
	if err != nil {
		return err
	}
	for _, id := range casesIDs {
		if strings.TrimSpace(id) != "" {
			cv.Toggle(id)
		}
	}

	sink, err := openSink(ctx, casesTo)
	if err != nil {
		return err
	}
	defer func() { _ = sink.Close() }()

	res, err := cv.Export(ctx, sink)
	if err != nil {
		return exportError(err)
	}
	observeExport(sink)
	return printExport(ctx, res)
}

func printExport(ctx context.Context, res *view.ExportResult) error {
	if flagJSON {
		w := newJSONLWriter()
		defer func() { _ = w.Close() }()
		return w.WriteExport(ctx, &output.ExportRecord{
			Location:    res.Location,
			Key:         res.Key,
			Size:        res.Size,
			ContentType: res.ContentType,
			CaseCount:   res.CaseCount,
		})
	}
	observability.CLILogger.Info(fmt.Sprintf("Saved %s (%d bytes)", res.Location, res.Size))
	return nil
}
