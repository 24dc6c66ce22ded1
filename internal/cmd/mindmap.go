package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/3leaps/casegen/internal/observability"
	"github.com/3leaps/casegen/pkg/gateway"
	"github.com/3leaps/casegen/pkg/outline"
	"github.com/3leaps/casegen/pkg/view"
)

var mindmapCmd = &cobra.Command{
	Use:   "mindmap",
	Short: "Render the mind map of a task's cases",
}

var mindmapShowCmd = &cobra.Command{
	Use:   "show <task_id>",
	Short: "Wait for the mind map and print it",
	Long: `Wait for the mind map of a task and print it as an indented tree, or
as the decoded node/edge graph in JSON or YAML.

Examples:
  casegen mindmap show task-9
  casegen mindmap show task-9 --modules cart,checkout --output yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runMindMapShow,
}

var mindmapExportCmd = &cobra.Command{
	Use:   "export <task_id>",
	Short: "Save the server-rendered mind map image",
	Args:  cobra.ExactArgs(1),
	RunE:  runMindMapExport,
}

var (
	mindmapOutput   string
	mindmapModules  []string
	mindmapPageSize int
	mindmapFormat   string
	mindmapTo       string
)

func init() {
	rootCmd.AddCommand(mindmapCmd)
	mindmapCmd.AddCommand(mindmapShowCmd, mindmapExportCmd)

	mindmapShowCmd.Flags().StringVarP(&mindmapOutput, "output", "o", "tree", "Output format (tree|json|yaml)")
	mindmapShowCmd.Flags().StringSliceVar(&mindmapModules, "modules", nil, "Only include these modules")
	mindmapShowCmd.Flags().IntVar(&mindmapPageSize, "page-size", 0, "Maximum cases the mind map is built from")

	mindmapExportCmd.Flags().StringVar(&mindmapFormat, "format", string(gateway.FormatSVG), "Image format (svg|png)")
	mindmapExportCmd.Flags().StringVar(&mindmapTo, "to", "", "Destination directory or s3://bucket/prefix")
}

func newMindMapView() (*view.MindMapView, error) {
	api, err := newAPI()
	if err != nil {
		return nil, err
	}
	return view.NewMindMapView(api, currentConfig().Poller(), viewOptions()...), nil
}

func runMindMapShow(cmd *cobra.Command, args []string) error {
	format := strings.ToLower(strings.TrimSpace(mindmapOutput))
	if format == "" && flagJSON {
		format = "json"
	}
	switch format {
	case "tree", "json", "yaml":
	default:
		return exitError(foundry.ExitInvalidArgument, "Invalid --output value", fmt.Errorf("expected tree, json or yaml, got %q", mindmapOutput))
	}

	mv, err := newMindMapView()
	if err != nil {
		return err
	}
	defer mv.Close()

	g, err := mv.Load(cmd.Context(), args[0], view.MindMapQuery{PageSize: mindmapPageSize, Modules: mindmapModules})
	if err != nil {
		return apiError("Failed to load mind map", err)
	}
	if flagJSON && format == "tree" {
		format = "json"
	}
	return writeGraph(g, format)
}

func writeGraph(g *outline.Graph, format string) error {
	switch format {
	case "json":
		return printJSON(g)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(g); err != nil {
			return err
		}
		return enc.Close()
	default:
		if g.Empty() {
			observability.CLILogger.Info("Mind map is empty")
			return nil
		}
		return g.WriteTree(os.Stdout)
	}
}

func runMindMapExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	format := gateway.ExportFormat(strings.ToLower(strings.TrimSpace(mindmapFormat)))
	if format != gateway.FormatSVG && format != gateway.FormatPNG {
		return exitError(foundry.ExitInvalidArgument, "Invalid --format value", fmt.Errorf("expected svg or png, got %q", mindmapFormat))
	}

	mv, err := newMindMapView()
	if err != nil {
		return err
	}
	defer mv.Close()

	sink, err := openSink(ctx, mindmapTo)
	if err != nil {
		return err
	}
	defer func() { _ = sink.Close() }()

	res, err := mv.Export(ctx, args[0], format, sink)
	if err != nil {
		return exportError(err)
	}
	observeExport(sink)
	return printExport(ctx, res)
}
