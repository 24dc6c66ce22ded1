// Package cmd implements the casegen command line.
package cmd

import (
	"context"
	"fmt"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/casegen/internal/config"
	apperrors "github.com/3leaps/casegen/internal/errors"
	"github.com/3leaps/casegen/internal/observability"
)

// versionInfo is set by main from build flags.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "unknown",
	BuildDate: "unknown",
}

var (
	appIdentity *config.Identity
	appConfig   *config.Config
)

// Persistent flags.
var (
	flagBaseURL string
	flagJSON    bool
	flagVerbose bool
	flagYes     bool
)

var rootCmd = &cobra.Command{
	Use:   "casegen",
	Short: "Generate and manage test cases from requirement documents",
	Long: `casegen talks to the case generation service: upload requirement
archives, start generation tasks, browse and edit the generated cases, export
them as spreadsheets and render the per-task mind map.

Configuration is read from casegen.yaml, a .env file and CASEGEN_*
environment variables. Flags win over all of them.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagBaseURL, "base-url", "", "API base URL (default http://127.0.0.1:8000/api/v1)")
	pf.BoolVar(&flagJSON, "json", false, "Print JSON instead of tables")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug output")
	pf.BoolVarP(&flagYes, "yes", "y", false, "Answer yes to confirmation prompts")
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// SetVersionInfo records build information for the version command.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the identity in use, or nil before configuration
// was loaded.
func GetAppIdentity() *config.Identity {
	return appIdentity
}

func initConfig(cmd *cobra.Command, args []string) error {
	observability.InitCLILogger("casegen", flagVerbose)

	overrides := map[string]any{}
	if cmd.Flags().Changed("base-url") {
		overrides["api"] = map[string]any{"base_url": flagBaseURL}
	}

	cfg, err := config.Load(cmd.Context(), overrides)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to load configuration", err)
	}
	if err := cfg.Validate(); err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	appConfig = cfg
	appIdentity = config.GetIdentity()
	observability.InitMetrics()
	return nil
}

// exitError wraps err with the exit code the process should end with.
func exitError(code int, message string, err error) error {
	return &apperrors.AppError{
		Message:  fmt.Sprintf("%s (exit code %d)", message, code),
		ExitCode: code,
		Err:      err,
	}
}
