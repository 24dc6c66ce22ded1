package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/casegen/internal/observability"
	"github.com/3leaps/casegen/pkg/provider/s3"
)

var doctorProvider string

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Check the local installation, the API backend and, with --provider s3,
the AWS setup used by s3:// exports.

Examples:
  casegen doctor
  casegen doctor --provider s3`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().StringVar(&doctorProvider, "provider", "", "Also check an export provider (s3)")
}

// errWarn marks a check that passed with a caveat. It still fails the run.
var errWarn = errors.New("warning")

// diagnostic is one doctor step. run returns the detail printed after the
// check mark, or an error. help is printed after a failure.
type diagnostic struct {
	name string
	run  func(ctx context.Context) (string, error)
	help []string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	title := "doctor"
	if id := GetAppIdentity(); id != nil && id.BinaryName != "" {
		title = id.BinaryName + " doctor"
	}

	checks := baseDiagnostics()
	switch doctorProvider {
	case "":
	case "s3":
		checks = append(checks, s3Diagnostics()...)
	default:
		return exitError(foundry.ExitInvalidArgument, "Unknown provider", fmt.Errorf("--provider accepts s3, got %q", doctorProvider))
	}

	log := observability.CLILogger
	log.Info("=== " + title + " ===")
	log.Info("")

	failed := 0
	for i, c := range checks {
		prefix := fmt.Sprintf("[%d/%d] Checking %s...", i+1, len(checks), c.name)
		detail, err := c.run(ctx)
		switch {
		case err == nil:
			log.Info(prefix+" ✅ "+detail, zap.String("check", c.name))
			continue
		case errors.Is(err, errWarn):
			log.Warn(prefix+" ⚠️  "+detail, zap.String("check", c.name))
		default:
			log.Error(prefix+" ❌ "+detail, zap.String("check", c.name), zap.Error(err))
		}
		failed++
		for _, line := range c.help {
			log.Info("  " + line)
		}
	}

	log.Info("")
	if failed > 0 {
		log.Warn(fmt.Sprintf("⚠️  %d of %d checks failed. Review the output above for details.", failed, len(checks)))
		return exitError(foundry.ExitExternalServiceUnavailable, "Diagnostics failed", fmt.Errorf("%d checks failed", failed))
	}
	log.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", title))
	return nil
}

func baseDiagnostics() []diagnostic {
	return []diagnostic{
		{name: "Go version", run: func(context.Context) (string, error) {
			v := runtime.Version()
			if v < "go1.23" {
				return v + " (recommended: go1.23+)", errWarn
			}
			return v, nil
		}},
		{name: "Gofulmen access", run: func(context.Context) (string, error) {
			v := crucible.GetVersion()
			if v.Gofulmen == "" {
				return "cannot read gofulmen version", errors.New("gofulmen unavailable")
			}
			return fmt.Sprintf("v%s (crucible v%s)", v.Gofulmen, v.Crucible), nil
		}},
		{name: "config directory", run: func(context.Context) (string, error) {
			dir, err := os.UserConfigDir()
			if err != nil {
				return "cannot find config directory", err
			}
			return dir, nil
		}},
		{name: "job registry", run: func(context.Context) (string, error) {
			dir, err := registryDir()
			if err != nil {
				return "cannot resolve directory", err
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return dir + " is not writable", err
			}
			return dir, nil
		}},
		{name: "environment", run: func(context.Context) (string, error) {
			return runtime.GOOS + "/" + runtime.GOARCH, nil
		}},
		{
			name: "API backend",
			run:  checkBackend,
			help: []string{"Set the API location with --base-url, CASEGEN_BASE_URL or api.base_url in casegen.yaml"},
		},
	}
}

func checkBackend(ctx context.Context) (string, error) {
	baseURL := currentConfig().API.BaseURL
	api, err := newAPI()
	if err != nil {
		return "invalid API configuration", err
	}
	start := time.Now()
	if err := api.Stats.Health(ctx); err != nil {
		return baseURL + " unreachable", err
	}
	return fmt.Sprintf("%s (%s)", baseURL, time.Since(start).Round(time.Millisecond)), nil
}

var awsCredentialsHelp = []string{
	"To configure AWS credentials for s3:// exports:",
	"  1. Set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY, or",
	"  2. Run 'aws configure' and set export.s3.profile, or",
	"  3. Use an IAM role when running on AWS infrastructure",
	"For S3-compatible storage (MinIO, Wasabi) also set export.s3.endpoint",
	"and export.s3.force_path_style in casegen.yaml",
}

// s3Diagnostics share one resolved AWS config; later steps report nothing
// new when loading it failed.
func s3Diagnostics() []diagnostic {
	sinkCfg := currentConfig().S3("", "")
	var (
		awsCfg aws.Config
		creds  aws.Credentials
		ready  bool
	)
	return []diagnostic{
		{
			name: "AWS credentials",
			help: awsCredentialsHelp,
			run: func(ctx context.Context) (string, error) {
				var err error
				if awsCfg, err = s3.LoadAWSConfig(ctx, sinkCfg); err != nil {
					return "cannot load AWS config", err
				}
				if creds, err = awsCfg.Credentials.Retrieve(ctx); err != nil {
					return "cannot retrieve credentials", err
				}
				ready = true
				return "found " + maskAccessKey(creds.AccessKeyID), nil
			},
		},
		{name: "credential source", run: func(context.Context) (string, error) {
			if !ready {
				return "skipped", errWarn
			}
			if creds.Source == "" {
				return "unknown", nil
			}
			return creds.Source, nil
		}},
		{
			name: "region",
			help: []string{"Set AWS_REGION or export.s3.region in casegen.yaml"},
			run: func(ctx context.Context) (string, error) {
				if !ready {
					return "skipped", errWarn
				}
				region, source := awsCfg.Region, regionSourceOf(sinkCfg, awsCfg.Region)
				if source == "default" {
					if r := instanceRegion(ctx, awsCfg); r != "" {
						region, source = r, "instance metadata"
					}
				}
				if region == "" {
					return "no region configured", errWarn
				}
				return fmt.Sprintf("%s (%s)", region, source), nil
			},
		},
	}
}

// instanceRegion asks EC2 instance metadata, returning "" off EC2.
func instanceRegion(ctx context.Context, cfg aws.Config) string {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	out, err := imds.NewFromConfig(cfg).GetRegion(ctx, &imds.GetRegionInput{})
	if err != nil {
		return ""
	}
	return out.Region
}

// regionSourceOf names where resolved came from. "default" means nothing
// named a region and DefaultAWSRegion was applied.
func regionSourceOf(sinkCfg s3.Config, resolved string) string {
	switch {
	case sinkCfg.Region != "":
		return "configuration"
	case os.Getenv("AWS_REGION") != "" || os.Getenv("AWS_DEFAULT_REGION") != "":
		return "environment"
	case sinkCfg.Endpoint == "" && resolved == s3.DefaultAWSRegion:
		return "default"
	}
	return "shared config"
}

// maskAccessKey keeps the last four characters.
func maskAccessKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
