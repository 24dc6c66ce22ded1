// Package s3 saves exports to AWS S3 or an S3-compatible store.
package s3

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// DefaultAWSRegion applies to AWS itself when nothing else names a region.
// Custom endpoints get no default.
const DefaultAWSRegion = "us-east-1"

// Config locates the bucket exports go to.
//
// Credentials come from the SDK default chain (environment, shared files,
// instance roles) unless AccessKeyID and SecretAccessKey are both set.
// Profile selects a shared config profile.
type Config struct {
	Bucket string
	Prefix string

	Region   string
	Endpoint string
	Profile  string

	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle is needed by most S3-compatible stores (MinIO, moto).
	ForcePathStyle bool
}

// ConfigError names the setting that is wrong.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("s3 export: %s: %s", e.Field, e.Message)
}

// Validate rejects configurations New cannot connect with.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Bucket) == "":
		return &ConfigError{Field: "bucket", Message: "bucket name is required"}
	case strings.HasPrefix(c.Prefix, "/"):
		return &ConfigError{Field: "prefix", Message: "prefix must not start with '/'"}
	case (c.AccessKeyID == "") != (c.SecretAccessKey == ""):
		return &ConfigError{Field: "credentials", Message: "access key id and secret access key go together"}
	}
	return nil
}

// keyPrefix is Prefix with exactly one trailing slash, or "".
func (c *Config) keyPrefix() string {
	p := strings.Trim(strings.TrimSpace(c.Prefix), "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

// LoadAWSConfig resolves credentials and region for cfg the way New does.
// Bucket is not required.
func LoadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	awsCfg.Region = fallbackRegion(awsCfg.Region, cfg.Endpoint)
	return awsCfg, nil
}

// fallbackRegion keeps a region the SDK resolved and otherwise applies
// DefaultAWSRegion for AWS endpoints only.
func fallbackRegion(resolved, endpoint string) string {
	if resolved != "" || endpoint != "" {
		return resolved
	}
	return DefaultAWSRegion
}
