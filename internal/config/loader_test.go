package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inTempDir runs the test from an empty directory so no casegen.yaml or .env
// from the checkout is picked up.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, ".config"))
	return dir
}

func TestSetDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	assert.Equal(t, "http://127.0.0.1:8000/api/v1", v.GetString("api.base_url"))
	assert.Equal(t, "30s", v.GetString("api.timeout"))
	assert.Equal(t, "2s", v.GetString("poll.interval"))
	assert.Equal(t, 30, v.GetInt("poll.max_attempts"))
	assert.Equal(t, "localhost", v.GetString("server.host"))
	assert.Equal(t, 8080, v.GetInt("server.port"))
	assert.Equal(t, "120s", v.GetString("server.idle_timeout"))
	assert.Equal(t, "info", v.GetString("logging.level"))
	assert.True(t, v.GetBool("metrics.enabled"))
	assert.True(t, v.GetBool("health.enabled"))
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		inTempDir(t)

		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "http://127.0.0.1:8000/api/v1", cfg.API.BaseURL)
		assert.Equal(t, 30*time.Second, cfg.API.Timeout)
		assert.Equal(t, 5*time.Minute, cfg.API.UploadTimeout)
		assert.Equal(t, 2*time.Second, cfg.Poll.Interval)
		assert.Equal(t, 30, cfg.Poll.MaxAttempts)
		assert.Equal(t, 3, cfg.Poll.MaxConsecutiveErrors)
		assert.Equal(t, ".", cfg.Export.Destination)
		assert.Equal(t, []string{".zip"}, cfg.Upload.Filter.Extensions)

		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)

		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Equal(t, "console", cfg.Logging.Profile)
		assert.True(t, cfg.Metrics.Enabled)
		assert.True(t, cfg.Health.Enabled)
		require.NoError(t, cfg.Validate())
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		inTempDir(t)

		overrides := map[string]any{
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"logging": map[string]any{
				"level": "debug",
			},
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, "console", cfg.Logging.Profile)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		inTempDir(t)
		t.Setenv("CASEGEN_PORT", "3000")
		t.Setenv("CASEGEN_LOG_LEVEL", "warn")
		t.Setenv("CASEGEN_METRICS_ENABLED", "false")
		t.Setenv("CASEGEN_API_BASE_URL", "https://cases.example.com/api/v1")
		t.Setenv("CASEGEN_POLL_MAX_ATTEMPTS", "5")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.False(t, cfg.Metrics.Enabled)
		assert.Equal(t, "https://cases.example.com/api/v1", cfg.API.BaseURL)
		assert.Equal(t, 5, cfg.Poll.MaxAttempts)
	})

	t.Run("ConfigPrecedence", func(t *testing.T) {
		inTempDir(t)
		t.Setenv("CASEGEN_PORT", "4000")

		cfg, err := Load(ctx, map[string]any{"server": map[string]any{"port": 5000}})
		require.NoError(t, err)
		assert.Equal(t, 5000, cfg.Server.Port)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		dir := inTempDir(t)
		yaml := "api:\n  base_url: http://files.example.com/api/v1\nupload:\n  excludes: ['**/draft/**']\n  filter:\n    size:\n      max: 10MB\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, "casegen.yaml"), []byte(yaml), 0o644))
		t.Setenv("CASEGEN_BASE_URL", "http://env.example.com/api/v1")

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "http://env.example.com/api/v1", cfg.API.BaseURL, "env beats file")
		assert.Equal(t, []string{"**/draft/**"}, cfg.Upload.Excludes)
		require.NotNil(t, cfg.Upload.Filter.Size)
		assert.Equal(t, "10MB", cfg.Upload.Filter.Size.Max)
	})

	t.Run("DotEnv", func(t *testing.T) {
		dir := inTempDir(t)
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CASEGEN_EXPORT_TO=s3://bucket/exports\n"), 0o644))
		t.Setenv("CASEGEN_EXPORT_TO", "")
		require.NoError(t, os.Unsetenv("CASEGEN_EXPORT_TO"))

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, "s3://bucket/exports", cfg.Export.Destination)
	})

	t.Run("InvalidConfigFile", func(t *testing.T) {
		dir := inTempDir(t)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "casegen.yaml"), []byte("api: [unclosed"), 0o644))

		_, err := Load(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read config file")
	})
}

func TestGetConfig(t *testing.T) {
	inTempDir(t)

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
	assert.Equal(t, cfg.API.BaseURL, retrieved.API.BaseURL)
}

func TestDurationParsing(t *testing.T) {
	inTempDir(t)
	t.Setenv("CASEGEN_READ_TIMEOUT", "45s")
	t.Setenv("CASEGEN_SHUTDOWN_TIMEOUT", "5m")
	t.Setenv("CASEGEN_POLL_INTERVAL", "500ms")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Poller().Interval)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "empty base url", mutate: func(c *Config) { c.API.BaseURL = "" }, wantErr: true},
		{name: "ftp base url", mutate: func(c *Config) { c.API.BaseURL = "ftp://host/api" }, wantErr: true},
		{name: "negative poll", mutate: func(c *Config) { c.Poll.MaxAttempts = -1 }, wantErr: true},
		{name: "port out of range", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inTempDir(t)
			cfg, err := Load(context.Background())
			require.NoError(t, err)
			tt.mutate(cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestS3(t *testing.T) {
	inTempDir(t)
	cfg, err := Load(context.Background(), map[string]any{
		"export": map[string]any{"s3": map[string]any{"endpoint": "http://localhost:9000", "force_path_style": true}},
	})
	require.NoError(t, err)

	s3cfg := cfg.S3("bucket", "exports/")
	assert.Equal(t, "bucket", s3cfg.Bucket)
	assert.Equal(t, "exports/", s3cfg.Prefix)
	assert.Equal(t, "http://localhost:9000", s3cfg.Endpoint)
	assert.True(t, s3cfg.ForcePathStyle)
}

// resetAppIdentity resets package state for isolated tests.
func resetAppIdentity() {
	configMu.Lock()
	defer configMu.Unlock()
	appIdentity = nil
	appConfig = nil
}

func TestNilIdentity(t *testing.T) {
	resetAppIdentity()
	defer func() {
		inTempDir(t)
		_, _ = Load(context.Background())
	}()

	assert.Empty(t, getUserConfigPaths())
	assert.Empty(t, getEnvSpecs())
	assert.Nil(t, GetIdentity())
}

func TestEnvSpecsPrefixHandling(t *testing.T) {
	inTempDir(t)
	_, err := Load(context.Background())
	require.NoError(t, err)

	specs := getEnvSpecs()
	require.NotEmpty(t, specs)

	names := make(map[string]bool)
	for _, spec := range specs {
		names[spec.Name] = true
		assert.Contains(t, spec.Name, "CASEGEN_")
		assert.NotEmpty(t, spec.Path, "env var %s should have a path", spec.Name)
	}
	assert.True(t, names["CASEGEN_LOG_LEVEL"])
	assert.True(t, names["CASEGEN_PORT"])
	assert.True(t, names["CASEGEN_BASE_URL"])
}

func TestFlatten(t *testing.T) {
	got := flatten("", map[string]any{
		"api":    map[string]any{"timeout": "5s"},
		"export": map[string]any{"s3": map[string]any{"region": "eu-west-1"}},
		"top":    1,
	})
	assert.Equal(t, map[string]any{
		"api.timeout":      "5s",
		"export.s3.region": "eu-west-1",
		"top":              1,
	}, got)
}
