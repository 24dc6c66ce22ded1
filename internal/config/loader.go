package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Identity names the files and variables configuration is read from.
type Identity struct {
	BinaryName string
	EnvPrefix  string
	ConfigName string
}

// DefaultIdentity is the casegen identity.
var DefaultIdentity = Identity{BinaryName: "casegen", EnvPrefix: "CASEGEN", ConfigName: "casegen"}

// EnvSpec maps one environment variable to a config path.
type EnvSpec struct {
	Name string
	Path string
}

var (
	configMu    sync.RWMutex
	appIdentity *Identity
	appConfig   *Config
)

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://127.0.0.1:8000/api/v1")
	v.SetDefault("api.timeout", "30s")
	v.SetDefault("api.upload_timeout", "5m")
	v.SetDefault("api.rate_limit", 0)
	v.SetDefault("api.user_agent", "casegen")

	v.SetDefault("poll.interval", "2s")
	v.SetDefault("poll.max_attempts", 30)
	v.SetDefault("poll.max_consecutive_errors", 3)

	v.SetDefault("export.destination", ".")
	v.SetDefault("export.s3.region", "")
	v.SetDefault("export.s3.endpoint", "")
	v.SetDefault("export.s3.profile", "")
	v.SetDefault("export.s3.force_path_style", false)

	v.SetDefault("upload.excludes", []string{})
	v.SetDefault("upload.include_hidden", false)
	v.SetDefault("upload.filter.extensions", []string{".zip"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "console")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("health.enabled", true)
	v.SetDefault("registry.dir", "")
}

// Load builds the configuration. Each override is a nested map applied on
// top of everything else; later overrides win.
func Load(ctx context.Context, overrides ...map[string]any) (*Config, error) {
	_ = ctx

	configMu.Lock()
	defer configMu.Unlock()
	if appIdentity == nil {
		id := DefaultIdentity
		appIdentity = &id
	}

	v := viper.New()
	SetDefaults(v)

	v.SetConfigName(appIdentity.ConfigName)
	v.SetConfigType("yaml")
	for _, dir := range configPathsLocked() {
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v.SetEnvPrefix(appIdentity.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, spec := range envSpecsLocked() {
		if err := v.BindEnv(spec.Path, spec.Name); err != nil {
			return nil, fmt.Errorf("bind %s: %w", spec.Name, err)
		}
	}

	for _, o := range overrides {
		for key, val := range flatten("", o) {
			v.Set(key, val)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Logging.Profile = strings.ToLower(strings.TrimSpace(cfg.Logging.Profile))

	appConfig = &cfg
	return &cfg, nil
}

// GetConfig returns the configuration of the last successful Load.
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// GetIdentity returns the identity Load used, or nil before the first Load.
func GetIdentity() *Identity {
	configMu.RLock()
	defer configMu.RUnlock()
	return appIdentity
}

// getUserConfigPaths lists the directories searched for the config file.
func getUserConfigPaths() []string {
	configMu.RLock()
	defer configMu.RUnlock()
	return configPathsLocked()
}

func configPathsLocked() []string {
	if appIdentity == nil {
		return []string{}
	}
	paths := []string{"."}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, appIdentity.ConfigName))
	}
	return paths
}

// getEnvSpecs lists the short environment aliases. Every other key is
// reachable as PREFIX_SECTION_KEY (CASEGEN_API_BASE_URL).
func getEnvSpecs() []EnvSpec {
	configMu.RLock()
	defer configMu.RUnlock()
	return envSpecsLocked()
}

func envSpecsLocked() []EnvSpec {
	if appIdentity == nil {
		return []EnvSpec{}
	}
	p := appIdentity.EnvPrefix + "_"
	return []EnvSpec{
		{Name: p + "BASE_URL", Path: "api.base_url"},
		{Name: p + "TIMEOUT", Path: "api.timeout"},
		{Name: p + "LOG_LEVEL", Path: "logging.level"},
		{Name: p + "LOG_PROFILE", Path: "logging.profile"},
		{Name: p + "HOST", Path: "server.host"},
		{Name: p + "PORT", Path: "server.port"},
		{Name: p + "READ_TIMEOUT", Path: "server.read_timeout"},
		{Name: p + "WRITE_TIMEOUT", Path: "server.write_timeout"},
		{Name: p + "SHUTDOWN_TIMEOUT", Path: "server.shutdown_timeout"},
		{Name: p + "EXPORT_TO", Path: "export.destination"},
		{Name: p + "REGISTRY_DIR", Path: "registry.dir"},
	}
}

// flatten turns a nested override map into dotted viper keys.
func flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := val.(map[string]any); ok {
			for nk, nv := range flatten(key, nested) {
				out[nk] = nv
			}
			continue
		}
		out[key] = val
	}
	return out
}
