package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the config file base name, searched as deteval.yaml.
	ConfigFileName = "deteval"

	// EnvPrefix prefixes environment overrides: DETEVAL_OUTPUT_FORMAT sets
	// output.format.
	EnvPrefix = "DETEVAL"
)

// Loader resolves a Config from defaults, a YAML file, the environment and
// any flags already bound to its viper instance.
type Loader struct {
	v *viper.Viper
}

// NewLoader uses the global viper instance.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWithViper uses v. The commands give each root command its own
// instance.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load searches GetConfigSearchPaths for deteval.yaml. Having no config file
// is not an error.
func (l *Loader) Load() (*Config, error) {
	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")
	for _, dir := range GetConfigSearchPaths() {
		l.v.AddConfigPath(dir)
	}
	return l.read(true)
}

// LoadWithFile reads configFile, which must exist. An empty name searches
// like Load.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	if configFile == "" {
		return l.Load()
	}
	if _, err := os.Stat(configFile); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config file does not exist: %s", configFile)
	}
	l.v.SetConfigFile(configFile)
	return l.read(false)
}

func (l *Loader) read(optional bool) (*Config, error) {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	l.v.AutomaticEnv()
	for key, value := range defaultSettings() {
		l.v.SetDefault(key, value)
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !optional || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// FileUsed is the config file that was read, or "".
func (l *Loader) FileUsed() string {
	return l.v.ConfigFileUsed()
}

// Settings returns every resolved key as nested maps.
func (l *Loader) Settings() map[string]any {
	return l.v.AllSettings()
}

// defaultSettings flattens DefaultConfig into viper keys. Every key must
// have a default for AutomaticEnv to see it during Unmarshal.
func defaultSettings() map[string]any {
	d := DefaultConfig()
	return map[string]any{
		"log_level": d.LogLevel,
		"verbose":   d.Verbose,

		"evaluation.iou_threshold": d.Evaluation.IoUThreshold,
		"evaluation.workers":       d.Evaluation.Workers,
		"evaluation.pattern":       d.Evaluation.Pattern,

		"output.format":       d.Output.Format,
		"output.file":         d.Output.File,
		"output.precision":    d.Output.Precision,
		"output.per_image":    d.Output.PerImage,
		"output.metrics_file": d.Output.MetricsFile,

		"server.host":                 d.Server.Host,
		"server.port":                 d.Server.Port,
		"server.cors_origin":          d.Server.CORSOrigin,
		"server.max_upload_mb":        d.Server.MaxUploadMB,
		"server.timeout_sec":          d.Server.TimeoutSec,
		"server.shutdown_timeout":     d.Server.ShutdownTimeout,
		"server.rate_limit_enabled":   d.Server.RateLimitEnabled,
		"server.requests_per_minute":  d.Server.RequestsPerMinute,
		"server.requests_per_hour":    d.Server.RequestsPerHour,
		"server.max_requests_per_day": d.Server.MaxRequestsPerDay,
		"server.max_data_per_day":     d.Server.MaxDataPerDay,
	}
}

// GenerateDefaultConfigFile writes the defaults as YAML to filename, or to
// deteval.yaml when it is empty.
func GenerateDefaultConfigFile(filename string) error {
	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}
	v := viper.New()
	for key, value := range defaultSettings() {
		v.SetDefault(key, value)
	}
	return v.WriteConfigAs(filename)
}

// GetConfigSearchPaths lists the directories searched for deteval.yaml, in
// order: the working directory, $HOME, $XDG_CONFIG_HOME/deteval (or
// ~/.config/deteval) and /etc/deteval.
func GetConfigSearchPaths() []string {
	paths := []string{"."}
	home, err := os.UserHomeDir()
	if err == nil {
		paths = append(paths, home)
	}

	switch xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); {
	case ok:
		paths = append(paths, filepath.Join(xdg, ConfigFileName))
	case err == nil:
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
	}
	return append(paths, filepath.Join("/etc", ConfigFileName))
}
