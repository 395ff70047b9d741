package shell

import (
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/core-tools/hsu-vpnshell/pkg/bugreporting"
	"github.com/core-tools/hsu-vpnshell/pkg/errors"
	"github.com/core-tools/hsu-vpnshell/pkg/features"
	"github.com/core-tools/hsu-vpnshell/pkg/fetchers"
	"github.com/core-tools/hsu-vpnshell/pkg/headless"
	"github.com/core-tools/hsu-vpnshell/pkg/logging"
	"github.com/core-tools/hsu-vpnshell/pkg/monitoring"
	"github.com/core-tools/hsu-vpnshell/pkg/notification"
	"github.com/core-tools/hsu-vpnshell/pkg/process"
	"github.com/core-tools/hsu-vpnshell/pkg/processfile"
	"github.com/core-tools/hsu-vpnshell/pkg/tequilapi"
	"github.com/core-tools/hsu-vpnshell/pkg/window"
)

// DefaultStartupThreshold is how long the client gets to report healthy
// before the UI is told it failed to start.
const DefaultStartupThreshold = 10 * time.Second

// Config represents the top-level configuration file structure
type Config struct {
	App           AppConfig           `yaml:"app"`
	Windows       WindowsConfig       `yaml:"windows"`
	Client        ClientConfig        `yaml:"client"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	Proposals     ProposalsConfig     `yaml:"proposals"`
	Terms         TermsConfig         `yaml:"terms"`
	Settings      SettingsConfig      `yaml:"settings"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Logging       logging.ZapConfig   `yaml:"logging"`
	BugReporting  BugReportingConfig  `yaml:"bug_reporting"`
	Headless      headless.Config     `yaml:"headless"`
	FeaturesFile  string              `yaml:"features_file,omitempty"`
}

type AppConfig struct {
	Name string `yaml:"name,omitempty"`
	// DataDirectory holds the terms acceptance record and user settings.
	DataDirectory string `yaml:"data_directory,omitempty"`
}

type WindowsConfig struct {
	Terms window.Size `yaml:"terms"`
	App   window.Size `yaml:"app"`
}

type ClientConfig struct {
	process.Config `yaml:",inline"`
	API            APIConfig `yaml:"api"`
}

type APIConfig struct {
	Address string        `yaml:"address,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

type MonitoringConfig struct {
	HealthCheck      monitoring.HealthCheckConfig `yaml:"health_check"`
	StartupThreshold time.Duration                `yaml:"startup_threshold,omitempty"`
}

type ProposalsConfig struct {
	Interval time.Duration `yaml:"interval,omitempty"`
}

type TermsConfig struct {
	// SourcePath is a markdown file; empty uses the bundled terms.
	SourcePath     string `yaml:"source_path,omitempty"`
	AcceptancePath string `yaml:"acceptance_path,omitempty"`
}

type SettingsConfig struct {
	Path string `yaml:"path,omitempty"`
}

type NotificationsConfig struct {
	Disconnect notification.Config `yaml:"disconnect"`
}

type BugReportingConfig struct {
	LogCacheSize int `yaml:"log_cache_size,omitempty"`
}

// LoadConfigFromFile loads shell configuration from a YAML file
func LoadConfigFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
	}
	return ParseConfig(data)
}

// ParseConfig parses YAML configuration and applies defaults.
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.NewValidationError("failed to parse YAML configuration", err)
	}

	if err := setConfigDefaults(&config); err != nil {
		return nil, errors.NewValidationError("failed to apply configuration defaults", err)
	}

	return &config, nil
}

// DefaultConfig is the configuration used when no file is given.
func DefaultConfig() (*Config, error) {
	return ParseConfig(nil)
}

// ApplyFeatures lets the feature file pick the client variant when the
// configuration leaves it open.
func ApplyFeatures(config *Config, enabled *features.Features) {
	if config.Client.Mode == "" && enabled.Enabled(features.ServiceManager) {
		config.Client.Mode = process.ModeServiceManager
	}
}

// setConfigDefaults applies default values to configuration
func setConfigDefaults(config *Config) error {
	if config.App.Name == "" {
		config.App.Name = processfile.DefaultAppName
	}
	if config.App.DataDirectory == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			return errors.NewIOError("failed to resolve user config directory", err)
		}
		config.App.DataDirectory = filepath.Join(base, config.App.Name)
	}

	if config.Windows.Terms == (window.Size{}) {
		config.Windows.Terms = window.TermsSize
	}
	if config.Windows.App == (window.Size{}) {
		config.Windows.App = window.AppSize
	}

	if config.Client.ID == "" {
		config.Client.ID = process.DefaultProcessID
	}
	if config.Client.StopTimeout == 0 {
		config.Client.StopTimeout = process.DefaultStopTimeout
	}
	if config.Client.Files.AppName == "" {
		config.Client.Files.AppName = config.App.Name
	}
	if config.Client.API.Address == "" {
		config.Client.API.Address = tequilapi.DefaultAddress
	}
	if config.Client.API.Timeout == 0 {
		config.Client.API.Timeout = tequilapi.DefaultTimeout
	}

	defaults := monitoring.DefaultHealthCheckConfig()
	if config.Monitoring.HealthCheck.Type == "" {
		config.Monitoring.HealthCheck.Type = defaults.Type
		if config.Monitoring.HealthCheck.HTTP.URL == "" {
			config.Monitoring.HealthCheck.HTTP.URL = config.Client.API.Address + "/healthcheck"
		}
	}
	if config.Monitoring.HealthCheck.RunOptions.Interval == 0 {
		config.Monitoring.HealthCheck.RunOptions.Interval = defaults.RunOptions.Interval
	}
	if config.Monitoring.HealthCheck.RunOptions.Timeout == 0 {
		config.Monitoring.HealthCheck.RunOptions.Timeout = defaults.RunOptions.Timeout
	}
	if config.Monitoring.StartupThreshold == 0 {
		config.Monitoring.StartupThreshold = DefaultStartupThreshold
	}

	if config.Proposals.Interval == 0 {
		config.Proposals.Interval = fetchers.DefaultInterval
	}

	if config.Terms.AcceptancePath == "" {
		config.Terms.AcceptancePath = filepath.Join(config.App.DataDirectory, "terms.yaml")
	}
	if config.Settings.Path == "" {
		config.Settings.Path = filepath.Join(config.App.DataDirectory, "settings.yaml")
	}

	if config.Notifications.Disconnect == (notification.Config{}) {
		config.Notifications.Disconnect = notification.DefaultDisconnectConfig()
	}

	loggingDefaults := logging.DefaultZapConfig()
	if config.Logging.Level == "" {
		config.Logging.Level = loggingDefaults.Level
	}
	if config.Logging.Format == "" {
		config.Logging.Format = loggingDefaults.Format
	}
	if config.Logging.Output == "" {
		config.Logging.Output = loggingDefaults.Output
	}

	if config.BugReporting.LogCacheSize == 0 {
		config.BugReporting.LogCacheSize = bugreporting.DefaultLogCacheSize
	}

	return nil
}

// ValidateConfig validates the entire configuration structure
func ValidateConfig(config *Config) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	if err := window.ValidateSize(config.Windows.Terms); err != nil {
		return errors.NewValidationError("invalid terms window size", err)
	}
	if err := window.ValidateSize(config.Windows.App); err != nil {
		return errors.NewValidationError("invalid app window size", err)
	}

	if err := process.ValidateConfig(config.Client.Config); err != nil {
		return errors.NewValidationError("invalid client configuration", err)
	}
	if _, err := url.ParseRequestURI(config.Client.API.Address); err != nil {
		return errors.NewValidationError("invalid client API address", err).WithContext("address", config.Client.API.Address)
	}

	if err := monitoring.ValidateHealthCheckConfig(config.Monitoring.HealthCheck); err != nil {
		return errors.NewValidationError("invalid health check configuration", err)
	}
	if config.Monitoring.StartupThreshold < 0 {
		return errors.NewValidationError("startup threshold cannot be negative", nil)
	}

	if config.Proposals.Interval < 0 {
		return errors.NewValidationError("proposal interval cannot be negative", nil)
	}

	return nil
}
