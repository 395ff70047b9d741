package main

import (
	"context"
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/core-tools/hsu-vpnshell/pkg/bugreporting"
	"github.com/core-tools/hsu-vpnshell/pkg/features"
	"github.com/core-tools/hsu-vpnshell/pkg/fetchers"
	"github.com/core-tools/hsu-vpnshell/pkg/headless"
	"github.com/core-tools/hsu-vpnshell/pkg/logging"
	"github.com/core-tools/hsu-vpnshell/pkg/notification"
	"github.com/core-tools/hsu-vpnshell/pkg/processfile"
	"github.com/core-tools/hsu-vpnshell/pkg/settings"
	"github.com/core-tools/hsu-vpnshell/pkg/shell"
	"github.com/core-tools/hsu-vpnshell/pkg/tequilapi"
	"github.com/core-tools/hsu-vpnshell/pkg/terms"
)

type flagOptions struct {
	Config      string `long:"config" short:"c" description:"path to the YAML configuration file"`
	LogLevel    string `long:"log-level" description:"override the configured log level (debug, info, warn, error)"`
	AcceptTerms bool   `long:"accept-terms" description:"answer terms requests with acceptance"`
	Features    string `long:"features" description:"path to the feature flags file (JSONC)"`
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	_, err := parser.ParseArgs(argv)
	if err != nil {
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	config, err := loadConfig(opts)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	zapLogger, err := logging.NewZapLogger(config.Logging)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()

	logger := logging.NewLogger(logging.ModulePrefix("vpnshell"), logging.ZapLogFuncs(zapLogger))
	logger.Infof("opts: %+v", opts)

	if err := run(config, zapLogger, logger); err != nil {
		logger.Errorf("VPN shell failed: %v", err)
		zapLogger.Sync()
		os.Exit(1)
	}
}

func loadConfig(opts flagOptions) (*shell.Config, error) {
	var config *shell.Config
	var err error
	if opts.Config != "" {
		config, err = shell.LoadConfigFromFile(opts.Config)
	} else {
		config, err = shell.DefaultConfig()
	}
	if err != nil {
		return nil, err
	}

	if opts.LogLevel != "" {
		config.Logging.Level = opts.LogLevel
	}
	if opts.AcceptTerms {
		config.Headless.AcceptTerms = true
	}
	if opts.Features != "" {
		config.FeaturesFile = opts.Features
	}

	enabled := features.None()
	if config.FeaturesFile != "" {
		enabled, err = features.Read(config.FeaturesFile)
		if err != nil {
			return nil, err
		}
	}
	shell.ApplyFeatures(config, enabled)

	if err := shell.ValidateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

func run(config *shell.Config, zapLogger *zap.Logger, logger logging.Logger) error {
	reporter := bugreporting.NewZapReporter(zapLogger.Named("bugreport"), config.BugReporting.LogCacheSize)
	logger.Infof("Bug reporting session: %s", reporter.SessionID())

	api := tequilapi.New(config.Client.API.Address, config.Client.API.Timeout)
	files := processfile.NewProcessFileManager(config.Client.Files, logging.NewModuleLogger("processfile", logger))

	onPanic := func(name string, err error) {
		logger.Errorf("Message handler %q panicked: %v", name, err)
		reporter.CaptureErrorException(err)
	}

	disconnected := notification.NewDesktopNotification(config.Notifications.Disconnect, nil, logging.NewModuleLogger("notification", logger))
	runner := shell.NewRunner(shell.DefaultShutdownTimeout, logging.NewModuleLogger("runner", logger))

	orchestrator, err := shell.NewShell(shell.Options{
		WindowSizes:            config.Windows,
		StartupThreshold:       config.Monitoring.StartupThreshold,
		Windows:                headless.NewFactory(config.Headless, api, onPanic, logging.NewModuleLogger("window", logger)),
		Terms:                  terms.NewFileTerms(config.Terms.SourcePath, config.Terms.AcceptancePath, logging.NewModuleLogger("terms", logger)),
		NewHandle:              shell.NewHandleFactory(config.Client.Config, files, api, logger),
		NewMonitor:             shell.NewMonitorFactory(config.Monitoring.HealthCheck, config.Client.ID, logger),
		Fetcher:                fetchers.NewProposalFetcher(api, config.Proposals.Interval, logging.NewModuleLogger("proposals", logger)),
		Settings:               settings.NewFileStore(config.Settings.Path, logging.NewModuleLogger("settings", logger)),
		BugReporter:            reporter,
		DisconnectNotification: disconnected,
		Quit:                   runner.Quit,
	}, logging.NewModuleLogger("shell", logger))
	if err != nil {
		return err
	}

	controller := shell.NewController(orchestrator, runner.Quit, reporter, logging.NewModuleLogger("lifecycle", logger))

	logger.Infof("Starting VPN shell, client mode: %s", config.Client.Mode)
	return runner.Run(context.Background(), controller)
}
