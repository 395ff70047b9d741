package process

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/core-tools/hsu-vpnshell/pkg/errors"
)

// ValidateConfig validates client process configuration
func ValidateConfig(config Config) error {
	switch config.Mode {
	case ModeStandalone, "":
		if config.Execution.ExecutablePath == "" {
			return errors.NewValidationError("executable path is required for standalone client", nil)
		}
	case ModeServiceManager:
		if config.LaunchDaemon.Elevation != "" {
			switch config.LaunchDaemon.Elevation {
			case ElevationOsascript, ElevationSudo, ElevationNone:
			default:
				return errors.NewValidationError("unsupported elevation method: "+string(config.LaunchDaemon.Elevation), nil)
			}
		}
	default:
		return errors.NewValidationError("unsupported client mode: "+string(config.Mode), nil)
	}

	if config.StopTimeout < 0 {
		return errors.NewValidationError("stop timeout cannot be negative", nil)
	}

	return nil
}

// ValidateExecutionConfig validates execution configuration
func ValidateExecutionConfig(config ExecutionConfig) error {
	if config.ExecutablePath == "" {
		return errors.NewValidationError("executable path is required", nil)
	}

	if _, err := os.Stat(config.ExecutablePath); os.IsNotExist(err) {
		return errors.NewValidationError("executable not found: "+config.ExecutablePath, err)
	}

	if config.WorkingDirectory != "" {
		if !filepath.IsAbs(config.WorkingDirectory) {
			return errors.NewValidationError("working directory must be absolute path", nil)
		}

		if info, err := os.Stat(config.WorkingDirectory); err != nil {
			return errors.NewValidationError("working directory not accessible: "+config.WorkingDirectory, err)
		} else if !info.IsDir() {
			return errors.NewValidationError("working directory is not a directory: "+config.WorkingDirectory, nil)
		}
	}

	for _, env := range config.Environment {
		if !strings.Contains(env, "=") {
			return errors.NewValidationError("invalid environment variable format: "+env, nil)
		}
	}

	return nil
}
