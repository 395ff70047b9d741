package process

import (
	"context"
	"os"

	"github.com/core-tools/hsu-vpnshell/pkg/errors"
	"github.com/core-tools/hsu-vpnshell/pkg/logging"
	"github.com/core-tools/hsu-vpnshell/pkg/processfile"
)

// BinaryInstaller prepares a bundled client binary and its directories for
// the standalone variant.
type BinaryInstaller struct {
	execution ExecutionConfig
	files     *processfile.ProcessFileManager
	logger    logging.Logger
}

func NewBinaryInstaller(execution ExecutionConfig, files *processfile.ProcessFileManager, logger logging.Logger) *BinaryInstaller {
	return &BinaryInstaller{
		execution: execution,
		files:     files,
		logger:    logger,
	}
}

func (i *BinaryInstaller) NeedsInstallation() (bool, error) {
	info, err := os.Stat(i.execution.ExecutablePath)
	if err != nil {
		if os.IsNotExist(err) {
			i.logger.Infof("Client binary is missing, path: %s", i.execution.ExecutablePath)
			return true, nil
		}
		return false, errors.NewIOError("failed to inspect client binary", err).WithContext("path", i.execution.ExecutablePath)
	}
	if !isExecutable(info, i.execution.ExecutablePath) {
		i.logger.Infof("Client binary is not executable, path: %s", i.execution.ExecutablePath)
		return true, nil
	}

	missing, err := i.files.MissingDirectories()
	if err != nil {
		return false, err
	}
	if len(missing) > 0 {
		i.logger.Infof("Client directories are missing: %v", missing)
		return true, nil
	}
	return false, nil
}

func (i *BinaryInstaller) Install(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return errors.NewCancelledError("installation cancelled", err)
	}

	if err := i.files.EnsureDirectories(); err != nil {
		if errors.IsPermissionError(err) {
			return err
		}
		return errors.NewInstallationError("failed to create client directories", err)
	}

	if _, err := os.Stat(i.execution.ExecutablePath); err != nil {
		if os.IsPermission(err) {
			return errors.NewPermissionError("client binary is not accessible", err).WithContext("path", i.execution.ExecutablePath)
		}
		return errors.NewInstallationError("client binary not found", err).WithContext("path", i.execution.ExecutablePath)
	}

	if err := ensureExecutable(i.execution.ExecutablePath); err != nil {
		if errors.IsPermissionError(err) {
			return err
		}
		return errors.NewInstallationError("failed to prepare client binary", err)
	}

	i.logger.Infof("Client installed, binary: %s", i.execution.ExecutablePath)
	return nil
}
