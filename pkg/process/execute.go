package process

import (
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/core-tools/hsu-vpnshell/pkg/errors"
	"github.com/core-tools/hsu-vpnshell/pkg/logging"
)

type ExecutionConfig struct {
	ExecutablePath   string   `yaml:"executable_path"`
	Args             []string `yaml:"args,omitempty"`
	Environment      []string `yaml:"environment,omitempty"`
	WorkingDirectory string   `yaml:"working_directory,omitempty"`
}

type spawnedProcess struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser
}

// spawnProcess starts the executable in its own process group with stdout and
// stderr piped separately. leadingArgs come before the configured args.
func spawnProcess(execution ExecutionConfig, leadingArgs []string, id string, logger logging.Logger) (*spawnedProcess, error) {
	if err := ValidateExecutionConfig(execution); err != nil {
		logger.Errorf("Execution configuration validation failed, id: %s, error: %v", id, err)
		return nil, errors.NewValidationError("invalid execution configuration", err).WithContext("id", id)
	}

	if err := ensureExecutable(execution.ExecutablePath); err != nil {
		return nil, err
	}

	workDir := execution.WorkingDirectory
	if workDir == "" {
		absPath, err := filepath.Abs(execution.ExecutablePath)
		if err != nil {
			return nil, errors.NewIOError("failed to get absolute path", err).WithContext("id", id).WithContext("executable_path", execution.ExecutablePath)
		}
		workDir = filepath.Dir(absPath)
	}

	args := append(append([]string{}, leadingArgs...), execution.Args...)

	logger.Debugf("Executing process: id: %s, executable path: '%s', args: %v, working directory: '%s'",
		id, execution.ExecutablePath, args, workDir)

	cmd := exec.Command(execution.ExecutablePath, args...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), execution.Environment...)

	setupProcessAttributes(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.NewProcessError("failed to create stdout pipe", err).WithContext("id", id)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, errors.NewProcessError("failed to create stderr pipe", err).WithContext("id", id)
	}

	if err := cmd.Start(); err != nil {
		return nil, errors.NewProcessError("failed to start the process", err).WithContext("id", id).WithContext("executable_path", execution.ExecutablePath)
	}

	logger.Infof("Successfully executed process, id: %s, PID: %d", id, cmd.Process.Pid)

	return &spawnedProcess{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

// isExecutable reports whether the file at path can be run as is
func isExecutable(info os.FileInfo, path string) bool {
	if runtime.GOOS == "windows" {
		ext := filepath.Ext(path)
		return ext == ".exe" || ext == ".bat" || ext == ".cmd"
	}
	return info.Mode()&0111 != 0
}

// ensureExecutable checks if a file is executable and makes it executable if it's not
func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.NewIOError("file does not exist", err).WithContext("path", path)
	}

	if isExecutable(info, path) || runtime.GOOS == "windows" {
		return nil
	}

	if err := os.Chmod(path, info.Mode()|0111); err != nil {
		if os.IsPermission(err) {
			return errors.NewPermissionError("failed to make file executable", err).WithContext("path", path)
		}
		return errors.NewIOError("failed to make file executable", err).WithContext("path", path)
	}

	return nil
}
