package processfile

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/core-tools/hsu-vpnshell/pkg/errors"
	"github.com/core-tools/hsu-vpnshell/pkg/logging"
)

// Default application name used for the client directory tree
const DefaultAppName = "hsu-vpnshell"

// ProcessFileConfig describes where the managed client keeps its files
type ProcessFileConfig struct {
	// Base directory for all client files. If empty, uses OS-appropriate default
	BaseDirectory string `yaml:"base_directory,omitempty"`

	// Service context - affects directory selection
	ServiceContext ServiceContext `yaml:"service_context,omitempty"`

	// Application name for subdirectory creation
	AppName string `yaml:"app_name,omitempty"`
}

// ServiceContext defines the context in which the client runs
type ServiceContext string

const (
	// SystemService: the client is a daemon owned by the OS service manager
	SystemService ServiceContext = "system"

	// UserService: the client is spawned by the shell for the current user
	UserService ServiceContext = "user"

	// SessionService: files are cleaned up on logout
	SessionService ServiceContext = "session"
)

// ProcessFileManager resolves the client's config, runtime and log directories
// and manages its PID file.
type ProcessFileManager struct {
	config ProcessFileConfig
	logger logging.Logger
}

// NewProcessFileManager creates a new process file manager with the given configuration
func NewProcessFileManager(config ProcessFileConfig, logger logging.Logger) *ProcessFileManager {
	if config.AppName == "" {
		config.AppName = DefaultAppName
	}

	if config.ServiceContext == "" {
		config.ServiceContext = UserService
	}

	return &ProcessFileManager{
		config: config,
		logger: logger,
	}
}

// ConfigDirectory is passed to the client as --config-dir
func (m *ProcessFileManager) ConfigDirectory() string {
	return filepath.Join(m.appDirectory(), "config")
}

// RuntimeDirectory is passed to the client as --runtime-dir; the PID file lives here too
func (m *ProcessFileManager) RuntimeDirectory() string {
	if m.config.BaseDirectory != "" {
		return filepath.Join(m.config.BaseDirectory, "run")
	}
	return filepath.Join(m.getRuntimeBaseDirectory(), m.config.AppName)
}

// LogDirectory holds the stdout/stderr mirrors of the client
func (m *ProcessFileManager) LogDirectory() string {
	if m.config.BaseDirectory != "" {
		return filepath.Join(m.config.BaseDirectory, "logs")
	}
	return filepath.Join(m.getLogBaseDirectory(), m.config.AppName)
}

// LogFilePath returns the path of a log file inside LogDirectory
func (m *ProcessFileManager) LogFilePath(name string) string {
	return filepath.Join(m.LogDirectory(), name)
}

// Directories lists every directory the client expects to exist
func (m *ProcessFileManager) Directories() []string {
	return []string{m.ConfigDirectory(), m.RuntimeDirectory(), m.LogDirectory()}
}

// MissingDirectories returns the directories from Directories that do not exist yet
func (m *ProcessFileManager) MissingDirectories() ([]string, error) {
	var missing []string
	for _, dir := range m.Directories() {
		info, err := os.Stat(dir)
		if err != nil {
			if os.IsNotExist(err) {
				missing = append(missing, dir)
				continue
			}
			return nil, errors.NewIOError("failed to access client directory", err).WithContext("directory", dir)
		}
		if !info.IsDir() {
			return nil, errors.NewValidationError("client path is not a directory", nil).WithContext("path", dir)
		}
	}
	return missing, nil
}

// EnsureDirectories creates all client directories
func (m *ProcessFileManager) EnsureDirectories() error {
	for _, dir := range m.Directories() {
		m.logger.Debugf("Ensuring client directory, path: %s", dir)
		if err := os.MkdirAll(dir, 0755); err != nil {
			if os.IsPermission(err) {
				return errors.NewPermissionError("failed to create client directory", err).WithContext("directory", dir)
			}
			return errors.NewIOError("failed to create client directory", err).WithContext("directory", dir)
		}
	}
	return nil
}

// GeneratePIDFilePath generates the PID file path for the given process id
func (m *ProcessFileManager) GeneratePIDFilePath(id string) string {
	return filepath.Join(m.RuntimeDirectory(), id+".pid")
}

// WritePIDFile writes the process PID to the appropriate file for the given process id
func (m *ProcessFileManager) WritePIDFile(id string, pid int) error {
	pidFilePath := m.GeneratePIDFilePath(id)
	m.logger.Debugf("Writing PID file, id: %s, pid: %d, path: %s", id, pid, pidFilePath)

	if err := ValidatePIDFileDirectory(pidFilePath); err != nil {
		m.logger.Errorf("PID file directory validation failed, id: %s, path: %s, error: %v", id, pidFilePath, err)
		return errors.NewIOError("PID file directory validation failed", err).WithContext("pid_file", pidFilePath)
	}

	pidContent := fmt.Sprintf("%d\n", pid)
	if err := os.WriteFile(pidFilePath, []byte(pidContent), 0644); err != nil {
		m.logger.Errorf("Failed to write PID file, id: %s, pid: %d, path: %s, error: %v", id, pid, pidFilePath, err)
		return errors.NewIOError("failed to write PID file", err).WithContext("pid_file", pidFilePath).WithContext("pid", pid)
	}

	m.logger.Infof("PID file written successfully, id: %s, pid: %d, path: %s", id, pid, pidFilePath)
	return nil
}

// ReadPIDFile reads the PID left behind by a previous run
func (m *ProcessFileManager) ReadPIDFile(id string) (int, error) {
	pidFilePath := m.GeneratePIDFilePath(id)

	content, err := os.ReadFile(pidFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.NewNotFoundError("PID file not found", err).WithContext("pid_file", pidFilePath)
		}
		return 0, errors.NewIOError("failed to read PID file", err).WithContext("pid_file", pidFilePath)
	}

	pidStr := strings.TrimSpace(string(content))
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return 0, errors.NewValidationError("invalid PID in PID file", err).WithContext("pid_file", pidFilePath).WithContext("content", pidStr)
	}
	return pid, nil
}

// RemovePIDFile deletes the PID file; a missing file is not an error
func (m *ProcessFileManager) RemovePIDFile(id string) error {
	pidFilePath := m.GeneratePIDFilePath(id)
	if err := os.Remove(pidFilePath); err != nil && !os.IsNotExist(err) {
		return errors.NewIOError("failed to remove PID file", err).WithContext("pid_file", pidFilePath)
	}
	return nil
}

func (m *ProcessFileManager) appDirectory() string {
	if m.config.BaseDirectory != "" {
		return m.config.BaseDirectory
	}
	return filepath.Join(m.getConfigBaseDirectory(), m.config.AppName)
}

func (m *ProcessFileManager) getConfigBaseDirectory() string {
	if m.config.ServiceContext == SystemService {
		switch runtime.GOOS {
		case "windows":
			return programData()
		case "darwin":
			return "/Library/Application Support"
		default:
			return "/etc"
		}
	}

	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return os.TempDir()
}

// getRuntimeBaseDirectory returns the base directory for the runtime dir and PID file
func (m *ProcessFileManager) getRuntimeBaseDirectory() string {
	switch m.config.ServiceContext {
	case SystemService:
		switch runtime.GOOS {
		case "windows":
			return programData()
		case "darwin":
			return "/var/run"
		default:
			// Modern standard is /run, with fallback to /var/run
			if _, err := os.Stat("/run"); err == nil {
				return "/run"
			}
			return "/var/run"
		}

	case SessionService:
		if runtime.GOOS == "linux" {
			sessionDir := fmt.Sprintf("/run/user/%d", os.Getuid())
			if _, err := os.Stat(sessionDir); err == nil {
				return sessionDir
			}
		}
		return os.TempDir()

	default:
		switch runtime.GOOS {
		case "windows":
			return localAppData()
		case "darwin":
			if homeDir, err := os.UserHomeDir(); err == nil {
				return filepath.Join(homeDir, "Library", "Application Support")
			}
			return os.TempDir()
		default:
			if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
				return runtimeDir
			}
			return os.TempDir()
		}
	}
}

// getLogBaseDirectory returns the appropriate base directory for log files
func (m *ProcessFileManager) getLogBaseDirectory() string {
	switch m.config.ServiceContext {
	case SystemService:
		if runtime.GOOS == "windows" {
			return filepath.Join(programData(), "logs")
		}
		return "/var/log"

	case SessionService:
		return filepath.Join(os.TempDir(), "logs")

	default:
		switch runtime.GOOS {
		case "windows":
			return filepath.Join(localAppData(), "logs")
		case "darwin":
			if homeDir, err := os.UserHomeDir(); err == nil {
				return filepath.Join(homeDir, "Library", "Logs")
			}
			return filepath.Join(os.TempDir(), "logs")
		default:
			// XDG_STATE_HOME or ~/.local/state for user logs
			if stateHome := os.Getenv("XDG_STATE_HOME"); stateHome != "" {
				return stateHome
			}
			if homeDir, err := os.UserHomeDir(); err == nil {
				return filepath.Join(homeDir, ".local", "state")
			}
			return filepath.Join(os.TempDir(), "logs")
		}
	}
}

func programData() string {
	if dir := os.Getenv("PROGRAMDATA"); dir != "" {
		return dir
	}
	return "C:\\ProgramData"
}

func localAppData() string {
	if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
		return dir
	}
	if userProfile := os.Getenv("USERPROFILE"); userProfile != "" {
		return filepath.Join(userProfile, "AppData", "Local")
	}
	return "C:\\Users\\Default\\AppData\\Local"
}

// ValidatePIDFileDirectory validates that the PID file directory exists and is writable
func ValidatePIDFileDirectory(pidFilePath string) error {
	dir := filepath.Dir(pidFilePath)

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return errors.NewIOError("failed to create PID file directory", err).WithContext("directory", dir)
			}
		} else {
			return errors.NewIOError("failed to access PID file directory", err).WithContext("directory", dir)
		}
	} else if !info.IsDir() {
		return errors.NewValidationError("PID file path is not a directory", nil).WithContext("path", dir)
	}

	testFile := filepath.Join(dir, ".write_test")
	file, err := os.Create(testFile)
	if err != nil {
		return errors.NewPermissionError("PID file directory is not writable", err).WithContext("directory", dir)
	}
	file.Close()
	os.Remove(testFile)

	return nil
}

// GetRecommendedProcessFileConfig maps a client mode to a file layout
func GetRecommendedProcessFileConfig(scenario string, appName string) ProcessFileConfig {
	if appName == "" {
		appName = DefaultAppName
	}

	switch strings.ToLower(scenario) {
	case "system", "daemon", "service", "service_manager":
		return ProcessFileConfig{ServiceContext: SystemService, AppName: appName}

	case "session", "desktop":
		return ProcessFileConfig{ServiceContext: SessionService, AppName: appName}

	case "development", "dev", "test":
		return ProcessFileConfig{
			BaseDirectory:  filepath.Join(os.TempDir(), appName+"-dev"),
			ServiceContext: UserService,
			AppName:        appName,
		}

	default:
		return ProcessFileConfig{ServiceContext: UserService, AppName: appName}
	}
}
