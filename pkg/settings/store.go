package settings

import (
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/core-tools/hsu-vpnshell/pkg/errors"
	"github.com/core-tools/hsu-vpnshell/pkg/logging"
)

type UserSettings struct {
	ShowDisconnectNotifications bool     `yaml:"show_disconnect_notifications" json:"showDisconnectNotifications"`
	FavoriteProviders           []string `yaml:"favorite_providers,omitempty" json:"favoriteProviders"`
}

func DefaultUserSettings() UserSettings {
	return UserSettings{ShowDisconnectNotifications: true}
}

func (s UserSettings) clone() UserSettings {
	if s.FavoriteProviders != nil {
		s.FavoriteProviders = append([]string(nil), s.FavoriteProviders...)
	}
	return s
}

// Store keeps the user's shell preferences.
type Store interface {
	Load() error
	Get() UserSettings
	Set(settings UserSettings)
	Save() error
}

// FileStore persists settings as YAML. Until Load succeeds it serves
// DefaultUserSettings.
type FileStore struct {
	path     string
	logger   logging.Logger
	mutex    sync.RWMutex
	settings UserSettings
}

func NewFileStore(path string, logger logging.Logger) *FileStore {
	return &FileStore{
		path:     path,
		logger:   logger,
		settings: DefaultUserSettings(),
	}
}

// Load reads the settings file. A missing file leaves the defaults in place.
func (s *FileStore) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Debugf("No user settings file yet, path: %s", s.path)
			return nil
		}
		return errors.NewIOError("failed to read user settings", err).WithContext("path", s.path)
	}

	loaded := DefaultUserSettings()
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return errors.NewValidationError("failed to parse user settings", err).WithContext("path", s.path)
	}

	s.mutex.Lock()
	s.settings = loaded
	s.mutex.Unlock()

	s.logger.Infof("User settings loaded, path: %s", s.path)
	return nil
}

func (s *FileStore) Get() UserSettings {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.settings.clone()
}

func (s *FileStore) Set(settings UserSettings) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.settings = settings.clone()
}

// Save writes the settings atomically through a temp file in the same directory.
func (s *FileStore) Save() error {
	data, err := yaml.Marshal(s.Get())
	if err != nil {
		return errors.NewInternalError("failed to encode user settings", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewIOError("failed to create settings directory", err).WithContext("directory", dir)
	}

	tmp, err := os.CreateTemp(dir, ".settings-*")
	if err != nil {
		return errors.NewIOError("failed to save user settings", err).WithContext("path", s.path)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.NewIOError("failed to save user settings", err).WithContext("path", s.path)
	}
	if err := tmp.Close(); err != nil {
		return errors.NewIOError("failed to save user settings", err).WithContext("path", s.path)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return errors.NewIOError("failed to save user settings", err).WithContext("path", s.path)
	}

	s.logger.Debugf("User settings saved, path: %s", s.path)
	return nil
}
