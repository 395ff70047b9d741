package terms

import (
	"bytes"
	_ "embed"
	"encoding/hex"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"github.com/core-tools/hsu-vpnshell/pkg/errors"
	"github.com/core-tools/hsu-vpnshell/pkg/logging"
)

//go:embed default_terms.md
var defaultTerms []byte

// Terms exposes the terms of use and whether the user accepted the current
// version of them.
type Terms interface {
	Load() error
	IsAccepted() bool
	Accept() error
	Content() string
}

type acceptanceRecord struct {
	Version    string    `yaml:"version"`
	AcceptedAt time.Time `yaml:"accepted_at"`
}

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// FileTerms renders markdown terms to HTML and stores acceptance in a YAML
// record keyed by a hash of the terms text, so edited terms must be
// accepted again.
type FileTerms struct {
	sourcePath     string
	acceptancePath string
	logger         logging.Logger

	mutex    sync.RWMutex
	content  string
	version  string
	accepted bool
}

// NewFileTerms reads terms from sourcePath, or the bundled terms when it is empty.
func NewFileTerms(sourcePath, acceptancePath string, logger logging.Logger) *FileTerms {
	return &FileTerms{
		sourcePath:     sourcePath,
		acceptancePath: acceptancePath,
		logger:         logger,
	}
}

func (t *FileTerms) Load() error {
	source := defaultTerms
	if t.sourcePath != "" {
		data, err := os.ReadFile(t.sourcePath)
		if err != nil {
			return errors.NewIOError("failed to read terms", err).WithContext("path", t.sourcePath)
		}
		source = data
	}

	var html bytes.Buffer
	if err := markdown.Convert(source, &html); err != nil {
		return errors.NewValidationError("failed to render terms", err)
	}
	version := Version(source)

	accepted, err := t.readAcceptance(version)

	t.mutex.Lock()
	t.content = html.String()
	t.version = version
	t.accepted = accepted
	t.mutex.Unlock()

	if err != nil {
		return err
	}
	t.logger.Debugf("Terms loaded, version: %s, accepted: %v", version, accepted)
	return nil
}

func (t *FileTerms) readAcceptance(version string) (bool, error) {
	data, err := os.ReadFile(t.acceptancePath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.NewIOError("failed to read terms acceptance", err).WithContext("path", t.acceptancePath)
	}

	var record acceptanceRecord
	if err := yaml.Unmarshal(data, &record); err != nil {
		return false, errors.NewValidationError("failed to parse terms acceptance", err).WithContext("path", t.acceptancePath)
	}
	return record.Version == version, nil
}

func (t *FileTerms) IsAccepted() bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.accepted
}

func (t *FileTerms) Content() string {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	return t.content
}

// Accept records acceptance of the loaded terms version.
func (t *FileTerms) Accept() error {
	t.mutex.RLock()
	version := t.version
	t.mutex.RUnlock()
	if version == "" {
		return errors.NewConflictError("terms are not loaded", nil)
	}

	data, err := yaml.Marshal(acceptanceRecord{Version: version, AcceptedAt: time.Now().UTC()})
	if err != nil {
		return errors.NewInternalError("failed to encode terms acceptance", err)
	}
	if err := t.writeRecord(data); err != nil {
		return err
	}

	t.mutex.Lock()
	t.accepted = true
	t.mutex.Unlock()

	t.logger.Infof("Terms accepted, version: %s", version)
	return nil
}

// writeRecord replaces the acceptance record through a temp file, so a crash
// mid-write never leaves a truncated record behind.
func (t *FileTerms) writeRecord(data []byte) error {
	dir := filepath.Dir(t.acceptancePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewIOError("failed to create terms directory", err).WithContext("path", t.acceptancePath)
	}

	tmp, err := os.CreateTemp(dir, ".terms-*")
	if err != nil {
		return errors.NewIOError("failed to write terms acceptance", err).WithContext("path", t.acceptancePath)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.NewIOError("failed to write terms acceptance", err).WithContext("path", t.acceptancePath)
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return errors.NewIOError("failed to write terms acceptance", err).WithContext("path", t.acceptancePath)
	}
	if err := tmp.Close(); err != nil {
		return errors.NewIOError("failed to write terms acceptance", err).WithContext("path", t.acceptancePath)
	}
	if err := os.Rename(tmp.Name(), t.acceptancePath); err != nil {
		return errors.NewIOError("failed to write terms acceptance", err).WithContext("path", t.acceptancePath)
	}
	return nil
}

// Version fingerprints a terms text.
func Version(source []byte) string {
	sum := blake3.Sum256(source)
	return hex.EncodeToString(sum[:8])
}
