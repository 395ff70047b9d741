package process

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"text/template"

	"github.com/core-tools/hsu-vpnshell/pkg/errors"
	"github.com/core-tools/hsu-vpnshell/pkg/logging"
	"github.com/core-tools/hsu-vpnshell/pkg/processfile"
)

type ElevationMethod string

const (
	ElevationOsascript ElevationMethod = "osascript"
	ElevationSudo      ElevationMethod = "sudo"
	ElevationNone      ElevationMethod = "none"
)

const (
	DefaultDaemonLabel = "network.hsu.vpnclient"
	DefaultLoadCommand = "launchctl load -w"
)

type LaunchDaemonConfig struct {
	Label       string          `yaml:"label,omitempty"`
	PlistPath   string          `yaml:"plist_path,omitempty"`
	Elevation   ElevationMethod `yaml:"elevation,omitempty"`
	LoadCommand string          `yaml:"load_command,omitempty"`
}

// xmlEscape keeps paths with markup characters from breaking the plist.
func xmlEscape(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

var plistTemplate = template.Must(template.New("plist").Funcs(template.FuncMap{"xml": xmlEscape}).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{xml .Label}}</string>
	<key>ProgramArguments</key>
	<array>
{{- range .Arguments}}
		<string>{{xml .}}</string>
{{- end}}
	</array>
	<key>WorkingDirectory</key>
	<string>{{xml .WorkingDirectory}}</string>
	<key>StandardOutPath</key>
	<string>{{xml .StdoutPath}}</string>
	<key>StandardErrorPath</key>
	<string>{{xml .StderrPath}}</string>
	<key>KeepAlive</key>
	<true/>
	<key>RunAtLoad</key>
	<true/>
</dict>
</plist>
`))

var installScriptTemplate = template.Must(template.New("install").Parse(
	`cp {{.Source}} {{.Target}} && chmod 644 {{.Target}} && {{.LoadCommand}} {{.Target}}`))

type plistData struct {
	Label            string
	Arguments        []string
	WorkingDirectory string
	StdoutPath       string
	StderrPath       string
}

// LaunchDaemonInstaller registers the client as a launchd daemon. The
// installed plist is compared with the rendered one, so a shell update that
// changes the daemon definition triggers a reinstall.
type LaunchDaemonInstaller struct {
	config    LaunchDaemonConfig
	execution ExecutionConfig
	files     *processfile.ProcessFileManager
	logger    logging.Logger
}

func NewLaunchDaemonInstaller(config LaunchDaemonConfig, execution ExecutionConfig, files *processfile.ProcessFileManager, logger logging.Logger) *LaunchDaemonInstaller {
	if config.Label == "" {
		config.Label = DefaultDaemonLabel
	}
	if config.PlistPath == "" {
		config.PlistPath = "/Library/LaunchDaemons/" + config.Label + ".plist"
	}
	if config.Elevation == "" {
		config.Elevation = ElevationOsascript
	}
	if config.LoadCommand == "" {
		config.LoadCommand = DefaultLoadCommand
	}
	return &LaunchDaemonInstaller{
		config:    config,
		execution: execution,
		files:     files,
		logger:    logger,
	}
}

// Render produces the plist the installer would install.
func (i *LaunchDaemonInstaller) Render() ([]byte, error) {
	arguments := append([]string{
		i.execution.ExecutablePath,
		"--config-dir", i.files.ConfigDirectory(),
		"--runtime-dir", i.files.RuntimeDirectory(),
	}, i.execution.Args...)

	data := plistData{
		Label:            i.config.Label,
		Arguments:        arguments,
		WorkingDirectory: i.files.RuntimeDirectory(),
		StdoutPath:       i.files.LogFilePath(stdoutLogFile),
		StderrPath:       i.files.LogFilePath(stderrLogFile),
	}

	var buf bytes.Buffer
	if err := plistTemplate.Execute(&buf, data); err != nil {
		return nil, errors.NewInternalError("failed to render daemon definition", err)
	}
	return buf.Bytes(), nil
}

func (i *LaunchDaemonInstaller) NeedsInstallation() (bool, error) {
	installed, err := os.ReadFile(i.config.PlistPath)
	if err != nil {
		if os.IsNotExist(err) {
			i.logger.Infof("Client daemon is not installed, plist: %s", i.config.PlistPath)
			return true, nil
		}
		return false, errors.NewIOError("failed to read installed daemon definition", err).WithContext("path", i.config.PlistPath)
	}

	rendered, err := i.Render()
	if err != nil {
		return false, err
	}
	if !bytes.Equal(installed, rendered) {
		i.logger.Infof("Client daemon definition expired, plist: %s", i.config.PlistPath)
		return true, nil
	}
	return false, nil
}

func (i *LaunchDaemonInstaller) Install(ctx context.Context) error {
	rendered, err := i.Render()
	if err != nil {
		return err
	}

	if err := i.files.EnsureDirectories(); err != nil && !errors.IsPermissionError(err) {
		// the elevated script runs as root; unprivileged failures here are expected
		i.logger.Warnf("Failed to prepare client directories: %v", err)
	}

	tmp, err := os.CreateTemp("", "vpnclient-*.plist")
	if err != nil {
		return errors.NewInstallationError("failed to stage daemon definition", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(rendered); err != nil {
		tmp.Close()
		return errors.NewInstallationError("failed to stage daemon definition", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.NewInstallationError("failed to stage daemon definition", err)
	}

	var script bytes.Buffer
	err = installScriptTemplate.Execute(&script, map[string]string{
		"Source":      shellQuote(tmp.Name()),
		"Target":      shellQuote(i.config.PlistPath),
		"LoadCommand": i.config.LoadCommand,
	})
	if err != nil {
		return errors.NewInternalError("failed to render install script", err)
	}

	argv := elevatedCommand(i.config.Elevation, script.String())
	i.logger.Infof("Installing client daemon, label: %s, elevation: %s", i.config.Label, i.config.Elevation)

	output, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
	if err != nil {
		if os.IsPermission(err) || isElevationDenied(string(output)) {
			return errors.NewPermissionError("daemon installation was not permitted", err).WithContext("output", strings.TrimSpace(string(output)))
		}
		return errors.NewInstallationError("daemon installation failed", err).WithContext("output", strings.TrimSpace(string(output)))
	}

	i.logger.Infof("Client daemon installed, plist: %s", i.config.PlistPath)
	return nil
}

func elevatedCommand(method ElevationMethod, script string) []string {
	switch method {
	case ElevationSudo:
		return []string{"sudo", "sh", "-c", script}
	case ElevationNone:
		return []string{"sh", "-c", script}
	default:
		return []string{"osascript", "-e", fmt.Sprintf("do shell script %q with administrator privileges", script)}
	}
}

var elevationDeniedMarkers = []string{
	"User canceled",
	"(-128)",
	"a password is required",
	"incorrect password",
	"Operation not permitted",
	"Permission denied",
}

func isElevationDenied(output string) bool {
	for _, marker := range elevationDeniedMarkers {
		if strings.Contains(output, marker) {
			return true
		}
	}
	return false
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
