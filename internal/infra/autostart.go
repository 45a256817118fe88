package infra

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"
)

// AutostartLabel is the launchd label of the login item.
const AutostartLabel = "com.focusd.webmon"

// LaunchAgent plist template (runs as user at login)
const launchAgentTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>

    <key>ProgramArguments</key>
    <array>
        <string>{{.ExecutablePath}}</string>
        <string>daemon</string>
{{- if .ConfigPath}}
        <string>--config</string>
        <string>{{.ConfigPath}}</string>
{{- end}}
    </array>

    <key>RunAtLoad</key>
    <true/>

    <key>KeepAlive</key>
    <dict>
        <key>Crashed</key>
        <true/>
    </dict>

    <key>StandardErrorPath</key>
    <string>{{.LogPath}}</string>

    <key>ProcessType</key>
    <string>Interactive</string>

    <key>ThrottleInterval</key>
    <integer>10</integer>
</dict>
</plist>`

type plistConfig struct {
	Label          string
	ExecutablePath string
	ConfigPath     string
	LogPath        string
}

// LaunchAgent starts the daemon at login through a user LaunchAgent.
type LaunchAgent struct {
	plistPath string
	logPath   string

	// launchctl runs a launchctl subcommand; replaced in tests.
	launchctl func(args ...string) error
}

// NewLaunchAgent creates a LaunchAgent manager under home's LaunchAgents dir.
func NewLaunchAgent(home string, paths *Paths) *LaunchAgent {
	return &LaunchAgent{
		plistPath: filepath.Join(home, "Library", "LaunchAgents", AutostartLabel+".plist"),
		logPath:   paths.LogPath,
		launchctl: func(args ...string) error {
			return exec.Command("launchctl", args...).Run()
		},
	}
}

// PlistPath returns the plist file path.
func (a *LaunchAgent) PlistPath() string {
	return a.plistPath
}

// generatePlistContent creates plist content for the given exec path.
func (a *LaunchAgent) generatePlistContent(execPath, configPath string) ([]byte, error) {
	tmpl, err := template.New("plist").Parse(launchAgentTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse plist template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, plistConfig{
		Label:          AutostartLabel,
		ExecutablePath: execPath,
		ConfigPath:     configPath,
		LogPath:        a.logPath,
	}); err != nil {
		return nil, fmt.Errorf("failed to execute plist template: %w", err)
	}
	return buf.Bytes(), nil
}

// Install writes and loads the plist. An outdated plist is replaced.
func (a *LaunchAgent) Install(execPath, configPath string) error {
	content, err := a.generatePlistContent(execPath, configPath)
	if err != nil {
		return err
	}

	if current, err := os.ReadFile(a.plistPath); err == nil {
		if bytes.Equal(current, content) {
			return nil
		}
		// Unload first (ignore errors if not loaded)
		_ = a.launchctl("unload", a.plistPath)
	}

	if err := os.MkdirAll(filepath.Dir(a.plistPath), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(a.plistPath, content, 0644); err != nil {
		return err
	}
	if err := a.launchctl("load", a.plistPath); err != nil {
		return fmt.Errorf("launchctl load: %w", err)
	}
	return nil
}

// Uninstall unloads and removes the plist.
func (a *LaunchAgent) Uninstall() error {
	if !a.IsInstalled() {
		return nil
	}
	// Unload first (ignore errors if not loaded)
	_ = a.launchctl("unload", a.plistPath)
	return os.Remove(a.plistPath)
}

// IsInstalled checks if plist is installed.
func (a *LaunchAgent) IsInstalled() bool {
	_, err := os.Stat(a.plistPath)
	return err == nil
}
