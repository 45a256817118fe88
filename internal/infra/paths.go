// Package infra implements infrastructure concerns (storage, browser, process).
package infra

import (
	"os"
	"os/user"
	"path/filepath"
)

// ExecMode represents the execution mode of the application.
type ExecMode string

const (
	// ExecModeUser keeps state under the invoking user's home
	ExecModeUser ExecMode = "user"
	// ExecModeSystem keeps state under /var/lib (running as root)
	ExecModeSystem ExecMode = "system"
)

// Paths holds file locations based on execution mode.
type Paths struct {
	Mode       ExecMode
	DataDir    string // Where the store and key live
	ConfigPath string // Default YAML config location
	LogPath    string // Daemon log file
}

const logFileName = "webmon.log"

// DetectPaths determines file locations based on effective UID.
func DetectPaths() *Paths {
	if os.Geteuid() == 0 {
		return &Paths{
			Mode:       ExecModeSystem,
			DataDir:    "/var/lib/webmon",
			ConfigPath: "/etc/webmon/config.yaml",
			LogPath:    filepath.Join("/var/tmp", logFileName),
		}
	}
	return UserPaths(GetRealUserHome())
}

// UserPaths returns user mode locations rooted at home.
func UserPaths(home string) *Paths {
	dataDir := filepath.Join(home, ".webmon")
	return &Paths{
		Mode:       ExecModeUser,
		DataDir:    dataDir,
		ConfigPath: filepath.Join(dataDir, "config.yaml"),
		LogPath:    filepath.Join(dataDir, logFileName),
	}
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (root)"
	case ExecModeUser:
		return "user (non-root)"
	default:
		return "unknown"
	}
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
// Under sudo, os.UserHomeDir() returns root's home, so we use SUDO_USER to find the real user.
func GetRealUserHome() string {
	// Check if running under sudo
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	// Fall back to default
	home, _ := os.UserHomeDir()
	return home
}
