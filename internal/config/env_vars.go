package config

import (
	"os"
	"path/filepath"
)

const (
	appNameVar  = "APP_NAME"
	folderVar   = "FOLDER"
	logLevelVar = "LOG_LEVEL"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Claude Pulse")
}

// GetDataFolder returns the directory where credentials are kept.
// Defaults to ~/.claude-pulse; falls back to a relative folder when the
// home directory cannot be determined.
func (EnvVars) GetDataFolder() string {
	if folder := os.Getenv(folderVar); folder != "" {
		return folder
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./.claude-pulse"
	}
	return filepath.Join(home, ".claude-pulse")
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}
