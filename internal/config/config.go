// Package config loads and persists codeforge user settings.
// Settings live at ~/.codeforge/settings.yaml and may be overridden per
// process with CODEFORGE_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Settings is the persistent per-user configuration.
type Settings struct {
	// OutputDir is the default workspace for generated projects.
	OutputDir string `yaml:"output_dir"`

	// AutonomousAccess is loaded and saved with the settings; no component
	// reads it, and the engine writes files and runs commands without
	// per-action confirmation whatever its value.
	AutonomousAccess bool `yaml:"autonomous_access"`

	// InternetAccess is loaded and saved with the settings; no component
	// reads it, and strategy E always uses roles.NoopResearcher.
	InternetAccess bool `yaml:"internet_access"`

	// DebugMode enables categorized file logging under .codeforge/logs.
	DebugMode bool `yaml:"debug_mode"`

	// FanOut bounds how many tasks run concurrently within one wave.
	FanOut int `yaml:"fan_out"`

	// ModelEndpoint is the base URL of the local model server.
	ModelEndpoint string `yaml:"model_endpoint"`

	// RunTimeoutSeconds is the foreground run-command timeout.
	RunTimeoutSeconds int `yaml:"run_timeout_seconds"`
}

// Default returns the settings used when no file exists.
func Default() Settings {
	home, _ := os.UserHomeDir()
	return Settings{
		OutputDir:         filepath.Join(home, "codeforge-projects"),
		AutonomousAccess:  false,
		InternetAccess:    false,
		DebugMode:         false,
		FanOut:            2,
		ModelEndpoint:     "http://127.0.0.1:11434",
		RunTimeoutSeconds: 120,
	}
}

// Path returns the settings file location.
func Path() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot resolve home directory: %w", err)
	}
	return filepath.Join(home, ".codeforge", "settings.yaml"), nil
}

// Load reads settings from disk, falling back to defaults for a missing file,
// then applies environment overrides.
func Load() (Settings, error) {
	s := Default()

	path, err := Path()
	if err != nil {
		return s, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&s)
			return s, nil
		}
		return s, fmt.Errorf("cannot read settings: %w", err)
	}

	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("cannot parse settings: %w", err)
	}
	normalize(&s)
	applyEnvOverrides(&s)
	return s, nil
}

// Save writes settings to disk, creating the parent directory.
func Save(s Settings) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create settings directory: %w", err)
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("cannot marshal settings: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// normalize fills zero values the YAML file may have omitted.
func normalize(s *Settings) {
	def := Default()
	if s.FanOut <= 0 {
		s.FanOut = def.FanOut
	}
	if s.ModelEndpoint == "" {
		s.ModelEndpoint = def.ModelEndpoint
	}
	if s.RunTimeoutSeconds <= 0 {
		s.RunTimeoutSeconds = def.RunTimeoutSeconds
	}
	if s.OutputDir == "" {
		s.OutputDir = def.OutputDir
	}
}

// applyEnvOverrides lets CODEFORGE_* variables win over the file.
func applyEnvOverrides(s *Settings) {
	if v := os.Getenv("CODEFORGE_OUTPUT_DIR"); v != "" {
		s.OutputDir = v
	}
	if v := os.Getenv("CODEFORGE_MODEL_ENDPOINT"); v != "" {
		s.ModelEndpoint = v
	}
	if v := os.Getenv("CODEFORGE_DEBUG"); v != "" {
		s.DebugMode = v == "1" || v == "true"
	}
	if v := os.Getenv("CODEFORGE_AUTONOMOUS"); v != "" {
		s.AutonomousAccess = v == "1" || v == "true"
	}
	if v := os.Getenv("CODEFORGE_INTERNET"); v != "" {
		s.InternetAccess = v == "1" || v == "true"
	}
	if v := os.Getenv("CODEFORGE_FAN_OUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			s.FanOut = n
		}
	}
}
