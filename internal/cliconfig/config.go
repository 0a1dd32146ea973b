// Package cliconfig loads the kfl CLI configuration file. Flags and KFL_*
// environment variables override anything set here.
package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// Config is the persisted CLI configuration.
type Config struct {
	Server                string `yaml:"server,omitempty"`
	Token                 string `yaml:"token,omitempty"`
	Namespace             string `yaml:"namespace,omitempty"`
	CAFile                string `yaml:"caFile,omitempty"`
	InsecureSkipTLSVerify bool   `yaml:"insecureSkipTLSVerify,omitempty"`
}

// DefaultPath returns ~/.kfl/config.yaml, or empty when the home directory
// cannot be resolved.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return ""
	}
	return filepath.Join(home, ".kfl", "config.yaml")
}

// Load reads the configuration at path, expanding a leading ~. A missing or
// empty file yields the zero configuration.
func Load(path string) (Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Config{}, nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return Config{}, fmt.Errorf("expand config path: %w", err)
	}
	raw, err := os.ReadFile(filepath.Clean(expanded))
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return Config{}, nil
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
