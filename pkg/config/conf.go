package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	configFileName = "config.yaml"
	dirMode        = 0700
	fileMode       = 0600

	PortDefault     = 8080
	LogLevelDefault = "info"

	EnvRoot        = "LOANRISK_ROOT"
	EnvPort        = "LOANRISK_PORT"
	EnvDB          = "LOANRISK_DB"
	EnvLogLevel    = "LOANRISK_LOG_LEVEL"
	EnvRegistryURL = "LOANRISK_REGISTRY_URL"
)

// Config represents app config object.
type Config struct {
	ArtifactRoot string `yaml:"artifactRoot"`
	Port         int    `yaml:"port"`
	DBPath       string `yaml:"db,omitempty"`
	LogLevel     string `yaml:"logLevel"`
	RegistryURL  string `yaml:"registryURL,omitempty"`
}

func getDefaultConfig() *Config {
	return &Config{
		ArtifactRoot: ".",
		Port:         PortDefault,
		LogLevel:     LogLevelDefault,
	}
}

func Save(dirPath string, c *Config) error {
	if dirPath == "" {
		return errors.New("config directory required")
	}
	if c == nil {
		return errors.New("config required")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(dirPath, configFileName)
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("failed to write config file: %s: %w", configFileName, err)
	}
	return nil
}

// ReadOrCreate reads app config from directory or creates a new one.
func ReadOrCreate(dirPath string) (*Config, error) {
	if dirPath == "" {
		return nil, errors.New("config directory required")
	}

	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dirPath, dirMode); err != nil {
			return nil, fmt.Errorf("failed to create dir: %s: %w", dirPath, err)
		}
	}

	path := filepath.Join(dirPath, configFileName)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := Save(dirPath, getDefaultConfig()); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %s: %w", path, err)
	}

	c := getDefaultConfig()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("error unmarshalling config file: %s: %w", path, err)
	}
	return c, nil
}

// Load reads the config file from dirPath, then applies the optional .env
// files and LOANRISK_* environment variables on top of it.
func Load(dirPath string, envFiles ...string) (*Config, error) {
	c, err := ReadOrCreate(dirPath)
	if err != nil {
		return nil, err
	}

	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		// existing environment variables take precedence over the file
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("error loading env file: %s: %w", f, err)
		}
		slog.Debug("env file loaded", "path", f)
	}

	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	if v := fallback(EnvRoot, ""); v != "" {
		c.ArtifactRoot = v
	}
	if v := fallback(EnvDB, ""); v != "" {
		c.DBPath = v
	}
	if v := fallback(EnvLogLevel, ""); v != "" {
		c.LogLevel = v
	}
	if v := fallback(EnvRegistryURL, ""); v != "" {
		c.RegistryURL = v
	}
	if v := fallback(EnvPort, ""); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p <= 0 || p > 65535 {
			return fmt.Errorf("invalid %s value: %q", EnvPort, v)
		}
		c.Port = p
	}
	return nil
}

func fallback(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// GetOrCreateHomeDir returns the home directory for the current user.
// The create flag is set to true if the directory was created.
func GetOrCreateHomeDir(name string) (path string, created bool, err error) {
	if name == "" {
		return "", false, errors.New("name cannot be empty")
	}

	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("failed to get user home dir: %w", err)
	}
	slog.Debug("home dir", "path", home)

	dir := filepath.Join(home, name)
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		slog.Debug("creating dir", "path", dir)
		if err := os.Mkdir(dir, dirMode); err != nil {
			return "", false, fmt.Errorf("failed to create dir: %s: %w", dir, err)
		}
		created = true
	}
	return dir, created, nil
}
