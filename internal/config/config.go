// Package config reads and writes the slacksync configuration file at
// ~/.slacksync/config, a git-style ini file. Connected workspaces live in
// [source.<name>] sections.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/fieldline/slacksync/internal/connector"
)

const sourceSectionPrefix = "source."

// Config represents the slacksync configuration.
type Config struct {
	file *ini.File
	path string
}

// DefaultPath returns the default configuration file path.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".slacksync", "config"), nil
}

// Load reads the configuration file from the default location.
func Load() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the configuration file at path. A missing file yields an
// empty config, not an error.
func LoadFrom(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Config{file: ini.Empty(), path: path}, nil
	}

	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	return &Config{file: file, path: path}, nil
}

// Save writes the configuration back to its file.
func (c *Config) Save() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := c.file.SaveTo(c.path); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}
	// The file holds tokens; keep it private.
	if err := os.Chmod(c.path, 0600); err != nil {
		return fmt.Errorf("failed to restrict config permissions: %w", err)
	}
	return nil
}

// GetString retrieves a string value by dotted key, git-config style: the
// last dot separates section from key (e.g. "source.acme.token").
func (c *Config) GetString(key string) string {
	section, keyName := parseKey(key)
	if section == "" {
		return ""
	}
	return c.file.Section(section).Key(keyName).String()
}

// SetString sets a value by dotted key.
func (c *Config) SetString(key, value string) {
	section, keyName := parseKey(key)
	if section == "" {
		return
	}
	c.file.Section(section).Key(keyName).SetValue(value)
}

// GetInt retrieves an integer value by dotted key.
func (c *Config) GetInt(key string) (int, error) {
	val := c.GetString(key)
	if val == "" {
		return 0, nil
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid integer value for %s: %w", key, err)
	}
	return intVal, nil
}

// GetBool retrieves a boolean value by dotted key.
func (c *Config) GetBool(key string) bool {
	val := strings.ToLower(c.GetString(key))
	return val == "true" || val == "yes" || val == "1" || val == "on"
}

// HasKey checks if a key exists in the config.
func (c *Config) HasKey(key string) bool {
	section, keyName := parseKey(key)
	if section == "" {
		return false
	}
	return c.file.Section(section).HasKey(keyName)
}

// parseKey splits a dotted key at its last dot, for git config
// compatibility: "source.acme.token" -> ("source.acme", "token").
func parseKey(key string) (string, string) {
	lastDot := strings.LastIndex(key, ".")
	if lastDot == -1 {
		return "", ""
	}
	return key[:lastDot], key[lastDot+1:]
}

// SourceNames lists the configured source names in file order.
func (c *Config) SourceNames() []string {
	var names []string
	for _, sec := range c.file.Sections() {
		if strings.HasPrefix(sec.Name(), sourceSectionPrefix) {
			names = append(names, strings.TrimPrefix(sec.Name(), sourceSectionPrefix))
		}
	}
	return names
}

// Source builds the connector Source for one configured workspace.
func (c *Config) Source(name string) (connector.Source, error) {
	section := sourceSectionPrefix + name
	if _, err := c.file.GetSection(section); err != nil {
		return connector.Source{}, fmt.Errorf("source %q is not configured", name)
	}

	prefix := section + "."
	var channels []string
	for _, ch := range strings.Split(c.GetString(prefix+"channels"), ",") {
		if ch = strings.TrimSpace(ch); ch != "" {
			channels = append(channels, ch)
		}
	}

	id := c.GetString(prefix + "id")
	if id == "" {
		id = name
	}

	return connector.Source{
		ID:    id,
		Name:  name,
		Token: c.GetString(prefix + "token"),
		Config: connector.SourceConfig{
			Channels:          channels,
			ExcludeBots:       c.GetBool(prefix + "exclude_bots"),
			SyncFiles:         c.GetBool(prefix + "sync_files"),
			DisableThreadSync: c.GetBool(prefix + "disable_thread_sync"),
			StoragePrefix:     c.GetString(prefix + "storage_prefix"),
		},
	}, nil
}

// SetSourceToken stores a token for a source, creating the section if the
// source is new.
func (c *Config) SetSourceToken(name, token string) {
	c.SetString(sourceSectionPrefix+name+".token", token)
}
