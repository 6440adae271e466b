package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const (
	dirName        = ".tavern"
	fileName       = "config.json"
	defaultProfile = "main"
	currentVersion = 1
)

// Config is the CLI's on-disk state: named server profiles and which one
// commands talk to by default.
type Config struct {
	Version       int               `json:"version"`
	DefaultServer string            `json:"default_server"`
	Servers       map[string]Server `json:"servers"`
}

type Server struct {
	URL         string `json:"url"`
	APIKey      string `json:"api_key"`
	Username    string `json:"username,omitempty"`
	ConnectedAt string `json:"connected_at"`
}

// Path returns the nearest .tavern/config.json walking up from the working
// directory, or the one under the home directory when none exists.
func Path() (string, error) {
	if wd, err := os.Getwd(); err == nil {
		if p, ok := findUp(wd); ok {
			return p, nil
		}
	}
	return HomePath()
}

func findUp(dir string) (string, bool) {
	for {
		candidate := filepath.Join(dir, dirName, fileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func HomePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, dirName, fileName), nil
}

// LocalPath is the config file a connect --in-dir writes.
func LocalPath() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, dirName, fileName), nil
}

func Load() (*Config, error) {
	p, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFrom(p)
}

// LoadFrom reads p. A missing file yields an empty config rather than an
// error.
func LoadFrom(p string) (*Config, error) {
	c := &Config{}
	b, err := os.ReadFile(p)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := json.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", p, err)
		}
	}
	c.normalize()
	return c, nil
}

func (c *Config) normalize() {
	if c.Version == 0 {
		c.Version = currentVersion
	}
	if c.DefaultServer == "" {
		c.DefaultServer = defaultProfile
	}
	if c.Servers == nil {
		c.Servers = map[string]Server{}
	}
}

// SaveTo writes c to p through a temp file so a crash never leaves a
// truncated config behind. The file holds API keys and is created 0600.
func SaveTo(p string, c *Config) error {
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, fileName+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p)
}

func Save(c *Config) error {
	p, err := Path()
	if err != nil {
		return err
	}
	return SaveTo(p, c)
}

// SetServer stores a profile under name, stamping the connection time.
func (c *Config) SetServer(name string, s Server) {
	c.normalize()
	if s.ConnectedAt == "" {
		s.ConnectedAt = time.Now().UTC().Format(time.RFC3339)
	}
	c.Servers[name] = s
}

// SetDefault stores the profile commands use when no other is selected.
func (c *Config) SetDefault(url, apiKey, username string) {
	c.SetServer(defaultProfile, Server{URL: url, APIKey: apiKey, Username: username})
	c.DefaultServer = defaultProfile
}

func (c *Config) ClearDefault() {
	delete(c.Servers, c.DefaultServer)
}

func (c *Config) Default() (Server, bool) {
	s, ok := c.Servers[c.DefaultServer]
	return s, ok
}
