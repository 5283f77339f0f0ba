package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"runtimeviewer/internal/aggregate"
	"runtimeviewer/internal/models"
)

// Config represents configuration data for the viewer.
type Config struct {
	Address  string          `yaml:"address"`
	Dataset  Dataset         `yaml:"dataset"`
	Servers  []models.Server `yaml:"servers"`
	Links    aggregate.Links `yaml:"links"`
	MemoSize int             `yaml:"memo_size"`
}

// Dataset locates the round dataset.
type Dataset struct {
	URL            string `yaml:"url"`
	File           string `yaml:"file"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// DefaultServers is the known fleet with its chart colours.
func DefaultServers() []models.Server {
	return []models.Server{
		{Name: "basil", Port: 2337, Color: "hsl(20, 100%, 15%)"},
		{Name: "sybil", Port: 1337, Color: "hsl(245, 100%, 70%)"},
		{Name: "terry", Port: 3336, Color: "hsl(0, 100%, 30%)"},
		{Name: "manuel", Port: 1447, Color: "hsl(20, 100%, 50%)"},
		{Name: "campbell", Port: 6337, Color: "hsl(275, 100%, 70%)"},
		{Name: "event-hall-us", Port: 4447, Color: "hsl(100, 100%, 70%)"},
	}
}

// DefaultConfig returns sensible defaults in case no configuration file is provided.
func DefaultConfig() Config {
	return Config{
		Address: ":8080",
		Dataset: Dataset{
			File:           ".dist/data/rounds.json",
			TimeoutSeconds: 60,
		},
		Servers:  DefaultServers(),
		Links:    aggregate.DefaultLinks(),
		MemoSize: 64,
	}
}

// Load reads configuration from yaml file. Missing files fall back to defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	defaults := DefaultConfig()
	if strings.TrimSpace(c.Address) == "" {
		c.Address = defaults.Address
	}
	if c.Dataset.TimeoutSeconds <= 0 {
		c.Dataset.TimeoutSeconds = defaults.Dataset.TimeoutSeconds
	}
	if c.MemoSize <= 0 {
		c.MemoSize = defaults.MemoSize
	}
	if c.Links.CodeHost == "" {
		c.Links.CodeHost = defaults.Links.CodeHost
	}
	if c.Links.ReferenceRevision == "" {
		c.Links.ReferenceRevision = defaults.Links.ReferenceRevision
	}
	if c.Links.RoundService == "" {
		c.Links.RoundService = defaults.Links.RoundService
	}
	if c.Dataset.URL == "" && c.Dataset.File == "" {
		return errors.New("configuration must define dataset.url or dataset.file")
	}

	seen := make(map[string]struct{}, len(c.Servers))
	for i, server := range c.Servers {
		name := strings.TrimSpace(server.Name)
		if name == "" {
			return fmt.Errorf("server %d is missing a name", i)
		}
		if name == aggregate.AllServers || name == aggregate.UnknownServer {
			return fmt.Errorf("server name %q is reserved", name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("server %s is defined twice", name)
		}
		seen[name] = struct{}{}
		c.Servers[i].Name = name
	}
	return nil
}

// Colors maps server names to chart colours, including the unknown fallback.
func (c Config) Colors() map[string]string {
	colors := make(map[string]string, len(c.Servers)+1)
	for _, server := range c.Servers {
		colors[server.Name] = server.Color
	}
	colors[aggregate.UnknownServer] = "hsl(0, 0%, 30%)"
	return colors
}
