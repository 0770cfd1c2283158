// Package config loads the bot's YAML site configuration and applies
// environment overrides.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"subreddit-notifier/ident"
)

// Environment variables. BotSiteEnv selects the site section the way the
// original praw.ini site selector did.
const (
	ConfigPathEnv  = "BOT_CONFIG"
	BotSiteEnv     = "BOT_SITE"
	DatabaseURLEnv = "DATABASE_URL"

	defaultConfigPath = "sites.yaml"
)

// Site is one named account section.
type Site struct {
	Kinds             map[string]string `yaml:"kinds"`
	ClientID          string            `yaml:"clientId"`
	ClientSecret      string            `yaml:"clientSecret"`
	Username          string            `yaml:"username"`
	Password          string            `yaml:"password"`
	UserAgent         string            `yaml:"userAgent"`
	CommentTemplate   string            `yaml:"commentTemplate"`
	CommentsCutoff    string            `yaml:"commentsCutoffTime"` // time-of-day with offset, e.g. "06:00:00+00:00"
	CommentsBlacklist []string          `yaml:"commentsBlacklist"`
}

// Registry returns the site's kind registry, falling back to the standard
// prefixes for kinds the file does not override.
func (s Site) Registry() ident.Registry {
	reg := ident.DefaultRegistry()
	for kind, prefix := range s.Kinds {
		reg[kind] = prefix
	}
	return reg
}

// Config is the full parsed file plus environment state.
type Config struct {
	Sites       map[string]Site `yaml:"sites"`
	DatabaseURL string          `yaml:"databaseUrl"`
}

// Load reads the YAML file named by BOT_CONFIG (default sites.yaml) and
// applies environment overrides. DATABASE_URL must be set one way or the
// other; a missing value is fatal at startup, nothing is retried.
func Load() (Config, error) {
	path := os.Getenv(ConfigPathEnv)
	if path == "" {
		path = defaultConfigPath
	}

	var cfg Config
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if v := os.Getenv(DatabaseURLEnv); v != "" {
		cfg.DatabaseURL = v
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("missing %s value", DatabaseURLEnv)
	}

	return cfg, nil
}

// SelectedSite resolves the BOT_SITE environment variable against the
// configured sections.
func (c Config) SelectedSite() (Site, error) {
	name := os.Getenv(BotSiteEnv)
	if name == "" {
		return Site{}, fmt.Errorf("missing %s value", BotSiteEnv)
	}
	site, ok := c.Sites[name]
	if !ok {
		return Site{}, fmt.Errorf("site %q not present in config", name)
	}
	if site.UserAgent == "" {
		return Site{}, fmt.Errorf("site %q missing userAgent", name)
	}
	return site, nil
}
