package veil

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/imgveil/noise"
)

// Config is the top-level daemon configuration.
type Config struct {
	Browser  BrowserConfig  `yaml:"browser"`
	Pages    []PageConfig   `yaml:"pages"`
	Texture  TextureConfig  `yaml:"texture"`
	Settings SettingsConfig `yaml:"settings"`
	Sinks    []SinkConfig   `yaml:"sinks"`
}

// BrowserConfig controls the Chrome lifecycle.
type BrowserConfig struct {
	Remote          string        `yaml:"remote"`
	Headless        *bool         `yaml:"headless"`
	NavigateTimeout time.Duration `yaml:"navigate_timeout"`
}

// PageConfig defines a page to overlay.
type PageConfig struct {
	ID  string `yaml:"id"`
	URL string `yaml:"url"`
}

// TextureConfig controls the generated noise tile.
type TextureConfig struct {
	Size int `yaml:"size"`
}

// SettingsConfig locates the settings database and tunes its polling.
type SettingsConfig struct {
	DB           string        `yaml:"db"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Debounce     time.Duration `yaml:"debounce"`
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook
	URL  string `yaml:"url"`  // for webhook
}

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("veil: read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("veil: parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}
	if c.Texture.Size <= 0 {
		c.Texture.Size = noise.DefaultSize
	}
	if c.Settings.DB == "" {
		c.Settings.DB = "imgveil.db"
	}
	if c.Settings.PollInterval <= 0 {
		c.Settings.PollInterval = time.Second
	}
	for i := range c.Pages {
		if c.Pages[i].ID == "" {
			c.Pages[i].ID = fmt.Sprintf("page-%d", i+1)
		}
	}
}
