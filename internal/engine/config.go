package engine

import (
	"log/slog"
	"time"
)

// LaunchConfig describes how to start or attach to a browser engine and how
// the profile built on top of it should behave. The zero value launches a
// headless local Chrome.
type LaunchConfig struct {
	// Type selects the engine: chrome (default), firefox or remote.
	Type BrowserType `yaml:"type"`

	// RemoteURL is the debug WebSocket URL of an external engine.
	// Required when Type is remote, ignored otherwise.
	RemoteURL string `yaml:"remote_url"`

	// FirefoxBin is the Firefox binary to start when Type is firefox.
	FirefoxBin string `yaml:"firefox_bin"`

	// Headful runs the engine with a visible window. Default is headless.
	Headful bool `yaml:"headful"`

	WindowWidth  int    `yaml:"window_width"`
	WindowHeight int    `yaml:"window_height"`
	UserAgent    string `yaml:"user_agent"`
	UserDataDir  string `yaml:"user_data_dir"`
	Incognito    bool   `yaml:"incognito"`
	NoSandbox    bool   `yaml:"no_sandbox"`
	DisableGPU   bool   `yaml:"disable_gpu"`
	ProxyURL     string `yaml:"proxy_url"`

	// Stealth opens new tabs with anti-automation-detection scripts applied.
	Stealth bool `yaml:"stealth"`

	// Flags are raw engine switches merged last, value may be empty.
	Flags map[string]string `yaml:"flags"`

	// BlockResources lists resource types to drop on every tab:
	// images, fonts, media, stylesheets.
	BlockResources []string `yaml:"block_resources"`

	// PageLoadTimeout bounds Navigate/Back/Forward/Reload, not element waits.
	PageLoadTimeout time.Duration `yaml:"page_load_timeout"`

	// SettleDelay is how long tab adoption waits before re-listing handles
	// when the engine has not yet materialized a side-effect tab.
	SettleDelay time.Duration `yaml:"settle_delay"`

	// SeedTabName names the tab a fresh profile starts with.
	SeedTabName string `yaml:"seed_tab_name"`

	Logger *slog.Logger `yaml:"-"`
}

// WithDefaults returns a copy with unset fields filled in.
func (c LaunchConfig) WithDefaults() LaunchConfig {
	if c.Type == "" {
		c.Type = Chrome
	}
	if c.FirefoxBin == "" {
		c.FirefoxBin = "firefox"
	}
	if c.WindowWidth <= 0 {
		c.WindowWidth = 1280
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = 800
	}
	if c.PageLoadTimeout <= 0 {
		c.PageLoadTimeout = 30 * time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 300 * time.Millisecond
	}
	if c.SeedTabName == "" {
		c.SeedTabName = "main"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}
