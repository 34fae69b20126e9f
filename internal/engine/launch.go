package engine

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
)

// Dial starts (or attaches to) a browser engine per cfg and returns a live
// Session whose initial tab is already focused. Failures come back as
// *LaunchError.
func Dial(ctx context.Context, cfg LaunchConfig) (Session, error) {
	cfg = cfg.WithDefaults()
	log := cfg.Logger

	var (
		wsURL string
		lnch  *launcher.Launcher
	)

	switch cfg.Type {
	case Remote:
		if cfg.RemoteURL == "" {
			return nil, &LaunchError{Kind: Remote, Reason: "remote_url is required"}
		}
		wsURL = cfg.RemoteURL
		log.Info("browser: attaching to remote engine", "url", wsURL)

	case Chrome, Firefox:
		l := newLauncher(cfg)
		u, err := l.Launch()
		if err != nil {
			return nil, &LaunchError{Kind: cfg.Type, Reason: "start process", Err: err}
		}
		wsURL = u
		lnch = l
		log.Info("browser: launched engine", "type", cfg.Type, "headful", cfg.Headful)

	default:
		return nil, &LaunchError{Kind: cfg.Type, Reason: "unsupported browser type"}
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if lnch != nil {
			lnch.Cleanup()
		}
		return nil, &LaunchError{Kind: cfg.Type, Reason: "connect", Err: err}
	}

	// Dev/test targets often sit behind self-signed certs.
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}

	s := &session{
		b:    b,
		lnch: lnch,
		cfg:  cfg,
		log:  log,
	}

	if err := s.focusInitialPage(ctx); err != nil {
		s.abandon()
		return nil, &LaunchError{Kind: cfg.Type, Reason: "seed tab", Err: err}
	}
	return s, nil
}

// newLauncher assembles the process switches for a local engine. Switches
// that only Chromium understands are skipped for Firefox with a debug log
// rather than failing the launch.
func newLauncher(cfg LaunchConfig) *launcher.Launcher {
	l := launcher.New()

	if cfg.Type == Firefox {
		l = l.Bin(cfg.FirefoxBin).Leakless(false)
	}

	l = l.Headless(!cfg.Headful)

	if cfg.Type != Chrome {
		for _, skipped := range []struct {
			name string
			set  bool
		}{
			{"window_width/window_height", cfg.WindowWidth != 1280 || cfg.WindowHeight != 800},
			{"user_agent", cfg.UserAgent != ""},
			{"user_data_dir", cfg.UserDataDir != ""},
			{"incognito", cfg.Incognito},
			{"no_sandbox", cfg.NoSandbox},
			{"disable_gpu", cfg.DisableGPU},
			{"proxy_url", cfg.ProxyURL != ""},
		} {
			if skipped.set {
				cfg.Logger.Debug("browser: option not supported for engine, skipped",
					"type", cfg.Type, "option", skipped.name)
			}
		}
		for k, v := range cfg.Flags {
			l = l.Set(flags.Flag(k), v)
		}
		return l
	}

	// Anti-detection baseline.
	l = l.Set("disable-blink-features", "AutomationControlled")

	l = l.Set("window-size", fmt.Sprintf("%d,%d", cfg.WindowWidth, cfg.WindowHeight))
	if cfg.UserAgent != "" {
		l = l.Set("user-agent", cfg.UserAgent)
	}
	if cfg.UserDataDir != "" {
		l = l.UserDataDir(cfg.UserDataDir)
	}
	if cfg.Incognito {
		l = l.Set("incognito")
	}
	if cfg.NoSandbox {
		l = l.NoSandbox(true)
	}
	if cfg.DisableGPU {
		l = l.Set("disable-gpu")
	}
	if cfg.ProxyURL != "" {
		l = l.Proxy(cfg.ProxyURL)
	}
	for k, v := range cfg.Flags {
		if v == "" {
			l = l.Set(flags.Flag(k))
		} else {
			l = l.Set(flags.Flag(k), v)
		}
	}
	return l
}
