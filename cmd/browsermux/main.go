// Command browsermux multiplexes named browser profiles and tabs behind an
// MCP tool surface and a read-only HTTP status API.
//
// Usage:
//
//	browsermux -config browsermux.yaml -mcp     # profiles from YAML, tools on stdio
//	browsermux -mcp                             # empty manager, tools on stdio
//	browsermux -mcp-quic :9444                  # tools over QUIC (self-signed TLS)
//	browsermux -config browsermux.yaml -http :8086
package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/browsermux"
	"github.com/hazyhaar/browsermux/journal"
	"github.com/hazyhaar/browsermux/kit"
	"github.com/hazyhaar/browsermux/mcpquic"
	"github.com/hazyhaar/browsermux/shield"
)

func main() {
	configPath := flag.String("config", "", "path to browsermux.yaml config file")
	mcpStdio := flag.Bool("mcp", false, "serve MCP tools on stdio")
	quicAddr := flag.String("mcp-quic", "", "address for MCP over QUIC, e.g. :9444")
	tlsCert := flag.String("tls-cert", "", "TLS certificate for QUIC (self-signed if unset)")
	tlsKey := flag.String("tls-key", "", "TLS key for QUIC")
	httpAddr := flag.String("http", "", "address for the read-only status API, e.g. :8086")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if !*mcpStdio && *quicAddr == "" && *httpAddr == "" {
		fmt.Fprintln(os.Stderr, "usage: browsermux [-config <file>] -mcp | -mcp-quic <addr> | -http <addr>")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *mcpStdio, *quicAddr, *tlsCert, *tlsKey, *httpAddr); err != nil {
		logger.Error("browsermux: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath string, mcpStdio bool, quicAddr, tlsCert, tlsKey, httpAddr string) error {
	cfg := &browsermux.Config{}
	if configPath != "" {
		loaded, err := browsermux.LoadConfigFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	opts := []browsermux.Option{browsermux.WithLogger(logger)}
	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath, journal.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer j.Close()
		if err := j.Prune(ctx, cfg.JournalKeepDays); err != nil {
			logger.Warn("browsermux: journal prune", "error", err)
		}
		opts = append(opts, browsermux.WithJournal(j))
	}

	m := browsermux.NewManager(opts...)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := m.Shutdown(shutdownCtx); err != nil {
			logger.Error("browsermux: shutdown", "error", err)
		}
	}()

	for _, pc := range cfg.Profiles {
		if _, err := m.NewProfile(ctx, pc.Name, pc.Launch); err != nil {
			return fmt.Errorf("profile %q: %w", pc.Name, err)
		}
	}

	if httpAddr != "" {
		srv := statusServer(httpAddr, m, logger)
		go func() {
			logger.Info("browsermux: status API listening", "addr", httpAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("browsermux: status API", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("browsermux: status API shutdown", "error", err)
			}
		}()
	}

	var mcpSrv *mcp.Server
	if mcpStdio || quicAddr != "" {
		mcpSrv = mcp.NewServer(&mcp.Implementation{
			Name:    "browsermux",
			Version: "1.0.0",
		}, nil)
		browsermux.RegisterTools(mcpSrv, m, logger)
	}

	if quicAddr != "" {
		var tlsCfg *tls.Config
		var err error
		if tlsCert != "" && tlsKey != "" {
			tlsCfg, err = mcpquic.ServerTLSConfig(tlsCert, tlsKey)
		} else {
			tlsCfg, err = mcpquic.SelfSignedTLSConfig()
		}
		if err != nil {
			return fmt.Errorf("mcp quic tls: %w", err)
		}
		ql, err := mcpquic.NewListener(quicAddr, tlsCfg, mcpSrv, logger)
		if err != nil {
			return fmt.Errorf("mcp quic listen: %w", err)
		}
		defer ql.Close()
		go func() {
			logger.Info("browsermux: MCP QUIC listening", "addr", quicAddr)
			if err := ql.Serve(ctx); err != nil && ctx.Err() == nil {
				logger.Error("browsermux: MCP QUIC", "error", err)
			}
		}()
	}

	if mcpStdio {
		logger.Info("browsermux: MCP serving on stdio")
		stdioCtx := kit.WithTransport(ctx, "mcp")
		if err := mcpSrv.Run(stdioCtx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			return fmt.Errorf("mcp: %w", err)
		}
		return nil
	}

	<-ctx.Done()
	return nil
}

func statusServer(addr string, m *browsermux.Manager, logger *slog.Logger) *http.Server {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(logger) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/profiles", func(w http.ResponseWriter, _ *http.Request) {
		type profileInfo struct {
			Name      string `json:"name"`
			Tabs      int    `json:"tabs"`
			ActiveTab string `json:"active_tab,omitempty"`
			Degraded  bool   `json:"degraded,omitempty"`
		}
		profiles := m.Profiles()
		infos := make([]profileInfo, 0, len(profiles))
		for _, p := range profiles {
			active, _ := p.Tabs().ActiveName()
			infos = append(infos, profileInfo{
				Name:      p.Name(),
				Tabs:      p.Tabs().Count(),
				ActiveTab: active,
				Degraded:  p.Degraded(),
			})
		}
		writeJSON(w, http.StatusOK, infos)
	})

	r.Get("/profiles/{name}/tabs", func(w http.ResponseWriter, r *http.Request) {
		p, err := m.Profile(chi.URLParam(r, "name"))
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, p.Tabs().List())
	})

	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
