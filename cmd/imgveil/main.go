// Command imgveil is the image-noise overlay daemon.
//
// Usage:
//
//	imgveil -config imgveil.yaml            # overlay pages from YAML config
//	imgveil -url https://example.com        # quick single-page overlay
//	imgveil -url ... -mcp                   # also serve MCP tools on stdio
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/imgveil/control"
	"github.com/hazyhaar/imgveil/dbopen"
	"github.com/hazyhaar/imgveil/export"
	"github.com/hazyhaar/imgveil/idgen"
	"github.com/hazyhaar/imgveil/noise"
	"github.com/hazyhaar/imgveil/settings"
	"github.com/hazyhaar/imgveil/veil"
)

func main() {
	configPath := flag.String("config", "", "path to imgveil.yaml config file")
	singleURL := flag.String("url", "", "overlay a single URL (stdout sink)")
	httpAddr := flag.String("http", ":8086", "HTTP control API listen address (empty to disable)")
	mcpStdio := flag.Bool("mcp", false, "serve the control protocol as MCP tools on stdio")
	exportDir := flag.String("export-dir", "", "also write exported images into this directory")
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *singleURL, *httpAddr, *exportDir, *mcpStdio); err != nil {
		logger.Error("imgveil: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, singleURL, httpAddr, exportDir string, mcpStdio bool) error {
	cfg, err := buildConfig(configPath, singleURL)
	if err != nil {
		return err
	}

	db, err := dbopen.Open(cfg.Settings.DB,
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(settings.Schema))
	if err != nil {
		return fmt.Errorf("open settings db: %w", err)
	}
	defer db.Close()

	store := settings.NewStore(db)

	sinks := veil.SinksFromConfig(cfg.Sinks, logger)
	if len(sinks) == 0 {
		sinks = append(sinks, veil.NewStdoutSink(nil))
	}

	engine := veil.New(cfg, logger, sinks...)

	// Apply persisted settings before any page opens, so the first scan
	// already carries the right texture.
	st, err := store.Load(ctx)
	if err != nil {
		logger.Warn("imgveil: settings load failed, using defaults", "error", err)
		st = settings.Defaults()
	}
	if err := engine.ApplySettings(ctx, st); err != nil {
		return fmt.Errorf("apply settings: %w", err)
	}

	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer engine.Stop()

	bridge := settings.NewBridge(store, engine.ApplySettings, settings.BridgeOptions{
		Interval: cfg.Settings.PollInterval,
		Debounce: cfg.Settings.Debounce,
		Logger:   logger,
	})
	go bridge.Run(ctx)

	mux := control.NewMux(engine, control.WithLogger(logger))

	if mcpStdio {
		srv := mcp.NewServer(&mcp.Implementation{
			Name:    "imgveil",
			Version: "1.0.0",
		}, nil)
		mux.RegisterMCP(srv)
		go func() {
			logger.Info("imgveil: MCP stdio serving")
			if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				logger.Error("imgveil: MCP stdio", "error", err)
			}
		}()
	}

	if httpAddr == "" {
		<-ctx.Done()
		return nil
	}
	return serveHTTP(ctx, logger, httpAddr, exportDir, mux, store, engine)
}

func buildConfig(configPath, singleURL string) (*veil.Config, error) {
	if configPath != "" {
		return veil.LoadConfigFile(configPath)
	}
	if singleURL != "" {
		cfg := defaultConfig()
		cfg.Pages = []veil.PageConfig{{ID: idgen.New(), URL: singleURL}}
		return cfg, nil
	}
	return nil, fmt.Errorf("usage: imgveil -config <file> | -url <url>")
}

func defaultConfig() *veil.Config {
	return &veil.Config{
		Browser: veil.BrowserConfig{
			NavigateTimeout: 30 * time.Second,
		},
		Texture: veil.TextureConfig{Size: noise.DefaultSize},
		Settings: veil.SettingsConfig{
			DB:           "imgveil.db",
			PollInterval: time.Second,
		},
		Sinks: []veil.SinkConfig{{Type: "stdout"}},
	}
}

func serveHTTP(ctx context.Context, logger *slog.Logger, addr, exportDir string, mux *control.Mux, store *settings.Store, engine *veil.Engine) error {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})

	// Raw protocol endpoint: one command envelope in, one response out.
	r.Post("/api/control", func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, 1<<20))
		if err != nil {
			writeError(w, 400, err)
			return
		}
		resp, err := mux.Dispatch(req.Context(), body)
		if err != nil {
			writeError(w, 400, err)
			return
		}
		writeRaw(w, 200, resp)
	})

	// Convenience routes mapping REST verbs onto the same commands.
	dispatch := func(cmd control.Type) http.HandlerFunc {
		return func(w http.ResponseWriter, req *http.Request) {
			resp, err := mux.DispatchCommand(req.Context(), control.Command{Type: cmd})
			if err != nil {
				writeError(w, 500, err)
				return
			}
			writeRaw(w, 200, resp)
		}
	}
	r.Post("/api/selection/start", dispatch(control.TypeStartSelection))
	r.Delete("/api/selection", dispatch(control.TypeClearSelection))
	r.Get("/api/selection", dispatch(control.TypeSelectionState))
	r.Post("/api/noise/apply", dispatch(control.TypeApplyNoise))

	r.Post("/api/export", func(w http.ResponseWriter, req *http.Request) {
		resp, err := mux.DispatchCommand(req.Context(), control.Command{Type: control.TypeGenerateNoisy})
		if err != nil {
			writeError(w, 500, err)
			return
		}
		if exportDir != "" {
			saveExport(logger, exportDir, resp)
		}
		writeRaw(w, 200, resp)
	})

	r.Get("/api/settings", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, engine.Settings())
	})

	r.Put("/api/settings", func(w http.ResponseWriter, req *http.Request) {
		var st settings.Settings
		if err := json.NewDecoder(req.Body).Decode(&st); err != nil {
			writeError(w, 400, err)
			return
		}
		// Save normalizes; the bridge picks up the change and refreshes.
		if err := store.Save(req.Context(), st); err != nil {
			writeError(w, 500, err)
			return
		}
		writeJSON(w, 200, map[string]string{"status": "saved"})
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("imgveil: http serving", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("imgveil: http server", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("imgveil: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("imgveil: shutdown", "error", err)
	}
	return nil
}

// saveExport writes a successful export's PNG next to the daemon, named by
// the artifact itself.
func saveExport(logger *slog.Logger, dir string, resp []byte) {
	var art export.Artifact
	if err := json.Unmarshal(resp, &art); err != nil || art.DataURL == "" {
		return
	}
	b64, ok := strings.CutPrefix(art.DataURL, "data:image/png;base64,")
	if !ok {
		return
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		logger.Warn("imgveil: export decode failed", "error", err)
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Warn("imgveil: export dir", "error", err)
		return
	}
	path := filepath.Join(dir, art.FileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logger.Warn("imgveil: export write failed", "error", err)
		return
	}
	logger.Info("imgveil: export written", "path", path)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
