// Package veil is the overlay daemon: it drives Chrome through Rod, injects
// the overlay script into each watched page, and keeps every image covered
// by a tile of the current noise texture. Settings changes restyle existing
// overlays in place; the selection/export state machine is exposed through
// the control protocol.
package veil

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/hazyhaar/imgveil/control"
	"github.com/hazyhaar/imgveil/export"
	"github.com/hazyhaar/imgveil/noise"
	"github.com/hazyhaar/imgveil/settings"
	"github.com/hazyhaar/imgveil/veil/internal/browser"
	"github.com/hazyhaar/imgveil/veil/internal/session"
	"github.com/hazyhaar/imgveil/veil/internal/sink"
)

// Engine is the top-level orchestrator: browser, per-page sessions, sinks,
// and the currently effective settings and texture. Create one per daemon.
type Engine struct {
	cfg    *Config
	mgr    *browser.Manager
	sinkR  *sink.Router
	logger *slog.Logger
	rnd    *rand.Rand

	mu         sync.Mutex
	sessions   map[string]*session.Session
	order      []string // session keys in watch order; order[0] is primary
	st         settings.Settings
	textureURL string
}

// Option configures an Engine.
type Option func(*Engine)

// WithRand injects a deterministic random source (tests).
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rnd = r }
}

// New creates an Engine from configuration.
func New(cfg *Config, logger *slog.Logger, sinks ...Sink) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	mgr := browser.NewManager(browser.Config{
		RemoteURL:       cfg.Browser.Remote,
		Headless:        cfg.Browser.Headless,
		NavigateTimeout: cfg.Browser.NavigateTimeout,
		Logger:          logger,
	})

	internalSinks := make([]sink.Sink, len(sinks))
	for i, s := range sinks {
		internalSinks[i] = s
	}

	return &Engine{
		cfg:      cfg,
		mgr:      mgr,
		sinkR:    sink.NewRouter(logger, internalSinks...),
		logger:   logger,
		sessions: make(map[string]*session.Session),
		st:       settings.Defaults(),
	}
}

// Start launches the browser and begins overlaying all configured pages.
func (e *Engine) Start(ctx context.Context) error {
	if _, err := e.mgr.Start(ctx); err != nil {
		return fmt.Errorf("veil: start browser: %w", err)
	}

	for _, page := range e.cfg.Pages {
		if err := e.WatchPage(ctx, page); err != nil {
			e.logger.Error("veil: failed to watch page",
				"url", page.URL, "error", err)
		}
	}
	return nil
}

// WatchPage opens a tab for one page and starts its overlay session.
func (e *Engine) WatchPage(ctx context.Context, pageCfg PageConfig) error {
	tab, err := browser.OpenTab(ctx, e.mgr, pageCfg.URL, pageCfg.ID)
	if err != nil {
		return fmt.Errorf("veil: open tab: %w", err)
	}

	sess := session.New(session.Config{
		Tab:    tab,
		Sink:   e.sinkR,
		Logger: e.logger,
	})
	sess.SetContext(ctx)

	e.mu.Lock()
	url, opacity := e.textureURL, e.st.OpacityString()
	e.mu.Unlock()

	if err := sess.Start(url, opacity); err != nil {
		sess.Close()
		return fmt.Errorf("veil: start session: %w", err)
	}

	e.mu.Lock()
	if _, exists := e.sessions[pageCfg.ID]; !exists {
		e.order = append(e.order, pageCfg.ID)
	}
	e.sessions[pageCfg.ID] = sess
	e.mu.Unlock()

	e.logger.Info("veil: watching page", "url", pageCfg.URL, "id", pageCfg.ID)
	return nil
}

// ApplySettings regenerates the noise texture from the given settings and
// restyles every session's overlays. This is the bridge's apply callback; it
// is also safe to call directly. A texture encoding failure degrades to an
// invisible overlay instead of failing the daemon.
func (e *Engine) ApplySettings(ctx context.Context, st settings.Settings) error {
	url := ""
	tex, err := noise.Generate(st.NoiseType, e.cfg.Texture.Size, e.rnd)
	if err != nil {
		e.logger.Warn("veil: texture generation failed, overlay invisible", "error", err)
	} else if url, err = tex.DataURL(); err != nil {
		e.logger.Warn("veil: texture encoding failed, overlay invisible", "error", err)
		url = ""
	}

	e.mu.Lock()
	e.st = st
	e.textureURL = url
	sessions := e.snapshotLocked()
	e.mu.Unlock()

	opacity := st.OpacityString()
	for id, sess := range sessions {
		n, err := sess.Refresh(ctx, url, opacity)
		if err != nil {
			e.logger.Warn("veil: refresh failed", "id", id, "error", err)
			continue
		}
		e.logger.Debug("veil: overlays refreshed", "id", id, "overlays", n)
	}
	return nil
}

// Settings returns the currently effective settings.
func (e *Engine) Settings() settings.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st
}

// Stop gracefully shuts down all sessions and the browser.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, sess := range e.sessions {
		sess.Close()
		e.logger.Info("veil: stopped session", "id", id)
	}
	e.sessions = make(map[string]*session.Session)
	e.order = nil

	e.sinkR.Close()
	e.mgr.Close()
}

func (e *Engine) snapshotLocked() map[string]*session.Session {
	out := make(map[string]*session.Session, len(e.sessions))
	for id, s := range e.sessions {
		out[id] = s
	}
	return out
}

// primary returns the first watched page's session: the one the control
// protocol drives.
func (e *Engine) primary() (*session.Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.order) == 0 {
		return nil, fmt.Errorf("veil: no watched page")
	}
	return e.sessions[e.order[0]], nil
}

// The Engine implements control.Selector against the primary page.
var _ control.Selector = (*Engine)(nil)

// StartSelection enters selection mode on the primary page.
func (e *Engine) StartSelection(ctx context.Context) error {
	sess, err := e.primary()
	if err != nil {
		return err
	}
	return sess.StartSelection(ctx)
}

// ClearSelection exits selection mode and deselects on the primary page.
func (e *Engine) ClearSelection(ctx context.Context) error {
	sess, err := e.primary()
	if err != nil {
		return err
	}
	return sess.ClearSelection(ctx)
}

// HasSelected reports the primary page's selection state.
func (e *Engine) HasSelected(ctx context.Context) (bool, error) {
	sess, err := e.primary()
	if err != nil {
		return false, err
	}
	return sess.HasSelected(ctx)
}

// ApplyNoise ensures the selected image's overlay reflects the current
// settings.
func (e *Engine) ApplyNoise(ctx context.Context) error {
	sess, err := e.primary()
	if err != nil {
		return err
	}
	return sess.ApplySelected(ctx)
}

// GenerateNoisy exports a noised full-resolution copy of the selected image.
// A failed export leaves the selection intact.
func (e *Engine) GenerateNoisy(ctx context.Context) (*export.Artifact, error) {
	sess, err := e.primary()
	if err != nil {
		return nil, err
	}
	data, err := sess.SelectedImageBytes(ctx)
	if err != nil {
		return nil, err
	}
	return export.Generate(data, e.Settings(), e.rnd)
}
