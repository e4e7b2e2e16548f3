// Package session drives the injected overlay script on a single page: the
// initial scan, settings refreshes, and the selection/export operations. All
// DOM work happens in the page; the session holds no DOM state of its own,
// so every operation is safe to retry.
package session

import (
	"context"
	_ "embed"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/imgveil/control"
	"github.com/hazyhaar/imgveil/export"
	"github.com/hazyhaar/imgveil/veil/internal/browser"
	"github.com/hazyhaar/imgveil/veil/internal/sink"
)

//go:embed veil.js
var veilJS []byte

const bindingName = "__imgveil_binding"

// Session manages the overlay script for a single tab.
type Session struct {
	tab    *browser.Tab
	sink   sink.Sink
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// Config for creating a Session.
type Config struct {
	Tab    *browser.Tab
	Sink   sink.Sink
	Logger *slog.Logger
}

// New creates a Session for the given tab.
func New(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		tab:    cfg.Tab,
		sink:   cfg.Sink,
		logger: cfg.Logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetContext allows the parent engine to pass its context.
func (s *Session) SetContext(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
}

// Start injects the overlay script and applies the texture to every image
// already present. Images added later are handled by the script's own
// mutation observer; no further Go involvement is needed until the next
// settings change.
func (s *Session) Start(textureURL, opacity string) error {
	err := proto.RuntimeAddBinding{Name: bindingName}.Call(s.tab.Page)
	if err != nil {
		s.logger.Warn("session: addBinding failed (may already exist)", "error", err)
	}

	go s.listenBinding()

	if _, err := s.tab.Page.Eval(string(veilJS)); err != nil {
		return fmt.Errorf("session: inject veil.js: %w", err)
	}

	res, err := s.tab.Page.Eval(`(u, o) => window.__imgveil.configure(u, o)`, textureURL, opacity)
	if err != nil {
		return fmt.Errorf("session: configure: %w", err)
	}

	s.logger.Info("session: overlay active",
		"url", s.tab.PageURL, "id", s.tab.PageID, "overlays", res.Value.Int())
	return nil
}

// Refresh restyles every overlay with a new texture and opacity. Wrapper
// structure is never altered. Returns the overlay count.
func (s *Session) Refresh(ctx context.Context, textureURL, opacity string) (int, error) {
	res, err := s.tab.Page.Context(ctx).Eval(
		`(u, o) => window.__imgveil.refresh(u, o)`, textureURL, opacity)
	if err != nil {
		return 0, fmt.Errorf("session: refresh: %w", err)
	}
	return res.Value.Int(), nil
}

// StartSelection enters selection mode: the next click on an image selects
// it, replacing any prior selection.
func (s *Session) StartSelection(ctx context.Context) error {
	_, err := s.tab.Page.Context(ctx).Eval(`() => window.__imgveil.startSelection()`)
	if err != nil {
		return fmt.Errorf("session: start selection: %w", err)
	}
	return nil
}

// ClearSelection exits selection mode and deselects any selected image,
// removing its overlay and processed marker.
func (s *Session) ClearSelection(ctx context.Context) error {
	_, err := s.tab.Page.Context(ctx).Eval(`() => window.__imgveil.clearSelection()`)
	if err != nil {
		return fmt.Errorf("session: clear selection: %w", err)
	}
	return nil
}

// HasSelected reports whether an image is currently selected.
func (s *Session) HasSelected(ctx context.Context) (bool, error) {
	res, err := s.tab.Page.Context(ctx).Eval(`() => window.__imgveil.hasSelected()`)
	if err != nil {
		return false, fmt.Errorf("session: selection state: %w", err)
	}
	return res.Value.Bool(), nil
}

// ApplySelected ensures the selected image's overlay reflects the current
// settings. control.ErrNoSelection when nothing is selected.
func (s *Session) ApplySelected(ctx context.Context) error {
	res, err := s.tab.Page.Context(ctx).Eval(`() => window.__imgveil.applySelected()`)
	if err != nil {
		return fmt.Errorf("session: apply selected: %w", err)
	}
	if !res.Value.Bool() {
		return control.ErrNoSelection
	}
	return nil
}

// SelectedImageBytes fetches the selected image's raw bytes from inside the
// page. Failures are classified: no selection, unmeasurable dimensions, and
// origin-policy blocks each map to their distinguished error.
func (s *Session) SelectedImageBytes(ctx context.Context) ([]byte, error) {
	page := s.tab.Page.Context(ctx)

	info, err := page.Eval(`() => window.__imgveil.selectedInfo()`)
	if err != nil {
		return nil, fmt.Errorf("session: selected info: %w", err)
	}
	if info.Value.Nil() {
		return nil, control.ErrNoSelection
	}
	if info.Value.Get("width").Int() == 0 || info.Value.Get("height").Int() == 0 {
		return nil, export.ErrNoDimensions
	}

	res, err := page.Eval(`() => window.__imgveil.selectedBytes()`)
	if err != nil {
		return nil, classifyFetchError(err)
	}

	data, err := base64.StdEncoding.DecodeString(res.Value.Str())
	if err != nil {
		return nil, fmt.Errorf("%w: decode base64: %v", export.ErrSurface, err)
	}
	return data, nil
}

// Close stops the binding listener and closes the tab.
func (s *Session) Close() error {
	s.cancel()
	return s.tab.Close()
}

func classifyFetchError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "imgveil:cross-origin"):
		return export.ErrCrossOrigin
	case strings.Contains(msg, "imgveil:no-selection"):
		return control.ErrNoSelection
	default:
		return fmt.Errorf("%w: fetch: %v", export.ErrSurface, err)
	}
}
