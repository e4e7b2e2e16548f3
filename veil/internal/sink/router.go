package sink

import (
	"context"
	"log/slog"
)

// Router fans out events to all configured sinks. One sink error does not
// block the others; errors are logged and the first encountered is returned.
// Selection notifications stay best-effort regardless: callers ignore the
// returned error for that event class.
type Router struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewRouter creates a fan-out router delivering to all sinks.
func NewRouter(logger *slog.Logger, sinks ...Sink) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{sinks: sinks, logger: logger}
}

func (r *Router) SendOverlay(ctx context.Context, ev OverlayEvent) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.SendOverlay(ctx, ev); err != nil {
			r.logger.Warn("sink: send overlay failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) SendSelection(ctx context.Context, ev SelectionEvent) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.SendSelection(ctx, ev); err != nil {
			r.logger.Warn("sink: send selection failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (r *Router) Close() error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
