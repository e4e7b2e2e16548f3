package veil

import (
	"context"
	"io"
	"log/slog"

	"github.com/hazyhaar/imgveil/veil/internal/sink"
)

// Sink is the output interface for overlay and selection events.
type Sink = sink.Sink

// OverlayEvent reports overlay activity on a watched page.
type OverlayEvent = sink.OverlayEvent

// SelectionEvent is the best-effort selection-changed notification.
type SelectionEvent = sink.SelectionEvent

// NewStdoutSink creates a stdout JSON-lines sink.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a single-attempt webhook POST sink.
func NewWebhookSink(url string, logger *slog.Logger) Sink {
	return sink.NewWebhook(url, sink.WithWebhookLogger(logger))
}

// NewCallbackSink creates an in-process callback sink — zero serialisation.
func NewCallbackSink(
	onOverlay func(ctx context.Context, ev OverlayEvent) error,
	onSelection func(ctx context.Context, ev SelectionEvent) error,
) Sink {
	return sink.NewCallback(onOverlay, onSelection)
}

// SinksFromConfig builds sinks from configuration. Unknown types are
// skipped with a warning.
func SinksFromConfig(cfgs []SinkConfig, logger *slog.Logger) []Sink {
	var sinks []Sink
	for _, c := range cfgs {
		switch c.Type {
		case "stdout":
			sinks = append(sinks, NewStdoutSink(nil))
		case "webhook":
			sinks = append(sinks, NewWebhookSink(c.URL, logger))
		default:
			logger.Warn("veil: unknown sink type", "type", c.Type)
		}
	}
	return sinks
}
