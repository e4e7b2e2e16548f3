// Package sink defines output backends for overlay and selection events.
package sink

import "context"

// OverlayEvent reports overlay activity on a watched page.
type OverlayEvent struct {
	PageID    string `json:"page_id"`
	PageURL   string `json:"page_url"`
	Kind      string `json:"kind"` // "applied" | "refreshed"
	Overlays  int    `json:"overlays"`
	Timestamp int64  `json:"timestamp"`
}

// SelectionEvent is the best-effort selection-changed notification.
type SelectionEvent struct {
	PageID      string `json:"page_id"`
	PageURL     string `json:"page_url"`
	HasSelected bool   `json:"hasSelected"`
	Timestamp   int64  `json:"timestamp"`
}

// Sink delivers events to a backend (stdout, webhook, in-process callback).
type Sink interface {
	SendOverlay(ctx context.Context, ev OverlayEvent) error
	SendSelection(ctx context.Context, ev SelectionEvent) error
	Close() error
}
