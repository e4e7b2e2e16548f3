package sink

import "context"

// OverlayFunc is called for each overlay event (in-process, zero
// serialisation).
type OverlayFunc func(ctx context.Context, ev OverlayEvent) error

// SelectionFunc is called for each selection-changed event.
type SelectionFunc func(ctx context.Context, ev SelectionEvent) error

// Callback delivers events via Go function calls, for consumers living in
// the same binary.
type Callback struct {
	onOverlay   OverlayFunc
	onSelection SelectionFunc
}

// NewCallback creates a Callback sink. Either handler may be nil.
func NewCallback(onOverlay OverlayFunc, onSelection SelectionFunc) *Callback {
	return &Callback{onOverlay: onOverlay, onSelection: onSelection}
}

func (c *Callback) SendOverlay(ctx context.Context, ev OverlayEvent) error {
	if c.onOverlay != nil {
		return c.onOverlay(ctx, ev)
	}
	return nil
}

func (c *Callback) SendSelection(ctx context.Context, ev SelectionEvent) error {
	if c.onSelection != nil {
		return c.onSelection(ctx, ev)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
