package session

import (
	"encoding/json"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/imgveil/veil/internal/sink"
)

// listenBinding receives events from the injected script via
// Runtime.bindingCalled and forwards them to the sinks. Selection
// notifications are best-effort: a sink failure is logged by the router and
// never propagates back into the page.
func (s *Session) listenBinding() {
	page := s.tab.Page
	page.Context(s.ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}

		var ev struct {
			Event       string `json:"event"`
			Overlays    int    `json:"overlays"`
			HasSelected bool   `json:"hasSelected"`
		}
		if err := json.Unmarshal([]byte(e.Payload), &ev); err != nil {
			s.logger.Warn("session: parse binding payload", "error", err)
			return
		}

		now := time.Now().UnixMilli()
		switch ev.Event {
		case "overlay_applied", "overlay_refreshed":
			kind := "applied"
			if ev.Event == "overlay_refreshed" {
				kind = "refreshed"
			}
			_ = s.sink.SendOverlay(s.ctx, sink.OverlayEvent{
				PageID:    s.tab.PageID,
				PageURL:   s.tab.PageURL,
				Kind:      kind,
				Overlays:  ev.Overlays,
				Timestamp: now,
			})
		case "selection_changed":
			_ = s.sink.SendSelection(s.ctx, sink.SelectionEvent{
				PageID:      s.tab.PageID,
				PageURL:     s.tab.PageURL,
				HasSelected: ev.HasSelected,
				Timestamp:   now,
			})
		default:
			s.logger.Debug("session: unknown binding event", "event", ev.Event)
		}
	})()
}
