package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func TestStdoutJSONLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdout(&buf)
	ctx := context.Background()

	if err := s.SendOverlay(ctx, OverlayEvent{PageID: "p1", Kind: "applied", Overlays: 3}); err != nil {
		t.Fatal(err)
	}
	if err := s.SendSelection(ctx, SelectionEvent{PageID: "p1", HasSelected: true}); err != nil {
		t.Fatal(err)
	}

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}

	var first struct {
		Type string       `json:"type"`
		Data OverlayEvent `json:"data"`
	}
	if err := json.Unmarshal(lines[0], &first); err != nil {
		t.Fatal(err)
	}
	if first.Type != "overlay" || first.Data.Overlays != 3 {
		t.Fatalf("first line: %+v", first)
	}

	var second struct {
		Type string         `json:"type"`
		Data SelectionEvent `json:"data"`
	}
	if err := json.Unmarshal(lines[1], &second); err != nil {
		t.Fatal(err)
	}
	if second.Type != "selection" || !second.Data.HasSelected {
		t.Fatalf("second line: %+v", second)
	}
}

func TestWebhookSingleAttempt(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookLogger(testLogger()))
	err := w.SendSelection(context.Background(), SelectionEvent{HasSelected: true})
	if err == nil {
		t.Fatal("expected error on 500 status")
	}
	// Selection notifications are advisory: exactly one attempt, no retry.
	if n := calls.Load(); n != 1 {
		t.Fatalf("attempts = %d, want 1", n)
	}
}

func TestWebhookDelivers(t *testing.T) {
	var got struct {
		Type string         `json:"type"`
		Data SelectionEvent `json:"data"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, WithWebhookLogger(testLogger()))
	err := w.SendSelection(context.Background(), SelectionEvent{PageID: "p1", HasSelected: true})
	if err != nil {
		t.Fatal(err)
	}
	if got.Type != "selection" || !got.Data.HasSelected {
		t.Fatalf("delivered payload: %+v", got)
	}
}

type failingSink struct {
	overlays   int
	selections int
}

func (f *failingSink) SendOverlay(context.Context, OverlayEvent) error {
	f.overlays++
	return errors.New("sink down")
}

func (f *failingSink) SendSelection(context.Context, SelectionEvent) error {
	f.selections++
	return errors.New("sink down")
}

func (f *failingSink) Close() error { return nil }

func TestRouterFanOutContinuesOnError(t *testing.T) {
	bad := &failingSink{}
	var buf bytes.Buffer
	good := NewStdout(&buf)

	r := NewRouter(testLogger(), bad, good)
	err := r.SendOverlay(context.Background(), OverlayEvent{Overlays: 1})
	if err == nil {
		t.Fatal("expected first sink's error to propagate")
	}
	if bad.overlays != 1 {
		t.Fatalf("bad sink calls = %d", bad.overlays)
	}
	// The failing sink must not block delivery to the healthy one.
	if buf.Len() == 0 {
		t.Fatal("healthy sink did not receive the event")
	}
}

func TestCallbackNilHandlers(t *testing.T) {
	c := NewCallback(nil, nil)
	ctx := context.Background()
	if err := c.SendOverlay(ctx, OverlayEvent{}); err != nil {
		t.Fatal(err)
	}
	if err := c.SendSelection(ctx, SelectionEvent{}); err != nil {
		t.Fatal(err)
	}
}

func TestCallbackDelivers(t *testing.T) {
	var ov OverlayEvent
	c := NewCallback(func(_ context.Context, ev OverlayEvent) error {
		ov = ev
		return nil
	}, nil)
	if err := c.SendOverlay(context.Background(), OverlayEvent{PageID: "p9", Overlays: 7}); err != nil {
		t.Fatal(err)
	}
	if ov.PageID != "p9" || ov.Overlays != 7 {
		t.Fatalf("callback event: %+v", ov)
	}
}
