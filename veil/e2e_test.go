package veil

// End-to-end tests driving a real headless Chrome against local fixture
// pages. They verify the injected script's DOM behavior: injection itself,
// idempotent re-apply, overlays on images inserted later (including nested),
// load deferral, and selection moving between images.

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"

	"github.com/hazyhaar/imgveil/noise"
	"github.com/hazyhaar/imgveil/veil/internal/browser"
	"github.com/hazyhaar/imgveil/veil/internal/session"
)

func launchTestBrowser(t *testing.T) *browser.Manager {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	if _, has := launcher.LookPath(); !has {
		t.Skip("no chrome binary found")
	}
	mgr := browser.NewManager(browser.Config{
		Logger:          discardLogger(),
		NavigateTimeout: 15 * time.Second,
	})
	if _, err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("start browser: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })
	return mgr
}

func textureDataURL(t *testing.T) string {
	t.Helper()
	tex, err := noise.Generate(noise.KindUniform, 16, nil)
	if err != nil {
		t.Fatal(err)
	}
	url, err := tex.DataURL()
	if err != nil {
		t.Fatal(err)
	}
	return url
}

func serveFixture(t *testing.T, html string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, html)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

// openOverlayPage serves the fixture, opens a tab on it, and starts an
// overlay session with the given texture.
func openOverlayPage(t *testing.T, mgr *browser.Manager, html, textureURL string) *browser.Tab {
	t.Helper()
	tab, err := browser.OpenTab(context.Background(), mgr, serveFixture(t, html), "e2e")
	if err != nil {
		t.Fatalf("open tab: %v", err)
	}
	sess := session.New(session.Config{
		Tab:    tab,
		Sink:   NewCallbackSink(nil, nil),
		Logger: discardLogger(),
	})
	t.Cleanup(func() { sess.Close() })
	if err := sess.Start(textureURL, "0.4"); err != nil {
		t.Fatalf("session start: %v", err)
	}
	return tab
}

func evalInt(t *testing.T, tab *browser.Tab, js string) int {
	t.Helper()
	res, err := tab.Page.Eval(js)
	if err != nil {
		t.Fatalf("eval %s: %v", js, err)
	}
	return res.Value.Int()
}

func evalBool(t *testing.T, tab *browser.Tab, js string) bool {
	t.Helper()
	res, err := tab.Page.Eval(js)
	if err != nil {
		t.Fatalf("eval %s: %v", js, err)
	}
	return res.Value.Bool()
}

func waitForOverlays(t *testing.T, tab *browser.Tab, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if evalInt(t, tab, `() => window.__imgveil.overlayCount()`) == want {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("overlay count never reached %d, have %d",
		want, evalInt(t, tab, `() => window.__imgveil.overlayCount()`))
}

func TestOverlayInjectionAndIdempotentApply(t *testing.T) {
	mgr := launchTestBrowser(t)
	tex := textureDataURL(t)
	tab := openOverlayPage(t, mgr,
		`<html><body>
			<img id="a" src="`+tex+`">
			<img id="b" src="`+tex+`">
		</body></html>`, tex)

	waitForOverlays(t, tab, 2)

	// Re-scanning an already-processed page must restyle in place, never
	// stack a second overlay on any image.
	evalInt(t, tab, `() => window.__imgveil.scan()`)
	evalInt(t, tab, `() => window.__imgveil.scan()`)
	if n := evalInt(t, tab, `() => window.__imgveil.overlayCount()`); n != 2 {
		t.Fatalf("overlay count after double scan = %d, want 2", n)
	}
	if n := evalInt(t, tab, `() => document.querySelectorAll('[data-imgveil-wrapper]').length`); n != 2 {
		t.Fatalf("wrapper count after double scan = %d, want 2", n)
	}
}

func TestOverlayCoversNestedInsertedImage(t *testing.T) {
	mgr := launchTestBrowser(t)
	tex := textureDataURL(t)
	tab := openOverlayPage(t, mgr,
		`<html><body><img id="a" src="`+tex+`"></body></html>`, tex)

	waitForOverlays(t, tab, 1)

	// The inserted node is a container; the image sits two levels down and
	// must still be picked up by the mutation observer.
	_, err := tab.Page.Eval(`(src) => {
		const div = document.createElement('div');
		div.innerHTML = '<figure><img id="late" src="' + src + '"></figure>';
		document.body.appendChild(div);
	}`, tex)
	if err != nil {
		t.Fatalf("insert nested image: %v", err)
	}

	waitForOverlays(t, tab, 2)
}

func TestOverlayDefersUntilImageLoads(t *testing.T) {
	mgr := launchTestBrowser(t)
	tex := textureDataURL(t)
	tab := openOverlayPage(t, mgr,
		`<html><body><img id="a" src="`+tex+`"></body></html>`, tex)

	waitForOverlays(t, tab, 1)

	// A sourceless image cannot be measured yet: it must be marked pending
	// and left bare until its load event fires.
	_, err := tab.Page.Eval(`() => {
		const img = document.createElement('img');
		img.id = 'slow';
		document.body.appendChild(img);
	}`)
	if err != nil {
		t.Fatalf("insert sourceless image: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for !evalBool(t, tab, `() => document.getElementById('slow').hasAttribute('data-imgveil-pending')`) {
		if time.Now().After(deadline) {
			t.Fatal("image never marked pending")
		}
		time.Sleep(50 * time.Millisecond)
	}
	if n := evalInt(t, tab, `() => window.__imgveil.overlayCount()`); n != 1 {
		t.Fatalf("overlay count before load = %d, want 1", n)
	}

	if _, err := tab.Page.Eval(`(src) => { document.getElementById('slow').src = src; }`, tex); err != nil {
		t.Fatalf("set src: %v", err)
	}
	waitForOverlays(t, tab, 2)
}

func TestSelectionMovesBetweenImages(t *testing.T) {
	mgr := launchTestBrowser(t)
	tex := textureDataURL(t)
	tab := openOverlayPage(t, mgr,
		`<html><body>
			<img id="a" src="`+tex+`">
			<img id="b" src="`+tex+`">
		</body></html>`, tex)

	waitForOverlays(t, tab, 2)

	clickImage := func(id string) {
		t.Helper()
		evalBool(t, tab, `() => window.__imgveil.startSelection()`)
		if _, err := tab.Page.Eval(`(id) => { document.getElementById(id).click(); }`, id); err != nil {
			t.Fatalf("click %s: %v", id, err)
		}
	}

	clickImage("a")
	if !evalBool(t, tab, `() => window.__imgveil.hasSelected()`) {
		t.Fatal("no selection after clicking image a")
	}

	// Selecting a second image deselects the first: its overlay and
	// processed marker are removed, and exactly one overlay remains gone.
	clickImage("b")
	if !evalBool(t, tab, `() => window.__imgveil.selectedInfo().src === document.getElementById('b').src`) {
		t.Fatal("selection did not move to image b")
	}
	if evalBool(t, tab, `() => document.getElementById('a').hasAttribute('data-imgveil')`) {
		t.Fatal("image a kept its processed marker after deselection")
	}
	waitForOverlays(t, tab, 1)

	if !evalBool(t, tab, `() => window.__imgveil.clearSelection()`) {
		t.Fatal("clearSelection failed")
	}
	if evalBool(t, tab, `() => window.__imgveil.hasSelected()`) {
		t.Fatal("selection survived clearSelection")
	}
	waitForOverlays(t, tab, 0)
}
