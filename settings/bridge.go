package settings

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ApplyFunc receives the newly effective settings. It is invoked once at
// startup and again whenever a recognized field changes value. Errors are
// logged and the change stays pending, so the next poll retries the apply.
type ApplyFunc func(ctx context.Context, s Settings) error

// BridgeOptions tunes the polling loop.
type BridgeOptions struct {
	// Interval is the store polling frequency. Default: 1s.
	Interval time.Duration
	// Debounce is the quiet period after a detected change before the
	// apply fires; further changes reset the timer. 0 fires immediately.
	Debounce time.Duration
	Logger   *slog.Logger
}

func (o *BridgeOptions) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Bridge connects the persisted settings record to the overlay engine:
// it loads the record at startup, watches the store's change token, and
// re-applies only when a recognized field actually changed value.
type Bridge struct {
	store *Store
	opts  BridgeOptions
	apply ApplyFunc

	mu      sync.RWMutex
	current Settings
	version int64
}

// NewBridge creates a Bridge. Call Run to load-and-watch.
func NewBridge(store *Store, apply ApplyFunc, opts BridgeOptions) *Bridge {
	opts.defaults()
	return &Bridge{
		store:   store,
		opts:    opts,
		apply:   apply,
		current: Defaults(),
	}
}

// Current returns the last applied settings.
func (b *Bridge) Current() Settings {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.current
}

// Run performs the startup load+apply, then blocks polling the store until
// ctx is cancelled. The startup apply happens even when the store holds no
// record yet (defaults are applied), so callers can scan immediately after.
func (b *Bridge) Run(ctx context.Context) error {
	log := b.opts.Logger

	st, err := b.store.Load(ctx)
	if err != nil {
		log.Warn("settings: startup load failed, using defaults", "error", err)
		st = Defaults()
	}
	ver, err := b.store.Version(ctx)
	if err != nil {
		log.Warn("settings: initial version check failed", "error", err)
	}

	if err := b.applyAndRecord(ctx, st, ver); err != nil {
		return err
	}
	log.Info("settings: applied",
		"noise_type", st.NoiseType, "intensity", st.Intensity)

	ticker := time.NewTicker(b.opts.Interval)
	defer ticker.Stop()

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time
	pending := int64(-1)

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			log.Info("settings: bridge stopped")
			return nil

		case <-ticker.C:
			cur, err := b.store.Version(ctx)
			if err != nil {
				log.Warn("settings: version check failed", "error", err)
				continue
			}
			b.mu.RLock()
			known := b.version
			b.mu.RUnlock()
			if cur == known || cur == pending {
				continue
			}
			pending = cur
			if b.opts.Debounce <= 0 {
				b.fire(ctx, pending)
				pending = -1
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(b.opts.Debounce)
			debounceCh = debounceTimer.C
			log.Debug("settings: change detected, debouncing", "version", cur)

		case <-debounceCh:
			debounceCh = nil
			if pending >= 0 {
				b.fire(ctx, pending)
				pending = -1
			}
		}
	}
}

// fire reloads the record and applies it when a recognized field changed.
// On apply failure the version is not advanced, so the next poll retries.
func (b *Bridge) fire(ctx context.Context, ver int64) {
	log := b.opts.Logger

	st, err := b.store.Load(ctx)
	if err != nil {
		log.Warn("settings: reload failed", "error", err)
		return
	}

	b.mu.RLock()
	unchanged := st.Equal(b.current)
	b.mu.RUnlock()
	if unchanged {
		// Token moved but no recognized field changed (e.g. a rewrite of
		// identical values). Record the version, skip the apply.
		b.mu.Lock()
		b.version = ver
		b.mu.Unlock()
		log.Debug("settings: no recognized field changed", "version", ver)
		return
	}

	if err := b.applyAndRecord(ctx, st, ver); err != nil {
		log.Error("settings: apply failed", "error", err)
		return
	}
	log.Info("settings: re-applied",
		"noise_type", st.NoiseType, "intensity", st.Intensity, "version", ver)
}

func (b *Bridge) applyAndRecord(ctx context.Context, st Settings, ver int64) error {
	if b.apply != nil {
		if err := b.apply(ctx, st); err != nil {
			return err
		}
	}
	b.mu.Lock()
	b.current = st
	b.version = ver
	b.mu.Unlock()
	return nil
}
