package control

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Handler answers one command type: payload bytes in, response value out.
// The returned value is marshalled as the single response; a returned error
// becomes an {ok:false, error} response instead.
type Handler func(ctx context.Context, payload json.RawMessage) (any, error)

// Mux routes command envelopes to handlers. Thread-safe: registration uses
// the write lock, dispatch the read lock.
type Mux struct {
	mu       sync.RWMutex
	handlers map[Type]Handler
	logger   *slog.Logger
}

// Option configures a Mux.
type Option func(*Mux)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mux) { m.logger = l }
}

// NewMux creates a Mux with the five built-in commands wired to sel.
func NewMux(sel Selector, opts ...Option) *Mux {
	m := &Mux{
		handlers: make(map[Type]Handler),
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	m.registerBuiltin(sel)
	return m
}

// Register installs a handler for a command type, replacing any existing one.
func (m *Mux) Register(t Type, h Handler) {
	m.mu.Lock()
	m.handlers[t] = h
	m.mu.Unlock()
}

// okResponse is the generic {ok:true} / {ok:false, error} answer.
type okResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// stateResponse answers GET_SELECTION_STATE.
type stateResponse struct {
	HasSelected bool `json:"hasSelected"`
}

// exportResponse answers a successful GENERATE_NOISY_IMAGE.
type exportResponse struct {
	OK       bool   `json:"ok"`
	DataURL  string `json:"dataUrl"`
	FileName string `json:"fileName"`
}

func (m *Mux) registerBuiltin(sel Selector) {
	m.Register(TypeStartSelection, func(ctx context.Context, _ json.RawMessage) (any, error) {
		if err := sel.StartSelection(ctx); err != nil {
			return nil, err
		}
		return okResponse{OK: true}, nil
	})
	m.Register(TypeClearSelection, func(ctx context.Context, _ json.RawMessage) (any, error) {
		if err := sel.ClearSelection(ctx); err != nil {
			return nil, err
		}
		return okResponse{OK: true}, nil
	})
	m.Register(TypeSelectionState, func(ctx context.Context, _ json.RawMessage) (any, error) {
		has, err := sel.HasSelected(ctx)
		if err != nil {
			return nil, err
		}
		return stateResponse{HasSelected: has}, nil
	})
	m.Register(TypeApplyNoise, func(ctx context.Context, _ json.RawMessage) (any, error) {
		if err := sel.ApplyNoise(ctx); err != nil {
			return nil, err
		}
		return okResponse{OK: true}, nil
	})
	m.Register(TypeGenerateNoisy, func(ctx context.Context, _ json.RawMessage) (any, error) {
		art, err := sel.GenerateNoisy(ctx)
		if err != nil {
			return nil, err
		}
		return exportResponse{OK: true, DataURL: art.DataURL, FileName: art.FileName}, nil
	})
}

// Dispatch answers one raw command envelope. It always produces exactly one
// JSON response: handler errors come back as {ok:false, error} with the
// user-facing message, never as a Go error. The returned error is reserved
// for transport-level problems (undecodable envelope).
func (m *Mux) Dispatch(ctx context.Context, raw []byte) ([]byte, error) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return nil, fmt.Errorf("control: decode envelope: %w", err)
	}
	return m.DispatchCommand(ctx, cmd)
}

// DispatchCommand answers one decoded command.
func (m *Mux) DispatchCommand(ctx context.Context, cmd Command) ([]byte, error) {
	m.mu.RLock()
	h, ok := m.handlers[cmd.Type]
	m.mu.RUnlock()
	if !ok {
		m.logger.Warn("control: unknown command type", "type", cmd.Type)
		return json.Marshal(okResponse{OK: false, Error: "Unknown command."})
	}

	resp, err := h(ctx, cmd.Payload)
	if err != nil {
		m.logger.Warn("control: command failed", "type", cmd.Type, "error", err)
		return json.Marshal(okResponse{OK: false, Error: userMessage(err)})
	}
	return json.Marshal(resp)
}
