// Package control implements the inbound command protocol that drives the
// selection and export state machine. Commands arrive as tagged JSON
// envelopes from any transport (HTTP, MCP, stdin); every dispatch answers
// exactly once with an {ok,...} or {hasSelected} response, and a failed
// command never disturbs state beyond its own operation.
package control

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/hazyhaar/imgveil/export"
)

// Type tags a command envelope.
type Type string

const (
	TypeStartSelection  Type = "START_SELECTION"
	TypeClearSelection  Type = "CLEAR_SELECTION"
	TypeSelectionState  Type = "GET_SELECTION_STATE"
	TypeApplyNoise      Type = "APPLY_NOISE"
	TypeGenerateNoisy   Type = "GENERATE_NOISY_IMAGE"
)

// Command is the wire envelope: a type tag plus an optional payload.
type Command struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrNoSelection is returned by export-class commands when no image is
// currently selected.
var ErrNoSelection = errors.New("control: no image selected")

// Selector is the state machine the protocol drives. The veil session
// implements it; tests use fakes.
type Selector interface {
	// StartSelection enters selection mode (installs the click interceptor).
	StartSelection(ctx context.Context) error
	// ClearSelection exits selection mode and deselects any selected image.
	ClearSelection(ctx context.Context) error
	// HasSelected reports whether an image is currently selected.
	HasSelected(ctx context.Context) (bool, error)
	// ApplyNoise ensures the selected image's overlay reflects the current
	// settings. ErrNoSelection when nothing is selected.
	ApplyNoise(ctx context.Context) error
	// GenerateNoisy exports a noised full-resolution copy of the selected
	// image. ErrNoSelection when nothing is selected; export errors keep the
	// selection intact.
	GenerateNoisy(ctx context.Context) (*export.Artifact, error)
}

// userMessage maps a command failure to the message carried in the
// {ok:false} response.
func userMessage(err error) string {
	if errors.Is(err, ErrNoSelection) {
		return "No image is selected."
	}
	return export.UserMessage(err)
}
