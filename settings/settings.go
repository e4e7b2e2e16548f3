// Package settings holds the user preferences that drive noise generation —
// the noise kind and the overlay intensity — together with their persistence
// and change-watching. Raw values are normalized on every read: an unknown
// noise kind falls back to the default, a non-numeric intensity keeps the
// previous value, and a numeric intensity is clamped into [0.5,100].
package settings

import (
	"strconv"

	"github.com/hazyhaar/imgveil/noise"
)

// Intensity bounds. Values outside are clamped, never rejected.
const (
	MinIntensity = 0.5
	MaxIntensity = 100
)

// Overlay opacity bounds: never fully transparent, never above full opacity.
const (
	MinOpacity = 0.005
	MaxOpacity = 1
)

// Keys of the persisted settings record.
const (
	KeyNoiseType = "noiseType"
	KeyIntensity = "intensity"
)

// AreaLocal is the only persistence area honoured by the store and bridge.
const AreaLocal = "local"

// Settings is the normalized preference pair.
type Settings struct {
	NoiseType noise.Kind `json:"noiseType"`
	Intensity float64    `json:"intensity"`
}

// Defaults returns the out-of-the-box settings.
func Defaults() Settings {
	return Settings{NoiseType: noise.DefaultKind, Intensity: 20}
}

// Normalize merges raw key/value pairs over base. Unknown keys are ignored,
// an invalid noise type keeps base's, a non-parseable intensity keeps base's,
// and a parseable intensity is clamped into [MinIntensity, MaxIntensity].
func Normalize(base Settings, raw map[string]string) Settings {
	out := base
	if v, ok := raw[KeyNoiseType]; ok {
		if k := noise.Kind(v); k.Valid() {
			out.NoiseType = k
		}
	}
	if v, ok := raw[KeyIntensity]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out.Intensity = clampIntensity(f)
		}
	}
	// base itself may carry out-of-range values (e.g. hand-edited rows).
	out.Intensity = clampIntensity(out.Intensity)
	if !out.NoiseType.Valid() {
		out.NoiseType = noise.DefaultKind
	}
	return out
}

func clampIntensity(f float64) float64 {
	if f < MinIntensity {
		return MinIntensity
	}
	if f > MaxIntensity {
		return MaxIntensity
	}
	return f
}

// Opacity maps an intensity to the overlay's CSS opacity:
// clamp(intensity/100, 0.005, 1). Monotonic, so a stronger setting is never
// fainter on screen.
func Opacity(intensity float64) float64 {
	o := intensity / 100
	if o < MinOpacity {
		return MinOpacity
	}
	if o > MaxOpacity {
		return MaxOpacity
	}
	return o
}

// OpacityString renders Opacity for direct use in an inline style
// (20 → "0.2", 0.5 → "0.005", 100 → "1").
func OpacityString(intensity float64) string {
	return strconv.FormatFloat(Opacity(intensity), 'f', -1, 64)
}

// Opacity is the settings' own overlay opacity.
func (s Settings) Opacity() float64 { return Opacity(s.Intensity) }

// OpacityString is the settings' own overlay opacity as an inline-style value.
func (s Settings) OpacityString() string { return OpacityString(s.Intensity) }

// Equal reports whether the recognized fields match. The bridge only
// re-applies when this is false.
func (s Settings) Equal(o Settings) bool {
	return s.NoiseType == o.NoiseType && s.Intensity == o.Intensity
}
