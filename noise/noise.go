// Package noise generates the small tileable greyscale textures that imgveil
// paints over watched images. A texture is a square bitmap whose pixels are
// independent draws from a uniform or approximate-Gaussian distribution; it
// is regenerated wholesale whenever the noise kind changes and embedded into
// pages as a PNG data URL.
package noise

import (
	"fmt"
	"image"
	"math"
	"math/rand/v2"
)

// Kind selects the probability distribution used for noise pixels.
type Kind string

const (
	// KindUniform draws each grey level from a continuous uniform
	// distribution over [0,255].
	KindUniform Kind = "uniform"
	// KindGaussian draws each grey level from an approximate unit normal
	// (Box-Muller), mapped from roughly [-3,3] into [0,255].
	KindGaussian Kind = "gaussian"
)

// DefaultKind is used whenever an unknown kind is supplied by the caller.
const DefaultKind = KindUniform

// DefaultSize is the side length of a texture in pixels.
const DefaultSize = 128

// Valid reports whether k is a supported noise kind.
func (k Kind) Valid() bool {
	return k == KindUniform || k == KindGaussian
}

// Texture is an immutable greyscale noise bitmap. Create one with Generate;
// share it freely — all methods are read-only.
type Texture struct {
	img  *image.NRGBA
	kind Kind
}

// Generate produces a size×size texture of the given kind. A nil src uses the
// process-wide random source. size <= 0 falls back to DefaultSize.
func Generate(kind Kind, size int, src *rand.Rand) (*Texture, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("noise: unknown kind %q", kind)
	}
	if size <= 0 {
		size = DefaultSize
	}

	grey := uniformGrey
	if kind == KindGaussian {
		grey = gaussianGrey
	}

	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	pix := img.Pix
	for i := 0; i < len(pix); i += 4 {
		g := grey(src)
		pix[i+0] = g
		pix[i+1] = g
		pix[i+2] = g
		pix[i+3] = 0xff
	}

	return &Texture{img: img, kind: kind}, nil
}

// Kind returns the distribution the texture was generated from.
func (t *Texture) Kind() Kind { return t.kind }

// Side returns the texture's side length in pixels.
func (t *Texture) Side() int { return t.img.Rect.Dx() }

// Image exposes the underlying bitmap. Callers must not mutate it.
func (t *Texture) Image() *image.NRGBA { return t.img }

func uniformGrey(src *rand.Rand) uint8 {
	return uint8(float64v(src) * 255)
}

// gaussianGrey transforms two uniform draws via Box-Muller into an
// approximate unit normal, rescales (z+3)/6 so roughly [-3,3] covers [0,1],
// and clamps before scaling to [0,255].
func gaussianGrey(src *rand.Rand) uint8 {
	u1 := float64v(src)
	u2 := float64v(src)
	if u1 < 1e-12 {
		u1 = 1e-12 // guard log(0)
	}
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	v := (z + 3) / 6
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return uint8(v * 255)
}

func float64v(src *rand.Rand) float64 {
	if src == nil {
		return rand.Float64()
	}
	return src.Float64()
}

// Delta returns a signed noise delta in [-scale, scale] for the given kind,
// used by the export path to perturb individual colour channels. For the
// Gaussian kind the delta is z/3 of a Box-Muller draw, so ~99.7% of deltas
// fall within the scale.
func Delta(kind Kind, scale float64, src *rand.Rand) float64 {
	switch kind {
	case KindGaussian:
		u1 := float64v(src)
		u2 := float64v(src)
		if u1 < 1e-12 {
			u1 = 1e-12
		}
		z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
		return z / 3 * scale
	default:
		return (float64v(src)*2 - 1) * scale
	}
}
