// Package export produces the noised full-resolution copy of a selected
// image. Unlike the tiled overlay texture, the export path perturbs every
// pixel of the source independently: each colour channel gets its own noise
// delta scaled by the intensity, clamped to [0,255], alpha untouched.
//
// Failures are classified into distinguished errors so the control layer can
// answer with a distinct user-facing message per class. A failed export is
// terminal for that one request only and never clears the caller's selection.
package export

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"math/rand/v2"

	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/webp"

	"github.com/hazyhaar/imgveil/idgen"
	"github.com/hazyhaar/imgveil/noise"
	"github.com/hazyhaar/imgveil/settings"
)

// Distinguished export failure classes.
var (
	// ErrNoDimensions means the source image has no measurable dimensions.
	ErrNoDimensions = errors.New("export: cannot read image dimensions")
	// ErrSurface means the payload could not be decoded or re-encoded.
	ErrSurface = errors.New("export: drawing surface unavailable")
	// ErrCrossOrigin means pixel access was blocked by the page's origin
	// policy. Surfaced to users as a security-restriction message, never the
	// raw error.
	ErrCrossOrigin = errors.New("export: cross-origin pixel access blocked")
)

// Artifact is an exported image: an encoded data URL plus a timestamped
// file name.
type Artifact struct {
	DataURL  string `json:"dataUrl"`
	FileName string `json:"fileName"`
}

var fileNameGen = idgen.Prefixed("noised-image-", idgen.Timestamped(idgen.NanoID(6)))

// FileName generates a fresh export file name, e.g.
// "noised-image-20260102T150405Z_k3xq1z.png". Timestamped so a directory
// listing sorts by capture time.
func FileName() string {
	return fileNameGen() + ".png"
}

// Decode parses raw image bytes. PNG, JPEG, GIF and WebP are recognized;
// anything else is a surface failure.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrSurface, err)
	}
	return img, nil
}

// Noisy returns a copy of img with an independent noise delta added to every
// colour channel of every pixel. The delta follows the settings' noise kind
// and is scaled by the intensity, so intensity 100 can shift a channel by up
// to ±100 levels. Alpha is preserved. src may be nil for the global random
// source.
func Noisy(img image.Image, st settings.Settings, src *rand.Rand) (*image.NRGBA, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, ErrNoDimensions
	}

	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)

	scale := st.Intensity
	pix := out.Pix
	for i := 0; i < len(pix); i += 4 {
		for c := 0; c < 3; c++ {
			d := noise.Delta(st.NoiseType, scale, src)
			pix[i+c] = clamp8(float64(pix[i+c]) + d)
		}
	}
	return out, nil
}

// DataURL encodes img as a data:image/png;base64 URL.
func DataURL(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("%w: encode: %v", ErrSurface, err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Generate runs the whole pipeline: decode, perturb, encode, name.
func Generate(data []byte, st settings.Settings, src *rand.Rand) (*Artifact, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	noisy, err := Noisy(img, st, src)
	if err != nil {
		return nil, err
	}
	url, err := DataURL(noisy)
	if err != nil {
		return nil, err
	}
	return &Artifact{DataURL: url, FileName: FileName()}, nil
}

// UserMessage maps an export failure to its user-facing message. The
// cross-origin class deliberately hides the underlying technical error.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrCrossOrigin):
		return "Cannot export this image due to a security restriction."
	case errors.Is(err, ErrNoDimensions):
		return "Cannot read the image dimensions."
	case errors.Is(err, ErrSurface):
		return "The image could not be processed."
	default:
		return "Export failed."
	}
}

func clamp8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
