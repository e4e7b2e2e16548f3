package noise

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
)

// PNG encodes the texture as a PNG byte slice.
func (t *Texture) PNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, t.img); err != nil {
		return nil, fmt.Errorf("noise: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURL encodes the texture as a data:image/png;base64 URL suitable for a
// CSS background-image. On encoding failure callers treat the overlay as
// invisible rather than failing the page.
func (t *Texture) DataURL() (string, error) {
	data, err := t.PNG()
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}
