package signature

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"strings"
	"time"

	"docsign/internal/docsign"
)

const pngDataURLPrefix = "data:image/png;base64,"

// ToDataURL encodes PNG bytes as a data URL.
func ToDataURL(img []byte) string {
	return pngDataURLPrefix + base64.StdEncoding.EncodeToString(img)
}

// FromDataURL decodes a PNG data URL into signature data. The dimensions
// come from the PNG header.
func FromDataURL(dataURL, signerName string, now time.Time) (*docsign.SignatureData, error) {
	if !strings.HasPrefix(dataURL, pngDataURLPrefix) {
		return nil, &docsign.ValidationError{Field: "signature", Message: "signature must be a PNG data URL"}
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, pngDataURLPrefix))
	if err != nil {
		return nil, &docsign.ValidationError{Field: "signature", Message: fmt.Sprintf("invalid base64: %v", err)}
	}
	return FromPNG(raw, signerName, now)
}

// FromPNG wraps raw PNG bytes as signature data.
func FromPNG(raw []byte, signerName string, now time.Time) (*docsign.SignatureData, error) {
	cfg, err := png.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, &docsign.ValidationError{Field: "signature", Message: fmt.Sprintf("invalid PNG: %v", err)}
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, &docsign.ValidationError{Field: "signature", Message: "signature image is empty"}
	}
	return &docsign.SignatureData{
		Image:      raw,
		Width:      cfg.Width,
		Height:     cfg.Height,
		SignerName: signerName,
		SignedAt:   now.UTC(),
	}, nil
}

// Replay draws recorded strokes, given in surface pixels, onto a fresh
// surface of the given size.
func Replay(width, height int, lineWidth float64, strokes [][]Point) *Surface {
	s := NewSurface(width, height, lineWidth)
	for _, stroke := range strokes {
		if len(stroke) == 0 {
			continue
		}
		s.PointerDown(stroke[0].X, stroke[0].Y, Point{})
		for _, p := range stroke[1:] {
			s.PointerMove(p.X, p.Y, Point{})
		}
		s.PointerUp()
	}
	return s
}
