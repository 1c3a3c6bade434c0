// Package compositor embeds signature images into documents. PDFs get an
// incremental update that leaves the original bytes intact; images are
// drawn over and re-encoded.
package compositor

import (
	"bytes"
	"fmt"
	"image"

	_ "golang.org/x/image/webp" // WebP decoding; the other formats register in raster.go

	"docsign/internal/docsign"
)

// Set selects a compositor by document kind.
type Set struct {
	PDF   *PDFCompositor
	Image *RasterCompositor
}

var _ docsign.CompositorSet = (*Set)(nil)

// NewSet returns a Set with default compositors.
func NewSet() *Set {
	return &Set{PDF: NewPDFCompositor(), Image: NewRasterCompositor()}
}

// ForKind returns the compositor for kind.
func (s *Set) ForKind(kind docsign.DocumentKind) (docsign.Compositor, error) {
	switch kind {
	case docsign.KindPDF:
		return s.PDF, nil
	case docsign.KindImage:
		return s.Image, nil
	default:
		return nil, fmt.Errorf("documents of kind %q cannot be signed", kind)
	}
}

// decodeSignature decodes the signature raster. Any format without a
// registered decoder is reported as ErrUnsupportedImage.
func decodeSignature(sig []byte) (image.Image, error) {
	if len(sig) == 0 {
		return nil, &docsign.CompositingError{Err: fmt.Errorf("%w: empty image", docsign.ErrUnsupportedImage)}
	}
	img, _, err := image.Decode(bytes.NewReader(sig))
	if err != nil {
		return nil, &docsign.CompositingError{Err: fmt.Errorf("%w: %v", docsign.ErrUnsupportedImage, err)}
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, &docsign.CompositingError{Err: fmt.Errorf("%w: zero-sized image", docsign.ErrUnsupportedImage)}
	}
	return img, nil
}
