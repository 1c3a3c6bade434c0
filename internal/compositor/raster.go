package compositor

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/tiff"

	"docsign/internal/docsign"
	"docsign/internal/placement"
)

// RasterCompositor draws a signature onto an image document. The image is
// treated as a single page whose native units are pixels.
type RasterCompositor struct {
	// JPEGQuality is used when the document is re-encoded as JPEG.
	JPEGQuality int
}

var _ docsign.Compositor = (*RasterCompositor)(nil)

func NewRasterCompositor() *RasterCompositor {
	return &RasterCompositor{JPEGQuality: 92}
}

// Composite returns the document re-encoded in its original format with the
// signature drawn over it.
func (c *RasterCompositor) Composite(doc []byte, sig []byte, pl docsign.Placement, caption string) ([]byte, error) {
	mark, err := decodeSignature(sig)
	if err != nil {
		return nil, err
	}
	src, format, err := image.Decode(bytes.NewReader(doc))
	if err != nil {
		return nil, &docsign.DocumentError{Err: fmt.Errorf("decoding document image: %w", err)}
	}
	if pl.Page != 0 && pl.Page != 1 {
		return nil, &docsign.ValidationError{Field: "placement", Message: fmt.Sprintf("page %d out of range [1, 1]", pl.Page)}
	}

	b := src.Bounds()
	canvas := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), src, b.Min, draw.Src)

	dst := c.targetRect(canvas.Bounds(), pl)
	draw.CatmullRom.Scale(canvas, dst, mark, mark.Bounds(), draw.Over, nil)

	if caption != "" {
		drawCaption(canvas, dst, caption)
	}

	out, err := encodeAs(format, canvas, c.JPEGQuality)
	if err != nil {
		return nil, &docsign.DocumentError{Err: err}
	}
	return out, nil
}

// Check decodes the image header of doc.
func (c *RasterCompositor) Check(doc []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(doc))
	if err != nil {
		return &docsign.DocumentError{Err: fmt.Errorf("decoding document image: %w", err)}
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return &docsign.DocumentError{Err: fmt.Errorf("image has no pixels")}
	}
	return nil
}

// targetRect converts a bottom-left placement into image coordinates.
func (c *RasterCompositor) targetRect(bounds image.Rectangle, pl docsign.Placement) image.Rectangle {
	page := placement.Size{Width: float64(bounds.Dx()), Height: float64(bounds.Dy())}
	obj := placement.Size{Width: pl.Width, Height: pl.Height}
	if obj.Width > page.Width || obj.Height > page.Height {
		// Shrink to fit, keeping the aspect ratio
		f := min(page.Width/obj.Width, page.Height/obj.Height)
		obj = placement.Size{Width: obj.Width * f, Height: obj.Height * f}
	}

	p := placement.Point{X: pl.X, Y: pl.Y}
	if pl.Corner {
		p = placement.Corner(page, obj, pl.Margin)
	}
	p = placement.Clamp(p, page, obj)
	top := placement.FlipY(p.Y, page.Height, obj.Height)
	return image.Rect(int(p.X), int(top), int(p.X+obj.Width), int(top+obj.Height))
}

// drawCaption writes text under the signature, or above it when the
// signature sits on the bottom edge.
func drawCaption(dst *image.NRGBA, sig image.Rectangle, text string) {
	face := basicfont.Face7x13
	m := face.Metrics()
	line := (m.Ascent + m.Descent).Ceil()

	baseline := sig.Max.Y + m.Ascent.Ceil() + 2
	if sig.Max.Y+line+2 > dst.Bounds().Max.Y {
		baseline = sig.Min.Y - m.Descent.Ceil() - 2
	}
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.Black,
		Face: face,
		Dot:  fixed.P(sig.Min.X, baseline),
	}
	d.DrawString(text)
}

// encodeAs writes img in the format it was decoded from.
func encodeAs(format string, img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case "png":
		err = png.Encode(&buf, img)
	case "jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	case "gif":
		err = gif.Encode(&buf, img, nil)
	case "bmp":
		err = bmp.Encode(&buf, img)
	case "tiff":
		err = tiff.Encode(&buf, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return nil, fmt.Errorf("cannot re-encode %s images", format)
	}
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", format, err)
	}
	return buf.Bytes(), nil
}
