package viewer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"

	"github.com/digitorus/pdf"
	"golang.org/x/image/draw"

	"docsign/internal/compositor"
	"docsign/internal/docsign"
)

// Frame is the result of rendering one page.
type Frame struct {
	Key

	// Native page size, in points for PDFs and pixels for images.
	NativeWidth  float64
	NativeHeight float64

	// Display size at the rendered scale, in pixels.
	Width  int
	Height int

	// Image holds the scaled pixels for image documents. PDF frames
	// carry geometry only.
	Image image.Image
}

// Renderer produces frames for the pages of one document.
type Renderer interface {
	PageCount() int
	Render(ctx context.Context, page int, scale float64) (*Frame, error)
}

// NewRenderer picks a renderer for the document kind.
func NewRenderer(kind docsign.DocumentKind, data []byte) (Renderer, error) {
	switch kind {
	case docsign.KindPDF:
		return NewPDFRenderer(data)
	case docsign.KindImage:
		return NewImageRenderer(data)
	default:
		return nil, fmt.Errorf("cannot render documents of kind %q", kind)
	}
}

// PDFRenderer lays out PDF pages from their MediaBox.
type PDFRenderer struct {
	reader *pdf.Reader
	pages  int
}

var _ Renderer = (*PDFRenderer)(nil)

func NewPDFRenderer(data []byte) (*PDFRenderer, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("reading PDF: %w", err)
	}
	n := r.NumPage()
	if n < 1 {
		return nil, fmt.Errorf("PDF has no pages")
	}
	return &PDFRenderer{reader: r, pages: n}, nil
}

func (p *PDFRenderer) PageCount() int { return p.pages }

func (p *PDFRenderer) Render(ctx context.Context, page int, scale float64) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page < 1 || page > p.pages {
		return nil, fmt.Errorf("page %d out of range [1, %d]", page, p.pages)
	}
	box := compositor.MediaBox(p.reader.Page(page).V)
	w, h := box[2]-box[0], box[3]-box[1]
	return &Frame{
		NativeWidth:  w,
		NativeHeight: h,
		Width:        scaled(w, scale),
		Height:       scaled(h, scale),
	}, nil
}

// ImageRenderer scales a decoded image document.
type ImageRenderer struct {
	img image.Image
}

var _ Renderer = (*ImageRenderer)(nil)

func NewImageRenderer(data []byte) (*ImageRenderer, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return &ImageRenderer{img: img}, nil
}

func (r *ImageRenderer) PageCount() int { return 1 }

func (r *ImageRenderer) Render(ctx context.Context, page int, scale float64) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if page != 1 {
		return nil, fmt.Errorf("page %d out of range [1, 1]", page)
	}
	b := r.img.Bounds()
	w, h := scaled(float64(b.Dx()), scale), scaled(float64(b.Dy()), scale)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), r.img, b, draw.Src, nil)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Frame{
		NativeWidth:  float64(b.Dx()),
		NativeHeight: float64(b.Dy()),
		Width:        w,
		Height:       h,
		Image:        dst,
	}, nil
}

func scaled(v, scale float64) int {
	return max(1, int(math.Round(v*scale)))
}
