package signature

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"

	"golang.org/x/image/vector"
)

// kappa places cubic control points for a quarter circle.
const kappa = 0.5522847498

// Rasterize draws strokes in black ink on a transparent canvas. Segments
// are filled as quads and every vertex gets a disc, which gives round caps
// and joins.
func Rasterize(width, height int, lineWidth float64, strokes [][]Point) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	r := vector.NewRasterizer(width, height)
	half := float32(lineWidth / 2)

	fill := func(shape func()) {
		r.Reset(width, height)
		shape()
		r.Draw(dst, dst.Bounds(), image.Black, image.Point{})
	}

	for _, stroke := range strokes {
		for i, p := range stroke {
			x, y := float32(p.X), float32(p.Y)
			fill(func() { disc(r, x, y, half) })
			if i == 0 {
				continue
			}
			prev := stroke[i-1]
			fill(func() { segment(r, float32(prev.X), float32(prev.Y), x, y, half) })
		}
	}
	return dst
}

func disc(r *vector.Rasterizer, cx, cy, rad float32) {
	k := rad * kappa
	r.MoveTo(cx+rad, cy)
	r.CubeTo(cx+rad, cy+k, cx+k, cy+rad, cx, cy+rad)
	r.CubeTo(cx-k, cy+rad, cx-rad, cy+k, cx-rad, cy)
	r.CubeTo(cx-rad, cy-k, cx-k, cy-rad, cx, cy-rad)
	r.CubeTo(cx+k, cy-rad, cx+rad, cy-k, cx+rad, cy)
	r.ClosePath()
}

func segment(r *vector.Rasterizer, x0, y0, x1, y1, half float32) {
	dx, dy := float64(x1-x0), float64(y1-y0)
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	nx := float32(-dy / length) * half
	ny := float32(dx / length) * half
	r.MoveTo(x0+nx, y0+ny)
	r.LineTo(x1+nx, y1+ny)
	r.LineTo(x1-nx, y1-ny)
	r.LineTo(x0-nx, y0-ny)
	r.ClosePath()
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding signature: %w", err)
	}
	return buf.Bytes(), nil
}
