package testutil

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
)

// MinimalPDF returns a valid PDF with the given number of US Letter pages.
func MinimalPDF(pages int) []byte {
	if pages < 1 {
		pages = 1
	}
	kids := ""
	objects := []string{"<< /Type /Catalog /Pages 2 0 R >>", ""}
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf(" %d 0 R", 3+i)
		objects = append(objects, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>")
	}
	objects[1] = fmt.Sprintf("<< /Type /Pages /Kids [%s ] /Count %d >>", kids, pages)

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, body := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	start := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f\r\n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n\r\n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, start)
	return buf.Bytes()
}

// SolidPNG returns a w x h PNG filled with c.
func SolidPNG(w, h int, c color.Color) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// PaddedPNG returns a decodable PNG of exactly size bytes. The decoder
// stops at the IEND chunk, so the zero padding after it is ignored.
func PaddedPNG(size int) []byte {
	data := SolidPNG(64, 64, color.White)
	if len(data) > size {
		panic(fmt.Sprintf("PaddedPNG: base image is %d bytes, larger than %d", len(data), size))
	}
	return append(data, make([]byte, size-len(data))...)
}
