package compositor

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"

	"github.com/digitorus/pdf"
)

// buildPDF assembles a PDF from object bodies numbered from 1. With
// xrefStream set, the cross-reference section is a compressed XRef stream
// object instead of a table.
func buildPDF(t *testing.T, objects []string, xrefStream bool) []byte {
	t.Helper()

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")
	offsets := make([]int, len(objects)+1)
	for i, body := range objects {
		offsets[i+1] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}

	if !xrefStream {
		start := buf.Len()
		fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
		buf.WriteString("0000000000 65535 f\r\n")
		for _, off := range offsets[1:] {
			fmt.Fprintf(&buf, "%010d 00000 n\r\n", off)
		}
		fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R /ID [<0102> <0102>] >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, start)
		return buf.Bytes()
	}

	id := len(objects) + 1
	start := buf.Len()
	var rows bytes.Buffer
	rows.Write([]byte{0, 0, 0, 0, 0, 0xff})
	for _, off := range append(offsets[1:], start) {
		rows.WriteByte(1)
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(off))
		rows.Write(b[:])
		rows.WriteByte(0)
	}
	var z bytes.Buffer
	zw := zlib.NewWriter(&z)
	zw.Write(rows.Bytes())
	zw.Close()

	fmt.Fprintf(&buf, "%d 0 obj\n<< /Type /XRef /Size %d /W [1 4 1] /Index [0 %d] /Root 1 0 R /Filter /FlateDecode /Length %d >>\nstream\n",
		id, id+1, id+1, z.Len())
	buf.Write(z.Bytes())
	fmt.Fprintf(&buf, "\nendstream\nendobj\nstartxref\n%d\n%%%%EOF\n", start)
	return buf.Bytes()
}

func streamObject(content string) string {
	return fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content)
}

// onePagePDF has a single page inheriting its MediaBox from the page tree.
func onePagePDF(t *testing.T, xrefStream bool) []byte {
	return buildPDF(t, []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 /MediaBox [0 0 612 792] >>",
		"<< /Type /Page /Parent 2 0 R /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		streamObject("BT /F1 12 Tf 72 720 Td (Hello) Tj ET"),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Times-Roman >>",
	}, xrefStream)
}

// twoPagePDF has an A4 second page whose resources already use the name
// the compositor prefers.
func twoPagePDF(t *testing.T) []byte {
	return buildPDF(t, []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 /MediaBox [0 0 612 792] >>",
		"<< /Type /Page /Parent 2 0 R /Contents 5 0 R >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] /Contents [6 0 R 5 0 R] /Resources 7 0 R >>",
		streamObject("0 0 m 10 10 l S"),
		streamObject("/DocSignIm Do"),
		"<< /XObject << /DocSignIm 8 0 R >> >>",
		"<< /Type /XObject /Subtype /Form /BBox [0 0 10 10] /Length 0 >>\nstream\n\nendstream",
	}, false)
}

func signaturePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func openPDF(t *testing.T, data []byte) *pdf.Reader {
	t.Helper()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("pdf.NewReader() error = %v", err)
	}
	return r
}

func streamText(t *testing.T, v pdf.Value) string {
	t.Helper()
	rc := v.Reader()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading stream: %v", err)
	}
	return string(b)
}
