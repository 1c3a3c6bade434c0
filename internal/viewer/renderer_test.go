package viewer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"testing"

	"docsign/internal/docsign"
)

// twoPagePDF returns a PDF whose first page inherits US Letter and whose
// second page is A4.
func twoPagePDF() []byte {
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 /MediaBox [0 0 612 792] >>",
		"<< /Type /Page /Parent 2 0 R >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 595 842] >>",
	}
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

func TestPDFRenderer(t *testing.T) {
	r, err := NewRenderer(docsign.KindPDF, twoPagePDF())
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	if r.PageCount() != 2 {
		t.Fatalf("PageCount() = %d, want 2", r.PageCount())
	}

	tests := []struct {
		page          int
		scale         float64
		nativeW, natH float64
		w, h          int
	}{
		{1, 1, 612, 792, 612, 792},
		{1, 1.5, 612, 792, 918, 1188},
		{2, 1, 595, 842, 595, 842},
	}
	for _, tt := range tests {
		f, err := r.Render(context.Background(), tt.page, tt.scale)
		if err != nil {
			t.Fatalf("Render(%d, %v) error = %v", tt.page, tt.scale, err)
		}
		if f.NativeWidth != tt.nativeW || f.NativeHeight != tt.natH {
			t.Errorf("Render(%d) native = %vx%v, want %vx%v", tt.page, f.NativeWidth, f.NativeHeight, tt.nativeW, tt.natH)
		}
		if f.Width != tt.w || f.Height != tt.h {
			t.Errorf("Render(%d, %v) size = %dx%d, want %dx%d", tt.page, tt.scale, f.Width, f.Height, tt.w, tt.h)
		}
	}

	if _, err := r.Render(context.Background(), 3, 1); err == nil {
		t.Error("Render(3) expected error")
	}
}

func TestPDFRenderer_InvalidInput(t *testing.T) {
	if _, err := NewPDFRenderer([]byte("not a pdf")); err == nil {
		t.Error("NewPDFRenderer() expected error")
	}
}

func TestImageRenderer(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 40, 20))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}

	r, err := NewRenderer(docsign.KindImage, buf.Bytes())
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	if r.PageCount() != 1 {
		t.Errorf("PageCount() = %d, want 1", r.PageCount())
	}

	f, err := r.Render(context.Background(), 1, 0.5)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if f.Width != 20 || f.Height != 10 {
		t.Errorf("size = %dx%d, want 20x10", f.Width, f.Height)
	}
	if f.Image == nil || f.Image.Bounds() != image.Rect(0, 0, 20, 10) {
		t.Errorf("Image bounds = %v, want 20x10", f.Image)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Render(ctx, 1, 1); err == nil {
		t.Error("Render() with cancelled context expected error")
	}
}

func TestNewRenderer_Unsupported(t *testing.T) {
	if _, err := NewRenderer(docsign.KindUnsupported, nil); err == nil {
		t.Error("NewRenderer(unsupported) expected error")
	}
}
