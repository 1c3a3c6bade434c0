package compositor

import (
	"bytes"
	"compress/zlib"
	"errors"
	"fmt"
	"image"
	"strconv"

	"github.com/digitorus/pdf"
	"golang.org/x/text/encoding/charmap"

	"docsign/internal/docsign"
	"docsign/internal/placement"
)

// US Letter, used when a page has no MediaBox.
var defaultMediaBox = [4]float64{0, 0, 612, 792}

// PDFCompositor draws a signature image, and optionally a caption, onto one
// page of a PDF by appending an incremental update.
type PDFCompositor struct {
	// CaptionSize is the caption font size in points.
	CaptionSize float64
}

var _ docsign.Compositor = (*PDFCompositor)(nil)

func NewPDFCompositor() *PDFCompositor {
	return &PDFCompositor{CaptionSize: 8}
}

// Check parses doc the way Composite does.
func (c *PDFCompositor) Check(doc []byte) error {
	_, err := readPDF(doc)
	return err
}

// readPDF opens doc for signing. Damaged, encrypted and page-less files are
// reported as a DocumentError.
func readPDF(doc []byte) (r *pdf.Reader, err error) {
	// The reader panics on some malformed objects
	defer func() {
		if p := recover(); p != nil {
			r, err = nil, &docsign.DocumentError{Err: fmt.Errorf("reading PDF: %v", p)}
		}
	}()

	r, err = pdf.NewReader(bytes.NewReader(doc), int64(len(doc)))
	if err != nil {
		return nil, &docsign.DocumentError{Err: fmt.Errorf("reading PDF: %w", err)}
	}
	if !r.Trailer().Key("Encrypt").IsNull() {
		return nil, &docsign.DocumentError{Err: errors.New("encrypted PDFs are not supported")}
	}
	if r.NumPage() < 1 {
		return nil, &docsign.DocumentError{Err: errors.New("PDF has no pages")}
	}
	return r, nil
}

// Composite returns doc with the signature drawn at pl. The input slice is
// not modified; the result starts with the original bytes.
func (c *PDFCompositor) Composite(doc []byte, sig []byte, pl docsign.Placement, caption string) ([]byte, error) {
	img, err := decodeSignature(sig)
	if err != nil {
		return nil, err
	}

	r, err := readPDF(doc)
	if err != nil {
		return nil, err
	}
	trailer := r.Trailer()

	numPages := r.NumPage()
	if pl.Page < 1 || pl.Page > numPages {
		return nil, &docsign.ValidationError{Field: "placement", Message: fmt.Sprintf("page %d out of range [1, %d]", pl.Page, numPages)}
	}
	page := r.Page(pl.Page).V
	pageRef := refOf(page)
	if page.IsNull() || pageRef.id == 0 {
		return nil, &docsign.DocumentError{Err: fmt.Errorf("page %d is not an indirect object", pl.Page)}
	}

	box := MediaBox(page)
	rect := signatureRect(box, pl)

	w, err := newIncrementalWriter(doc, trailer, r.XrefInformation.Type, r.XrefInformation.StartPos)
	if err != nil {
		return nil, &docsign.DocumentError{Err: err}
	}

	rgb, alpha := splitAlpha(img)
	b := img.Bounds()
	smaskID, err := w.addStream(imageDict(b.Dx(), b.Dy(), "/DeviceGray", ""), alpha, true)
	if err != nil {
		return nil, &docsign.CompositingError{Err: err}
	}
	imageID, err := w.addStream(imageDict(b.Dx(), b.Dy(), "/DeviceRGB", fmt.Sprintf("/SMask %d 0 R", smaskID)), rgb, true)
	if err != nil {
		return nil, &docsign.CompositingError{Err: err}
	}

	resources := resourcesOf(page)
	imageName := uniqueName(resources.Key("XObject"), "DocSignIm")
	fontName := ""
	var fontID uint32
	if caption != "" {
		fontName = uniqueName(resources.Key("Font"), "DocSignF")
		fontID = w.addObject([]byte("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>"))
	}

	prefixID, err := w.addStream("", []byte("q\n"), false)
	if err != nil {
		return nil, &docsign.CompositingError{Err: err}
	}
	suffixID, err := w.addStream("", c.drawing(rect, imageName, fontName, caption), false)
	if err != nil {
		return nil, &docsign.CompositingError{Err: err}
	}

	pageObj, err := rewritePage(page, pageRef, resources, prefixID, suffixID,
		namedRef{imageName, imageID}, namedRef{fontName, fontID})
	if err != nil {
		return nil, &docsign.DocumentError{Err: err}
	}
	w.replaceObject(pageRef, pageObj)

	out, err := w.finish()
	if err != nil {
		return nil, &docsign.DocumentError{Err: err}
	}
	return out, nil
}

// drawing is the content stream that paints the signature. It runs after
// the page's own content, whose graphics state was isolated by the q prefix.
func (c *PDFCompositor) drawing(rect pdfRect, imageName, fontName, caption string) []byte {
	var buf bytes.Buffer
	buf.WriteString("Q\nq\n")
	fmt.Fprintf(&buf, "%s 0 0 %s %s %s cm\n",
		formatNumber(rect.w), formatNumber(rect.h), formatNumber(rect.x), formatNumber(rect.y))
	fmt.Fprintf(&buf, "%s Do\nQ\n", pdfName(imageName))

	if caption != "" && fontName != "" {
		size := c.CaptionSize
		if size <= 0 {
			size = 8
		}
		// Below the image when there is room, above it otherwise
		ty := rect.y - size - 2
		if ty < rect.boxY {
			ty = rect.y + rect.h + 2
		}
		buf.WriteString("q\nBT\n")
		fmt.Fprintf(&buf, "%s %s Tf\n", pdfName(fontName), formatNumber(size))
		fmt.Fprintf(&buf, "%s %s Td\n", formatNumber(rect.x), formatNumber(ty))
		fmt.Fprintf(&buf, "%s Tj\n", hexString(winAnsi(caption)))
		buf.WriteString("ET\nQ\n")
	}
	return buf.Bytes()
}

type pdfRect struct {
	x, y, w, h float64
	boxY       float64 // bottom of the page box
}

// signatureRect resolves the placement against the page box. Coordinates
// in pl are relative to the box's lower-left corner.
func signatureRect(box [4]float64, pl docsign.Placement) pdfRect {
	pageSize := placement.Size{Width: box[2] - box[0], Height: box[3] - box[1]}
	obj := placement.Size{Width: pl.Width, Height: pl.Height}

	p := placement.Point{X: pl.X, Y: pl.Y}
	if pl.Corner {
		p = placement.Corner(pageSize, obj, pl.Margin)
	}
	p = placement.Clamp(p, pageSize, obj)
	return pdfRect{x: box[0] + p.X, y: box[1] + p.Y, w: obj.Width, h: obj.Height, boxY: box[1]}
}

// MediaBox returns the page's MediaBox, following inheritance through the
// page tree.
func MediaBox(page pdf.Value) [4]float64 {
	mb := inherited(page, "MediaBox")
	if mb.Kind() != pdf.Array || mb.Len() < 4 {
		return defaultMediaBox
	}
	var box [4]float64
	for i := range box {
		box[i] = mb.Index(i).Float64()
	}
	// Normalize so that box[0:2] is the lower-left corner
	if box[0] > box[2] {
		box[0], box[2] = box[2], box[0]
	}
	if box[1] > box[3] {
		box[1], box[3] = box[3], box[1]
	}
	if box[2]-box[0] <= 0 || box[3]-box[1] <= 0 {
		return defaultMediaBox
	}
	return box
}

// inherited looks key up on the page and then its ancestors.
func inherited(page pdf.Value, key string) pdf.Value {
	for v, depth := page, 0; !v.IsNull() && depth < 64; v, depth = v.Key("Parent"), depth+1 {
		if val := v.Key(key); !val.IsNull() {
			return val
		}
	}
	return pdf.Value{}
}

func resourcesOf(page pdf.Value) pdf.Value {
	return inherited(page, "Resources")
}

// uniqueName picks a resource name not present in dict.
func uniqueName(dict pdf.Value, base string) string {
	taken := make(map[string]bool)
	if dict.Kind() == pdf.Dict {
		for _, k := range dict.Keys() {
			taken[k] = true
		}
	}
	name := base
	for i := 1; taken[name]; i++ {
		name = base + strconv.Itoa(i)
	}
	return name
}

func imageDict(w, h int, colorSpace, extra string) string {
	d := fmt.Sprintf("/Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace %s /BitsPerComponent 8", w, h, colorSpace)
	if extra != "" {
		d += " " + extra
	}
	return d
}

// splitAlpha separates img into 8-bit RGB samples and an 8-bit alpha
// channel, un-premultiplying color.
func splitAlpha(img image.Image) (rgb, alpha []byte) {
	b := img.Bounds()
	rgb = make([]byte, 0, b.Dx()*b.Dy()*3)
	alpha = make([]byte, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			if a == 0 {
				rgb = append(rgb, 0, 0, 0)
				alpha = append(alpha, 0)
				continue
			}
			rgb = append(rgb, byte(r*0xff/a), byte(g*0xff/a), byte(bl*0xff/a))
			alpha = append(alpha, byte(a>>8))
		}
	}
	return rgb, alpha
}

// winAnsi encodes text for the standard Type1 fonts. Characters outside
// Windows-1252 become '?'.
func winAnsi(text string) []byte {
	out := make([]byte, 0, len(text))
	for _, r := range text {
		if b, ok := charmap.Windows1252.EncodeRune(r); ok {
			out = append(out, b)
			continue
		}
		out = append(out, '?')
	}
	return out
}

func deflate(data []byte) ([]byte, error) {
	var b bytes.Buffer
	zw := zlib.NewWriter(&b)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
