package compositor

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/digitorus/pdf"
)

type objRef struct {
	id  uint32
	gen uint16
}

func (r objRef) String() string {
	return fmt.Sprintf("%d %d R", r.id, r.gen)
}

func refOf(v pdf.Value) objRef {
	p := v.GetPtr()
	return objRef{id: p.GetID(), gen: p.GetGen()}
}

// isIndirect reports whether v was reached through a reference rather than
// stored inline in its parent.
func isIndirect(v pdf.Value, parent objRef) bool {
	r := refOf(v)
	return r.id != 0 && r != parent
}

// writeValue serializes v in PDF syntax. Values reached through a
// reference are written as that reference.
func writeValue(buf *bytes.Buffer, v pdf.Value, parent objRef) error {
	if isIndirect(v, parent) {
		buf.WriteString(refOf(v).String())
		return nil
	}
	switch v.Kind() {
	case pdf.Null:
		buf.WriteString("null")
	case pdf.Bool:
		buf.WriteString(strconv.FormatBool(v.Bool()))
	case pdf.Integer:
		buf.WriteString(strconv.FormatInt(v.Int64(), 10))
	case pdf.Real:
		buf.WriteString(formatNumber(v.Float64()))
	case pdf.String:
		buf.WriteString(hexString([]byte(v.RawString())))
	case pdf.Name:
		buf.WriteString(pdfName(v.Name()))
	case pdf.Array:
		buf.WriteByte('[')
		for i := 0; i < v.Len(); i++ {
			if i > 0 {
				buf.WriteByte(' ')
			}
			if err := writeValue(buf, v.Index(i), parent); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case pdf.Dict:
		buf.WriteString("<<")
		for _, key := range v.Keys() {
			buf.WriteString(pdfName(key))
			buf.WriteByte(' ')
			if err := writeValue(buf, v.Key(key), parent); err != nil {
				return err
			}
		}
		buf.WriteString(">>")
	default:
		return fmt.Errorf("cannot write direct value of kind %v", v.Kind())
	}
	return nil
}

// pdfName escapes a name per the PDF name syntax.
func pdfName(name string) string {
	var b strings.Builder
	b.WriteByte('/')
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < '!' || c > '~' || strings.IndexByte("#()<>[]{}/%", c) >= 0 {
			fmt.Fprintf(&b, "#%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func hexString(b []byte) string {
	return "<" + hex.EncodeToString(b) + ">"
}

// formatNumber writes a real without exponent notation.
func formatNumber(f float64) string {
	s := strconv.FormatFloat(f, 'f', 4, 64)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	if s == "" || s == "-0" {
		return "0"
	}
	return s
}
