package compositor

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/digitorus/pdf"
	"github.com/mattetti/filebuffer"
)

type namedRef struct {
	name string
	id   uint32
}

type xrefEntry struct {
	ref    objRef
	offset int64
}

// incrementalWriter appends objects after the original file and closes the
// update with an xref section of the same flavor as the source.
type incrementalWriter struct {
	out      *filebuffer.Buffer
	trailer  pdf.Value
	xrefType string
	prevXref int64
	size     uint32 // first free object number
	entries  []xrefEntry
}

func newIncrementalWriter(doc []byte, trailer pdf.Value, xrefType string, prevXref int64) (*incrementalWriter, error) {
	size := trailer.Key("Size").Int64()
	if size <= 0 {
		return nil, fmt.Errorf("trailer has no /Size")
	}
	out := filebuffer.New(nil)
	if _, err := out.Write(doc); err != nil {
		return nil, fmt.Errorf("copying document: %w", err)
	}
	if len(doc) > 0 && doc[len(doc)-1] != '\n' {
		if _, err := out.Write([]byte("\n")); err != nil {
			return nil, err
		}
	}
	return &incrementalWriter{
		out:      out,
		trailer:  trailer,
		xrefType: xrefType,
		prevXref: prevXref,
		size:     uint32(size),
	}, nil
}

func (w *incrementalWriter) offset() int64 {
	return int64(w.out.Buff.Len())
}

func (w *incrementalWriter) write(ref objRef, body []byte) {
	w.entries = append(w.entries, xrefEntry{ref: ref, offset: w.offset()})
	fmt.Fprintf(w.out, "%d %d obj\n", ref.id, ref.gen)
	w.out.Write(body)
	w.out.Write([]byte("\nendobj\n"))
}

// addObject writes body as a new object and returns its number.
func (w *incrementalWriter) addObject(body []byte) uint32 {
	id := w.size
	w.size++
	w.write(objRef{id: id}, body)
	return id
}

// addStream writes a stream object. dict holds extra dictionary entries;
// /Length and /Filter are added here.
func (w *incrementalWriter) addStream(dict string, data []byte, compress bool) (uint32, error) {
	if compress {
		var err error
		if data, err = deflate(data); err != nil {
			return 0, fmt.Errorf("compressing stream: %w", err)
		}
		dict += " /Filter /FlateDecode"
	}
	var body bytes.Buffer
	fmt.Fprintf(&body, "<< %s /Length %d >>\nstream\n", dict, len(data))
	body.Write(data)
	body.WriteString("\nendstream")
	return w.addObject(body.Bytes()), nil
}

// replaceObject writes a new version of an existing object.
func (w *incrementalWriter) replaceObject(ref objRef, body []byte) {
	w.write(ref, body)
}

// finish writes the xref section and trailer and returns the file.
func (w *incrementalWriter) finish() ([]byte, error) {
	if w.xrefType == "stream" {
		if err := w.finishStream(); err != nil {
			return nil, err
		}
	} else if err := w.finishTable(); err != nil {
		return nil, err
	}
	return w.out.Buff.Bytes(), nil
}

// subsections groups entries into runs of consecutive object numbers.
func (w *incrementalWriter) subsections() [][]xrefEntry {
	sorted := append([]xrefEntry(nil), w.entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ref.id < sorted[j].ref.id })

	var runs [][]xrefEntry
	for _, e := range sorted {
		if n := len(runs); n > 0 {
			last := runs[n-1]
			if last[len(last)-1].ref.id+1 == e.ref.id {
				runs[n-1] = append(last, e)
				continue
			}
		}
		runs = append(runs, []xrefEntry{e})
	}
	return runs
}

func (w *incrementalWriter) finishTable() error {
	xrefStart := w.offset()

	var buf bytes.Buffer
	buf.WriteString("xref\n")
	for _, run := range w.subsections() {
		fmt.Fprintf(&buf, "%d %d\n", run[0].ref.id, len(run))
		for _, e := range run {
			fmt.Fprintf(&buf, "%010d %05d n\r\n", e.offset, e.ref.gen)
		}
	}

	buf.WriteString("trailer\n<<")
	fmt.Fprintf(&buf, " /Size %d", w.size)
	if err := w.writeTrailerRefs(&buf); err != nil {
		return err
	}
	fmt.Fprintf(&buf, " /Prev %d", w.prevXref)
	buf.WriteString(" >>\n")
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefStart)

	_, err := w.out.Write(buf.Bytes())
	return err
}

func (w *incrementalWriter) finishStream() error {
	// The xref stream is itself an object and indexes itself
	id := w.size
	w.size++
	xrefStart := w.offset()
	w.entries = append(w.entries, xrefEntry{ref: objRef{id: id}, offset: xrefStart})

	var rows bytes.Buffer
	var index bytes.Buffer
	for _, run := range w.subsections() {
		fmt.Fprintf(&index, " %d %d", run[0].ref.id, len(run))
		for _, e := range run {
			rows.WriteByte(1)
			var off [4]byte
			binary.BigEndian.PutUint32(off[:], uint32(e.offset))
			rows.Write(off[:])
			rows.WriteByte(byte(e.ref.gen))
		}
	}
	data, err := deflate(rows.Bytes())
	if err != nil {
		return fmt.Errorf("compressing xref stream: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d 0 obj\n<< /Type /XRef /Size %d /W [1 4 1] /Index [%s ]", id, w.size, index.String())
	if err := w.writeTrailerRefs(&buf); err != nil {
		return err
	}
	fmt.Fprintf(&buf, " /Prev %d /Filter /FlateDecode /Length %d >>\nstream\n", w.prevXref, len(data))
	buf.Write(data)
	buf.WriteString("\nendstream\nendobj\n")
	fmt.Fprintf(&buf, "startxref\n%d\n%%%%EOF\n", xrefStart)

	_, err = w.out.Write(buf.Bytes())
	return err
}

// writeTrailerRefs carries /Root, /Info and /ID over from the previous trailer.
func (w *incrementalWriter) writeTrailerRefs(buf *bytes.Buffer) error {
	root := w.trailer.Key("Root")
	if refOf(root).id == 0 {
		return fmt.Errorf("trailer has no /Root reference")
	}
	fmt.Fprintf(buf, " /Root %s", refOf(root))
	if info := w.trailer.Key("Info"); !info.IsNull() && refOf(info).id != 0 {
		fmt.Fprintf(buf, " /Info %s", refOf(info))
	}
	if id := w.trailer.Key("ID"); id.Kind() == pdf.Array && id.Len() == 2 {
		fmt.Fprintf(buf, " /ID [%s %s]", hexString([]byte(id.Index(0).RawString())), hexString([]byte(id.Index(1).RawString())))
	}
	return nil
}

// rewritePage serializes the page with its content wrapped between the
// prefix and suffix streams and the new resources merged in.
func rewritePage(page pdf.Value, pageRef objRef, resources pdf.Value, prefixID, suffixID uint32, image, font namedRef) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("<<")
	for _, key := range page.Keys() {
		if key == "Contents" || key == "Resources" {
			continue
		}
		buf.WriteString(pdfName(key))
		buf.WriteByte(' ')
		if err := writeValue(&buf, page.Key(key), pageRef); err != nil {
			return nil, fmt.Errorf("writing page /%s: %w", key, err)
		}
	}

	fmt.Fprintf(&buf, "/Contents [%d 0 R", prefixID)
	contents := page.Key("Contents")
	switch {
	case contents.Kind() == pdf.Array:
		for i := 0; i < contents.Len(); i++ {
			item := contents.Index(i)
			if refOf(item).id == 0 {
				continue
			}
			buf.WriteString(" " + refOf(item).String())
		}
	case contents.Kind() == pdf.Stream && refOf(contents).id != 0:
		buf.WriteString(" " + refOf(contents).String())
	}
	fmt.Fprintf(&buf, " %d 0 R]", suffixID)

	buf.WriteString("/Resources ")
	if err := writeResources(&buf, resources, image, font); err != nil {
		return nil, err
	}
	buf.WriteString(">>")
	return buf.Bytes(), nil
}

// writeResources copies the resource dictionary inline and adds the new
// XObject and Font entries.
func writeResources(buf *bytes.Buffer, res pdf.Value, image, font namedRef) error {
	parent := refOf(res)
	buf.WriteString("<<")
	if res.Kind() == pdf.Dict {
		for _, key := range res.Keys() {
			if key == "XObject" || key == "Font" {
				continue
			}
			buf.WriteString(pdfName(key))
			buf.WriteByte(' ')
			if err := writeValue(buf, res.Key(key), parent); err != nil {
				return fmt.Errorf("writing resource /%s: %w", key, err)
			}
		}
	}
	if err := writeSubdict(buf, "XObject", res.Key("XObject"), parent, image); err != nil {
		return err
	}
	if font.name != "" {
		if err := writeSubdict(buf, "Font", res.Key("Font"), parent, font); err != nil {
			return err
		}
	} else if f := res.Key("Font"); !f.IsNull() {
		buf.WriteString("/Font ")
		if err := writeValue(buf, f, parent); err != nil {
			return fmt.Errorf("writing resource /Font: %w", err)
		}
	}
	buf.WriteString(">>")
	return nil
}

func writeSubdict(buf *bytes.Buffer, name string, existing pdf.Value, parent objRef, add namedRef) error {
	buf.WriteString(pdfName(name) + " <<")
	if existing.Kind() == pdf.Dict {
		inner := parent
		if isIndirect(existing, parent) {
			inner = refOf(existing)
		}
		for _, key := range existing.Keys() {
			buf.WriteString(pdfName(key))
			buf.WriteByte(' ')
			if err := writeValue(buf, existing.Key(key), inner); err != nil {
				return fmt.Errorf("writing /%s /%s: %w", name, key, err)
			}
		}
	}
	fmt.Fprintf(buf, "%s %d 0 R>>", pdfName(add.name), add.id)
	return nil
}
