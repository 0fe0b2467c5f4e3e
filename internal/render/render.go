// Package render produces the annotated hex transcript: section headers,
// little-endian struct fields annotated four ways, and blob rows with an
// optional cp437 or UTF-8 text overlay.
package render

import (
	"fmt"
	"io"
	"strconv"

	"github.com/valyala/bytebufferpool"
)

// Renderer writes transcript lines to a sink, tracking the current
// indentation depth and the run-wide offset column width.
type Renderer struct {
	w           io.Writer
	glyphs      *GlyphTable
	offsetWidth int
	depth       int
}

// StreamingOffsetWidth is used when the total input size is unknown in
// advance and the offset column width cannot be derived from it.
const StreamingOffsetWidth = 8

// New returns a Renderer writing to w. offsetWidth is the zero-padded width
// of the hex offset in section headers, fixed for the whole run.
func New(w io.Writer, offsetWidth int) *Renderer {
	if offsetWidth < 1 {
		offsetWidth = 1
	}
	return &Renderer{w: w, glyphs: &CP437, offsetWidth: offsetWidth}
}

// OffsetWidthForSize derives the offset column width from the input size:
// the number of hex digits needed to express any offset inside it.
func OffsetWidthForSize(size int64) int {
	if size <= 1 {
		return 1
	}
	return len(strconv.FormatInt(size-1, 16))
}

// Indent increases the indentation depth and returns the matching release
// function. Callers defer the release so depth stays balanced on early
// error returns.
func (r *Renderer) Indent() func() {
	r.depth++
	return func() { r.depth-- }
}

// SectionHeader writes `:0x<offset> ; <label>` at the current indentation.
func (r *Renderer) SectionHeader(offset uint64, label string) error {
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)

	r.writeIndent(bb)
	fmt.Fprintf(bb, ":0x%0*x ; %s\n", r.offsetWidth, offset, label)
	_, err := r.w.Write(bb.B)
	return err
}

// BlankLine separates top-level sibling sections.
func (r *Renderer) BlankLine() error {
	_, err := io.WriteString(r.w, "\n")
	return err
}

// Warningf writes a comment-style warning line into the transcript. Used for
// recoverable structural inconsistencies that should not abort the run.
func (r *Renderer) Warningf(format string, args ...any) error {
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)

	r.writeIndent(bb)
	bb.WriteString("; warning: ")
	fmt.Fprintf(bb, format, args...)
	bb.WriteByte('\n')
	_, err := r.w.Write(bb.B)
	return err
}

// StructField reads a little-endian unsigned integer of width bytes (2, 4 or
// 8) from buf at *cursor and writes one annotated line: raw hex bytes, the
// cp437 rendering, the decimal value, the hex value, and the field name.
// maxWidth is the widest sibling field in the same struct and controls
// column alignment only. The cursor advances by width on success.
func (r *Renderer) StructField(buf []byte, cursor *int, width, maxWidth int, name string) (uint64, error) {
	if *cursor+width > len(buf) {
		return 0, fmt.Errorf("field %q: need %d bytes at offset %d, have %d: %w",
			name, width, *cursor, len(buf)-*cursor, io.ErrUnexpectedEOF)
	}

	raw := buf[*cursor : *cursor+width]
	*cursor += width

	var value uint64
	for i := width - 1; i >= 0; i-- {
		value = value<<8 | uint64(raw[i])
	}

	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)

	r.writeIndent(bb)

	// Raw bytes, space separated, padded to the widest sibling.
	for i, b := range raw {
		if i > 0 {
			bb.WriteByte(' ')
		}
		writeHexByte(bb, b)
	}
	padSpaces(bb, 3*(maxWidth-width))

	// cp437 per-byte rendering.
	bb.WriteString(" ; \"")
	for _, b := range raw {
		writeGlyph(bb, r.glyphs, b)
	}
	bb.WriteByte('"')
	padSpaces(bb, maxWidth-width)

	// Decimal, zero padded to the maximum value of the widest sibling.
	fmt.Fprintf(bb, " ; %0*d", decimalWidth(maxWidth), value)

	// Hex, zero padded to the field's own width, aligned to the widest.
	fmt.Fprintf(bb, " ; 0x%0*x", 2*width, value)
	padSpaces(bb, 2*(maxWidth-width))

	bb.WriteString(" ; ")
	bb.WriteString(name)
	bb.WriteByte('\n')

	if _, err := r.w.Write(bb.B); err != nil {
		return 0, err
	}
	return value, nil
}

func (r *Renderer) writeIndent(bb *bytebufferpool.ByteBuffer) {
	for i := 0; i < r.depth; i++ {
		bb.WriteString("  ")
	}
}

// decimalWidth is the digit count of the maximum unsigned value that fits
// in maxWidth bytes: 5, 10 or 20 for 2, 4 or 8.
func decimalWidth(maxWidth int) int {
	switch maxWidth {
	case 2:
		return 5
	case 4:
		return 10
	default:
		return 20
	}
}

const hexDigits = "0123456789abcdef"

func writeHexByte(bb *bytebufferpool.ByteBuffer, b byte) {
	bb.WriteByte(hexDigits[b>>4])
	bb.WriteByte(hexDigits[b&0xf])
}

func padSpaces(bb *bytebufferpool.ByteBuffer, n int) {
	for i := 0; i < n; i++ {
		bb.WriteByte(' ')
	}
}

// writeGlyph writes the cp437 glyph for b, escaping the quote and backslash
// so the quoted rendering stays unambiguous.
func writeGlyph(bb *bytebufferpool.ByteBuffer, glyphs *GlyphTable, b byte) {
	switch b {
	case '"':
		bb.WriteString(`\"`)
	case '\\':
		bb.WriteString(`\\`)
	default:
		bb.WriteString(glyphs[b])
	}
}
