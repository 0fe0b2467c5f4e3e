package render

import (
	"fmt"
	"unicode/utf8"

	"github.com/valyala/bytebufferpool"
)

// Encoding selects the text overlay appended after a blob row's hex bytes.
type Encoding int

const (
	// EncodingNone renders hex only.
	EncodingNone Encoding = iota
	// EncodingCP437 renders one glyph per byte from the cp437 table.
	EncodingCP437
	// EncodingUTF8 decodes the row as a UTF-8 byte stream, carrying
	// sequences split at row boundaries into the next row.
	EncodingUTF8
)

// BlobConfig controls blob row layout.
type BlobConfig struct {
	// RowLength is the number of raw bytes per row. Zero means 16.
	RowLength int
	// Compact drops the inter-byte spacing; used for bulk payload regions.
	Compact bool
	// Encoding is the optional text overlay.
	Encoding Encoding
}

// CompactConfig is the wide hex-only layout used for gaps and bulk payload
// regions.
var CompactConfig = BlobConfig{RowLength: 512, Compact: true}

const defaultRowLength = 16

func (c BlobConfig) rowLength() int {
	if c.RowLength <= 0 {
		return defaultRowLength
	}
	return c.RowLength
}

// UTF8Carry holds the prefix of a multi-byte UTF-8 sequence that was cut at
// a row or chunk boundary. The final byte of a sequence is never saved; it
// completes the sequence in the row it belongs to.
type UTF8Carry struct {
	saved [3]byte
	n     int // bytes saved, leading byte included
	need  int // continuation bytes still required
}

func (c *UTF8Carry) pending() bool { return c.need > 0 }

func (c *UTF8Carry) reset() { c.n, c.need = 0, 0 }

// BlobWriter renders one logical blob in fixed-width rows. It may be fed the
// blob in arbitrary chunks via Write; the output is byte-identical to a
// single Write of the whole blob. Close finalizes the last row and any
// incomplete UTF-8 sequence.
type BlobWriter struct {
	r   *Renderer
	cfg BlobConfig

	row    []byte
	carry  UTF8Carry
	closed bool
}

// NewBlobWriter starts a logical blob using cfg.
func (r *Renderer) NewBlobWriter(cfg BlobConfig) *BlobWriter {
	return &BlobWriter{r: r, cfg: cfg, row: make([]byte, 0, cfg.rowLength())}
}

// Blob renders buf as one whole blob.
func (r *Renderer) Blob(buf []byte, cfg BlobConfig) error {
	bw := r.NewBlobWriter(cfg)
	if _, err := bw.Write(buf); err != nil {
		return err
	}
	return bw.Close()
}

// Write appends p to the blob. A completed row is held back until the next
// byte arrives so that Close can apply end-of-blob rules to the true final
// row.
func (bw *BlobWriter) Write(p []byte) (int, error) {
	if bw.closed {
		return 0, fmt.Errorf("blob writer: write after close")
	}

	rowLen := bw.cfg.rowLength()
	for n := 0; n < len(p); {
		if len(bw.row) == rowLen {
			if err := bw.emitRow(false); err != nil {
				return n, err
			}
		}
		take := min(rowLen-len(bw.row), len(p)-n)
		bw.row = append(bw.row, p[n:n+take]...)
		n += take
	}
	return len(p), nil
}

// Close emits the final row. An in-progress UTF-8 sequence is abandoned and
// rendered as the replacement character.
func (bw *BlobWriter) Close() error {
	if bw.closed {
		return nil
	}
	bw.closed = true

	if len(bw.row) == 0 && !bw.carry.pending() {
		return nil
	}
	return bw.emitRow(true)
}

func (bw *BlobWriter) emitRow(final bool) error {
	bb := bytebufferpool.Get()
	defer bytebufferpool.Put(bb)

	bw.r.writeIndent(bb)

	rowLen := bw.cfg.rowLength()
	for i, b := range bw.row {
		if i > 0 && !bw.cfg.Compact {
			bb.WriteByte(' ')
		}
		writeHexByte(bb, b)
	}

	switch bw.cfg.Encoding {
	case EncodingNone:
		// hex only

	case EncodingCP437:
		bw.padShortRow(bb, rowLen)
		bb.WriteString(` ; cp437"`)
		for _, b := range bw.row {
			writeGlyph(bb, bw.r.glyphs, b)
		}
		bb.WriteByte('"')

	case EncodingUTF8:
		bw.padShortRow(bb, rowLen)
		bb.WriteString(` ; utf8"`)
		bw.decodeUTF8Row(bb)
		if final && bw.carry.pending() {
			bb.WriteString(string(utf8.RuneError))
			bw.carry.reset()
		}
		bb.WriteByte('"')
	}

	bb.WriteByte('\n')
	bw.row = bw.row[:0]

	_, err := bw.r.w.Write(bb.B)
	return err
}

// padShortRow blank-fills the hex column of a short row so the overlay
// column stays aligned across rows.
func (bw *BlobWriter) padShortRow(bb *bytebufferpool.ByteBuffer, rowLen int) {
	missing := rowLen - len(bw.row)
	if missing <= 0 {
		return
	}
	if bw.cfg.Compact {
		padSpaces(bb, 2*missing)
		return
	}
	if len(bw.row) == 0 {
		padSpaces(bb, 3*rowLen-1)
		return
	}
	padSpaces(bb, 3*missing)
}

// decodeUTF8Row decodes the current row's bytes as a UTF-8 stream, resuming
// any sequence carried over from the previous row. A sequence left
// incomplete at the end of the row is carried; invalid bytes each become the
// replacement character with scanning resuming at the next byte.
func (bw *BlobWriter) decodeUTF8Row(bb *bytebufferpool.ByteBuffer) {
	c := &bw.carry
	for _, b := range bw.row {
	reprocess:
		if c.pending() {
			if b&0xc0 != 0x80 {
				// Continuation byte missing; the partial sequence
				// collapses to a single replacement marker.
				bb.WriteString(string(utf8.RuneError))
				c.reset()
				goto reprocess
			}
			if c.need > 1 {
				c.saved[c.n] = b
				c.n++
				c.need--
				continue
			}
			var seq [4]byte
			copy(seq[:], c.saved[:c.n])
			seq[c.n] = b
			total := c.n + 1
			c.reset()

			r, size := utf8.DecodeRune(seq[:total])
			if size != total || (r == utf8.RuneError && size == 1) {
				// Overlong or otherwise invalid assembled sequence.
				bb.WriteString(string(utf8.RuneError))
				continue
			}
			writeEscapedRune(bb, r)
			continue
		}

		switch {
		case b < 0x80:
			writeEscapedRune(bb, rune(b))
		case b >= 0xc2 && b <= 0xdf:
			c.saved[0], c.n, c.need = b, 1, 1
		case b >= 0xe0 && b <= 0xef:
			c.saved[0], c.n, c.need = b, 1, 2
		case b >= 0xf0 && b <= 0xf4:
			c.saved[0], c.n, c.need = b, 1, 3
		default:
			// Stray continuation byte or invalid leading byte.
			bb.WriteString(string(utf8.RuneError))
		}
	}
}

// writeEscapedRune writes r with the transcript's escaping rules: common
// whitespace and the quoting characters as two-character escapes, remaining
// C0 controls and DEL as \xHH, and the Unicode line/paragraph separators as
// \uHHHH. Everything else passes through as UTF-8.
func writeEscapedRune(bb *bytebufferpool.ByteBuffer, r rune) {
	switch r {
	case '\n':
		bb.WriteString(`\n`)
	case '\r':
		bb.WriteString(`\r`)
	case '\t':
		bb.WriteString(`\t`)
	case '"':
		bb.WriteString(`\"`)
	case '\\':
		bb.WriteString(`\\`)
	case 0x85, 0x2028, 0x2029:
		fmt.Fprintf(bb, `\u%04x`, r)
	default:
		if r < 0x20 || r == 0x7f {
			fmt.Fprintf(bb, `\x%02x`, r)
			return
		}
		bb.WriteString(string(r))
	}
}
