package dump

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ossyrian/zipdump/internal/render"
	"github.com/ossyrian/zipdump/internal/zipfmt"
)

// streamState is the walker's position in the archive grammar.
type streamState int

const (
	stateStart streamState = iota
	stateLocalEntries
	stateCentralDirectory
)

func (s streamState) String() string {
	switch s {
	case stateStart:
		return "start"
	case stateLocalEntries:
		return "local entries"
	default:
		return "central directory"
	}
}

// walker decodes an archive in a single forward pass, never learning the
// total size and never seeking backward past its one-slot 4-byte pushback
// buffer. Each structure is rendered the moment it is fully decoded.
type walker struct {
	src    io.Reader
	rend   *render.Renderer
	logger *slog.Logger

	// pushback holds a peeked signature awaiting re-consumption. Reads
	// drain it before touching src; offset counts pushed-back bytes as
	// unconsumed.
	pushback [4]byte
	pbOff    int
	pbLen    int

	offset  uint64
	state   streamState
	entries int
	cdIndex int

	emitted   bool
	cdRelease func()
}

// DumpStream renders the transcript of a sequentially-readable archive.
func DumpStream(src io.Reader, out io.Writer, logger *slog.Logger) error {
	w := &walker{
		src:    src,
		rend:   render.New(out, render.StreamingOffsetWidth),
		logger: logger,
	}
	return w.run()
}

func (w *walker) readFull(buf []byte) error {
	n := 0
	for w.pbLen > 0 && n < len(buf) {
		buf[n] = w.pushback[w.pbOff]
		w.pbOff++
		w.pbLen--
		n++
	}
	if n < len(buf) {
		m, err := io.ReadFull(w.src, buf[n:])
		n += m
		if err != nil {
			w.offset += uint64(n)
			if errors.Is(err, io.EOF) && n > 0 {
				return io.ErrUnexpectedEOF
			}
			return err
		}
	}
	w.offset += uint64(n)
	return nil
}

func (w *walker) readByte() (byte, error) {
	var b [1]byte
	if err := w.readFull(b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// peekSignature reads the next 4 bytes and immediately pushes them back, so
// the following structural read re-consumes them as part of its header.
func (w *walker) peekSignature() (uint32, error) {
	var b [4]byte
	if err := w.readFull(b[:]); err != nil {
		return 0, err
	}
	w.pushBack(b)
	return binary.LittleEndian.Uint32(b[:]), nil
}

func (w *walker) pushBack(b [4]byte) {
	w.pushback = b
	w.pbOff = 0
	w.pbLen = 4
	w.offset -= 4
}

// sep writes the blank line between top-level sibling sections.
func (w *walker) sep() error {
	if w.emitted {
		return w.rend.BlankLine()
	}
	w.emitted = true
	return nil
}

// closeCD ends the nested central-directory section, if one is open.
func (w *walker) closeCD() {
	if w.cdRelease != nil {
		w.cdRelease()
		w.cdRelease = nil
	}
}

func (w *walker) wrongSignature(sig uint32) error {
	return fmt.Errorf("%w: 0x%08x in state %q at offset 0x%x",
		zipfmt.ErrWrongSignature, sig, w.state, w.offset)
}

func (w *walker) run() error {
	for {
		sig, err := w.peekSignature()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("reading signature at offset 0x%x: %w", w.offset, io.ErrUnexpectedEOF)
			}
			return err
		}

		switch sig {
		case zipfmt.LocalFileHeaderSignature:
			if w.state != stateStart && w.state != stateLocalEntries {
				return w.wrongSignature(sig)
			}
			w.state = stateLocalEntries
			if err := w.localFile(); err != nil {
				return err
			}

		case zipfmt.CentralDirectorySignature:
			if w.state != stateLocalEntries && w.state != stateCentralDirectory {
				return w.wrongSignature(sig)
			}
			if w.state != stateCentralDirectory {
				w.state = stateCentralDirectory
				if err := w.sep(); err != nil {
					return err
				}
				if err := w.rend.SectionHeader(w.offset, "Central Directory"); err != nil {
					return err
				}
				w.cdRelease = w.rend.Indent()
			}
			if err := w.centralEntry(); err != nil {
				return err
			}

		case zipfmt.Zip64EndOfCentralDirSignature:
			if w.state != stateStart && w.state != stateCentralDirectory {
				return w.wrongSignature(sig)
			}
			return w.finishZip64()

		case zipfmt.EndOfCentralDirSignature:
			if w.state != stateStart && w.state != stateCentralDirectory {
				return w.wrongSignature(sig)
			}
			w.closeCD()
			if err := w.renderEocdr(); err != nil {
				return err
			}
			return w.expectEOF()

		default:
			return w.wrongSignature(sig)
		}
	}
}

func (w *walker) localFile() error {
	if err := w.sep(); err != nil {
		return err
	}
	off := w.offset

	var buf [zipfmt.LocalFileHeaderSize]byte
	if err := w.readFull(buf[:]); err != nil {
		return fmt.Errorf("reading local file header at 0x%x: %w", off, err)
	}
	if err := w.rend.SectionHeader(off, fmt.Sprintf("Local File Header (entry %d)", w.entries)); err != nil {
		return err
	}
	w.entries++
	release := w.rend.Indent()
	defer release()

	h, err := renderLocalFileFields(w.rend, buf[:])
	if err != nil {
		return err
	}

	if h.nameLen > 0 {
		nameOff := w.offset
		name := make([]byte, h.nameLen)
		if err := w.readFull(name); err != nil {
			return fmt.Errorf("reading file name at 0x%x: %w", nameOff, err)
		}
		if err := w.renderNamedBlob(nameOff, "File Name", name, nameEncoding(h.flags)); err != nil {
			return err
		}
	}

	// The walker resolves zip64 overrides from the local header's own extra
	// fields, and only for the sizes; offset and disk live in the central
	// directory alone.
	needs := zipfmt.Zip64Needs{
		UncompressedSize: h.uncompressedSize32 == 0xffffffff,
		CompressedSize:   h.compressedSize32 == 0xffffffff,
	}
	var vals zipfmt.Zip64Values
	if h.extraLen > 0 {
		extraOff := w.offset
		extra := make([]byte, h.extraLen)
		if err := w.readFull(extra); err != nil {
			return fmt.Errorf("reading extra fields at 0x%x: %w", extraOff, err)
		}
		if vals, err = zipfmt.ResolveZip64(extra, needs); err != nil {
			return fmt.Errorf("entry at 0x%x: %w", off, err)
		}
		if err := renderExtraFields(w.rend, extraOff, extra, needs); err != nil {
			return err
		}
	}
	isZip64 := vals.SawZip64 && (needs.CompressedSize || needs.UncompressedSize)

	if h.flags&zipfmt.FlagHasDataDescriptor != 0 {
		// Sizes were unknown when this entry was written; the payload ends
		// wherever the descriptor signature turns up.
		if err := w.scanPayload(); err != nil {
			return err
		}
		return w.renderDescriptor(isZip64)
	}

	compressedSize := uint64(h.compressedSize32)
	if vals.HasCompressedSize {
		compressedSize = vals.CompressedSize
	}
	if compressedSize > 0 {
		payloadOff := w.offset
		if err := w.rend.SectionHeader(payloadOff, "File Contents"); err != nil {
			return err
		}
		rel := w.rend.Indent()
		err := w.copyBlob(compressedSize, render.CompactConfig)
		rel()
		if err != nil {
			return fmt.Errorf("reading file contents at 0x%x: %w", payloadOff, err)
		}
	}

	// A descriptor may still follow a declared-size payload. Clean EOF on
	// the peek is the expected way to learn there is none.
	sig, err := w.peekSignature()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	if sig == zipfmt.DataDescriptorSignature {
		return w.renderDescriptor(isZip64)
	}
	return nil
}

// copyBlob renders exactly n payload bytes through a blob writer in bounded
// chunks.
func (w *walker) copyBlob(n uint64, cfg render.BlobConfig) error {
	bw := w.rend.NewBlobWriter(cfg)
	buf := make([]byte, chunkSize)
	for n > 0 {
		take := uint64(len(buf))
		if n < take {
			take = n
		}
		if err := w.readFull(buf[:take]); err != nil {
			return err
		}
		if _, err := bw.Write(buf[:take]); err != nil {
			return err
		}
		n -= take
	}
	return bw.Close()
}

// scanPayload renders payload bytes one at a time while keeping a rolling
// match against the data descriptor signature. Provisionally matched bytes
// are held back and flushed as ordinary payload the moment the match fails;
// a full match is pushed back so the descriptor decode re-consumes it.
func (w *walker) scanPayload() error {
	sig := [4]byte{0x50, 0x4b, 0x07, 0x08}
	payloadOff := w.offset

	var bw *render.BlobWriter
	var release func()
	ensure := func() error {
		if bw != nil {
			return nil
		}
		if err := w.rend.SectionHeader(payloadOff, "File Contents"); err != nil {
			return err
		}
		release = w.rend.Indent()
		bw = w.rend.NewBlobWriter(render.CompactConfig)
		return nil
	}

	matched := 0
	for {
		b, err := w.readByte()
		if err != nil {
			if errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				err = io.ErrUnexpectedEOF
			}
			return fmt.Errorf("scanning for data descriptor from 0x%x: %w", payloadOff, err)
		}

		if b == sig[matched] {
			matched++
			if matched == len(sig) {
				w.pushBack(sig)
				break
			}
			continue
		}

		if err := ensure(); err != nil {
			return err
		}
		if matched > 0 {
			if _, err := bw.Write(sig[:matched]); err != nil {
				return err
			}
			matched = 0
		}
		if b == sig[0] {
			matched = 1
			continue
		}
		if _, err := bw.Write([]byte{b}); err != nil {
			return err
		}
	}

	if bw != nil {
		err := bw.Close()
		release()
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) renderDescriptor(zip64 bool) error {
	off := w.offset
	descLen := zipfmt.DataDescriptorSize
	if zip64 {
		descLen = zipfmt.DataDescriptor64Size
	}
	buf := make([]byte, descLen)
	if err := w.readFull(buf); err != nil {
		return fmt.Errorf("reading data descriptor at 0x%x: %w", off, err)
	}

	if err := w.rend.SectionHeader(off, "Optional Data Descriptor"); err != nil {
		return err
	}
	release := w.rend.Indent()
	defer release()
	return renderDataDescriptorFields(w.rend, buf, zip64)
}

func (w *walker) centralEntry() error {
	off := w.offset
	var buf [zipfmt.CentralDirectoryHeaderSize]byte
	if err := w.readFull(buf[:]); err != nil {
		return fmt.Errorf("reading central directory entry at 0x%x: %w", off, err)
	}

	if err := w.rend.SectionHeader(off, fmt.Sprintf("Central Directory Entry %d", w.cdIndex)); err != nil {
		return err
	}
	w.cdIndex++
	release := w.rend.Indent()
	defer release()

	h, err := renderCentralFields(w.rend, buf[:])
	if err != nil {
		return err
	}

	if h.nameLen > 0 {
		nameOff := w.offset
		name := make([]byte, h.nameLen)
		if err := w.readFull(name); err != nil {
			return fmt.Errorf("reading file name at 0x%x: %w", nameOff, err)
		}
		if err := w.renderNamedBlob(nameOff, "File Name", name, nameEncoding(h.flags)); err != nil {
			return err
		}
	}

	if h.extraLen > 0 {
		extraOff := w.offset
		extra := make([]byte, h.extraLen)
		if err := w.readFull(extra); err != nil {
			return fmt.Errorf("reading extra fields at 0x%x: %w", extraOff, err)
		}
		needs := zipfmt.Zip64Needs{
			UncompressedSize:  h.uncompressedSize32 == 0xffffffff,
			CompressedSize:    h.compressedSize32 == 0xffffffff,
			LocalHeaderOffset: h.localHeaderOffset32 == 0xffffffff,
			DiskNumber:        h.diskStart16 == 0xffff,
		}
		if err := renderExtraFields(w.rend, extraOff, extra, needs); err != nil {
			return err
		}
	}

	if h.commentLen > 0 {
		commentOff := w.offset
		comment := make([]byte, h.commentLen)
		if err := w.readFull(comment); err != nil {
			return fmt.Errorf("reading file comment at 0x%x: %w", commentOff, err)
		}
		if err := w.renderNamedBlob(commentOff, "File Comment", comment, nameEncoding(h.flags)); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) renderNamedBlob(off uint64, label string, data []byte, enc render.Encoding) error {
	if err := w.rend.SectionHeader(off, label); err != nil {
		return err
	}
	release := w.rend.Indent()
	defer release()
	return w.rend.Blob(data, render.BlobConfig{Encoding: enc})
}

func (w *walker) renderEocdr() error {
	if err := w.sep(); err != nil {
		return err
	}
	off := w.offset

	var buf [zipfmt.EndOfCentralDirSize]byte
	if err := w.readFull(buf[:]); err != nil {
		return fmt.Errorf("reading end of central directory at 0x%x: %w", off, err)
	}
	if err := w.rend.SectionHeader(off, "End of Central Directory Record"); err != nil {
		return err
	}
	release := w.rend.Indent()
	defer release()

	commentLen, err := renderEocdrFields(w.rend, buf[:])
	if err != nil {
		return err
	}
	if commentLen > 0 {
		commentOff := w.offset
		comment := make([]byte, commentLen)
		if err := w.readFull(comment); err != nil {
			return fmt.Errorf("reading archive comment at 0x%x: %w", commentOff, err)
		}
		if err := w.renderNamedBlob(commentOff, "Comment", comment, render.EncodingCP437); err != nil {
			return err
		}
	}

	w.logger.Info("transcript complete",
		"local_entries", w.entries,
		"central_entries", w.cdIndex,
		"bytes", w.offset,
	)
	return nil
}

// finishZip64 decodes the zip64 terminal sequence: the zip64 end of central
// directory record, which must be followed by its locator and then the plain
// end of central directory record.
func (w *walker) finishZip64() error {
	w.closeCD()
	if err := w.sep(); err != nil {
		return err
	}
	off := w.offset

	var buf [zipfmt.Zip64EndOfCentralDirSize]byte
	if err := w.readFull(buf[:]); err != nil {
		return fmt.Errorf("reading zip64 end of central directory at 0x%x: %w", off, err)
	}
	if err := w.rend.SectionHeader(off, "ZIP64 End of Central Directory Record"); err != nil {
		return err
	}
	release := w.rend.Indent()
	recordSize, err := renderZip64EocdrFields(w.rend, buf[:])
	if err != nil {
		release()
		return err
	}
	if extra := 12 + recordSize; extra > zipfmt.Zip64EndOfCentralDirSize {
		extraOff := w.offset
		if err := w.rend.SectionHeader(extraOff, "ZIP64 Extensible Data Sector"); err != nil {
			release()
			return err
		}
		rel := w.rend.Indent()
		err := w.copyBlob(extra-zipfmt.Zip64EndOfCentralDirSize, render.CompactConfig)
		rel()
		if err != nil {
			release()
			return fmt.Errorf("reading zip64 extensible data sector at 0x%x: %w", extraOff, err)
		}
	}
	release()

	sig, err := w.peekSignature()
	if err != nil || sig != zipfmt.Zip64EndOfCentralDirLocatorSignature {
		return fmt.Errorf("%w: at offset 0x%x", zipfmt.ErrExpectedZip64EndOfCentralDirectoryLocator, w.offset)
	}
	if err := w.renderZip64Locator(); err != nil {
		return err
	}

	sig, err = w.peekSignature()
	if err != nil || sig != zipfmt.EndOfCentralDirSignature {
		return fmt.Errorf("%w: at offset 0x%x", zipfmt.ErrExpectedEndOfCentralDirectoryRecord, w.offset)
	}
	if err := w.renderEocdr(); err != nil {
		return err
	}
	return w.expectEOF()
}

func (w *walker) renderZip64Locator() error {
	if err := w.sep(); err != nil {
		return err
	}
	off := w.offset

	var buf [zipfmt.Zip64EndOfCentralDirLocatorSize]byte
	if err := w.readFull(buf[:]); err != nil {
		return fmt.Errorf("reading zip64 locator at 0x%x: %w", off, err)
	}
	if err := w.rend.SectionHeader(off, "ZIP64 End of Central Directory Locator"); err != nil {
		return err
	}
	release := w.rend.Indent()
	defer release()
	return renderZip64EocdlFields(w.rend, buf[:])
}

// expectEOF asserts the input ends immediately after the terminal record.
func (w *walker) expectEOF() error {
	var b [1]byte
	err := w.readFull(b[:])
	if err == nil {
		return fmt.Errorf("%w: data after offset 0x%x", zipfmt.ErrExpectedEof, w.offset-1)
	}
	if errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil
	}
	return err
}
