package dump

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ossyrian/zipdump/internal/render"
	"github.com/ossyrian/zipdump/internal/zipfmt"
)

const chunkSize = 4096

// renderAll walks the sorted segment set with a running cursor, filling
// every gap with an "(unused space)" blob and failing on overlap, so that
// each input byte lands in exactly one hex row.
func (r *resolver) renderAll() error {
	sortSegments(r.segments)

	cursor := uint64(0)
	emitted := false
	gaps := 0
	sep := func() error {
		if emitted {
			return r.rend.BlankLine()
		}
		emitted = true
		return nil
	}

	for _, seg := range r.segments {
		if seg.Offset > cursor {
			if err := sep(); err != nil {
				return err
			}
			if err := r.renderGap(cursor, seg.Offset); err != nil {
				return err
			}
			gaps++
			cursor = seg.Offset
		}
		if seg.Offset < cursor {
			return fmt.Errorf("%w: segment at 0x%x begins before cursor 0x%x",
				zipfmt.ErrSegmentOverlap, seg.Offset, cursor)
		}

		if err := sep(); err != nil {
			return err
		}
		n, err := r.renderSegment(seg)
		if err != nil {
			return err
		}
		cursor += n
	}

	if cursor < r.size {
		if err := sep(); err != nil {
			return err
		}
		if err := r.renderGap(cursor, r.size); err != nil {
			return err
		}
		gaps++
	}

	r.logger.Info("transcript complete",
		"segments", len(r.segments),
		"gaps", gaps,
		"bytes", r.size,
	)
	return nil
}

func (r *resolver) renderSegment(seg Segment) (uint64, error) {
	switch k := seg.Kind.(type) {
	case LocalFileKind:
		return r.renderLocalFile(seg.Offset, k)
	case CentralDirectoryKind:
		return r.renderCentralDirectory(seg.Offset, k)
	case Zip64EocdrKind:
		return r.renderZip64Eocdr(seg.Offset)
	case Zip64EocdlKind:
		return r.renderZip64Eocdl(seg.Offset)
	case EocdrKind:
		return r.renderEocdr(seg.Offset)
	default:
		return 0, fmt.Errorf("unknown segment kind %T at 0x%x", seg.Kind, seg.Offset)
	}
}

// renderGap renders [start, end) as unlabeled space.
func (r *resolver) renderGap(start, end uint64) error {
	if err := r.rend.SectionHeader(start, "(unused space)"); err != nil {
		return err
	}
	release := r.rend.Indent()
	defer release()
	return r.renderRegion(start, end-start, render.CompactConfig)
}

// renderRegion streams n bytes at off through a blob writer in bounded
// chunks.
func (r *resolver) renderRegion(off, n uint64, cfg render.BlobConfig) error {
	bw := r.rend.NewBlobWriter(cfg)
	src := io.NewSectionReader(r.src, int64(off), int64(n))
	if _, err := io.CopyBuffer(bw, src, make([]byte, chunkSize)); err != nil {
		return fmt.Errorf("reading region at 0x%x: %w", off, err)
	}
	return bw.Close()
}

// renderLocalFile renders a local file header with its name, extra fields,
// payload, and optional trailing data descriptor. A wrong signature at the
// expected offset is downgraded to a transcript warning and consumes
// nothing; the bytes become part of the surrounding gap accounting.
func (r *resolver) renderLocalFile(off uint64, k LocalFileKind) (uint64, error) {
	buf, err := r.readAt(off, zipfmt.LocalFileHeaderSize)
	if err != nil {
		return 0, r.rend.Warningf("cannot read local file header for entry %d at 0x%x: %v", k.EntryIndex, off, err)
	}
	if sig := binary.LittleEndian.Uint32(buf); sig != zipfmt.LocalFileHeaderSignature {
		return 0, r.rend.Warningf("expected local file header signature at 0x%x, found 0x%08x", off, sig)
	}

	if err := r.rend.SectionHeader(off, fmt.Sprintf("Local File Header (entry %d)", k.EntryIndex)); err != nil {
		return 0, err
	}
	release := r.rend.Indent()
	defer release()

	h, err := renderLocalFileFields(r.rend, buf)
	if err != nil {
		return 0, err
	}
	cursor := off + zipfmt.LocalFileHeaderSize

	if h.nameLen > 0 {
		name, err := r.readAt(cursor, h.nameLen)
		if err != nil {
			return 0, fmt.Errorf("reading file name at 0x%x: %w", cursor, err)
		}
		if err := r.renderNamedBlob(cursor, "File Name", name, nameEncoding(h.flags)); err != nil {
			return 0, err
		}
		cursor += uint64(h.nameLen)
	}

	if h.extraLen > 0 {
		extra, err := r.readAt(cursor, h.extraLen)
		if err != nil {
			return 0, fmt.Errorf("reading extra fields at 0x%x: %w", cursor, err)
		}
		needs := zipfmt.Zip64Needs{
			UncompressedSize: h.uncompressedSize32 == 0xffffffff,
			CompressedSize:   h.compressedSize32 == 0xffffffff,
		}
		if err := renderExtraFields(r.rend, cursor, extra, needs); err != nil {
			return 0, err
		}
		cursor += uint64(h.extraLen)
	}

	if k.CompressedSize > 0 {
		if err := r.rend.SectionHeader(cursor, "File Contents"); err != nil {
			return 0, err
		}
		rel := r.rend.Indent()
		err := r.renderRegion(cursor, k.CompressedSize, render.CompactConfig)
		rel()
		if err != nil {
			return 0, err
		}
		cursor += k.CompressedSize
	}

	n, err := r.renderOptionalDescriptor(cursor, k.IsZip64)
	if err != nil {
		return 0, err
	}
	cursor += n

	return cursor - off, nil
}

// renderOptionalDescriptor peeks at the bytes following a payload and
// renders a data descriptor when its signature is present. Running out of
// file here simply means no descriptor.
func (r *resolver) renderOptionalDescriptor(off uint64, zip64 bool) (uint64, error) {
	descLen := zipfmt.DataDescriptorSize
	if zip64 {
		descLen = zipfmt.DataDescriptor64Size
	}
	if off > r.size || uint64(descLen) > r.size-off {
		return 0, nil
	}
	buf, err := r.readAt(off, descLen)
	if err != nil {
		return 0, fmt.Errorf("reading data descriptor candidate at 0x%x: %w", off, err)
	}
	if binary.LittleEndian.Uint32(buf) != zipfmt.DataDescriptorSignature {
		return 0, nil
	}

	if err := r.rend.SectionHeader(off, "Optional Data Descriptor"); err != nil {
		return 0, err
	}
	release := r.rend.Indent()
	defer release()
	if err := renderDataDescriptorFields(r.rend, buf, zip64); err != nil {
		return 0, err
	}
	return uint64(descLen), nil
}

// renderCentralDirectory renders the directory block entry by entry,
// re-reading each header from the source. A wrong entry signature warns and
// stops the walk; whatever the entries did not cover is reported as a gap by
// the caller's cursor accounting.
func (r *resolver) renderCentralDirectory(off uint64, k CentralDirectoryKind) (uint64, error) {
	if err := r.rend.SectionHeader(off, "Central Directory"); err != nil {
		return 0, err
	}
	release := r.rend.Indent()
	defer release()

	cursor := off
	end := off + k.Size
	for i := uint64(0); i < k.EntryCount && cursor+zipfmt.CentralDirectoryHeaderSize <= end; i++ {
		buf, err := r.readAt(cursor, zipfmt.CentralDirectoryHeaderSize)
		if err != nil {
			return cursor - off, fmt.Errorf("reading central directory entry %d: %w", i, err)
		}
		if sig := binary.LittleEndian.Uint32(buf); sig != zipfmt.CentralDirectorySignature {
			if err := r.rend.Warningf("expected central directory entry signature at 0x%x, found 0x%08x", cursor, sig); err != nil {
				return cursor - off, err
			}
			break
		}

		if err := r.rend.SectionHeader(cursor, fmt.Sprintf("Central Directory Entry %d", i)); err != nil {
			return cursor - off, err
		}
		n, err := r.renderCentralEntry(cursor, buf)
		if err != nil {
			return cursor - off, err
		}
		cursor += n
	}
	return cursor - off, nil
}

func (r *resolver) renderCentralEntry(off uint64, buf []byte) (uint64, error) {
	release := r.rend.Indent()
	defer release()

	h, err := renderCentralFields(r.rend, buf)
	if err != nil {
		return 0, err
	}
	cursor := off + zipfmt.CentralDirectoryHeaderSize

	if h.nameLen > 0 {
		name, err := r.readAt(cursor, h.nameLen)
		if err != nil {
			return 0, fmt.Errorf("reading file name at 0x%x: %w", cursor, err)
		}
		if err := r.renderNamedBlob(cursor, "File Name", name, nameEncoding(h.flags)); err != nil {
			return 0, err
		}
		cursor += uint64(h.nameLen)
	}

	if h.extraLen > 0 {
		extra, err := r.readAt(cursor, h.extraLen)
		if err != nil {
			return 0, fmt.Errorf("reading extra fields at 0x%x: %w", cursor, err)
		}
		needs := zipfmt.Zip64Needs{
			UncompressedSize:  h.uncompressedSize32 == 0xffffffff,
			CompressedSize:    h.compressedSize32 == 0xffffffff,
			LocalHeaderOffset: h.localHeaderOffset32 == 0xffffffff,
			DiskNumber:        h.diskStart16 == 0xffff,
		}
		if err := renderExtraFields(r.rend, cursor, extra, needs); err != nil {
			return 0, err
		}
		cursor += uint64(h.extraLen)
	}

	if h.commentLen > 0 {
		comment, err := r.readAt(cursor, h.commentLen)
		if err != nil {
			return 0, fmt.Errorf("reading file comment at 0x%x: %w", cursor, err)
		}
		if err := r.renderNamedBlob(cursor, "File Comment", comment, nameEncoding(h.flags)); err != nil {
			return 0, err
		}
		cursor += uint64(h.commentLen)
	}

	return cursor - off, nil
}

func (r *resolver) renderNamedBlob(off uint64, label string, data []byte, enc render.Encoding) error {
	if err := r.rend.SectionHeader(off, label); err != nil {
		return err
	}
	release := r.rend.Indent()
	defer release()
	return r.rend.Blob(data, render.BlobConfig{Encoding: enc})
}

func (r *resolver) renderEocdr(off uint64) (uint64, error) {
	buf, err := r.readAt(off, zipfmt.EndOfCentralDirSize)
	if err != nil {
		return 0, fmt.Errorf("reading end of central directory at 0x%x: %w", off, err)
	}
	if err := r.rend.SectionHeader(off, "End of Central Directory Record"); err != nil {
		return 0, err
	}
	release := r.rend.Indent()
	defer release()

	commentLen, err := renderEocdrFields(r.rend, buf)
	if err != nil {
		return 0, err
	}
	consumed := uint64(zipfmt.EndOfCentralDirSize)

	if commentLen > 0 {
		comment, err := r.readAt(off+consumed, commentLen)
		if err != nil {
			return 0, fmt.Errorf("reading archive comment at 0x%x: %w", off+consumed, err)
		}
		if err := r.renderNamedBlob(off+consumed, "Comment", comment, render.EncodingCP437); err != nil {
			return 0, err
		}
		consumed += uint64(commentLen)
	}
	return consumed, nil
}

func (r *resolver) renderZip64Eocdr(off uint64) (uint64, error) {
	buf, err := r.readAt(off, zipfmt.Zip64EndOfCentralDirSize)
	if err != nil {
		return 0, fmt.Errorf("reading zip64 end of central directory at 0x%x: %w", off, err)
	}
	if err := r.rend.SectionHeader(off, "ZIP64 End of Central Directory Record"); err != nil {
		return 0, err
	}
	release := r.rend.Indent()
	defer release()

	recordSize, err := renderZip64EocdrFields(r.rend, buf)
	if err != nil {
		return 0, err
	}

	// RecordSize excludes the signature and the size field itself. Anything
	// beyond the fixed layout is the extensible data sector.
	consumed := 12 + recordSize
	if consumed < zipfmt.Zip64EndOfCentralDirSize {
		consumed = zipfmt.Zip64EndOfCentralDirSize
	}
	if extra := consumed - zipfmt.Zip64EndOfCentralDirSize; extra > 0 {
		start := off + zipfmt.Zip64EndOfCentralDirSize
		if err := r.rend.SectionHeader(start, "ZIP64 Extensible Data Sector"); err != nil {
			return 0, err
		}
		rel := r.rend.Indent()
		err := r.renderRegion(start, extra, render.CompactConfig)
		rel()
		if err != nil {
			return 0, err
		}
	}
	return consumed, nil
}

func (r *resolver) renderZip64Eocdl(off uint64) (uint64, error) {
	buf, err := r.readAt(off, zipfmt.Zip64EndOfCentralDirLocatorSize)
	if err != nil {
		return 0, fmt.Errorf("reading zip64 locator at 0x%x: %w", off, err)
	}
	if err := r.rend.SectionHeader(off, "ZIP64 End of Central Directory Locator"); err != nil {
		return 0, err
	}
	release := r.rend.Indent()
	defer release()
	if err := renderZip64EocdlFields(r.rend, buf); err != nil {
		return 0, err
	}
	return zipfmt.Zip64EndOfCentralDirLocatorSize, nil
}
