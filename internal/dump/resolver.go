package dump

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/ossyrian/zipdump/internal/render"
	"github.com/ossyrian/zipdump/internal/zipfmt"
)

// The end of central directory record is found by scanning backward through
// a window holding the largest possible comment plus the record itself and
// a possible zip64 locator in front of it.
const (
	maxCommentLength  = 0xffff
	eocdrSearchWindow = zipfmt.Zip64EndOfCentralDirLocatorSize + maxCommentLength + zipfmt.EndOfCentralDirSize
)

type resolver struct {
	src    io.ReaderAt
	size   uint64
	rend   *render.Renderer
	logger *slog.Logger

	segments []Segment
}

// DumpArchive renders the complete transcript of a sized random-access
// archive: it discovers every structural segment, then renders them in
// offset order with gaps filled in.
func DumpArchive(src io.ReaderAt, size uint64, out io.Writer, logger *slog.Logger) error {
	if size > math.MaxInt64 {
		return zipfmt.ErrFileTooBig
	}

	r := &resolver{
		src:    src,
		size:   size,
		rend:   render.New(out, render.OffsetWidthForSize(int64(size))),
		logger: logger,
	}
	if err := r.discover(); err != nil {
		return err
	}
	return r.renderAll()
}

func (r *resolver) readAt(off uint64, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := r.src.ReadAt(buf, int64(off)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Fixed-size wire records, decoded with binary.Read.

type eocdrRecord struct {
	Signature     uint32
	DiskNumber    uint16
	CDStartDisk   uint16
	EntriesOnDisk uint16
	TotalEntries  uint16
	CDSize        uint32
	CDOffset      uint32
	CommentLength uint16
}

type zip64EocdlRecord struct {
	Signature   uint32
	CDStartDisk uint32
	Offset      uint64
	TotalDisks  uint32
}

type zip64EocdrRecord struct {
	Signature     uint32
	RecordSize    uint64
	VersionMadeBy uint16
	VersionNeeded uint16
	DiskNumber    uint32
	CDStartDisk   uint32
	EntriesOnDisk uint64
	TotalEntries  uint64
	CDSize        uint64
	CDOffset      uint64
}

type centralRecord struct {
	Signature         uint32
	VersionMadeBy     uint16
	VersionNeeded     uint16
	Flags             uint16
	Method            uint16
	ModTime           uint16
	ModDate           uint16
	CRC32             uint32
	CompressedSize    uint32
	UncompressedSize  uint32
	NameLength        uint16
	ExtraLength       uint16
	CommentLength     uint16
	DiskStart         uint16
	InternalAttrs     uint16
	ExternalAttrs     uint32
	LocalHeaderOffset uint32
}

// discover builds the unordered segment set: EOCDR (with any zip64
// redirection applied), the central directory block, and one local-file
// segment per directory entry with its resolved compressed size.
func (r *resolver) discover() error {
	eocdrOff, rec, err := r.findEOCDR()
	if err != nil {
		return err
	}
	r.logger.Debug("found end of central directory record",
		"offset", eocdrOff,
		"entries", rec.TotalEntries,
	)

	diskNumber := uint32(rec.DiskNumber)
	entryCount := uint64(rec.TotalEntries)
	cdSize := uint64(rec.CDSize)
	cdOffset := uint64(rec.CDOffset)

	// A zip64 locator sits exactly 20 bytes before the EOCDR when present.
	if eocdrOff >= zipfmt.Zip64EndOfCentralDirLocatorSize {
		locOff := eocdrOff - zipfmt.Zip64EndOfCentralDirLocatorSize
		locBuf, err := r.readAt(locOff, zipfmt.Zip64EndOfCentralDirLocatorSize)
		if err != nil {
			return fmt.Errorf("reading zip64 locator candidate: %w", err)
		}
		if binary.LittleEndian.Uint32(locBuf) == zipfmt.Zip64EndOfCentralDirLocatorSignature {
			var loc zip64EocdlRecord
			if err := binary.Read(bytes.NewReader(locBuf), binary.LittleEndian, &loc); err != nil {
				return fmt.Errorf("parsing zip64 locator: %w", err)
			}
			if loc.TotalDisks != 1 {
				return zipfmt.ErrMultiDiskZipfileNotSupported
			}
			if loc.Offset > r.size || zipfmt.Zip64EndOfCentralDirSize > r.size-loc.Offset {
				return fmt.Errorf("%w: zip64 end of central directory at 0x%x",
					zipfmt.ErrCentralDirectorySizeExceedsFileBounds, loc.Offset)
			}

			z64Buf, err := r.readAt(loc.Offset, zipfmt.Zip64EndOfCentralDirSize)
			if err != nil {
				return fmt.Errorf("reading zip64 end of central directory: %w", err)
			}
			var z64 zip64EocdrRecord
			if err := binary.Read(bytes.NewReader(z64Buf), binary.LittleEndian, &z64); err != nil {
				return fmt.Errorf("parsing zip64 end of central directory: %w", err)
			}
			if z64.Signature != zipfmt.Zip64EndOfCentralDirSignature {
				return fmt.Errorf("%w: 0x%08x at zip64 end of central directory offset 0x%x",
					zipfmt.ErrWrongSignature, z64.Signature, loc.Offset)
			}

			diskNumber = z64.DiskNumber
			entryCount = z64.TotalEntries
			cdSize = z64.CDSize
			cdOffset = z64.CDOffset

			r.segments = append(r.segments,
				Segment{Offset: loc.Offset, Kind: Zip64EocdrKind{}},
				Segment{Offset: locOff, Kind: Zip64EocdlKind{}},
			)
			r.logger.Debug("zip64 archive detected",
				"zip64_eocdr_offset", loc.Offset,
				"entries", entryCount,
			)
		}
	}

	if diskNumber != 0 {
		return zipfmt.ErrMultiDiskZipfileNotSupported
	}
	if cdOffset > r.size || cdSize > r.size-cdOffset {
		return zipfmt.ErrCentralDirectorySizeExceedsFileBounds
	}

	if err := r.walkCentralDirectory(cdOffset, cdSize, entryCount); err != nil {
		return err
	}

	if entryCount > 0 {
		r.segments = append(r.segments, Segment{
			Offset: cdOffset,
			Kind:   CentralDirectoryKind{EntryCount: entryCount, Size: cdSize},
		})
	}
	r.segments = append(r.segments, Segment{Offset: eocdrOff, Kind: EocdrKind{}})
	return nil
}

// findEOCDR reads the search window at the end of the input in one shot and
// scans backward for the EOCDR signature, treating each candidate as
// "comment length = distance from end".
func (r *resolver) findEOCDR() (uint64, eocdrRecord, error) {
	window := uint64(eocdrSearchWindow)
	if r.size < window {
		window = r.size
	}
	if window < zipfmt.EndOfCentralDirSize {
		return 0, eocdrRecord{}, zipfmt.ErrNotAZipFile
	}

	buf, err := r.readAt(r.size-window, int(window))
	if err != nil {
		return 0, eocdrRecord{}, fmt.Errorf("reading end of file: %w", err)
	}

	for i := int(window) - zipfmt.EndOfCentralDirSize; i >= 0; i-- {
		if int(window)-(i+zipfmt.EndOfCentralDirSize) > maxCommentLength {
			break
		}
		if binary.LittleEndian.Uint32(buf[i:]) != zipfmt.EndOfCentralDirSignature {
			continue
		}
		var rec eocdrRecord
		if err := binary.Read(bytes.NewReader(buf[i:i+zipfmt.EndOfCentralDirSize]), binary.LittleEndian, &rec); err != nil {
			return 0, eocdrRecord{}, fmt.Errorf("parsing end of central directory: %w", err)
		}
		return r.size - window + uint64(i), rec, nil
	}
	return 0, eocdrRecord{}, zipfmt.ErrNotAZipFile
}

// walkCentralDirectory reads the directory sequentially and registers one
// local-file segment per entry, with zip64 overrides from the entry's extra
// fields already applied. The walk is bounded both by the declared entry
// count and by the bytes remaining in the directory region.
func (r *resolver) walkCentralDirectory(cdOffset, cdSize, entryCount uint64) error {
	br := bufio.NewReader(io.NewSectionReader(r.src, int64(cdOffset), int64(cdSize)))
	remaining := cdSize

	for i := uint64(0); i < entryCount && remaining >= zipfmt.CentralDirectoryHeaderSize; i++ {
		var buf [zipfmt.CentralDirectoryHeaderSize]byte
		if _, err := io.ReadFull(br, buf[:]); err != nil {
			return fmt.Errorf("reading central directory entry %d: %w", i, err)
		}

		var rec centralRecord
		if err := binary.Read(bytes.NewReader(buf[:]), binary.LittleEndian, &rec); err != nil {
			return fmt.Errorf("parsing central directory entry %d: %w", i, err)
		}
		if rec.Signature != zipfmt.CentralDirectorySignature {
			r.logger.Warn("central directory entry has wrong signature, stopping walk",
				"entry", i,
				"signature", fmt.Sprintf("0x%08x", rec.Signature),
			)
			break
		}

		if _, err := br.Discard(int(rec.NameLength)); err != nil {
			return fmt.Errorf("skipping name of entry %d: %w", i, err)
		}
		extra := make([]byte, rec.ExtraLength)
		if _, err := io.ReadFull(br, extra); err != nil {
			return fmt.Errorf("reading extra fields of entry %d: %w", i, err)
		}
		if _, err := br.Discard(int(rec.CommentLength)); err != nil {
			return fmt.Errorf("skipping comment of entry %d: %w", i, err)
		}

		needs := zipfmt.Zip64Needs{
			UncompressedSize:  rec.UncompressedSize == math.MaxUint32,
			CompressedSize:    rec.CompressedSize == math.MaxUint32,
			LocalHeaderOffset: rec.LocalHeaderOffset == math.MaxUint32,
			DiskNumber:        rec.DiskStart == math.MaxUint16,
		}
		vals, err := zipfmt.ResolveZip64(extra, needs)
		if err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}

		compressedSize := uint64(rec.CompressedSize)
		if vals.HasCompressedSize {
			compressedSize = vals.CompressedSize
		}
		localOffset := uint64(rec.LocalHeaderOffset)
		if vals.HasLocalHeaderOffset {
			localOffset = vals.LocalHeaderOffset
		}
		diskStart := uint32(rec.DiskStart)
		if vals.HasDiskNumber {
			diskStart = vals.DiskNumber
		}
		if diskStart != 0 {
			return zipfmt.ErrMultiDiskZipfileNotSupported
		}

		r.segments = append(r.segments, Segment{
			Offset: localOffset,
			Kind: LocalFileKind{
				EntryIndex:     int(i),
				CompressedSize: compressedSize,
				IsZip64:        vals.SawZip64 && (needs.CompressedSize || needs.UncompressedSize),
			},
		})
		r.logger.Debug("registered local file segment",
			"entry", i,
			"offset", localOffset,
			"compressed_size", compressedSize,
			"zip64", vals.SawZip64,
		)

		remaining -= zipfmt.CentralDirectoryHeaderSize +
			uint64(rec.NameLength) + uint64(rec.ExtraLength) + uint64(rec.CommentLength)
	}
	return nil
}
