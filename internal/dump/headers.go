package dump

import (
	"fmt"

	"github.com/ossyrian/zipdump/internal/render"
	"github.com/ossyrian/zipdump/internal/zipfmt"
)

// fieldReader renders consecutive struct fields from one fixed-size header
// buffer, carrying the first error so call sites stay flat.
type fieldReader struct {
	r    *render.Renderer
	buf  []byte
	cur  int
	maxW int
	err  error
}

func (f *fieldReader) u16(name string) uint16 {
	return uint16(f.field(2, name))
}

func (f *fieldReader) u32(name string) uint32 {
	return uint32(f.field(4, name))
}

func (f *fieldReader) u64(name string) uint64 {
	return f.field(8, name)
}

func (f *fieldReader) field(width int, name string) uint64 {
	if f.err != nil {
		return 0
	}
	v, err := f.r.StructField(f.buf, &f.cur, width, f.maxW, name)
	f.err = err
	return v
}

// localHeader is the fixed part of a local file header, as declared on disk
// (no ZIP64 resolution applied).
type localHeader struct {
	flags              uint16
	compressedSize32   uint32
	uncompressedSize32 uint32
	nameLen            int
	extraLen           int
}

// renderLocalFileFields renders the 30-byte local file header field table.
func renderLocalFileFields(r *render.Renderer, buf []byte) (localHeader, error) {
	f := &fieldReader{r: r, buf: buf, maxW: 4}
	f.u32("Local File Header Signature")
	f.u16("Version Needed to Extract")
	h := localHeader{}
	h.flags = f.u16("General Purpose Bit Flag")
	f.u16("Compression Method")
	f.u16("Last Mod File Time")
	f.u16("Last Mod File Date")
	f.u32("CRC-32")
	h.compressedSize32 = f.u32("Compressed Size")
	h.uncompressedSize32 = f.u32("Uncompressed Size")
	h.nameLen = int(f.u16("File Name Length"))
	h.extraLen = int(f.u16("Extra Fields Length"))
	return h, f.err
}

// centralHeader is the fixed part of a central directory entry, as declared.
type centralHeader struct {
	flags               uint16
	compressedSize32    uint32
	uncompressedSize32  uint32
	nameLen             int
	extraLen            int
	commentLen          int
	diskStart16         uint16
	localHeaderOffset32 uint32
}

// renderCentralFields renders the 46-byte central directory entry field table.
func renderCentralFields(r *render.Renderer, buf []byte) (centralHeader, error) {
	f := &fieldReader{r: r, buf: buf, maxW: 4}
	f.u32("Central Directory Entry Signature")
	f.u16("Version Made By")
	f.u16("Version Needed to Extract")
	h := centralHeader{}
	h.flags = f.u16("General Purpose Bit Flag")
	f.u16("Compression Method")
	f.u16("Last Mod File Time")
	f.u16("Last Mod File Date")
	f.u32("CRC-32")
	h.compressedSize32 = f.u32("Compressed Size")
	h.uncompressedSize32 = f.u32("Uncompressed Size")
	h.nameLen = int(f.u16("File Name Length"))
	h.extraLen = int(f.u16("Extra Fields Length"))
	h.commentLen = int(f.u16("File Comment Length"))
	h.diskStart16 = f.u16("Disk Number Start")
	f.u16("Internal File Attributes")
	f.u32("External File Attributes")
	h.localHeaderOffset32 = f.u32("Local Header Offset")
	return h, f.err
}

// renderEocdrFields renders the 22-byte end of central directory field table
// and returns the declared comment length.
func renderEocdrFields(r *render.Renderer, buf []byte) (commentLen int, err error) {
	f := &fieldReader{r: r, buf: buf, maxW: 4}
	f.u32("End of Central Directory Signature")
	f.u16("Number of This Disk")
	f.u16("Disk with Start of Central Directory")
	f.u16("Entries on This Disk")
	f.u16("Total Entries")
	f.u32("Central Directory Size")
	f.u32("Central Directory Offset")
	commentLen = int(f.u16("Comment Length"))
	return commentLen, f.err
}

// renderZip64EocdrFields renders the 56-byte zip64 end of central directory
// field table and returns the declared record size (which excludes the
// signature and the size field itself).
func renderZip64EocdrFields(r *render.Renderer, buf []byte) (recordSize uint64, err error) {
	f := &fieldReader{r: r, buf: buf, maxW: 8}
	f.u32("ZIP64 End of Central Directory Signature")
	recordSize = f.u64("Size of ZIP64 End of Central Directory Record")
	f.u16("Version Made By")
	f.u16("Version Needed to Extract")
	f.u32("Number of This Disk")
	f.u32("Disk with Start of Central Directory")
	f.u64("Entries on This Disk")
	f.u64("Total Entries")
	f.u64("Central Directory Size")
	f.u64("Central Directory Offset")
	return recordSize, f.err
}

// renderZip64EocdlFields renders the 20-byte zip64 locator field table.
func renderZip64EocdlFields(r *render.Renderer, buf []byte) error {
	f := &fieldReader{r: r, buf: buf, maxW: 8}
	f.u32("ZIP64 End of Central Directory Locator Signature")
	f.u32("Disk with ZIP64 End of Central Directory")
	f.u64("ZIP64 End of Central Directory Offset")
	f.u32("Total Number of Disks")
	return f.err
}

// renderDataDescriptorFields renders a 16-byte data descriptor, or the
// 24-byte form with 8-byte sizes when the entry used ZIP64.
func renderDataDescriptorFields(r *render.Renderer, buf []byte, zip64 bool) error {
	maxW := 4
	if zip64 {
		maxW = 8
	}
	f := &fieldReader{r: r, buf: buf, maxW: maxW}
	f.u32("Optional Data Descriptor Signature")
	f.u32("CRC-32")
	if zip64 {
		f.u64("Compressed Size")
		f.u64("Uncompressed Size")
	} else {
		f.u32("Compressed Size")
		f.u32("Uncompressed Size")
	}
	return f.err
}

// nameEncoding picks the blob overlay for file names and comments from the
// general-purpose UTF-8 bit.
func nameEncoding(flags uint16) render.Encoding {
	if flags&zipfmt.FlagUTF8 != 0 {
		return render.EncodingUTF8
	}
	return render.EncodingCP437
}

// renderExtraFields renders a complete extra-fields region starting at
// absolute offset base: one nested sub-section per tagged record, with
// field-level decoding for recognized tags and a raw payload blob otherwise.
// Trailing bytes that cannot hold another record header render as padding.
// needs controls how ZIP64 override values are labeled; it mirrors which
// header fields were truncated.
func renderExtraFields(r *render.Renderer, base uint64, extra []byte, needs zipfmt.Zip64Needs) error {
	if len(extra) == 0 {
		return nil
	}
	if err := r.SectionHeader(base, "Extra Fields"); err != nil {
		return err
	}
	release := r.Indent()
	defer release()

	rest := extra
	for len(rest) > 0 {
		f, next, ok, err := zipfmt.NextExtraField(rest)
		if err != nil {
			return err
		}
		recordBase := base + uint64(len(extra)-len(rest))
		if !ok {
			if err := r.SectionHeader(recordBase, "(unused space)"); err != nil {
				return err
			}
			rel := r.Indent()
			err = r.Blob(rest, render.BlobConfig{})
			rel()
			return err
		}

		label := zipfmt.TagName(f.Tag)
		if label == "" {
			label = fmt.Sprintf("Unknown Extra Field (0x%04x)", f.Tag)
		} else {
			label = fmt.Sprintf("%s (0x%04x)", label, f.Tag)
		}
		if err := r.SectionHeader(recordBase, label); err != nil {
			return err
		}

		rel := r.Indent()
		err = renderExtraFieldRecord(r, recordBase, rest[:4], f, needs)
		rel()
		if err != nil {
			return err
		}

		rest = next
	}
	return nil
}

func renderExtraFieldRecord(r *render.Renderer, base uint64, header []byte, f zipfmt.ExtraField, needs zipfmt.Zip64Needs) error {
	fr := &fieldReader{r: r, buf: header, maxW: 2}
	fr.u16("Tag")
	fr.u16("Size")
	if fr.err != nil {
		return fr.err
	}

	switch f.Tag {
	case zipfmt.TagZip64ExtendedInformation:
		return renderZip64ExtraPayload(r, f.Data, needs)
	case zipfmt.TagExtendedTimestamp:
		return renderTimestampExtraPayload(r, f.Data)
	case zipfmt.TagInfoZipUnicodePath:
		return renderUnicodePathExtraPayload(r, f.Data)
	case zipfmt.TagNTFS:
		return renderNTFSExtraPayload(r, f.Data)
	default:
		if len(f.Data) == 0 {
			return nil
		}
		return r.Blob(f.Data, render.BlobConfig{})
	}
}

// renderZip64ExtraPayload labels the 8-byte overrides in their fixed order,
// consuming one per header field flagged as truncated. Anything left over is
// rendered raw.
func renderZip64ExtraPayload(r *render.Renderer, data []byte, needs zipfmt.Zip64Needs) error {
	fr := &fieldReader{r: r, buf: data, maxW: 8}
	if needs.UncompressedSize && len(data)-fr.cur >= 8 {
		fr.u64("Original Uncompressed Size")
	}
	if needs.CompressedSize && len(data)-fr.cur >= 8 {
		fr.u64("Compressed Size")
	}
	if needs.LocalHeaderOffset && len(data)-fr.cur >= 8 {
		fr.u64("Local Header Offset")
	}
	if needs.DiskNumber && len(data)-fr.cur >= 4 {
		fr.u32("Disk Number Start")
	}
	if fr.err != nil {
		return fr.err
	}
	if rest := data[fr.cur:]; len(rest) > 0 {
		return r.Blob(rest, render.BlobConfig{})
	}
	return nil
}

// renderTimestampExtraPayload decodes the Info-ZIP extended timestamp: one
// info-bits byte followed by up to three 4-byte Unix times. The central
// directory copy usually truncates to the modification time only, so fields
// are rendered as long as bytes remain.
func renderTimestampExtraPayload(r *render.Renderer, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := r.Blob(data[:1], render.BlobConfig{RowLength: 1}); err != nil {
		return err
	}
	fr := &fieldReader{r: r, buf: data[1:], maxW: 4}
	for _, name := range []string{"Mod Time", "Access Time", "Create Time"} {
		if len(data[1:])-fr.cur < 4 {
			break
		}
		fr.u32(name)
	}
	if fr.err != nil {
		return fr.err
	}
	if rest := data[1+fr.cur:]; len(rest) > 0 {
		return r.Blob(rest, render.BlobConfig{})
	}
	return nil
}

// renderUnicodePathExtraPayload decodes the Info-ZIP unicode path record:
// version byte, CRC-32 of the legacy name, then the UTF-8 name itself.
func renderUnicodePathExtraPayload(r *render.Renderer, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := r.Blob(data[:1], render.BlobConfig{RowLength: 1}); err != nil {
		return err
	}
	if len(data) < 5 {
		if len(data) > 1 {
			return r.Blob(data[1:], render.BlobConfig{})
		}
		return nil
	}
	fr := &fieldReader{r: r, buf: data[1:5], maxW: 4}
	fr.u32("Name CRC-32")
	if fr.err != nil {
		return fr.err
	}
	if rest := data[5:]; len(rest) > 0 {
		return r.Blob(rest, render.BlobConfig{Encoding: render.EncodingUTF8})
	}
	return nil
}

// renderNTFSExtraPayload decodes the NTFS record: a 4-byte reserved field
// and tagged attributes, of which attribute 1 carries three 8-byte Windows
// timestamps.
func renderNTFSExtraPayload(r *render.Renderer, data []byte) error {
	if len(data) < 4 {
		if len(data) > 0 {
			return r.Blob(data, render.BlobConfig{})
		}
		return nil
	}
	fr := &fieldReader{r: r, buf: data, maxW: 4}
	fr.u32("Reserved")
	if fr.err != nil {
		return fr.err
	}

	rest := data[4:]
	for len(rest) >= 4 {
		hf := &fieldReader{r: r, buf: rest[:4], maxW: 2}
		tag := hf.u16("Attribute Tag")
		size := int(hf.u16("Attribute Size"))
		if hf.err != nil {
			return hf.err
		}
		rest = rest[4:]
		if size > len(rest) {
			break
		}
		attr := rest[:size]
		rest = rest[size:]

		if tag == 1 && size == 24 {
			tf := &fieldReader{r: r, buf: attr, maxW: 8}
			tf.u64("Mtime")
			tf.u64("Atime")
			tf.u64("Ctime")
			if tf.err != nil {
				return tf.err
			}
			continue
		}
		if size > 0 {
			if err := r.Blob(attr, render.BlobConfig{}); err != nil {
				return err
			}
		}
	}
	if len(rest) > 0 {
		return r.Blob(rest, render.BlobConfig{})
	}
	return nil
}
