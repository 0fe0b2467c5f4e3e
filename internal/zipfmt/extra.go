package zipfmt

import (
	"encoding/binary"
	"fmt"
)

// ExtraField is one tagged sub-record inside a header's extra-fields region.
// Data is the payload only; the 4-byte tag/size header is not included.
type ExtraField struct {
	Tag  uint16
	Data []byte
}

// NextExtraField decodes the sub-record at the front of buf and returns it
// together with the remaining buffer. ok is false when fewer than 4 bytes
// remain; those bytes are trailing padding, not a malformed record. A record
// whose declared size runs past the buffer is an error.
func NextExtraField(buf []byte) (f ExtraField, rest []byte, ok bool, err error) {
	if len(buf) < 4 {
		return ExtraField{}, buf, false, nil
	}

	tag := binary.LittleEndian.Uint16(buf[0:2])
	size := int(binary.LittleEndian.Uint16(buf[2:4]))
	if 4+size > len(buf) {
		return ExtraField{}, buf, false, fmt.Errorf("%w: tag 0x%04x declares %d bytes, %d remain",
			ErrExtraFieldSizeExceedsExtraFieldsBuffer, tag, size, len(buf)-4)
	}

	return ExtraField{Tag: tag, Data: buf[4 : 4+size]}, buf[4+size:], true, nil
}

// Zip64Needs flags which 32-bit (or 16-bit, for the disk number) header
// fields were truncated to their maximum value and therefore must be read
// from the 0x0001 extra field.
type Zip64Needs struct {
	UncompressedSize  bool
	CompressedSize    bool
	LocalHeaderOffset bool
	DiskNumber        bool
}

// Zip64Values is the result of resolving a 0x0001 extra field. Each value is
// meaningful only when its Has flag is set; SawZip64 reports whether the tag
// was present at all.
type Zip64Values struct {
	UncompressedSize  uint64
	CompressedSize    uint64
	LocalHeaderOffset uint64
	DiskNumber        uint32

	HasUncompressedSize  bool
	HasCompressedSize    bool
	HasLocalHeaderOffset bool
	HasDiskNumber        bool

	SawZip64 bool
}

// ResolveZip64 walks an extra-fields region and extracts the 64-bit overrides
// requested by need from the ZIP64 extended-information record. Overrides are
// stored in the fixed order uncompressed size, compressed size, local header
// offset, disk number, and only the fields flagged in need are consumed.
// A second 0x0001 record in the same region is a hard error.
func ResolveZip64(extra []byte, need Zip64Needs) (Zip64Values, error) {
	var v Zip64Values

	for len(extra) > 0 {
		f, rest, ok, err := NextExtraField(extra)
		if err != nil {
			return v, err
		}
		if !ok {
			break
		}
		extra = rest

		if f.Tag != TagZip64ExtendedInformation {
			continue
		}
		if v.SawZip64 {
			return v, ErrDuplicateZip64ExtendedInformation
		}
		v.SawZip64 = true

		data := f.Data
		take64 := func(dst *uint64, has *bool) error {
			if len(data) < 8 {
				return ErrZip64ExtendedInformationTruncated
			}
			*dst = binary.LittleEndian.Uint64(data)
			*has = true
			data = data[8:]
			return nil
		}

		if need.UncompressedSize {
			if err := take64(&v.UncompressedSize, &v.HasUncompressedSize); err != nil {
				return v, err
			}
		}
		if need.CompressedSize {
			if err := take64(&v.CompressedSize, &v.HasCompressedSize); err != nil {
				return v, err
			}
		}
		if need.LocalHeaderOffset {
			if err := take64(&v.LocalHeaderOffset, &v.HasLocalHeaderOffset); err != nil {
				return v, err
			}
		}
		if need.DiskNumber {
			if len(data) < 4 {
				return v, ErrZip64ExtendedInformationTruncated
			}
			v.DiskNumber = binary.LittleEndian.Uint32(data)
			v.HasDiskNumber = true
			data = data[4:]
		}
	}

	return v, nil
}
