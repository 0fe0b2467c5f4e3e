package zipfmt_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/ossyrian/zipdump/internal/zipfmt"
)

// record builds one extra-field sub-record with the given tag and payload.
func record(tag uint16, payload []byte) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, tag)
	binary.Write(buf, binary.LittleEndian, uint16(len(payload)))
	buf.Write(payload)
	return buf.Bytes()
}

func u64le(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

func TestNextExtraField(t *testing.T) {
	t.Run("iterates records in order", func(t *testing.T) {
		region := append(record(0x5455, []byte{1, 2, 3}), record(0x9999, nil)...)

		f, rest, ok, err := zipfmt.NextExtraField(region)
		if err != nil || !ok {
			t.Fatalf("NextExtraField() = ok %v, err %v", ok, err)
		}
		if f.Tag != 0x5455 || !bytes.Equal(f.Data, []byte{1, 2, 3}) {
			t.Errorf("first record = %04x %v", f.Tag, f.Data)
		}

		f, rest, ok, err = zipfmt.NextExtraField(rest)
		if err != nil || !ok {
			t.Fatalf("NextExtraField() = ok %v, err %v", ok, err)
		}
		if f.Tag != 0x9999 || len(f.Data) != 0 {
			t.Errorf("second record = %04x %v", f.Tag, f.Data)
		}
		if len(rest) != 0 {
			t.Errorf("leftover bytes: %v", rest)
		}
	})

	t.Run("short tail is padding, not an error", func(t *testing.T) {
		_, rest, ok, err := zipfmt.NextExtraField([]byte{0x01, 0x00, 0x08})
		if err != nil {
			t.Fatalf("NextExtraField() error: %v", err)
		}
		if ok {
			t.Fatal("NextExtraField() decoded a record from 3 bytes")
		}
		if len(rest) != 3 {
			t.Errorf("rest = %d bytes, want 3", len(rest))
		}
	})

	t.Run("declared size past buffer fails", func(t *testing.T) {
		region := []byte{0x01, 0x00, 0x10, 0x00, 0xaa} // declares 16, has 1
		_, _, _, err := zipfmt.NextExtraField(region)
		if !errors.Is(err, zipfmt.ErrExtraFieldSizeExceedsExtraFieldsBuffer) {
			t.Fatalf("NextExtraField() error = %v, want ErrExtraFieldSizeExceedsExtraFieldsBuffer", err)
		}
	})
}

func TestResolveZip64(t *testing.T) {
	allNeeds := zipfmt.Zip64Needs{
		UncompressedSize:  true,
		CompressedSize:    true,
		LocalHeaderOffset: true,
	}

	t.Run("overrides applied in fixed order", func(t *testing.T) {
		payload := append(append(u64le(111), u64le(222)...), u64le(333)...)
		v, err := zipfmt.ResolveZip64(record(0x0001, payload), allNeeds)
		if err != nil {
			t.Fatalf("ResolveZip64() error: %v", err)
		}
		if !v.SawZip64 {
			t.Fatal("SawZip64 = false")
		}
		if v.UncompressedSize != 111 || v.CompressedSize != 222 || v.LocalHeaderOffset != 333 {
			t.Errorf("resolved = %d/%d/%d, want 111/222/333",
				v.UncompressedSize, v.CompressedSize, v.LocalHeaderOffset)
		}
	})

	t.Run("only truncated fields consume payload", func(t *testing.T) {
		// A single 8-byte value feeding only the compressed size.
		v, err := zipfmt.ResolveZip64(record(0x0001, u64le(42)), zipfmt.Zip64Needs{CompressedSize: true})
		if err != nil {
			t.Fatalf("ResolveZip64() error: %v", err)
		}
		if !v.HasCompressedSize || v.CompressedSize != 42 {
			t.Errorf("CompressedSize = %d (has %v), want 42", v.CompressedSize, v.HasCompressedSize)
		}
		if v.HasUncompressedSize || v.HasLocalHeaderOffset {
			t.Error("resolved fields that were not requested")
		}
	})

	t.Run("other tags are skipped", func(t *testing.T) {
		region := append(record(0x5455, []byte{1, 2, 3, 4, 5}), record(0x0001, u64le(7))...)
		v, err := zipfmt.ResolveZip64(region, zipfmt.Zip64Needs{UncompressedSize: true})
		if err != nil {
			t.Fatalf("ResolveZip64() error: %v", err)
		}
		if v.UncompressedSize != 7 {
			t.Errorf("UncompressedSize = %d, want 7", v.UncompressedSize)
		}
	})

	t.Run("duplicate zip64 record fails", func(t *testing.T) {
		region := append(record(0x0001, u64le(1)), record(0x0001, u64le(2))...)
		_, err := zipfmt.ResolveZip64(region, zipfmt.Zip64Needs{UncompressedSize: true})
		if !errors.Is(err, zipfmt.ErrDuplicateZip64ExtendedInformation) {
			t.Fatalf("ResolveZip64() error = %v, want ErrDuplicateZip64ExtendedInformation", err)
		}
	})

	t.Run("truncated override fails", func(t *testing.T) {
		_, err := zipfmt.ResolveZip64(record(0x0001, []byte{1, 2, 3}), zipfmt.Zip64Needs{UncompressedSize: true})
		if !errors.Is(err, zipfmt.ErrZip64ExtendedInformationTruncated) {
			t.Fatalf("ResolveZip64() error = %v, want ErrZip64ExtendedInformationTruncated", err)
		}
	})

	t.Run("no zip64 record", func(t *testing.T) {
		v, err := zipfmt.ResolveZip64(record(0x5455, []byte{1}), allNeeds)
		if err != nil {
			t.Fatalf("ResolveZip64() error: %v", err)
		}
		if v.SawZip64 {
			t.Error("SawZip64 = true without a 0x0001 record")
		}
	})
}
