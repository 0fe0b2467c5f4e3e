package dump_test

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"hash/crc32"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// leBuf assembles little-endian wire structures for test archives.
type leBuf struct {
	bytes.Buffer
}

func (b *leBuf) u16(v uint16) { binary.Write(&b.Buffer, binary.LittleEndian, v) }
func (b *leBuf) u32(v uint32) { binary.Write(&b.Buffer, binary.LittleEndian, v) }
func (b *leBuf) u64(v uint64) { binary.Write(&b.Buffer, binary.LittleEndian, v) }

func localHeader(name string, flags uint16, crc, csize, usize uint32, extra []byte) []byte {
	var b leBuf
	b.u32(0x04034b50)
	b.u16(20) // version needed
	b.u16(flags)
	b.u16(0) // method: store
	b.u16(0) // mod time
	b.u16(0) // mod date
	b.u32(crc)
	b.u32(csize)
	b.u32(usize)
	b.u16(uint16(len(name)))
	b.u16(uint16(len(extra)))
	b.WriteString(name)
	b.Write(extra)
	return b.Bytes()
}

func centralHeader(name string, flags uint16, crc, csize, usize, localOff uint32, disk uint16, extra, comment []byte) []byte {
	var b leBuf
	b.u32(0x02014b50)
	b.u16(20) // version made by
	b.u16(20) // version needed
	b.u16(flags)
	b.u16(0) // method: store
	b.u16(0) // mod time
	b.u16(0) // mod date
	b.u32(crc)
	b.u32(csize)
	b.u32(usize)
	b.u16(uint16(len(name)))
	b.u16(uint16(len(extra)))
	b.u16(uint16(len(comment)))
	b.u16(disk)
	b.u16(0) // internal attrs
	b.u32(0) // external attrs
	b.u32(localOff)
	b.WriteString(name)
	b.Write(extra)
	b.Write(comment)
	return b.Bytes()
}

func eocdr(disk, entries uint16, cdSize, cdOffset uint32, comment []byte) []byte {
	var b leBuf
	b.u32(0x06054b50)
	b.u16(disk)
	b.u16(disk)
	b.u16(entries)
	b.u16(entries)
	b.u32(cdSize)
	b.u32(cdOffset)
	b.u16(uint16(len(comment)))
	b.Write(comment)
	return b.Bytes()
}

func zip64Eocdr(entries, cdSize, cdOffset uint64) []byte {
	var b leBuf
	b.u32(0x06064b50)
	b.u64(44) // size of remaining record
	b.u16(45) // version made by
	b.u16(45) // version needed
	b.u32(0)  // this disk
	b.u32(0)  // cd start disk
	b.u64(entries)
	b.u64(entries)
	b.u64(cdSize)
	b.u64(cdOffset)
	return b.Bytes()
}

func zip64Locator(offset uint64) []byte {
	var b leBuf
	b.u32(0x07064b50)
	b.u32(0) // cd start disk
	b.u64(offset)
	b.u32(1) // total disks
	return b.Bytes()
}

func extraRecord(tag uint16, payload []byte) []byte {
	var b leBuf
	b.u16(tag)
	b.u16(uint16(len(payload)))
	b.Write(payload)
	return b.Bytes()
}

// simpleEntry is a stored file for buildArchive.
type simpleEntry struct {
	name    string
	payload []byte
	comment []byte
}

// buildArchive lays out stored entries back to back, followed by the central
// directory and the end record.
func buildArchive(entries ...simpleEntry) []byte {
	var file, cd leBuf
	for _, e := range entries {
		crc := crc32.ChecksumIEEE(e.payload)
		size := uint32(len(e.payload))
		localOff := uint32(file.Len())
		file.Write(localHeader(e.name, 0, crc, size, size, nil))
		file.Write(e.payload)
		cd.Write(centralHeader(e.name, 0, crc, size, size, localOff, 0, nil, e.comment))
	}
	cdOffset := uint32(file.Len())
	file.Write(cd.Bytes())
	file.Write(eocdr(0, uint16(len(entries)), uint32(cd.Len()), cdOffset, nil))
	return file.Bytes()
}

// buildZip64Archive stores one entry whose central directory sizes are
// truncated to 0xffffffff and resolved through a zip64 extra field, with the
// zip64 terminal record sequence.
func buildZip64Archive(name string, payload []byte) []byte {
	crc := crc32.ChecksumIEEE(payload)
	size := uint32(len(payload))

	var file leBuf
	file.Write(localHeader(name, 0, crc, size, size, nil))
	file.Write(payload)
	cdOffset := uint64(file.Len())

	var z64 leBuf
	z64.u64(uint64(size)) // uncompressed
	z64.u64(uint64(size)) // compressed
	cd := centralHeader(name, 0, crc, 0xffffffff, 0xffffffff, 0, 0,
		extraRecord(0x0001, z64.Bytes()), nil)
	file.Write(cd)

	z64Offset := uint64(file.Len())
	file.Write(zip64Eocdr(1, uint64(len(cd)), cdOffset))
	file.Write(zip64Locator(z64Offset))
	file.Write(eocdr(0xffff, 0xffff, 0xffffffff, 0xffffffff, nil))
	return file.Bytes()
}

// countTranscriptBytes sums the raw bytes shown on every hex line of a
// transcript. A correct transcript accounts for each input byte exactly once,
// so the sum must equal the archive size.
func countTranscriptBytes(t *testing.T, transcript string) uint64 {
	t.Helper()
	var total uint64
	for _, line := range strings.Split(transcript, "\n") {
		s := strings.TrimLeft(line, " ")
		if s == "" || strings.HasPrefix(s, ":") || strings.HasPrefix(s, ";") {
			continue
		}
		hexPart := s
		if i := strings.Index(s, " ; "); i >= 0 {
			hexPart = s[:i]
		}
		hexPart = strings.ReplaceAll(hexPart, " ", "")
		raw, err := hex.DecodeString(hexPart)
		if err != nil {
			t.Fatalf("unparseable hex line %q: %v", line, err)
		}
		total += uint64(len(raw))
	}
	return total
}

// labelOrder fails unless the labels appear in the transcript in the given
// order.
func labelOrder(t *testing.T, transcript string, labels ...string) {
	t.Helper()
	pos := 0
	for _, label := range labels {
		i := strings.Index(transcript[pos:], label)
		if i < 0 {
			t.Fatalf("label %q missing or out of order in transcript:\n%s", label, transcript)
		}
		pos += i + len(label)
	}
}
