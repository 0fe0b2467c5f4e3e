// Package dump implements the two decoding strategies over a ZIP archive:
// a random-access resolver that discovers structural segments and renders
// them in offset order, and a forward-only streaming walker that renders
// each structure the moment it is decoded.
package dump

import "sort"

// Segment is one contiguous structural region discovered by the resolver.
// Offsets are absolute from the start of the archive.
type Segment struct {
	Offset uint64
	Kind   SegmentKind
}

// SegmentKind is the closed set of structural region types.
type SegmentKind interface {
	isSegmentKind()
}

// LocalFileKind covers a local file header, its variable trailers, the
// compressed payload, and an optional trailing data descriptor.
// CompressedSize is the resolved size with any ZIP64 override applied.
type LocalFileKind struct {
	EntryIndex     int
	CompressedSize uint64
	IsZip64        bool
}

// CentralDirectoryKind covers the contiguous block of central directory
// entries.
type CentralDirectoryKind struct {
	EntryCount uint64
	Size       uint64
}

// Zip64EocdrKind covers the zip64 end of central directory record.
type Zip64EocdrKind struct{}

// Zip64EocdlKind covers the zip64 end of central directory locator.
type Zip64EocdlKind struct{}

// EocdrKind covers the end of central directory record and its comment.
type EocdrKind struct{}

func (LocalFileKind) isSegmentKind()        {}
func (CentralDirectoryKind) isSegmentKind() {}
func (Zip64EocdrKind) isSegmentKind()       {}
func (Zip64EocdlKind) isSegmentKind()       {}
func (EocdrKind) isSegmentKind()            {}

// sortSegments orders segments by ascending offset. Two structures never
// share an offset in a well-formed archive; a collision surfaces later as an
// overlap error, so the tie-break is arbitrary.
func sortSegments(segs []Segment) {
	sort.SliceStable(segs, func(i, j int) bool {
		return segs[i].Offset < segs[j].Offset
	})
}
