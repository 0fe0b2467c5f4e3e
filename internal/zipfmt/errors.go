package zipfmt

import "errors"

var (
	// ErrNotAZipFile is returned when no end of central directory record
	// can be found in the search window at the end of the input.
	ErrNotAZipFile = errors.New("zipdump: not a zip file")

	// ErrFileTooBig is returned when the input size exceeds the signed
	// 63-bit offset range.
	ErrFileTooBig = errors.New("zipdump: file exceeds maximum supported size")

	// ErrMultiDiskZipfileNotSupported is returned for archives that span
	// more than one disk.
	ErrMultiDiskZipfileNotSupported = errors.New("zipdump: multi-disk zipfile not supported")

	// ErrCentralDirectorySizeExceedsFileBounds is returned when the declared
	// central directory region does not fit inside the file.
	ErrCentralDirectorySizeExceedsFileBounds = errors.New("zipdump: central directory size exceeds file bounds")

	// ErrExtraFieldSizeExceedsExtraFieldsBuffer is returned when an
	// extra-field sub-record declares a payload running past the region.
	ErrExtraFieldSizeExceedsExtraFieldsBuffer = errors.New("zipdump: extra field size exceeds extra fields buffer")

	// ErrDuplicateZip64ExtendedInformation is returned when one header
	// carries the 0x0001 extra-field tag twice.
	ErrDuplicateZip64ExtendedInformation = errors.New("zipdump: duplicate zip64 extended information")

	// ErrZip64ExtendedInformationTruncated is returned when a required
	// 8-byte override is cut short inside the 0x0001 payload.
	ErrZip64ExtendedInformationTruncated = errors.New("zipdump: zip64 extended information truncated")

	// ErrWrongSignature is returned by the streaming walker when the next
	// signature is not legal in the current state.
	ErrWrongSignature = errors.New("zipdump: wrong signature")

	// ErrExpectedZip64EndOfCentralDirectoryLocator is returned when a zip64
	// end of central directory record is not followed by its locator.
	ErrExpectedZip64EndOfCentralDirectoryLocator = errors.New("zipdump: expected zip64 end of central directory locator")

	// ErrExpectedEndOfCentralDirectoryRecord is returned when the zip64
	// locator is not followed by the plain end of central directory record.
	ErrExpectedEndOfCentralDirectoryRecord = errors.New("zipdump: expected end of central directory record")

	// ErrExpectedEof is returned when bytes remain after the terminal record.
	ErrExpectedEof = errors.New("zipdump: expected end of input")

	// ErrSegmentOverlap is returned when two discovered structures claim
	// the same bytes. Real archives never do this; malformed ones can.
	ErrSegmentOverlap = errors.New("zipdump: overlapping segments")
)
