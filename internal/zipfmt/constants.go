package zipfmt

// Record signatures. Every ZIP structure begins with a 4-byte little-endian
// signature whose low two bytes are the marker "PK".
const (
	LocalFileHeaderSignature             uint32 = 0x04034b50
	CentralDirectorySignature            uint32 = 0x02014b50
	EndOfCentralDirSignature             uint32 = 0x06054b50
	Zip64EndOfCentralDirSignature        uint32 = 0x06064b50
	Zip64EndOfCentralDirLocatorSignature uint32 = 0x07064b50
	DataDescriptorSignature              uint32 = 0x08074b50
)

// Fixed record sizes, signature included.
const (
	LocalFileHeaderSize             = 30
	CentralDirectoryHeaderSize      = 46
	EndOfCentralDirSize             = 22
	Zip64EndOfCentralDirSize        = 56
	Zip64EndOfCentralDirLocatorSize = 20
	DataDescriptorSize              = 16
	DataDescriptor64Size            = 24
)

// General-purpose bit flag masks.
const (
	FlagHasDataDescriptor uint16 = 0x0008
	FlagUTF8              uint16 = 0x0800
)

// Extra-field tags with dedicated rendering. Anything else is rendered
// generically as header plus raw payload.
const (
	TagZip64ExtendedInformation uint16 = 0x0001
	TagNTFS                     uint16 = 0x000a
	TagExtendedTimestamp        uint16 = 0x5455
	TagInfoZipUnix              uint16 = 0x7875
	TagInfoZipUnicodePath       uint16 = 0x7075
)

// TagName returns a human-readable label for known extra-field tags,
// or the empty string for unrecognized ones.
func TagName(tag uint16) string {
	switch tag {
	case TagZip64ExtendedInformation:
		return "ZIP64 Extended Information"
	case TagNTFS:
		return "NTFS Timestamps"
	case TagExtendedTimestamp:
		return "Info-ZIP Extended Timestamp"
	case TagInfoZipUnix:
		return "Info-ZIP Unix UID/GID"
	case TagInfoZipUnicodePath:
		return "Info-ZIP Unicode Path"
	default:
		return ""
	}
}
