package snapshot

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
)

const (
	// FormatMagic identifies snapshot data objects (ASCII: "SNP0")
	FormatMagic uint32 = 0x534E5030

	// FormatVersion is the current snapshot format version
	FormatVersion uint32 = 1

	// HeaderSize is the size of the file header in bytes
	HeaderSize = 64

	// FlagCompressed indicates that the body is compressed with the codec
	// named in the header.
	FlagCompressed uint32 = 1 << 0
)

var (
	// ErrInvalidMagic is returned when a data object has an invalid magic number.
	ErrInvalidMagic = errors.New("snapshot: invalid magic number")

	// ErrInvalidVersion is returned when a data object has an unsupported version.
	ErrInvalidVersion = errors.New("snapshot: unsupported format version")

	// ErrCorrupted is returned when a data object fails checksum or size
	// validation.
	ErrCorrupted = errors.New("snapshot: corrupted data")
)

// FileHeader is the 64-byte header at the start of snapshot data objects.
//
// All multi-byte fields are little-endian.
type FileHeader struct {
	Magic            uint32 // 0x534E5030 ("SNP0")
	Version          uint32 // Format version (currently 1)
	Flags            uint32 // Feature flags
	Codec            uint32 // Compression value used for the body
	Dimension        uint32 // Vector dimensionality
	Count            uint64 // Number of documents
	UncompressedSize uint64 // Raw body size before compression
	BodySize         uint64 // Stored body size (bytes following the header)
	BodyCRC          uint32 // CRC32-IEEE of the stored body
	HeaderCRC        uint32 // CRC32-IEEE of header bytes 0:52
}

// Compressed reports whether the body is stored compressed.
func (h *FileHeader) Compressed() bool {
	return h.Flags&FlagCompressed != 0
}

// Compression returns the codec recorded in the header.
func (h *FileHeader) Compression() Compression {
	return Compression(h.Codec)
}

// Validate checks magic and version.
func (h *FileHeader) Validate() error {
	if h.Magic != FormatMagic {
		return ErrInvalidMagic
	}
	if h.Version > FormatVersion {
		return ErrInvalidVersion
	}
	return nil
}

// marshal serializes the header, computing HeaderCRC over the first 52 bytes.
func (h *FileHeader) marshal() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.Flags)
	binary.LittleEndian.PutUint32(buf[12:16], h.Codec)
	binary.LittleEndian.PutUint32(buf[16:20], h.Dimension)
	// buf[20:24] reserved
	binary.LittleEndian.PutUint64(buf[24:32], h.Count)
	binary.LittleEndian.PutUint64(buf[32:40], h.UncompressedSize)
	binary.LittleEndian.PutUint64(buf[40:48], h.BodySize)
	binary.LittleEndian.PutUint32(buf[48:52], h.BodyCRC)

	h.HeaderCRC = crc32.ChecksumIEEE(buf[:52])
	binary.LittleEndian.PutUint32(buf[52:56], h.HeaderCRC)
	// buf[56:64] reserved

	return buf
}

// DecodeHeader parses and validates the header of a snapshot data object.
// Magic and version are checked before the CRC so format mismatches are
// reported as such rather than as corruption.
func DecodeHeader(data []byte) (FileHeader, error) {
	var h FileHeader
	if len(data) < HeaderSize {
		return h, ErrCorrupted
	}

	h.Magic = binary.LittleEndian.Uint32(data[0:4])
	h.Version = binary.LittleEndian.Uint32(data[4:8])
	h.Flags = binary.LittleEndian.Uint32(data[8:12])
	h.Codec = binary.LittleEndian.Uint32(data[12:16])
	h.Dimension = binary.LittleEndian.Uint32(data[16:20])
	h.Count = binary.LittleEndian.Uint64(data[24:32])
	h.UncompressedSize = binary.LittleEndian.Uint64(data[32:40])
	h.BodySize = binary.LittleEndian.Uint64(data[40:48])
	h.BodyCRC = binary.LittleEndian.Uint32(data[48:52])
	h.HeaderCRC = binary.LittleEndian.Uint32(data[52:56])

	if err := h.Validate(); err != nil {
		return h, err
	}

	if crc32.ChecksumIEEE(data[:52]) != h.HeaderCRC {
		return h, ErrCorrupted
	}

	return h, nil
}
