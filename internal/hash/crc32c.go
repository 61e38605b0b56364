// Package hash provides checksum helpers for data integrity.
//
// CRC32-Castagnoli (CRC32C) is used for object upload validation. It is
// hardware accelerated on x86 (SSE4.2) and ARM (CRC extension), and it is
// the checksum S3 validates server-side.
package hash

import (
	"hash"
	"hash/crc32"
)

// crc32cTable is pre-computed for the CRC32-Castagnoli polynomial.
var crc32cTable = crc32.MakeTable(crc32.Castagnoli)

// CRC32C computes the CRC32-Castagnoli checksum of data.
func CRC32C(data []byte) uint32 {
	return crc32.Checksum(data, crc32cTable)
}

// NewCRC32C returns a new CRC32-Castagnoli hash.Hash32.
func NewCRC32C() hash.Hash32 {
	return crc32.New(crc32cTable)
}
