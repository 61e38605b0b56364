// Package snapshot implements the compressed columnar snapshot format for
// cold-tier storage, and the Snapshotter that manages snapshot objects in an
// object store.
//
// A snapshot is a single immutable object pair: a binary data object holding
// the column-encoded documents of one collection, and a small JSON metadata
// object whose presence marks the snapshot as committed and restorable.
//
// # Format
//
// The data object starts with a 64-byte little-endian header (magic "SNP0",
// version, codec, dimension, count, sizes, CRC32 checksums for header and
// body) followed by the body: document IDs, insertion timestamps, vector
// values, then external IDs and metadata blobs addressed by roaring presence
// bitmaps. The body is compressed as a single block; incompressible bodies
// are stored raw.
package snapshot
