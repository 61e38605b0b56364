package snapshot

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"math"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/hupe1980/tiergo/model"
)

// Encode serializes a document batch into the snapshot format.
//
// All documents must share one vector dimension; the batch must be
// non-empty. The body is compressed with c unless the result would save
// less than 10% of the raw size, in which case it is stored raw.
func Encode(docs []model.VectorDocument, c Compression) ([]byte, error) {
	if len(docs) == 0 {
		return nil, ErrEmptyBatch
	}

	dim := len(docs[0].Vector)
	for i, d := range docs {
		if len(d.Vector) != dim {
			return nil, &DimensionMismatchError{Expected: dim, Actual: len(d.Vector), Index: i}
		}
	}

	body, err := encodeBody(docs, dim)
	if err != nil {
		return nil, err
	}

	stored := body
	flags := uint32(0)
	if c != CompressionNone {
		compressed, err := compress(body, c)
		if err != nil {
			return nil, err
		}
		if compressed != nil && float64(len(compressed)) <= float64(len(body))*compressRatioLimit {
			stored = compressed
			flags |= FlagCompressed
		}
	}

	h := FileHeader{
		Magic:            FormatMagic,
		Version:          FormatVersion,
		Flags:            flags,
		Codec:            uint32(c),
		Dimension:        uint32(dim),
		Count:            uint64(len(docs)),
		UncompressedSize: uint64(len(body)),
		BodySize:         uint64(len(stored)),
		BodyCRC:          crc32.ChecksumIEEE(stored),
	}

	out := make([]byte, 0, HeaderSize+len(stored))
	out = append(out, h.marshal()...)
	out = append(out, stored...)
	return out, nil
}

// Decode deserializes a snapshot data object back into its documents.
func Decode(data []byte) ([]model.VectorDocument, error) {
	h, err := DecodeHeader(data)
	if err != nil {
		return nil, err
	}

	stored := data[HeaderSize:]
	if uint64(len(stored)) != h.BodySize {
		return nil, fmt.Errorf("%w: body size %d does not match header %d", ErrCorrupted, len(stored), h.BodySize)
	}
	if crc32.ChecksumIEEE(stored) != h.BodyCRC {
		return nil, fmt.Errorf("%w: body checksum mismatch", ErrCorrupted)
	}

	body := stored
	if h.Compressed() {
		body, err = decompress(stored, h.Compression(), int(h.UncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
		}
	}
	if uint64(len(body)) != h.UncompressedSize {
		return nil, fmt.Errorf("%w: decompressed size %d does not match header %d", ErrCorrupted, len(body), h.UncompressedSize)
	}

	return decodeBody(body, h.Count, h.Dimension)
}

// Body layout, in order:
//
//	ids               count x 8 (uint64 LE)
//	insertedAt        count x 8 (unix nanos, 0 = unset)
//	vectors           count x dim x 4 (float32 bits LE)
//	extID presence    roaring bitmap, u32 length prefix
//	extID strings     u32 length + bytes, ascending row order
//	metadata presence roaring bitmap, u32 length prefix
//	metadata blobs    u32 length + JSON bytes, ascending row order
func encodeBody(docs []model.VectorDocument, dim int) ([]byte, error) {
	count := len(docs)
	body := make([]byte, 0, count*16+count*dim*4)

	for _, d := range docs {
		body = binary.LittleEndian.AppendUint64(body, uint64(d.ID))
	}

	for _, d := range docs {
		var nanos int64
		if !d.InsertedAt.IsZero() {
			nanos = d.InsertedAt.UnixNano()
		}
		body = binary.LittleEndian.AppendUint64(body, uint64(nanos))
	}

	for _, d := range docs {
		for _, v := range d.Vector {
			body = binary.LittleEndian.AppendUint32(body, math.Float32bits(v))
		}
	}

	extPresence := roaring.New()
	for i, d := range docs {
		if d.ExternalID != "" {
			extPresence.Add(uint32(i))
		}
	}
	body, err := appendBitmap(body, extPresence)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		if d.ExternalID != "" {
			body = binary.LittleEndian.AppendUint32(body, uint32(len(d.ExternalID)))
			body = append(body, d.ExternalID...)
		}
	}

	metaPresence := roaring.New()
	for i, d := range docs {
		if len(d.Metadata) > 0 {
			metaPresence.Add(uint32(i))
		}
	}
	body, err = appendBitmap(body, metaPresence)
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		if len(d.Metadata) > 0 {
			blob, err := json.Marshal(d.Metadata)
			if err != nil {
				return nil, fmt.Errorf("snapshot: marshal metadata: %w", err)
			}
			body = binary.LittleEndian.AppendUint32(body, uint32(len(blob)))
			body = append(body, blob...)
		}
	}

	return body, nil
}

func decodeBody(body []byte, count64 uint64, dim32 uint32) ([]model.VectorDocument, error) {
	// Reject absurd counts before allocating: the fixed sections alone must
	// fit inside the body.
	fixed := count64*16 + count64*uint64(dim32)*4
	if fixed > uint64(len(body)) {
		return nil, fmt.Errorf("%w: body shorter than fixed sections", ErrCorrupted)
	}

	count := int(count64)
	dim := int(dim32)
	r := &bodyReader{data: body}
	docs := make([]model.VectorDocument, count)

	for i := range docs {
		v, err := r.uint64()
		if err != nil {
			return nil, err
		}
		docs[i].ID = model.DocumentID(v)
	}

	for i := range docs {
		v, err := r.uint64()
		if err != nil {
			return nil, err
		}
		if nanos := int64(v); nanos != 0 {
			docs[i].InsertedAt = time.Unix(0, nanos).UTC()
		}
	}

	vecBytes, err := r.bytes(count * dim * 4)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		vec := make([]float32, dim)
		base := i * dim * 4
		for j := 0; j < dim; j++ {
			bits := binary.LittleEndian.Uint32(vecBytes[base+j*4:])
			vec[j] = math.Float32frombits(bits)
		}
		docs[i].Vector = vec
	}

	extPresence, err := r.bitmap()
	if err != nil {
		return nil, err
	}
	it := extPresence.Iterator()
	for it.HasNext() {
		row := int(it.Next())
		if row >= count {
			return nil, fmt.Errorf("%w: external-id row %d out of range", ErrCorrupted, row)
		}
		s, err := r.lenPrefixed()
		if err != nil {
			return nil, err
		}
		docs[row].ExternalID = string(s)
	}

	metaPresence, err := r.bitmap()
	if err != nil {
		return nil, err
	}
	it = metaPresence.Iterator()
	for it.HasNext() {
		row := int(it.Next())
		if row >= count {
			return nil, fmt.Errorf("%w: metadata row %d out of range", ErrCorrupted, row)
		}
		blob, err := r.lenPrefixed()
		if err != nil {
			return nil, err
		}
		var m map[string]any
		if err := json.Unmarshal(blob, &m); err != nil {
			return nil, fmt.Errorf("%w: metadata row %d: %v", ErrCorrupted, row, err)
		}
		docs[row].Metadata = m
	}

	if r.off != len(r.data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupted, len(r.data)-r.off)
	}

	return docs, nil
}

func appendBitmap(body []byte, rb *roaring.Bitmap) ([]byte, error) {
	b, err := rb.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("snapshot: serialize bitmap: %w", err)
	}
	body = binary.LittleEndian.AppendUint32(body, uint32(len(b)))
	return append(body, b...), nil
}

// bodyReader is a bounds-checked cursor over the decoded body.
type bodyReader struct {
	data []byte
	off  int
}

func (r *bodyReader) bytes(n int) ([]byte, error) {
	if n < 0 || r.off+n > len(r.data) {
		return nil, fmt.Errorf("%w: body truncated at offset %d", ErrCorrupted, r.off)
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *bodyReader) uint32() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *bodyReader) uint64() (uint64, error) {
	b, err := r.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *bodyReader) lenPrefixed() ([]byte, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	return r.bytes(int(n))
}

func (r *bodyReader) bitmap() (*roaring.Bitmap, error) {
	b, err := r.lenPrefixed()
	if err != nil {
		return nil, err
	}
	rb := roaring.New()
	if err := rb.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("%w: bitmap: %v", ErrCorrupted, err)
	}
	return rb, nil
}
