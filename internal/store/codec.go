package store

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Embedding payloads are persisted as opaque binary blobs: float32 elements,
// little-endian, in order. The element count is stored alongside the blob in
// embedding_size and revalidated on every read.

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeVector rejects blobs whose decoded length disagrees with the stored
// element count.
func decodeVector(blob []byte, size int) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, fmt.Errorf("embedding blob length %d is not a multiple of 4", len(blob))
	}
	n := len(blob) / 4
	if n != size {
		return nil, fmt.Errorf("embedding blob holds %d elements, stored size is %d", n, size)
	}
	vec := make([]float32, n)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec, nil
}
