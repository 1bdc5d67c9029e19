package store

import (
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// Payload encoding flags. Raw API payloads are LZ4 block compressed at
// rest; payloads that do not shrink are stored as-is.
const (
	payloadPlain byte = 0
	payloadLZ4   byte = 1
)

// payloadHeaderSize is one flag byte plus the little-endian uncompressed
// length, so the read path can size its buffer up front.
const payloadHeaderSize = 5

func compressPayload(data []byte) []byte {
	bound := lz4.CompressBlockBound(len(data))
	buf := make([]byte, bound)

	written, err := lz4.CompressBlock(data, buf, nil)
	if err != nil || written == 0 || written >= len(data) {
		out := make([]byte, payloadHeaderSize+len(data))
		out[0] = payloadPlain
		binary.LittleEndian.PutUint32(out[1:], uint32(len(data)))
		copy(out[payloadHeaderSize:], data)

		return out
	}

	out := make([]byte, payloadHeaderSize+written)
	out[0] = payloadLZ4
	binary.LittleEndian.PutUint32(out[1:], uint32(len(data)))
	copy(out[payloadHeaderSize:], buf[:written])

	return out
}

func decompressPayload(blob []byte) ([]byte, error) {
	if len(blob) < payloadHeaderSize {
		return nil, fmt.Errorf("payload blob too short: %d bytes", len(blob))
	}

	size := binary.LittleEndian.Uint32(blob[1:payloadHeaderSize])
	body := blob[payloadHeaderSize:]

	switch blob[0] {
	case payloadPlain:
		out := make([]byte, len(body))
		copy(out, body)

		return out, nil
	case payloadLZ4:
		out := make([]byte, size)

		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("decompressing payload: %w", err)
		}

		return out[:n], nil
	default:
		return nil, fmt.Errorf("unknown payload encoding 0x%02x", blob[0])
	}
}
