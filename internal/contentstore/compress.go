package contentstore

import (
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag identifies how a blob is stored at rest. Tags are part of
// the stored format; do not renumber.
type CompressionTag uint8

const (
	CompressionNone CompressionTag = 0
	// CompressionLZ4 is used for binary attachments.
	CompressionLZ4 CompressionTag = 1
	// CompressionZstd is used for text: descriptions and comments.
	CompressionZstd CompressionTag = 2
)

func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// maxBlobSize bounds the declared size read back from storage.
const maxBlobSize = 64 << 20

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("contentstore: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("contentstore: zstd decoder initialization failed: " + err.Error())
	}
}

// selectCompression picks zstd for text and lz4 for everything else.
func selectCompression(data []byte) CompressionTag {
	if len(data) < 64 {
		return CompressionNone
	}
	if utf8.Valid(data) {
		return CompressionZstd
	}
	return CompressionLZ4
}

// EncodeBlob frames data as [tag][uvarint size][payload]. Compression that
// does not shrink the payload falls back to CompressionNone.
func EncodeBlob(data []byte) ([]byte, error) {
	tag := selectCompression(data)
	payload := data
	switch tag {
	case CompressionZstd:
		payload = zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)))
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, dst, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		// n == 0 means lz4 found the data incompressible.
		payload = dst[:n]
	}
	if tag != CompressionNone && (len(payload) == 0 || len(payload) >= len(data)) {
		tag = CompressionNone
		payload = data
	}

	header := make([]byte, 1+binary.MaxVarintLen64)
	header[0] = byte(tag)
	n := binary.PutUvarint(header[1:], uint64(len(data)))
	out := make([]byte, 0, 1+n+len(payload))
	out = append(out, header[:1+n]...)
	return append(out, payload...), nil
}

// DecodeBlob reverses EncodeBlob.
func DecodeBlob(framed []byte) ([]byte, error) {
	if len(framed) < 2 {
		return nil, fmt.Errorf("blob frame too short: %d bytes", len(framed))
	}
	tag := CompressionTag(framed[0])
	size, n := binary.Uvarint(framed[1:])
	if n <= 0 {
		return nil, fmt.Errorf("blob frame: bad size header")
	}
	if size > maxBlobSize {
		return nil, fmt.Errorf("blob frame: size %d exceeds limit", size)
	}
	payload := framed[1+n:]

	switch tag {
	case CompressionNone:
		if uint64(len(payload)) != size {
			return nil, fmt.Errorf("blob frame: size %d does not match expected %d", len(payload), size)
		}
		return payload, nil
	case CompressionZstd:
		out, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if uint64(len(out)) != size {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), size)
		}
		return out, nil
	case CompressionLZ4:
		out := make([]byte, size)
		read, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if uint64(read) != size {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported compression tag: %s", tag)
	}
}
