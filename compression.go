package refreshcache

import (
	"bytes"
	"errors"
	"io"

	"github.com/goforj/refreshcache/cachecore"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/snappy"
)

// CompressionCodec names the algorithm a shaped store compresses values with.
type CompressionCodec = cachecore.CompressionCodec

const (
	CompressionNone   = cachecore.CompressionNone
	CompressionGzip   = cachecore.CompressionGzip
	CompressionSnappy = cachecore.CompressionSnappy
)

var (
	compressMagic = []byte("CMP1")

	ErrValueTooLarge      = errors.New("refreshcache: value exceeds max size")
	ErrUnsupportedCodec   = errors.New("refreshcache: unsupported compression codec")
	ErrCorruptCompression = errors.New("refreshcache: corrupt compressed payload")
)

const (
	codecTagGzip   byte = 'g'
	codecTagSnappy byte = 's'
)

func encodeValue(codec CompressionCodec, max int, value []byte) ([]byte, error) {
	if max > 0 && len(value) > max {
		return nil, ErrValueTooLarge
	}
	var out []byte
	switch codec {
	case CompressionNone, "":
		return value, nil
	case CompressionGzip:
		var buf bytes.Buffer
		buf.Write(compressMagic)
		buf.WriteByte(codecTagGzip)
		zw, _ := gzip.NewWriterLevel(&buf, gzip.BestSpeed)
		if _, err := zw.Write(value); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		out = buf.Bytes()
	case CompressionSnappy:
		header := append(append([]byte{}, compressMagic...), codecTagSnappy)
		out = append(header, snappy.Encode(nil, value)...)
	default:
		return nil, ErrUnsupportedCodec
	}
	if max > 0 && len(out) > max {
		return nil, ErrValueTooLarge
	}
	return out, nil
}

// decodeValue passes through values without the compression header, so
// stores can be switched to compression without flushing.
func decodeValue(in []byte) ([]byte, error) {
	if len(in) < len(compressMagic)+1 || !bytes.Equal(in[:len(compressMagic)], compressMagic) {
		return in, nil
	}
	payload := in[len(compressMagic)+1:]
	switch in[len(compressMagic)] {
	case codecTagGzip:
		gr, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, ErrCorruptCompression
		}
		defer gr.Close()
		out, err := io.ReadAll(gr)
		if err != nil {
			return nil, ErrCorruptCompression
		}
		return out, nil
	case codecTagSnappy:
		out, err := snappy.Decode(nil, payload)
		if err != nil {
			return nil, ErrCorruptCompression
		}
		return out, nil
	default:
		return nil, ErrUnsupportedCodec
	}
}
