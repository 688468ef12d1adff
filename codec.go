package refreshcache

import (
	"encoding/binary"
	"fmt"
)

const (
	wrapperTag       byte = 0x01
	wrapperHeaderLen      = 9
)

// WireCodec converts wrappers to and from the bytes held by out-of-process stores.
type WireCodec interface {
	Encode(w Wrapper) ([]byte, error)
	Decode(b []byte) (Wrapper, error)
}

// BinaryCodec is the default WireCodec: a 0x01 tag, the big-endian int64
// expiry in unix milliseconds, then the raw value bytes.
type BinaryCodec struct{}

func (BinaryCodec) Encode(w Wrapper) ([]byte, error) { return EncodeWrapper(w) }
func (BinaryCodec) Decode(b []byte) (Wrapper, error) { return DecodeWrapper(b) }

// EncodeWrapper serializes w. The null value has no wire form and fails with
// a *FormatError.
func EncodeWrapper(w Wrapper) ([]byte, error) {
	if w.IsNull() {
		return nil, &FormatError{Reason: "null value has no wire encoding"}
	}
	out := make([]byte, wrapperHeaderLen+len(w.value))
	out[0] = wrapperTag
	binary.BigEndian.PutUint64(out[1:wrapperHeaderLen], uint64(w.expiresAt))
	copy(out[wrapperHeaderLen:], w.value)
	return out, nil
}

// DecodeWrapper parses bytes produced by EncodeWrapper.
func DecodeWrapper(b []byte) (Wrapper, error) {
	if len(b) <= wrapperHeaderLen {
		return Wrapper{}, &FormatError{Reason: fmt.Sprintf("wrapper too short: %d bytes", len(b))}
	}
	if b[0] != wrapperTag {
		return Wrapper{}, &FormatError{Reason: fmt.Sprintf("unknown wrapper tag 0x%02x", b[0])}
	}
	value := make([]byte, len(b)-wrapperHeaderLen)
	copy(value, b[wrapperHeaderLen:])
	return Wrapper{
		value:     value,
		expiresAt: int64(binary.BigEndian.Uint64(b[1:wrapperHeaderLen])),
	}, nil
}
