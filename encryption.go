package refreshcache

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"io"

	"github.com/goforj/refreshcache/cachecore"
)

var (
	encryptionMagic = []byte("ENC1")

	ErrEncryptionKey = errors.New("refreshcache: encryption key must be 16, 24, or 32 bytes")
	ErrDecryptFailed = errors.New("refreshcache: decrypt failed")
)

// sealer encrypts values with AES-GCM. The physical key is bound as
// additional data so a ciphertext cannot be replayed under another key.
type sealer struct {
	aead cipher.AEAD
}

func newEncryptingStore(inner cachecore.Store, key []byte) (cachecore.Store, error) {
	if len(key) == 0 {
		return inner, nil
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrEncryptionKey
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &transformStore{inner: inner, transform: sealer{aead: aead}}, nil
}

// encode lays out magic, nonce length, nonce, then the sealed value.
func (s sealer) encode(key string, plain []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(encryptionMagic)+1+len(nonce)+len(plain)+s.aead.Overhead())
	buf = append(buf, encryptionMagic...)
	buf = append(buf, byte(len(nonce)))
	buf = append(buf, nonce...)
	return s.aead.Seal(buf, nonce, plain, []byte(key)), nil
}

func (s sealer) decode(key string, in []byte) ([]byte, error) {
	offset := len(encryptionMagic) + 1
	if len(in) < offset || !bytes.Equal(in[:len(encryptionMagic)], encryptionMagic) {
		return nil, ErrDecryptFailed
	}
	nonceLen := int(in[len(encryptionMagic)])
	if nonceLen != s.aead.NonceSize() || len(in) < offset+nonceLen {
		return nil, ErrDecryptFailed
	}
	nonce := in[offset : offset+nonceLen]
	plain, err := s.aead.Open(nil, nonce, in[offset+nonceLen:], []byte(key))
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plain, nil
}
