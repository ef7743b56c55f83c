// Package codec transforms batch payloads for transport: compress
// first, then encrypt, with the inverse used only for at-rest round
// trips. Both stages are configurable and may be disabled.
package codec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/crypto/hkdf"

	terrors "github.com/randalmurphal/tracklet/pkg/tracklet/errors"
)

// Compression selects the payload compression algorithm.
type Compression string

// Supported compression algorithms.
const (
	CompressionGzip    Compression = "gzip"
	CompressionDeflate Compression = "deflate"
	CompressionNone    Compression = "none"
)

// Encryption selects the payload encryption algorithm.
type Encryption string

// Supported encryption algorithms.
const (
	EncryptionAES256 Encryption = "aes256"
	EncryptionAES128 Encryption = "aes128"
	EncryptionNone   Encryption = "none"
)

// hkdfInfo domain-separates payload keys from any other use of the API key.
const hkdfInfo = "tracklet payload encryption v1"

// Encoded is a transformed payload with the sizes needed for the
// network-efficiency metric.
type Encoded struct {
	// Data is the wire payload.
	Data []byte

	// RawBytes is the pre-compression payload size.
	RawBytes int

	// WireBytes is the final payload size.
	WireBytes int
}

// Codec applies the configured compression and encryption.
// A Codec is immutable and safe for concurrent use.
type Codec struct {
	compression Compression
	encryption  Encryption
	aead        cipher.AEAD
}

// New creates a codec. The AES key is derived from the API key with
// HKDF-SHA256, 32 bytes for aes256 and 16 for aes128.
func New(compression Compression, encryption Encryption, apiKey string) (*Codec, error) {
	switch compression {
	case CompressionGzip, CompressionDeflate, CompressionNone:
	default:
		return nil, fmt.Errorf("unsupported compression %q", compression)
	}

	c := &Codec{compression: compression, encryption: encryption}

	var keyLen int
	switch encryption {
	case EncryptionAES256:
		keyLen = 32
	case EncryptionAES128:
		keyLen = 16
	case EncryptionNone:
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported encryption %q", encryption)
	}

	if apiKey == "" {
		return nil, fmt.Errorf("encryption %q requires an API key", encryption)
	}

	key := make([]byte, keyLen)
	kdf := hkdf.New(sha256.New, []byte(apiKey), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init GCM: %w", err)
	}
	c.aead = aead
	return c, nil
}

// Compression returns the configured compression algorithm.
func (c *Codec) Compression() Compression { return c.compression }

// Encryption returns the configured encryption algorithm.
func (c *Codec) Encryption() Encryption { return c.encryption }

// Encode compresses then encrypts the payload.
// Failures here mean the payload can never be delivered as-is, so
// they categorize as permanent.
func (c *Codec) Encode(payload []byte) (*Encoded, error) {
	out := &Encoded{RawBytes: len(payload)}

	compressed, err := c.compress(payload)
	if err != nil {
		return nil, terrors.Permanent(err, "compress payload")
	}

	sealed, err := c.encrypt(compressed)
	if err != nil {
		return nil, terrors.Permanent(err, "encrypt payload")
	}

	out.Data = sealed
	out.WireBytes = len(sealed)
	return out, nil
}

// Decode inverts Encode: decrypt then decompress.
func (c *Codec) Decode(data []byte) ([]byte, error) {
	opened, err := c.decrypt(data)
	if err != nil {
		return nil, fmt.Errorf("decrypt payload: %w", err)
	}
	return c.decompress(opened)
}

func (c *Codec) compress(payload []byte) ([]byte, error) {
	switch c.compression {
	case CompressionNone:
		return payload, nil
	case CompressionGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(payload); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressionDeflate:
		var buf bytes.Buffer
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(payload); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported compression %q", c.compression)
	}
}

func (c *Codec) decompress(data []byte) ([]byte, error) {
	switch c.compression {
	case CompressionNone:
		return data, nil
	case CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	case CompressionDeflate:
		r := flate.NewReader(bytes.NewReader(data))
		defer r.Close()
		return io.ReadAll(r)
	default:
		return nil, fmt.Errorf("unsupported compression %q", c.compression)
	}
}

// encrypt seals the payload with a random nonce prepended, AES-GCM.
func (c *Codec) encrypt(data []byte) ([]byte, error) {
	if c.aead == nil {
		return data, nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, data, nil), nil
}

func (c *Codec) decrypt(data []byte) ([]byte, error) {
	if c.aead == nil {
		return data, nil
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("payload shorter than nonce")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	return c.aead.Open(nil, nonce, ciphertext, nil)
}
