package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// KeySize is the AES-256 key size used for bulk encryption.
	KeySize = 32

	// NonceSize is the GCM nonce size. The artifact header stores one base
	// nonce; per-chunk nonces are derived from it by counter.
	NonceSize = 12

	// SaltSize is the KDF salt stored in symmetric-mode artifact headers.
	SaltSize = 32

	// DefaultChunkSize is the plaintext segment size per authenticated
	// chunk. 64 KiB keeps tag overhead negligible while bounding data loss
	// on abrupt termination to a few seconds of compressed audio.
	DefaultChunkSize = 64 * 1024

	chunkHeaderSize = 4
	maxWrappedKey   = 1024 // fits RSA up to 8192 bits
)

var (
	// ErrTruncated is returned by Decrypt when the stream ends before the
	// authenticated final marker. All chunks decrypted up to that point
	// were individually verified and have been written out.
	ErrTruncated = errors.New("encrypted stream: truncated before final marker")

	// ErrAuthentication is returned when any chunk or header fails
	// authentication. Nothing from the failing chunk onward is emitted.
	ErrAuthentication = errors.New("encrypted stream: authentication failed")
)

// StreamWriter encrypts a byte stream into self-describing, independently
// authenticated chunks:
//
//	[4 bytes BE chunk length][AES-256-GCM ciphertext incl. tag] ...
//
// Each chunk is sealed with a nonce derived from the header base nonce and
// a chunk counter, with the counter and a final-chunk flag as associated
// data. Close appends an empty final-marker chunk so a reader can tell a
// finished stream from a truncated one.
type StreamWriter struct {
	w         io.Writer
	aead      cipher.AEAD
	baseNonce [NonceSize]byte
	counter   uint64
	buf       []byte
	chunkSize int
	closed    bool
}

// NewStreamWriter starts an asymmetric-mode encrypted stream. It generates
// a fresh random AES key and base nonce, wraps the key under pub with
// RSA-OAEP and writes the artifact header:
//
//	[4 bytes BE wrapped-key length][wrapped key][12 bytes base nonce]
//
// The symmetric key never leaves this writer and is never reused.
func NewStreamWriter(w io.Writer, pub *rsa.PublicKey) (*StreamWriter, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate session key: %w", err)
	}

	wrapped, err := WrapKey(pub, key)
	if err != nil {
		return nil, err
	}

	sw, err := newStreamWriter(w, key)
	if err != nil {
		return nil, err
	}

	var hdr [chunkHeaderSize]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(wrapped)))
	if _, err := w.Write(hdr[:]); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := w.Write(wrapped); err != nil {
		return nil, fmt.Errorf("failed to write wrapped key: %w", err)
	}
	if _, err := w.Write(sw.baseNonce[:]); err != nil {
		return nil, fmt.Errorf("failed to write nonce: %w", err)
	}

	return sw, nil
}

// NewSymmetricStreamWriter starts a symmetric-mode encrypted stream keyed
// by an Argon2id-derived key. Header: [32 bytes salt][12 bytes base nonce].
func NewSymmetricStreamWriter(w io.Writer, passphrase []byte) (*StreamWriter, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	sw, err := newStreamWriter(w, deriveKey(passphrase, salt))
	if err != nil {
		return nil, err
	}

	if _, err := w.Write(salt); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := w.Write(sw.baseNonce[:]); err != nil {
		return nil, fmt.Errorf("failed to write nonce: %w", err)
	}

	return sw, nil
}

func newStreamWriter(w io.Writer, key []byte) (*StreamWriter, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	sw := &StreamWriter{
		w:         w,
		aead:      aead,
		chunkSize: DefaultChunkSize,
		buf:       make([]byte, 0, DefaultChunkSize),
	}
	if _, err := rand.Read(sw.baseNonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return sw, nil
}

// Write buffers plaintext and seals a chunk whenever a full segment is
// available. The whole stream is never held in memory.
func (sw *StreamWriter) Write(p []byte) (int, error) {
	if sw.closed {
		return 0, fmt.Errorf("write on finalized encrypted stream")
	}
	sw.buf = append(sw.buf, p...)
	for len(sw.buf) >= sw.chunkSize {
		if err := sw.sealChunk(sw.buf[:sw.chunkSize], false); err != nil {
			return 0, err
		}
		sw.buf = sw.buf[:copy(sw.buf, sw.buf[sw.chunkSize:])]
	}
	return len(p), nil
}

// Flush seals whatever plaintext is buffered as a (possibly short) chunk.
// Called periodically during panic recording so an abrupt process kill
// loses at most one flush interval of audio.
func (sw *StreamWriter) Flush() error {
	if sw.closed || len(sw.buf) == 0 {
		return nil
	}
	if err := sw.sealChunk(sw.buf, false); err != nil {
		return err
	}
	sw.buf = sw.buf[:0]
	return nil
}

// Close flushes remaining plaintext and appends the authenticated final
// marker. Safe to call more than once.
func (sw *StreamWriter) Close() error {
	if sw.closed {
		return nil
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	if err := sw.sealChunk(nil, true); err != nil {
		return err
	}
	sw.closed = true
	return nil
}

func (sw *StreamWriter) sealChunk(plain []byte, final bool) error {
	nonce := chunkNonce(sw.baseNonce, sw.counter)
	ct := sw.aead.Seal(nil, nonce[:], plain, chunkAAD(sw.counter, final))

	var hdr [chunkHeaderSize]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(ct)))
	if _, err := sw.w.Write(hdr[:]); err != nil {
		return fmt.Errorf("failed to write chunk header: %w", err)
	}
	if _, err := sw.w.Write(ct); err != nil {
		return fmt.Errorf("failed to write chunk: %w", err)
	}
	sw.counter++
	return nil
}

// StreamReader decrypts and authenticates an artifact produced by
// StreamWriter. Decryption is offline-only: this type is used by the
// decrypt CLI, never by the device daemon.
type StreamReader struct {
	r       io.Reader
	aead    cipher.AEAD
	base    [NonceSize]byte
	counter uint64
}

// NewStreamReader opens an asymmetric-mode artifact, unwrapping the
// session key with the private key.
func NewStreamReader(r io.Reader, priv *rsa.PrivateKey) (*StreamReader, error) {
	var hdr [chunkHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	keyLen := binary.BigEndian.Uint32(hdr[:])
	if keyLen == 0 || keyLen > maxWrappedKey {
		return nil, fmt.Errorf("%w: implausible wrapped-key length %d", ErrAuthentication, keyLen)
	}

	wrapped := make([]byte, keyLen)
	if _, err := io.ReadFull(r, wrapped); err != nil {
		return nil, fmt.Errorf("failed to read wrapped key: %w", err)
	}
	key, err := UnwrapKey(priv, wrapped)
	if err != nil {
		return nil, fmt.Errorf("%w: key unwrap rejected (wrong private key or tampered header)", ErrAuthentication)
	}

	return newStreamReader(r, key)
}

// NewSymmetricStreamReader opens a symmetric-mode artifact.
func NewSymmetricStreamReader(r io.Reader, passphrase []byte) (*StreamReader, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(r, salt); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	return newStreamReader(r, deriveKey(passphrase, salt))
}

func newStreamReader(r io.Reader, key []byte) (*StreamReader, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	sr := &StreamReader{r: r, aead: aead}
	if _, err := io.ReadFull(r, sr.base[:]); err != nil {
		return nil, fmt.Errorf("failed to read nonce: %w", err)
	}
	return sr, nil
}

// Decrypt verifies and decrypts the stream chunk by chunk, writing each
// verified chunk's plaintext to dst.
//
// It returns nil when the authenticated final marker is reached,
// ErrTruncated when the stream ends cleanly before it (everything written
// to dst was verified), and ErrAuthentication on any tag failure. Callers
// must discard dst entirely on ErrAuthentication.
func (sr *StreamReader) Decrypt(dst io.Writer) error {
	var hdr [chunkHeaderSize]byte
	for {
		if _, err := io.ReadFull(sr.r, hdr[:]); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return ErrTruncated
			}
			return fmt.Errorf("failed to read chunk header: %w", err)
		}
		ctLen := binary.BigEndian.Uint32(hdr[:])
		if ctLen < uint32(sr.aead.Overhead()) || ctLen > DefaultChunkSize+uint32(sr.aead.Overhead()) {
			return fmt.Errorf("%w: implausible chunk length %d", ErrAuthentication, ctLen)
		}

		ct := make([]byte, ctLen)
		if _, err := io.ReadFull(sr.r, ct); err != nil {
			// A half-written chunk at the tail is truncation, not tampering.
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return ErrTruncated
			}
			return fmt.Errorf("failed to read chunk: %w", err)
		}

		nonce := chunkNonce(sr.base, sr.counter)
		plain, err := sr.aead.Open(nil, nonce[:], ct, chunkAAD(sr.counter, false))
		if err != nil {
			// Not a data chunk; the only other valid possibility is the
			// final marker.
			if _, ferr := sr.aead.Open(nil, nonce[:], ct, chunkAAD(sr.counter, true)); ferr == nil {
				return nil
			}
			return fmt.Errorf("%w: chunk %d rejected", ErrAuthentication, sr.counter)
		}
		sr.counter++

		if _, err := dst.Write(plain); err != nil {
			return fmt.Errorf("failed to write plaintext: %w", err)
		}
	}
}

// chunkNonce derives the nonce for chunk i by folding the counter into the
// trailing bytes of the base nonce. Unique per chunk within a session; the
// base nonce itself is unique per session.
func chunkNonce(base [NonceSize]byte, counter uint64) [NonceSize]byte {
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], counter)
	nonce := base
	for i := 0; i < 8; i++ {
		nonce[NonceSize-8+i] ^= ctr[i]
	}
	return nonce
}

// chunkAAD binds the chunk counter and final flag into the tag, so chunks
// cannot be reordered, dropped from the middle, or re-cut.
func chunkAAD(counter uint64, final bool) []byte {
	aad := make([]byte, 9)
	binary.BigEndian.PutUint64(aad, counter)
	if final {
		aad[8] = 1
	}
	return aad
}
