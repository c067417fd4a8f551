package crypto

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"encoding/binary"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testKeyBits keeps key generation fast in tests; production uses
// DefaultKeyBits.
const testKeyBits = 2048

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := GenerateKeyPair(testKeyBits)
	require.NoError(t, err)
	return key
}

func TestKeyPairSaveLoad(t *testing.T) {
	dir := t.TempDir()
	key := testKey(t)

	pubPath, privPath, err := SaveKeyPair(dir, key, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "public_key.pem"), pubPath)
	assert.Equal(t, filepath.Join(dir, "private_key.pem"), privPath)

	pub, err := LoadPublicKey(pubPath)
	require.NoError(t, err)
	assert.True(t, pub.Equal(&key.PublicKey))

	priv, err := LoadPrivateKey(privPath, nil)
	require.NoError(t, err)
	assert.True(t, priv.Equal(key))

	protected, err := IsProtected(privPath)
	require.NoError(t, err)
	assert.False(t, protected)
}

func TestKeyPairPassphrase(t *testing.T) {
	dir := t.TempDir()
	key := testKey(t)

	_, privPath, err := SaveKeyPair(dir, key, []byte("correct horse"))
	require.NoError(t, err)

	protected, err := IsProtected(privPath)
	require.NoError(t, err)
	assert.True(t, protected)

	// No passphrase at all is a distinct error from a wrong one.
	_, err = LoadPrivateKey(privPath, nil)
	assert.ErrorIs(t, err, ErrPassphraseRequired)

	_, err = LoadPrivateKey(privPath, []byte("battery staple"))
	assert.ErrorIs(t, err, ErrWrongPassphrase)

	priv, err := LoadPrivateKey(privPath, []byte("correct horse"))
	require.NoError(t, err)
	assert.True(t, priv.Equal(key))
}

func TestGenerateKeyPairRejectsWeakModulus(t *testing.T) {
	_, err := GenerateKeyPair(1024)
	assert.Error(t, err)
}

func TestWrapUnwrapKey(t *testing.T) {
	key := testKey(t)
	sym := make([]byte, KeySize)
	_, err := rand.Read(sym)
	require.NoError(t, err)

	wrapped, err := WrapKey(&key.PublicKey, sym)
	require.NoError(t, err)

	got, err := UnwrapKey(key, wrapped)
	require.NoError(t, err)
	assert.Equal(t, sym, got)

	// A different private key must fail loudly, never return wrong bytes.
	other := testKey(t)
	_, err = UnwrapKey(other, wrapped)
	assert.Error(t, err)
}

func encryptAll(t *testing.T, pub *rsa.PublicKey, plain []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	sw, err := NewStreamWriter(&buf, pub)
	require.NoError(t, err)
	_, err = sw.Write(plain)
	require.NoError(t, err)
	require.NoError(t, sw.Close())
	return buf.Bytes()
}

func TestStreamRoundTrip(t *testing.T) {
	key := testKey(t)

	// Spans multiple chunks plus a partial tail.
	plain := make([]byte, 3*DefaultChunkSize+1234)
	_, err := rand.Read(plain)
	require.NoError(t, err)

	artifact := encryptAll(t, &key.PublicKey, plain)

	sr, err := NewStreamReader(bytes.NewReader(artifact), key)
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, sr.Decrypt(&out))
	assert.Equal(t, plain, out.Bytes())
}

func TestStreamArtifactLayout(t *testing.T) {
	key := testKey(t)
	artifact := encryptAll(t, &key.PublicKey, []byte("hello"))

	keyLen := binary.BigEndian.Uint32(artifact[:4])
	assert.Equal(t, uint32(testKeyBits/8), keyLen, "wrapped key must match modulus size")

	// Header is followed by the base nonce and at least the data chunk and
	// the final marker.
	require.Greater(t, len(artifact), int(4+keyLen)+NonceSize+2*chunkHeaderSize)
}

func TestStreamRejectsWrongKey(t *testing.T) {
	key := testKey(t)
	artifact := encryptAll(t, &key.PublicKey, []byte("secret"))

	other := testKey(t)
	_, err := NewStreamReader(bytes.NewReader(artifact), other)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestStreamRejectsBitFlips(t *testing.T) {
	key := testKey(t)
	plain := make([]byte, DefaultChunkSize/2)
	_, err := rand.Read(plain)
	require.NoError(t, err)
	artifact := encryptAll(t, &key.PublicKey, plain)

	// Flip one byte at a spread of offsets covering header, wrapped key,
	// nonce, ciphertext and the final marker. Every flip must be rejected
	// as tampering, never misread as a truncated recording. On rejection
	// the caller discards dst; a flip in the final marker still leaves all
	// verified data chunks in dst, which is why the error, not the output,
	// carries the verdict.
	for _, off := range []int{0, 5, 100, 4 + testKeyBits/8 + 4, len(artifact) / 2, len(artifact) - 1} {
		corrupted := bytes.Clone(artifact)
		corrupted[off] ^= 0x01

		var out bytes.Buffer
		sr, err := NewStreamReader(bytes.NewReader(corrupted), key)
		if err == nil {
			err = sr.Decrypt(&out)
		}
		require.Error(t, err, "flip at offset %d must be rejected", off)
		assert.NotErrorIs(t, err, ErrTruncated, "flip at offset %d must read as tampering, not a cut", off)
	}

	// A flip inside the data chunk stops emission before any of that
	// chunk's bytes: only chunks verified earlier may reach dst.
	corrupted := bytes.Clone(artifact)
	corrupted[len(artifact)/2] ^= 0x01
	sr, err := NewStreamReader(bytes.NewReader(corrupted), key)
	require.NoError(t, err)
	var out bytes.Buffer
	err = sr.Decrypt(&out)
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.Empty(t, out.Bytes(), "no unverified bytes may be emitted")
}

func TestStreamTruncationRecoversFlushedChunks(t *testing.T) {
	key := testKey(t)

	var buf bytes.Buffer
	sw, err := NewStreamWriter(&buf, &key.PublicKey)
	require.NoError(t, err)

	// Three explicitly flushed chunks, as the panic controller produces
	// them, then a kill before Close.
	first := bytes.Repeat([]byte{0xAA}, 1000)
	second := bytes.Repeat([]byte{0xBB}, 2000)
	third := bytes.Repeat([]byte{0xCC}, 500)

	for _, part := range [][]byte{first, second} {
		_, err = sw.Write(part)
		require.NoError(t, err)
		require.NoError(t, sw.Flush())
	}
	_, err = sw.Write(third)
	require.NoError(t, err)
	require.NoError(t, sw.Flush())
	// No Close: simulates the process being terminated mid-recording.

	sr, err := NewStreamReader(bytes.NewReader(buf.Bytes()), key)
	require.NoError(t, err)
	var out bytes.Buffer
	err = sr.Decrypt(&out)
	assert.ErrorIs(t, err, ErrTruncated)

	want := append(append(append([]byte{}, first...), second...), third...)
	assert.Equal(t, want, out.Bytes(), "all flushed chunks must be recovered")
}

func TestStreamTruncationMidChunk(t *testing.T) {
	key := testKey(t)

	var buf bytes.Buffer
	sw, err := NewStreamWriter(&buf, &key.PublicKey)
	require.NoError(t, err)
	first := bytes.Repeat([]byte{0x11}, 800)
	_, err = sw.Write(first)
	require.NoError(t, err)
	require.NoError(t, sw.Flush())
	afterFirst := buf.Len()
	_, err = sw.Write(bytes.Repeat([]byte{0x22}, 800))
	require.NoError(t, err)
	require.NoError(t, sw.Flush())

	// Cut inside the second chunk.
	cut := buf.Bytes()[:afterFirst+10]

	sr, err := NewStreamReader(bytes.NewReader(cut), key)
	require.NoError(t, err)
	var out bytes.Buffer
	err = sr.Decrypt(&out)
	assert.ErrorIs(t, err, ErrTruncated)
	assert.Equal(t, first, out.Bytes())
}

func TestStreamChunksCannotBeReordered(t *testing.T) {
	key := testKey(t)

	var buf bytes.Buffer
	sw, err := NewStreamWriter(&buf, &key.PublicKey)
	require.NoError(t, err)
	_, err = sw.Write([]byte("first"))
	require.NoError(t, err)
	require.NoError(t, sw.Flush())
	_, err = sw.Write([]byte("second"))
	require.NoError(t, err)
	require.NoError(t, sw.Flush())
	require.NoError(t, sw.Close())

	// Rebuild the artifact with the two data chunks swapped.
	artifact := buf.Bytes()
	hdrLen := 4 + testKeyBits/8 + NonceSize
	chunk0Len := int(binary.BigEndian.Uint32(artifact[hdrLen:])) + chunkHeaderSize
	chunk1Len := int(binary.BigEndian.Uint32(artifact[hdrLen+chunk0Len:])) + chunkHeaderSize

	swapped := append([]byte{}, artifact[:hdrLen]...)
	swapped = append(swapped, artifact[hdrLen+chunk0Len:hdrLen+chunk0Len+chunk1Len]...)
	swapped = append(swapped, artifact[hdrLen:hdrLen+chunk0Len]...)
	swapped = append(swapped, artifact[hdrLen+chunk0Len+chunk1Len:]...)

	sr, err := NewStreamReader(bytes.NewReader(swapped), key)
	require.NoError(t, err)
	var out bytes.Buffer
	err = sr.Decrypt(&out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuthentication))
}

func TestSymmetricStreamRoundTrip(t *testing.T) {
	plain := bytes.Repeat([]byte{0x42}, 5000)
	pass := []byte("radio silence")

	var buf bytes.Buffer
	sw, err := NewSymmetricStreamWriter(&buf, pass)
	require.NoError(t, err)
	_, err = sw.Write(plain)
	require.NoError(t, err)
	require.NoError(t, sw.Close())

	sr, err := NewSymmetricStreamReader(bytes.NewReader(buf.Bytes()), pass)
	require.NoError(t, err)
	var out bytes.Buffer
	require.NoError(t, sr.Decrypt(&out))
	assert.Equal(t, plain, out.Bytes())

	// Wrong passphrase fails at the first chunk, emitting nothing.
	sr, err = NewSymmetricStreamReader(bytes.NewReader(buf.Bytes()), []byte("wrong"))
	require.NoError(t, err)
	out.Reset()
	err = sr.Decrypt(&out)
	assert.ErrorIs(t, err, ErrAuthentication)
	assert.Zero(t, out.Len())
}

func TestStreamWriterCloseIdempotent(t *testing.T) {
	key := testKey(t)
	var buf bytes.Buffer
	sw, err := NewStreamWriter(&buf, &key.PublicKey)
	require.NoError(t, err)
	require.NoError(t, sw.Close())
	size := buf.Len()
	require.NoError(t, sw.Close())
	assert.Equal(t, size, buf.Len())

	_, err = sw.Write([]byte("late"))
	assert.Error(t, err)
}
