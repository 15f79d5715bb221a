package cryptoutil

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIGERoundTrip(t *testing.T) {
	for _, n := range []int{16, 32, 16 * 17, 16 * 4096} {
		key := make([]byte, KeySize)
		iv := make([]byte, IVSize)
		plaintext := make([]byte, n)
		_, err := rand.Read(key)
		require.NoError(t, err)
		_, err = rand.Read(iv)
		require.NoError(t, err)
		_, err = rand.Read(plaintext)
		require.NoError(t, err)

		ciphertext, err := IGEEncrypt(key, iv, plaintext)
		require.NoError(t, err)
		require.Len(t, ciphertext, n)

		roundTripped, err := IGEDecrypt(key, iv, ciphertext)
		require.NoError(t, err)
		require.Equal(t, plaintext, roundTripped)
	}
}

func TestIGERejectsMisalignedInput(t *testing.T) {
	key := make([]byte, KeySize)
	iv := make([]byte, IVSize)
	_, err := IGEEncrypt(key, iv, make([]byte, 17))
	require.ErrorIs(t, err, ErrNotBlockAligned)
}

func TestCTRRoundTrip(t *testing.T) {
	key := make([]byte, KeySize)
	iv := make([]byte, BlockSize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	_, err = rand.Read(iv)
	require.NoError(t, err)

	plaintext := []byte("a cdn chunk of file data, arbitrary length, not block aligned")
	ciphertext, err := CTREncryptDecrypt(key, iv, plaintext)
	require.NoError(t, err)

	roundTripped, err := CTREncryptDecrypt(key, iv, ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, roundTripped)
}

func TestCDNChunkIVAdvancesWithOffset(t *testing.T) {
	base := make([]byte, BlockSize)
	iv0 := CDNChunkIV(base, 0)
	iv1 := CDNChunkIV(base, 16)
	require.NotEqual(t, iv0, iv1)
	require.Equal(t, iv0[:12], iv1[:12])
}
