// Package cryptoutil provides the two symmetric primitives the MTProto
// message layer and CDN downloads need: AES-256-IGE and AES-256-CTR.
//
// Go's standard library has no IGE BlockMode — it isn't used outside
// MTProto — so it's implemented here directly on top of a block cipher.
// The block cipher itself is gitlab.com/yawning/bsaes.git, a constant-time
// (bitsliced) AES implementation already a direct katzenpost dependency;
// using it instead of crypto/aes avoids data-dependent table-lookup timing
// in a primitive that directly wraps every byte this client sends.
package cryptoutil

import (
	"crypto/cipher"
	"errors"

	"gitlab.com/yawning/bsaes.git"
)

const (
	// BlockSize is the AES block size in bytes.
	BlockSize = 16
	// KeySize is the AES-256 key size in bytes.
	KeySize = 32
	// IVSize is the combined IGE IV size: 16 bytes of "previous
	// ciphertext" seed plus 16 bytes of "previous plaintext" seed.
	IVSize = 32
)

var (
	// ErrInvalidKeySize is returned when a key is not KeySize bytes.
	ErrInvalidKeySize = errors.New("cryptoutil: invalid key size")
	// ErrInvalidIVSize is returned when an IV is not IVSize bytes.
	ErrInvalidIVSize = errors.New("cryptoutil: invalid iv size")
	// ErrNotBlockAligned is returned when IGE input isn't a whole number
	// of AES blocks.
	ErrNotBlockAligned = errors.New("cryptoutil: input is not block aligned")
)

func newBlockCipher(key []byte) (cipher.Block, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	return bsaes.NewCipher(key)
}

// IGEEncrypt encrypts plaintext under AES-256-IGE. iv is 32 bytes:
// iv[0:16] seeds the "previous ciphertext" chain value, iv[16:32] seeds
// the "previous plaintext" chain value, per MTProto 2.0's key/iv
// derivation (see DeriveKeyIV).
func IGEEncrypt(key, iv, plaintext []byte) ([]byte, error) {
	block, prevCipher, prevPlain, err := setupIGE(key, iv, plaintext)
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(plaintext))
	buf := make([]byte, BlockSize)
	for off := 0; off < len(plaintext); off += BlockSize {
		p := plaintext[off : off+BlockSize]
		xorBlock(buf, p, prevCipher)
		block.Encrypt(buf, buf)
		xorBlock(buf, buf, prevPlain)

		copy(out[off:off+BlockSize], buf)
		prevCipher = append([]byte{}, out[off:off+BlockSize]...)
		prevPlain = append([]byte{}, p...)
	}
	return out, nil
}

// IGEDecrypt reverses IGEEncrypt.
func IGEDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	block, prevCipher, prevPlain, err := setupIGE(key, iv, ciphertext)
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(ciphertext))
	buf := make([]byte, BlockSize)
	for off := 0; off < len(ciphertext); off += BlockSize {
		c := ciphertext[off : off+BlockSize]
		xorBlock(buf, c, prevPlain)
		block.Decrypt(buf, buf)
		xorBlock(buf, buf, prevCipher)

		copy(out[off:off+BlockSize], buf)
		prevCipher = append([]byte{}, c...)
		prevPlain = append([]byte{}, out[off:off+BlockSize]...)
	}
	return out, nil
}

func setupIGE(key, iv, data []byte) (block cipher.Block, prevCipher, prevPlain []byte, err error) {
	if len(iv) != IVSize {
		return nil, nil, nil, ErrInvalidIVSize
	}
	if len(data)%BlockSize != 0 {
		return nil, nil, nil, ErrNotBlockAligned
	}
	block, err = newBlockCipher(key)
	if err != nil {
		return nil, nil, nil, err
	}
	prevCipher = append([]byte{}, iv[0:BlockSize]...)
	prevPlain = append([]byte{}, iv[BlockSize:IVSize]...)
	return block, prevCipher, prevPlain, nil
}

func xorBlock(dst, a, b []byte) {
	for i := 0; i < BlockSize; i++ {
		dst[i] = a[i] ^ b[i]
	}
}

// CTREncryptDecrypt applies AES-256-CTR symmetrically (encrypt and
// decrypt are the same operation for a stream cipher). iv must be 16
// bytes. CDN chunk downloads replace the low 4 bytes of iv with
// (offset/16) big-endian for every new chunk before calling this; see
// CDNChunkIV.
func CTREncryptDecrypt(key, iv, data []byte) ([]byte, error) {
	block, err := newBlockCipher(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != BlockSize {
		return nil, ErrInvalidIVSize
	}
	stream := cipher.NewCTR(block, iv)
	out := make([]byte, len(data))
	stream.XORKeyStream(out, data)
	return out, nil
}

// CDNChunkIV returns a copy of baseIV with its low 4 bytes replaced by
// (offset/16) encoded big-endian, as required before decrypting each new
// CDN chunk under AES-CTR.
func CDNChunkIV(baseIV []byte, offset int64) []byte {
	iv := append([]byte{}, baseIV...)
	blockIdx := uint32(offset / BlockSize)
	iv[len(iv)-4] = byte(blockIdx >> 24)
	iv[len(iv)-3] = byte(blockIdx >> 16)
	iv[len(iv)-2] = byte(blockIdx >> 8)
	iv[len(iv)-1] = byte(blockIdx)
	return iv
}
