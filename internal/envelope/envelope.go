// Package envelope implements the BRx1 backup encryption format: an
// Argon2id-derived key protecting a chunked ChaCha20-Poly1305 stream, so a
// backup artifact can be encrypted and decrypted independently of whatever
// destination it ends up stored on.
package envelope

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

var magic = [4]byte{'B', 'R', 'x', '1'}

const (
	version   = 1
	saltSize  = 16
	nonceSize = 12
	tagSize   = 16
	keySize   = 32

	// chunkSize is the plaintext size per AEAD seal; each chunk advances a
	// per-chunk counter folded into its nonce so no two chunks share one.
	chunkSize = 1 << 20 // 1 MiB

	argonTime    = 3
	argonMemory  = 64 * 1024 // KiB, i.e. 64 MiB
	argonThreads = 1
)

// ErrDecryptFailed covers any header mismatch or AEAD authentication
// failure — per spec, these collapse into one error kind rather than
// leaking which check failed.
var ErrDecryptFailed = errors.New("envelope: decrypt failed")

func deriveKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, keySize)
}

// Encrypt reads plaintext from src and writes a complete BRx1 envelope to
// dst: header, then one sealed chunk per chunkSize of input, then a footer
// tag. Returns the number of plaintext bytes consumed.
func Encrypt(dst io.Writer, src io.Reader, password string) (int64, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(randReader, salt); err != nil {
		return 0, fmt.Errorf("envelope: generating salt: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(randReader, nonce); err != nil {
		return 0, fmt.Errorf("envelope: generating nonce: %w", err)
	}

	if err := writeHeader(dst, salt, nonce); err != nil {
		return 0, err
	}

	aead, err := chacha20poly1305.New(deriveKey(password, salt))
	if err != nil {
		return 0, fmt.Errorf("envelope: building cipher: %w", err)
	}

	var total int64
	buf := make([]byte, chunkSize)
	var counter uint64
	for {
		n, readErr := io.ReadFull(src, buf)
		if n > 0 {
			sealed := aead.Seal(nil, chunkNonce(nonce, counter), buf[:n], nil)
			if _, err := writeChunk(dst, sealed); err != nil {
				return total, fmt.Errorf("envelope: writing chunk: %w", err)
			}
			total += int64(n)
			counter++
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			return total, fmt.Errorf("envelope: reading plaintext: %w", readErr)
		}
	}

	// Footer: a final empty-plaintext seal over the running counter, giving
	// the stream an explicit end marker an attacker can't truncate past
	// without detection.
	footer := aead.Seal(nil, chunkNonce(nonce, counter), nil, nil)
	if len(footer) != tagSize {
		return total, fmt.Errorf("envelope: unexpected footer size %d", len(footer))
	}
	if _, err := writeChunk(dst, footer); err != nil {
		return total, fmt.Errorf("envelope: writing footer: %w", err)
	}

	return total, nil
}

// Decrypt reads a BRx1 envelope from src and writes the recovered plaintext
// to dst. Any header mismatch or authentication failure is reported as
// ErrDecryptFailed, matching the spec's collapsed error kind.
func Decrypt(dst io.Writer, src io.Reader, password string) error {
	salt, nonce, err := readHeader(src)
	if err != nil {
		return err
	}

	aead, err := chacha20poly1305.New(deriveKey(password, salt))
	if err != nil {
		return fmt.Errorf("envelope: building cipher: %w", err)
	}

	var counter uint64
	for {
		chunk, err := readChunk(src)
		if err != nil {
			return err
		}
		plain, err := aead.Open(nil, chunkNonce(nonce, counter), chunk, nil)
		if err != nil {
			return ErrDecryptFailed
		}
		if len(plain) == 0 {
			// The footer is a zero-plaintext seal — no real data chunk is
			// ever empty, since Encrypt only seals when it read n>0 bytes.
			return nil
		}
		if _, err := dst.Write(plain); err != nil {
			return fmt.Errorf("envelope: writing plaintext: %w", err)
		}
		counter++
	}
}

// chunkNonce folds counter into the base nonce's trailing bytes so every
// chunk (and the final footer seal) uses a distinct nonce under the same
// derived key.
func chunkNonce(base []byte, counter uint64) []byte {
	nonce := make([]byte, len(base))
	copy(nonce, base)
	var ctrBytes [8]byte
	binary.BigEndian.PutUint64(ctrBytes[:], counter)
	for i := 0; i < 8 && i < len(nonce); i++ {
		nonce[len(nonce)-1-i] ^= ctrBytes[7-i]
	}
	return nonce
}
