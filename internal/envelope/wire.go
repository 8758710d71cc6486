package envelope

import (
	"crypto/rand"
	"encoding/binary"
	"io"
)

var randReader = rand.Reader

// writeHeader writes the BRx1 header: magic, version, salt, nonce.
func writeHeader(dst io.Writer, salt, nonce []byte) error {
	if _, err := dst.Write(magic[:]); err != nil {
		return err
	}
	if _, err := dst.Write([]byte{version}); err != nil {
		return err
	}
	if _, err := dst.Write(salt); err != nil {
		return err
	}
	if _, err := dst.Write(nonce); err != nil {
		return err
	}
	return nil
}

// readHeader reads and validates the BRx1 header, returning ErrDecryptFailed
// on any magic/version mismatch or truncated read.
func readHeader(src io.Reader) (salt, nonce []byte, err error) {
	var got [4]byte
	if _, err := io.ReadFull(src, got[:]); err != nil {
		return nil, nil, ErrDecryptFailed
	}
	if got != magic {
		return nil, nil, ErrDecryptFailed
	}

	var v [1]byte
	if _, err := io.ReadFull(src, v[:]); err != nil || v[0] != version {
		return nil, nil, ErrDecryptFailed
	}

	salt = make([]byte, saltSize)
	if _, err := io.ReadFull(src, salt); err != nil {
		return nil, nil, ErrDecryptFailed
	}

	nonce = make([]byte, nonceSize)
	if _, err := io.ReadFull(src, nonce); err != nil {
		return nil, nil, ErrDecryptFailed
	}

	return salt, nonce, nil
}

// writeChunk writes one length-prefixed sealed frame. The length prefix is
// our own on-wire framing choice (not part of the spec's header/footer
// description) needed so Decrypt can tell where one AEAD-sealed chunk ends
// and the next begins without re-parsing ChaCha20-Poly1305 internals.
func writeChunk(dst io.Writer, sealed []byte) (int, error) {
	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], uint32(len(sealed)))
	if _, err := dst.Write(lenBytes[:]); err != nil {
		return 0, err
	}
	return dst.Write(sealed)
}

// readChunk reads one length-prefixed sealed frame.
func readChunk(src io.Reader) ([]byte, error) {
	var lenBytes [4]byte
	if _, err := io.ReadFull(src, lenBytes[:]); err != nil {
		return nil, ErrDecryptFailed
	}
	n := binary.BigEndian.Uint32(lenBytes[:])

	frame := make([]byte, n)
	if _, err := io.ReadFull(src, frame); err != nil {
		return nil, ErrDecryptFailed
	}
	return frame, nil
}
