package envelope

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plaintext := strings.Repeat("the quick brown fox jumps over the lazy dog\n", 50000)

	var sealed bytes.Buffer
	n, err := Encrypt(&sealed, strings.NewReader(plaintext), "correct horse battery staple")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if n != int64(len(plaintext)) {
		t.Fatalf("Encrypt reported %d bytes, want %d", n, len(plaintext))
	}

	var recovered bytes.Buffer
	if err := Decrypt(&recovered, bytes.NewReader(sealed.Bytes()), "correct horse battery staple"); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}

	if recovered.String() != plaintext {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", recovered.Len(), len(plaintext))
	}
}

func TestDecryptWrongPassword(t *testing.T) {
	var sealed bytes.Buffer
	if _, err := Encrypt(&sealed, strings.NewReader("hello world"), "right-password"); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	var recovered bytes.Buffer
	err := Decrypt(&recovered, bytes.NewReader(sealed.Bytes()), "wrong-password")
	if err != ErrDecryptFailed {
		t.Fatalf("Decrypt with wrong password: got %v, want ErrDecryptFailed", err)
	}
}

func TestDecryptBadMagic(t *testing.T) {
	var sealed bytes.Buffer
	if _, err := Encrypt(&sealed, strings.NewReader("hello world"), "pw"); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	corrupt := sealed.Bytes()
	corrupt[0] = 'X'

	var recovered bytes.Buffer
	if err := Decrypt(&recovered, bytes.NewReader(corrupt), "pw"); err != ErrDecryptFailed {
		t.Fatalf("Decrypt with bad magic: got %v, want ErrDecryptFailed", err)
	}
}

func TestEncryptEmptyInput(t *testing.T) {
	var sealed bytes.Buffer
	n, err := Encrypt(&sealed, strings.NewReader(""), "pw")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if n != 0 {
		t.Fatalf("Encrypt of empty input reported %d bytes, want 0", n)
	}

	var recovered bytes.Buffer
	if err := Decrypt(&recovered, bytes.NewReader(sealed.Bytes()), "pw"); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if recovered.Len() != 0 {
		t.Fatalf("recovered %d bytes from empty input", recovered.Len())
	}
}

func TestEncryptMultiChunk(t *testing.T) {
	plaintext := bytes.Repeat([]byte{0xAB}, chunkSize*2+12345)

	var sealed bytes.Buffer
	if _, err := Encrypt(&sealed, bytes.NewReader(plaintext), "pw"); err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	var recovered bytes.Buffer
	if err := Decrypt(&recovered, bytes.NewReader(sealed.Bytes()), "pw"); err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if !bytes.Equal(recovered.Bytes(), plaintext) {
		t.Fatalf("multi-chunk round trip mismatch")
	}
}
