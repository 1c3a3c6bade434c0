package encryption

import (
	"bytes"
	"fmt"
	"io"

	"docsign/internal/docsign"
)

var magic = []byte("DSENC1\n")

// HeaderEncryptor is a reversible, key-free stand-in for tests and local
// development. It only prefixes a marker so stored bytes differ from the
// plaintext.
type HeaderEncryptor struct{}

var _ docsign.Encryptor = (*HeaderEncryptor)(nil)

func NewHeaderEncryptor() *HeaderEncryptor { return &HeaderEncryptor{} }

func (*HeaderEncryptor) Setup(string) error { return nil }
func (*HeaderEncryptor) IsConfigured() bool { return true }

func (*HeaderEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(magic); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (*HeaderEncryptor) Unlock(string) (docsign.DecryptionContext, error) {
	return headerDecryptor{}, nil
}

type headerDecryptor struct{}

func (headerDecryptor) Decrypt(r io.Reader, w io.Writer) error {
	got := make([]byte, len(magic))
	if _, err := io.ReadFull(r, got); err != nil {
		return fmt.Errorf("reading header: %w", err)
	}
	if !bytes.Equal(got, magic) {
		return fmt.Errorf("missing encryption header")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
