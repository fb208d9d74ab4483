package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Fingerprint computes the content hash used for duplicate detection. It is a
// pure function of the bytes: filename and upload time never influence it.
func Fingerprint(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("read content for fingerprint: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
