package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// Digest computes the hex SHA-256 of raw file bytes. It is the dedup key for
// the whole pipeline: same bytes, same digest, regardless of filename or
// upload order.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestReader hashes a stream without buffering it, returning the digest and
// the number of bytes consumed.
func DigestReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, fmt.Errorf("hash stream: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
