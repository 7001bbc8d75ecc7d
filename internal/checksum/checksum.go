package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Short returns the first n hex characters of the digest of s.
func Short(s string, n int) string {
	sum := Sum([]byte(s))
	if n <= 0 || n > len(sum) {
		return sum
	}
	return sum[:n]
}
