package serialization

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// ComputeChecksum computes SHA-256 checksum of data.
func ComputeChecksum(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// ComputeChecksumReader computes SHA-256 checksum from an io.Reader.
// This is useful for computing checksums of large files without loading them entirely into memory.
func ComputeChecksumReader(r io.Reader) ([32]byte, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return [32]byte{}, err
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// FileChecksum computes the SHA-256 checksum of the first size bytes of the
// file at path.
func FileChecksum(path string, size int64) ([32]byte, error) {
	//nolint:gosec // G304: path is a buffer file inside the directory being verified
	f, err := os.Open(path)
	if err != nil {
		return [32]byte{}, err
	}
	defer func() { _ = f.Close() }()
	return ComputeChecksumReader(io.LimitReader(f, size))
}

// FormatChecksum returns the hex form stored in skeleton meta.
func FormatChecksum(sum [32]byte) string {
	return hex.EncodeToString(sum[:])
}

// ValidateChecksum compares a computed checksum against the hex form stored
// for buffer key. Returns an error matching ErrChecksumMismatch if they
// don't match.
func ValidateChecksum(key string, computed [32]byte, stored string) error {
	if got := FormatChecksum(computed); got != stored {
		return &ValidationError{
			Type:    "checksum",
			Key:     key,
			Details: "stored " + stored + ", computed " + got,
			Err:     ErrChecksumMismatch,
		}
	}
	return nil
}
