package checksum

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"

	sha256 "github.com/minio/sha256-simd"
)

// Hasher computes the checksum of a payload file.
type Hasher interface {
	Compute(path string) (Checksum, error)
}

// FileHasher streams files from disk through SHA-256.
//
// Wrap, when set, decorates the file reader before hashing. The CLI uses it
// to report progress on large images.
type FileHasher struct {
	Wrap func(path string, size int64, r io.Reader) io.Reader
}

// NewFileHasher returns a FileHasher without any reader decoration.
func NewFileHasher() *FileHasher {
	return &FileHasher{}
}

// Compute hashes the file at path and returns a SHA256 checksum with its size.
func (h *FileHasher) Compute(path string) (Checksum, error) {
	if path == "" {
		return Checksum{}, errors.New("path cannot be empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return Checksum{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Checksum{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return Checksum{}, fmt.Errorf("%s is a directory, not a file", path)
	}

	var r io.Reader = bufio.NewReader(file)
	if h != nil && h.Wrap != nil {
		r = h.Wrap(path, info.Size(), r)
	}

	return ComputeReader(r)
}

// ComputeReader hashes everything readable from r.
func ComputeReader(r io.Reader) (Checksum, error) {
	digest := sha256.New()
	n, err := io.Copy(digest, r)
	if err != nil {
		return Checksum{}, fmt.Errorf("failed to compute hash: %w", err)
	}

	return fromHash(digest, n), nil
}

func fromHash(h hash.Hash, size int64) Checksum {
	return Checksum{
		Algorithm: SHA256,
		Digest:    hex.EncodeToString(h.Sum(nil)),
		Size:      uint64(size),
	}
}

// Update recomputes c from the file at path, overwriting it in place.
func Update(h Hasher, c *Checksum, path string) error {
	computed, err := h.Compute(path)
	if err != nil {
		return err
	}

	*c = computed
	return nil
}

// Verify computes the checksum of the file at path and compares it with want.
//
// Parameters:
//   - h: hasher used to read the file
//   - want: the recorded checksum
//   - path: payload file
//
// Returns an error wrapping ErrMismatch when digest or size differ, or the
// hasher's error when the file cannot be read.
func Verify(h Hasher, want Checksum, path string) error {
	if err := want.Validate(); err != nil {
		return fmt.Errorf("invalid recorded checksum for %s: %w", path, err)
	}

	got, err := h.Compute(path)
	if err != nil {
		return err
	}

	if !got.Equal(want) {
		return fmt.Errorf("%w for %s: expected %s, got %s", ErrMismatch, path, want, got)
	}

	return nil
}
