// Package checksum describes and computes the content checksums recorded for
// every payload of an update bundle.
package checksum

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// Algorithm identifies the digest algorithm of a Checksum.
type Algorithm int

const (
	// None means no algorithm has been recorded yet.
	None Algorithm = iota
	// SHA256 is the only digest algorithm currently supported.
	SHA256
)

// SHA256HexSize is the length of a hex-encoded SHA-256 digest.
const SHA256HexSize = 64

var (
	// ErrMismatch is returned when a computed checksum differs from the recorded one.
	ErrMismatch = errors.New("checksum mismatch")

	// ErrUnsupportedAlgorithm is returned for algorithms other than SHA256.
	ErrUnsupportedAlgorithm = errors.New("unsupported checksum algorithm")

	// ErrDigestWithoutAlgorithm is returned when a digest is set but the algorithm is not.
	ErrDigestWithoutAlgorithm = errors.New("digest present without algorithm")
)

// String returns the name used for the algorithm in the manifest format.
func (a Algorithm) String() string {
	switch a {
	case None:
		return "none"
	case SHA256:
		return "sha256"
	default:
		return fmt.Sprintf("algorithm(%d)", int(a))
	}
}

// MarshalText implements encoding.TextMarshaler so the algorithm renders by name.
func (a Algorithm) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Checksum describes the expected content of a single payload file.
//
// A zero Size cannot be told apart from an absent size once serialized, so
// the in-memory value uses zero for both.
type Checksum struct {
	// Algorithm is the digest algorithm, None until a digest is recorded.
	Algorithm Algorithm `yaml:"algorithm" json:"algorithm"`

	// Digest is the hex-encoded digest, empty until computed.
	Digest string `yaml:"digest,omitempty" json:"digest,omitempty"`

	// Size is the payload size in bytes.
	Size uint64 `yaml:"size,omitempty" json:"size,omitempty"`
}

// HasDigest reports whether a digest has been recorded.
func (c Checksum) HasDigest() bool {
	return c.Digest != ""
}

// Equal reports whether algorithm, digest and size all match exactly.
func (c Checksum) Equal(other Checksum) bool {
	return c.Algorithm == other.Algorithm &&
		c.Digest == other.Digest &&
		c.Size == other.Size
}

// Validate checks the descriptor invariants.
func (c Checksum) Validate() error {
	if c.HasDigest() && c.Algorithm == None {
		return ErrDigestWithoutAlgorithm
	}

	switch c.Algorithm {
	case None:
		return nil
	case SHA256:
		if !c.HasDigest() {
			return nil
		}
		if len(c.Digest) != SHA256HexSize {
			return fmt.Errorf("sha256 digest must be %d hex characters, got %d", SHA256HexSize, len(c.Digest))
		}
		if _, err := hex.DecodeString(c.Digest); err != nil {
			return fmt.Errorf("sha256 digest must be valid hex: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, c.Algorithm)
	}
}

// String returns a short human readable form, e.g. "sha256:0a1b2c3d4e5f6a7b (1024 bytes)".
func (c Checksum) String() string {
	if c.Algorithm == None {
		return "none"
	}

	digest := c.Digest
	if len(digest) > 16 {
		digest = digest[:16]
	}
	if digest == "" {
		digest = "<empty>"
	}

	return fmt.Sprintf("%s:%s (%d bytes)", c.Algorithm, digest, c.Size)
}
