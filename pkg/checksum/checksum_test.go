package checksum

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SHA-256 of "hello world".
const helloDigest = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestChecksumValidate(t *testing.T) {
	tests := []struct {
		name      string
		sum       Checksum
		wantError bool
	}{
		{name: "unset", sum: Checksum{}},
		{name: "sha256 without digest", sum: Checksum{Algorithm: SHA256}},
		{name: "valid sha256", sum: Checksum{Algorithm: SHA256, Digest: helloDigest, Size: 11}},
		{name: "digest without algorithm", sum: Checksum{Digest: helloDigest}, wantError: true},
		{name: "short digest", sum: Checksum{Algorithm: SHA256, Digest: "abcd"}, wantError: true},
		{name: "non hex digest", sum: Checksum{Algorithm: SHA256, Digest: strings.Repeat("z", SHA256HexSize)}, wantError: true},
		{name: "unknown algorithm", sum: Checksum{Algorithm: Algorithm(7)}, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sum.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestDigestWithoutAlgorithmIsReported(t *testing.T) {
	err := Checksum{Digest: helloDigest}.Validate()
	assert.True(t, errors.Is(err, ErrDigestWithoutAlgorithm))
}

func TestEqual(t *testing.T) {
	base := Checksum{Algorithm: SHA256, Digest: helloDigest, Size: 11}

	assert.True(t, base.Equal(base))
	assert.False(t, base.Equal(Checksum{Algorithm: SHA256, Digest: helloDigest, Size: 12}))
	assert.False(t, base.Equal(Checksum{Algorithm: None, Digest: helloDigest, Size: 11}))
	assert.False(t, base.Equal(Checksum{Algorithm: SHA256, Digest: strings.ToUpper(helloDigest), Size: 11}))
}

func TestFileHasherCompute(t *testing.T) {
	path := writeFile(t, t.TempDir(), "payload.img", "hello world")

	sum, err := NewFileHasher().Compute(path)
	require.NoError(t, err)

	assert.Equal(t, SHA256, sum.Algorithm)
	assert.Equal(t, helloDigest, sum.Digest)
	assert.Equal(t, uint64(11), sum.Size)
}

func TestFileHasherComputeErrors(t *testing.T) {
	dir := t.TempDir()
	h := NewFileHasher()

	_, err := h.Compute("")
	assert.Error(t, err)

	_, err = h.Compute(filepath.Join(dir, "missing.img"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = h.Compute(dir)
	assert.Error(t, err)
}

func TestFileHasherWrap(t *testing.T) {
	path := writeFile(t, t.TempDir(), "payload.img", "hello world")

	var seenPath string
	var seenSize int64
	var copied bytes.Buffer
	h := &FileHasher{Wrap: func(p string, size int64, r io.Reader) io.Reader {
		seenPath, seenSize = p, size
		return io.TeeReader(r, &copied)
	}}

	sum, err := h.Compute(path)
	require.NoError(t, err)

	assert.Equal(t, helloDigest, sum.Digest)
	assert.Equal(t, path, seenPath)
	assert.Equal(t, int64(11), seenSize)
	assert.Equal(t, "hello world", copied.String())
}

func TestEmptyFileChecksum(t *testing.T) {
	path := writeFile(t, t.TempDir(), "empty", "")

	sum, err := NewFileHasher().Compute(path)
	require.NoError(t, err)

	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", sum.Digest)
	assert.Zero(t, sum.Size)
}

func TestUpdate(t *testing.T) {
	path := writeFile(t, t.TempDir(), "payload.img", "hello world")

	var sum Checksum
	require.NoError(t, Update(NewFileHasher(), &sum, path))
	assert.Equal(t, Checksum{Algorithm: SHA256, Digest: helloDigest, Size: 11}, sum)

	stale := Checksum{Algorithm: SHA256, Digest: helloDigest, Size: 11}
	err := Update(NewFileHasher(), &stale, path+".missing")
	assert.Error(t, err)
	assert.Equal(t, helloDigest, stale.Digest, "failed update must not modify descriptor")
}

func TestVerify(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "payload.img", "hello world")
	h := NewFileHasher()

	good := Checksum{Algorithm: SHA256, Digest: helloDigest, Size: 11}
	assert.NoError(t, Verify(h, good, path))

	wrongSize := good
	wrongSize.Size = 10
	assert.ErrorIs(t, Verify(h, wrongSize, path), ErrMismatch)

	assert.ErrorIs(t, Verify(h, Checksum{}, path), ErrMismatch, "unset checksum never verifies")

	writeFile(t, dir, "payload.img", "hello World")
	assert.ErrorIs(t, Verify(h, good, path), ErrMismatch)

	assert.ErrorIs(t, Verify(h, good, filepath.Join(dir, "missing")), os.ErrNotExist)
}

func TestString(t *testing.T) {
	assert.Equal(t, "none", Checksum{}.String())
	assert.Equal(t, "sha256:b94d27b9934d3e08 (11 bytes)", Checksum{Algorithm: SHA256, Digest: helloDigest, Size: 11}.String())
	assert.Equal(t, "sha256:<empty> (0 bytes)", Checksum{Algorithm: SHA256}.String())
}
