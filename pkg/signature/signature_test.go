package signature

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const manifestText = "[update]\ncompatible=acme-board-v1\n\n[image.rootfs]\nfilename=rootfs.img\n"

// writeKey generates a key pair and writes it to a temp dir.
func writeKey(t *testing.T, name string) (kp *KeyPair, keyPath, certPath string) {
	t.Helper()
	kp, err := GenerateKey(name)
	require.NoError(t, err)
	keyPath, certPath, err = WriteKeyPair(t.TempDir(), kp)
	require.NoError(t, err)
	return kp, keyPath, certPath
}

func writeKeyring(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keyring.pub")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0644))
	return path
}

func TestSignAndVerify(t *testing.T) {
	kp, keyPath, certPath := writeKey(t, "release")

	signer, err := LoadSigner(certPath, keyPath)
	require.NoError(t, err)
	assert.Equal(t, "release", signer.Name())

	sig, err := signer.Sign([]byte(manifestText))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(sig), "— release "), "got %q", sig)
	assert.True(t, strings.HasSuffix(string(sig), "\n"))
	assert.NotContains(t, string(sig), "compatible", "signature must not embed the data")

	keyring, err := LoadKeyring(writeKeyring(t, "# release keys", "", kp.Public))
	require.NoError(t, err)
	assert.Equal(t, []string{"release"}, keyring.Names())

	signers, err := keyring.Verify([]byte(manifestText), sig, ModeAny)
	require.NoError(t, err)
	assert.Equal(t, []string{"release"}, signers)
}

func TestVerify_TamperedData(t *testing.T) {
	kp, keyPath, certPath := writeKey(t, "release")
	signer, err := LoadSigner(certPath, keyPath)
	require.NoError(t, err)
	sig, err := signer.Sign([]byte(manifestText))
	require.NoError(t, err)

	keyring, err := NewKeyring(kp.Public)
	require.NoError(t, err)

	tampered := strings.Replace(manifestText, "v1", "v2", 1)
	_, err = keyring.Verify([]byte(tampered), sig, ModeAny)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerify_UnknownSigner(t *testing.T) {
	_, keyPath, certPath := writeKey(t, "release")
	other, err := GenerateKey("other")
	require.NoError(t, err)

	signer, err := LoadSigner(certPath, keyPath)
	require.NoError(t, err)
	sig, err := signer.Sign([]byte(manifestText))
	require.NoError(t, err)

	keyring, err := NewKeyring(other.Public)
	require.NoError(t, err)

	_, err = keyring.Verify([]byte(manifestText), sig, ModeAny)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestVerify_Modes(t *testing.T) {
	first, firstKey, firstCert := writeKey(t, "first")
	second, _, _ := writeKey(t, "second")

	signer, err := LoadSigner(firstCert, firstKey)
	require.NoError(t, err)
	sig, err := signer.Sign([]byte(manifestText))
	require.NoError(t, err)

	keyring, err := NewKeyring(first.Public, second.Public)
	require.NoError(t, err)

	signers, err := keyring.Verify([]byte(manifestText), sig, ModeAny)
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, signers)

	_, err = keyring.Verify([]byte(manifestText), sig, ModeAll)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "signed by 1 of 2")
}

func TestVerify_InvalidInput(t *testing.T) {
	kp, err := GenerateKey("release")
	require.NoError(t, err)
	keyring, err := NewKeyring(kp.Public)
	require.NoError(t, err)

	tests := []struct {
		name string
		data string
		sig  string
	}{
		{name: "empty signature", data: manifestText, sig: ""},
		{name: "garbage signature", data: manifestText, sig: "not a signature\n"},
		{name: "data without newline", data: "[update]\ncompatible=x", sig: "— release AAAAAAAA\n"},
		{name: "control character", data: "[update]\ncompatible=\x01\n", sig: "— release AAAAAAAA\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := keyring.Verify([]byte(tt.data), []byte(tt.sig), ModeAny)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestVerify_NoKeyring(t *testing.T) {
	var keyring *Keyring
	_, err := keyring.Verify([]byte(manifestText), []byte("— x AAAA\n"), ModeAny)
	assert.ErrorIs(t, err, ErrNoKeyring)
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = LoadKeyring("")
	assert.ErrorIs(t, err, ErrNoKeyring)

	_, err = LoadKeyring(filepath.Join(t.TempDir(), "missing.pub"))
	assert.ErrorIs(t, err, ErrNoKeyring)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadKeyring(writeKeyring(t, "# only comments"))
	assert.ErrorIs(t, err, ErrNoKeyring)
}

func TestLoadKeyring_InvalidKey(t *testing.T) {
	_, err := LoadKeyring(writeKeyring(t, "not-a-key"))
	assert.Error(t, err)
}

func TestNewKeyring_DuplicateKeys(t *testing.T) {
	kp, keyPath, certPath := writeKey(t, "release")
	keyring, err := NewKeyring(kp.Public, kp.Public)
	require.NoError(t, err)
	assert.Len(t, keyring.Names(), 1)

	signer, err := LoadSigner(certPath, keyPath)
	require.NoError(t, err)
	sig, err := signer.Sign([]byte(manifestText))
	require.NoError(t, err)

	_, err = keyring.Verify([]byte(manifestText), sig, ModeAll)
	assert.NoError(t, err)
}

func TestLoadSigner_Mismatch(t *testing.T) {
	_, keyPath, _ := writeKey(t, "release")
	_, _, otherCert := writeKey(t, "release")

	_, err := LoadSigner(otherCert, keyPath)
	assert.ErrorIs(t, err, ErrKeyMismatch)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoadSigner_Errors(t *testing.T) {
	_, keyPath, certPath := writeKey(t, "release")

	_, err := LoadSigner(filepath.Join(t.TempDir(), "missing.pub"), keyPath)
	assert.ErrorIs(t, err, os.ErrNotExist)

	// Swapped files: the certificate is not a signer key.
	_, err = LoadSigner(keyPath, certPath)
	assert.Error(t, err)

	// The private key must not leak into the error.
	_, err = LoadSigner(certPath, certPath)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "PRIVATE")
}

func TestSign_InvalidText(t *testing.T) {
	_, keyPath, certPath := writeKey(t, "release")
	signer, err := LoadSigner(certPath, keyPath)
	require.NoError(t, err)

	for _, data := range []string{"", "no trailing newline", "tab\there\n", "\xff\xfe\n"} {
		_, err := signer.Sign([]byte(data))
		assert.ErrorIs(t, err, ErrInvalid, "data %q", data)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{in: "", want: ModeAny},
		{in: "any", want: ModeAny},
		{in: "all", want: ModeAll},
		{in: "ALL", wantErr: true},
		{in: "some", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
