package signature

import (
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/mod/sumdb/note"

	"github.com/fwbundle/fwbundle/pkg/storage"
)

const (
	// PrivateKeyExt is the file extension of signer keys written by WriteKeyPair.
	PrivateKeyExt = ".key"

	// PublicKeyExt is the file extension of certificates written by WriteKeyPair.
	PublicKeyExt = ".pub"

	// PrivateKeyPerm is the file permission for signer keys (owner read/write only).
	PrivateKeyPerm = 0600

	// PublicKeyPerm is the file permission for certificates (owner rw, others read).
	PublicKeyPerm = 0644
)

// ErrKeyExists is returned by WriteKeyPair instead of overwriting a key.
var ErrKeyExists = errors.New("key file already exists")

// KeyPair is a freshly generated signer key and its certificate.
type KeyPair struct {
	Name string

	// Private is the encoded signer key, "PRIVATE+KEY+<name>+<hash>+<key>".
	Private string

	// Public is the encoded verifier key, "<name>+<hash>+<key>". It is the
	// line to add to a keyring.
	Public string
}

// GenerateKey creates a new Ed25519 key pair named name.
// The name must be non-empty and contain neither spaces nor '+'.
func GenerateKey(name string) (*KeyPair, error) {
	private, public, err := note.GenerateKey(rand.Reader, name)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	// note.GenerateKey does not check the name, but NewSigner does.
	if _, err := note.NewSigner(private); err != nil {
		return nil, fmt.Errorf("invalid key name %q", name)
	}

	return &KeyPair{Name: name, Private: private, Public: public}, nil
}

// WriteKeyPair stores kp as <dir>/<name>.key and <dir>/<name>.pub and
// returns both paths. Existing key files are never overwritten.
func WriteKeyPair(dir string, kp *KeyPair) (privatePath, publicPath string, err error) {
	privatePath = filepath.Join(dir, kp.Name+PrivateKeyExt)
	publicPath = filepath.Join(dir, kp.Name+PublicKeyExt)

	for _, path := range []string{privatePath, publicPath} {
		if storage.FileExists(path) {
			return "", "", fmt.Errorf("%w: %s", ErrKeyExists, path)
		}
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", "", fmt.Errorf("failed to create keys directory: %w", err)
	}

	if err := storage.AtomicWriteFile(privatePath, []byte(kp.Private+"\n"), PrivateKeyPerm); err != nil {
		return "", "", fmt.Errorf("failed to write private key: %w", err)
	}
	if err := storage.AtomicWriteFile(publicPath, []byte(kp.Public+"\n"), PublicKeyPerm); err != nil {
		_ = storage.SafeRemove(privatePath)
		return "", "", fmt.Errorf("failed to write public key: %w", err)
	}

	return privatePath, publicPath, nil
}
