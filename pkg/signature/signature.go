// Package signature creates and checks detached manifest signatures.
//
// Signatures use the signed note format: the signature file holds only the
// "— <name> <base64>" lines that would follow the signed text in a note.
// Verifier keys ("certificates") and signer keys are the textual keys
// produced by GenerateKey.
package signature

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/mod/sumdb/note"

	"github.com/fwbundle/fwbundle/pkg/storage"
)

// Mode selects how many keyring keys must have signed the data.
type Mode int

const (
	// ModeAny accepts data signed by at least one keyring key.
	ModeAny Mode = iota
	// ModeAll requires a valid signature from every keyring key.
	ModeAll
)

func (m Mode) String() string {
	switch m {
	case ModeAny:
		return "any"
	case ModeAll:
		return "all"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode converts the configuration name of a mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "any", "":
		return ModeAny, nil
	case "all":
		return ModeAll, nil
	default:
		return ModeAny, fmt.Errorf("unknown keyring mode %q (want \"any\" or \"all\")", s)
	}
}

var (
	// ErrInvalid is returned when a signature cannot be created or does not verify.
	ErrInvalid = errors.New("invalid signature")

	// ErrKeyMismatch is returned when a signer key does not belong to its certificate.
	ErrKeyMismatch = fmt.Errorf("%w: signing key does not match certificate", ErrInvalid)

	// ErrNoKeyring is returned when verification is requested without trusted keys.
	ErrNoKeyring = fmt.Errorf("%w: no keyring configured", ErrInvalid)
)

// Signer produces detached signatures with a single key.
type Signer struct {
	signer note.Signer
}

// LoadSigner reads the certificate (verifier key) at certPath and the
// private signer key at keyPath and checks that they form a pair.
//
// Parameters:
//   - certPath: file holding the encoded verifier key
//   - keyPath: file holding the encoded signer key
//
// Returns a Signer, or an error. A pair that does not match is reported as
// ErrKeyMismatch. Errors never include the private key.
func LoadSigner(certPath, keyPath string) (*Signer, error) {
	certData, err := storage.ReadFile(certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	keyData, err := storage.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}

	verifier, err := note.NewVerifier(strings.TrimSpace(string(certData)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate %s: %w", certPath, err)
	}
	signer, err := note.NewSigner(strings.TrimSpace(string(keyData)))
	if err != nil {
		// The key itself must never end up in an error message.
		return nil, fmt.Errorf("failed to parse signing key %s", keyPath)
	}

	if err := checkPair(signer, verifier); err != nil {
		return nil, err
	}

	return &Signer{signer: signer}, nil
}

func checkPair(signer note.Signer, verifier note.Verifier) error {
	if signer.Name() != verifier.Name() || signer.KeyHash() != verifier.KeyHash() {
		return fmt.Errorf("%w (key %s+%08x, certificate %s+%08x)", ErrKeyMismatch,
			signer.Name(), signer.KeyHash(), verifier.Name(), verifier.KeyHash())
	}

	probe := []byte("fwbundle key pair check\n")
	sig, err := signer.Sign(probe)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrKeyMismatch, err)
	}
	if !verifier.Verify(probe, sig) {
		return ErrKeyMismatch
	}
	return nil
}

// Name returns the key name embedded in signatures.
func (s *Signer) Name() string {
	return s.signer.Name()
}

// Sign returns the detached signature of data.
// The data must be valid note text: UTF-8 without control characters other
// than newline, and terminated by a newline.
func (s *Signer) Sign(data []byte) ([]byte, error) {
	if err := checkText(data); err != nil {
		return nil, err
	}

	signed, err := note.Sign(&note.Note{Text: string(data)}, s.signer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	// The signed note is data, a blank line, then the signature lines.
	return signed[len(data)+1:], nil
}

// Keyring holds the verifier keys trusted to sign manifests.
type Keyring struct {
	verifiers []note.Verifier
}

// NewKeyring builds a keyring from encoded verifier keys. Repeated keys are
// kept once.
func NewKeyring(keys ...string) (*Keyring, error) {
	k := &Keyring{}
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true

		v, err := note.NewVerifier(key)
		if err != nil {
			return nil, fmt.Errorf("invalid verifier key %q: %w", key, err)
		}
		k.verifiers = append(k.verifiers, v)
	}
	if len(k.verifiers) == 0 {
		return nil, ErrNoKeyring
	}
	return k, nil
}

// LoadKeyring reads a keyring file: one verifier key per line, blank lines
// and lines starting with '#' are skipped.
func LoadKeyring(path string) (*Keyring, error) {
	if path == "" {
		return nil, ErrNoKeyring
	}

	data, err := storage.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoKeyring, err)
	}

	var keys []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		keys = append(keys, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read keyring %s: %w", path, err)
	}

	k, err := NewKeyring(keys...)
	if err != nil {
		return nil, fmt.Errorf("keyring %s: %w", path, err)
	}
	return k, nil
}

// Names lists the key names in the keyring.
func (k *Keyring) Names() []string {
	names := make([]string, len(k.verifiers))
	for i, v := range k.verifiers {
		names[i] = v.Name()
	}
	return names
}

// Verify checks the detached signature sig over data and returns the names
// of the keys that signed it. Signature lines from keys outside the keyring
// are ignored; a bad signature from a known key always fails.
//
// Parameters:
//   - data: the exact bytes that were signed
//   - sig: the signature lines produced by Signer.Sign
//   - mode: ModeAny or ModeAll
//
// Returns the signer names, or an error wrapping ErrInvalid.
func (k *Keyring) Verify(data, sig []byte, mode Mode) ([]string, error) {
	if k == nil || len(k.verifiers) == 0 {
		return nil, ErrNoKeyring
	}
	if len(sig) == 0 {
		return nil, fmt.Errorf("%w: empty signature", ErrInvalid)
	}
	if err := checkText(data); err != nil {
		return nil, err
	}

	msg := make([]byte, 0, len(data)+1+len(sig))
	msg = append(msg, data...)
	msg = append(msg, '\n')
	msg = append(msg, sig...)

	n, err := note.Open(msg, note.VerifierList(k.verifiers...))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if n.Text != string(data) {
		return nil, fmt.Errorf("%w: signature block does not follow the signed data", ErrInvalid)
	}

	signers := make([]string, len(n.Sigs))
	for i, s := range n.Sigs {
		signers[i] = s.Name
	}

	if mode == ModeAll && len(n.Sigs) < len(k.verifiers) {
		return nil, fmt.Errorf("%w: signed by %d of %d keyring keys", ErrInvalid, len(n.Sigs), len(k.verifiers))
	}

	return signers, nil
}

// checkText rejects data the note format cannot carry.
func checkText(data []byte) error {
	if len(data) == 0 || data[len(data)-1] != '\n' {
		return fmt.Errorf("%w: signed data must end with a newline", ErrInvalid)
	}
	if !utf8.Valid(data) {
		return fmt.Errorf("%w: signed data is not valid UTF-8", ErrInvalid)
	}
	for _, c := range data {
		if c < 0x20 && c != '\n' {
			return fmt.Errorf("%w: signed data contains control character %#x", ErrInvalid, c)
		}
	}
	return nil
}
