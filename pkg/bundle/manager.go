// Package bundle implements the update and verify workflows for bundle
// directories.
//
// A bundle directory holds the payload files, the manifest (manifest.raucm)
// and optionally its detached signature (manifest.raucm.sig). Verification
// authenticates the manifest bytes before anything in them is parsed.
package bundle

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fwbundle/fwbundle/pkg/checksum"
	"github.com/fwbundle/fwbundle/pkg/config"
	"github.com/fwbundle/fwbundle/pkg/manifest"
	"github.com/fwbundle/fwbundle/pkg/signature"
	"github.com/fwbundle/fwbundle/pkg/storage"
)

const (
	// ManifestFilename is the manifest file inside a bundle directory.
	ManifestFilename = "manifest.raucm"

	// SignatureFilename is the detached signature of the manifest.
	SignatureFilename = ManifestFilename + ".sig"

	signaturePerm = 0644
)

// Manager runs the bundle workflows with one fixed configuration.
type Manager struct {
	cfg         config.Config
	logger      *zap.Logger
	hasher      checksum.Hasher
	parallelism int
}

// Option configures a Manager.
type Option func(*Manager)

// WithHasher replaces the default file hasher.
func WithHasher(h checksum.Hasher) Option {
	return func(m *Manager) {
		m.hasher = h
	}
}

// WithParallelism bounds how many bundles VerifyBundles checks at once.
// Values below one are ignored.
func WithParallelism(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.parallelism = n
		}
	}
}

// NewManager creates a Manager. The configuration is copied; later changes
// to cfg have no effect.
func NewManager(cfg *config.Config, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		cfg:         *cfg,
		logger:      logger,
		hasher:      checksum.NewFileHasher(),
		parallelism: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// UpdateManifest recomputes the checksums of the manifest in dir, appends
// the configured handler arguments and rewrites it. With sign set the
// written bytes are signed and the signature stored next to the manifest.
//
// Signing without configured credentials is a programming error and panics.
//
// Parameters:
//   - dir: bundle directory holding manifest.raucm and the payloads
//   - sign: whether to write manifest.raucm.sig for the new manifest
//
// Returns an error if the credentials, the manifest or any payload cannot be
// processed. A failure before the manifest is saved leaves the directory
// untouched; a failed signature leaves no signature file behind.
func (m *Manager) UpdateManifest(dir string, sign bool) error {
	if sign && !m.cfg.SigningConfigured() {
		panic("bundle: signing requested but signing.cert_path or signing.key_path is not set")
	}

	manifestPath := filepath.Join(dir, ManifestFilename)
	sigPath := filepath.Join(dir, SignatureFilename)
	logger := m.logger.With(zap.String("bundle", dir))

	logger.Info("Updating manifest", zap.Bool("sign", sign))

	var signer *signature.Signer
	if sign {
		var err error
		signer, err = signature.LoadSigner(m.cfg.Signing.CertPath, m.cfg.Signing.KeyPath)
		if err != nil {
			return fmt.Errorf("failed to load signing credentials: %w", err)
		}
		logger.Debug("Loaded signing key", zap.String("key", signer.Name()))
	}

	mf, err := manifest.Load(manifestPath)
	if err != nil {
		return fmt.Errorf("failed to load manifest: %w", err)
	}

	if m.cfg.Handler.Extra != "" {
		mf.AppendHandlerArgs(m.cfg.Handler.Extra)
		logger.Debug("Appended handler arguments", zap.String("args", mf.HandlerArgs))
	}

	if err := manifest.UpdateChecksums(mf, dir, m.hasher, logger); err != nil {
		return err
	}
	logger.Debug("Updated checksums",
		zap.Int("images", len(mf.Images)),
		zap.Int("files", len(mf.Files)))

	// Reject values that cannot be written or signed before anything on disk changes.
	if err := mf.Validate(); err != nil {
		return fmt.Errorf("failed to save manifest: %w: %w", manifest.ErrFormat, err)
	}

	// The old signature no longer matches what is about to be written.
	if err := storage.SafeRemove(sigPath); err != nil {
		return fmt.Errorf("failed to remove stale signature: %w", err)
	}

	data, err := manifest.Save(manifestPath, mf)
	if err != nil {
		return fmt.Errorf("failed to save manifest: %w", err)
	}
	logger.Debug("Saved manifest", zap.String("path", manifestPath), zap.Int("bytes", len(data)))

	if signer != nil {
		if err := writeSignature(signer, data, sigPath); err != nil {
			_ = storage.SafeRemove(sigPath)
			return err
		}
		logger.Debug("Signed manifest", zap.String("path", sigPath))
	}

	logger.Info("Manifest updated")
	return nil
}

func writeSignature(signer *signature.Signer, data []byte, sigPath string) error {
	sig, err := signer.Sign(data)
	if err != nil {
		return fmt.Errorf("failed to sign manifest: %w", err)
	}

	if err := storage.AtomicWriteFile(sigPath, sig, signaturePerm); err != nil {
		return fmt.Errorf("failed to write signature: %w", err)
	}

	return nil
}

// VerifyManifest authenticates and validates the bundle in dir and returns
// its manifest.
//
// With checkSignature set the manifest bytes are verified against the
// configured keyring before they are parsed. Then every payload checksum is
// checked and update.compatible must equal the system's compatible string.
//
// Parameters:
//   - dir: bundle directory holding manifest.raucm and the payloads
//   - checkSignature: whether manifest.raucm.sig must verify first
//
// Returns the parsed manifest, or a *StageError naming the first stage that
// failed (open, signature, checksums or compatible).
func (m *Manager) VerifyManifest(dir string, checkSignature bool) (*manifest.Manifest, error) {
	manifestPath := filepath.Join(dir, ManifestFilename)
	logger := m.logger.With(zap.String("bundle", dir))

	logger.Info("Verifying manifest", zap.Bool("signature", checkSignature))

	data, err := storage.ReadFile(manifestPath)
	if err != nil {
		return nil, &StageError{Stage: StageOpen, Err: fmt.Errorf("%w: %w", manifest.ErrIO, err)}
	}

	if checkSignature {
		signers, err := m.verifySignature(dir, data)
		if err != nil {
			logger.Warn("Manifest signature rejected", zap.Error(err))
			return nil, &StageError{Stage: StageSignature, Err: err}
		}
		logger.Debug("Verified signature", zap.Strings("signers", signers))
	}

	mf, err := manifest.Parse(data)
	if err != nil {
		return nil, &StageError{Stage: StageOpen, Err: err}
	}
	logger.Debug("Parsed manifest", zap.String("compatible", mf.UpdateCompatible))

	if err := manifest.VerifyChecksums(mf, dir, m.hasher, logger); err != nil {
		return nil, &StageError{Stage: StageChecksums, Err: err}
	}
	logger.Debug("Verified checksums")

	if mf.UpdateCompatible != m.cfg.System.Compatible {
		err := compatibleMismatch(mf.UpdateCompatible, m.cfg.System.Compatible)
		logger.Warn("Bundle is not compatible with this system", zap.Error(err))
		return nil, &StageError{Stage: StageCompatible, Err: err}
	}

	logger.Info("Manifest verified", zap.String("version", mf.UpdateVersion))
	return mf, nil
}

// verifySignature checks the detached signature in dir against data, the
// manifest bytes that will be parsed afterwards.
func (m *Manager) verifySignature(dir string, data []byte) ([]string, error) {
	keyring, err := signature.LoadKeyring(m.cfg.Keyring.Path)
	if err != nil {
		return nil, err
	}

	sig, err := storage.ReadFile(filepath.Join(dir, SignatureFilename))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", signature.ErrInvalid, err)
	}

	return keyring.Verify(data, sig, m.cfg.KeyringMode())
}

// VerifyBundles runs VerifyManifest on several bundle directories in
// parallel. Manifests are returned in the order of dirs. The first failure
// cancels the bundles that have not started yet.
func (m *Manager) VerifyBundles(ctx context.Context, dirs []string, checkSignature bool) ([]*manifest.Manifest, error) {
	results := make([]*manifest.Manifest, len(dirs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.parallelism)

	for i, dir := range dirs {
		i, dir := i, dir
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			mf, err := m.VerifyManifest(dir, checkSignature)
			if err != nil {
				return fmt.Errorf("%s: %w", dir, err)
			}
			results[i] = mf
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}
