package manifest

import (
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fwbundle/fwbundle/pkg/checksum"
)

// errNoFilename is returned for entries that name no payload file.
var errNoFilename = errors.New("no filename")

// entry is a view of one image or file shared by the checksum loops.
type entry struct {
	kind      string
	slotClass string
	destName  string
	filename  string
	sum       *checksum.Checksum
}

// entries lists every image, then every file, in manifest order.
func (m *Manifest) entries() []entry {
	list := make([]entry, 0, len(m.Images)+len(m.Files))
	for i := range m.Images {
		image := &m.Images[i]
		list = append(list, entry{
			kind:      imagePrefix,
			slotClass: image.SlotClass,
			filename:  image.Filename,
			sum:       &image.Checksum,
		})
	}
	for i := range m.Files {
		file := &m.Files[i]
		list = append(list, entry{
			kind:      filePrefix,
			slotClass: file.SlotClass,
			destName:  file.DestName,
			filename:  file.Filename,
			sum:       &file.Checksum,
		})
	}
	return list
}

// UpdateChecksums recomputes the checksum of every entry from its payload in
// dir and stores it in the manifest.
//
// It stops at the first entry that cannot be hashed. That failure is logged
// and returned wrapped in ErrChecksumUpdateFailed together with an *EntryError.
//
// Parameters:
//   - m: manifest whose entries are updated in place
//   - dir: bundle directory the entry filenames are relative to
//   - h: hasher used for every payload
//   - logger: receives the failure; nil disables logging
//
// Returns nil once every image and file entry has a fresh checksum.
func UpdateChecksums(m *Manifest, dir string, h checksum.Hasher, logger *zap.Logger) error {
	return forEachEntry(m, dir, h, logger, "Failed updating checksum", ErrChecksumUpdateFailed,
		func(e entry, path string) error {
			return checksum.Update(h, e.sum, path)
		})
}

// VerifyChecksums compares the recorded checksum of every entry with the
// payload in dir. It stops at the first mismatch or unreadable payload, logs
// it and returns it wrapped in ErrChecksumVerifyFailed.
//
// An entry without a recorded digest fails verification. The manifest is
// never modified.
func VerifyChecksums(m *Manifest, dir string, h checksum.Hasher, logger *zap.Logger) error {
	return forEachEntry(m, dir, h, logger, "Failed verifying checksum", ErrChecksumVerifyFailed,
		func(e entry, path string) error {
			return checksum.Verify(h, *e.sum, path)
		})
}

func forEachEntry(
	m *Manifest,
	dir string,
	h checksum.Hasher,
	logger *zap.Logger,
	logMsg string,
	kind error,
	op func(e entry, path string) error,
) error {
	if h == nil {
		return fmt.Errorf("%w: no hasher", kind)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	for _, e := range m.entries() {
		path, err := resolve(dir, e.filename)
		if err == nil {
			err = op(e, path)
		}
		if err == nil {
			continue
		}

		entryErr := &EntryError{
			Kind:      e.kind,
			SlotClass: e.slotClass,
			DestName:  e.destName,
			Path:      path,
			Err:       err,
		}
		logger.Warn(logMsg,
			zap.String("kind", e.kind),
			zap.String("slotclass", e.slotClass),
			zap.String("destname", e.destName),
			zap.String("path", path),
			zap.Error(err))

		return fmt.Errorf("%w: %w", kind, entryErr)
	}

	return nil
}

// resolve joins a payload filename to the bundle directory. Names that would
// leave the directory are rejected.
func resolve(dir, filename string) (string, error) {
	if filename == "" {
		return "", errNoFilename
	}
	if !filepath.IsLocal(filepath.FromSlash(filename)) {
		return "", fmt.Errorf("filename %q is not inside the bundle directory", filename)
	}
	return filepath.Join(dir, filename), nil
}
