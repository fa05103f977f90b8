package manifest

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fwbundle/fwbundle/pkg/checksum"
	"github.com/fwbundle/fwbundle/pkg/storage"
)

const (
	keyCompatible = "compatible"
	keyVersion    = "version"
	keyArchive    = "archive"
	keyFilename   = "filename"
	keyArgs       = "args"
	keySHA256     = "sha256"
	keySize       = "size"
)

// filePerm is the mode of manifests written by Save.
const filePerm = 0644

// Load reads and parses the manifest at path.
// It does NOT check any signature; callers verify the file first.
//
// Parameters:
//   - path: location of the manifest file
//
// Returns the parsed manifest, or an error wrapping ErrIO when the file
// cannot be read and the Parse errors otherwise.
func Load(path string) (*Manifest, error) {
	data, err := storage.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	return Parse(data)
}

// Parse decodes manifest text.
//
// Only a missing update.compatible, empty input or malformed key file syntax
// fail the parse. Other absent keys leave their fields empty and unknown
// sections are skipped, whatever their name.
//
// Parameters:
//   - data: manifest text in key file syntax
//
// Returns the manifest, or an error wrapping ErrNoData, ErrFormat or
// ErrMissingRequiredField.
func Parse(data []byte) (*Manifest, error) {
	if len(data) == 0 {
		return nil, ErrNoData
	}

	sections, err := parseKeyFile(data)
	if err != nil {
		return nil, err
	}

	m := &Manifest{}
	for _, s := range sections {
		values, err := sectionValues(s)
		if err != nil {
			return nil, err
		}

		sec := classifySection(s.name)
		switch sec.kind {
		case sectionUpdate:
			assign(&m.UpdateCompatible, values, keyCompatible)
			assign(&m.UpdateVersion, values, keyVersion)
		case sectionKeyring:
			assign(&m.Keyring, values, keyArchive)
		case sectionHandler:
			assign(&m.HandlerName, values, keyFilename)
			assign(&m.HandlerArgs, values, keyArgs)
		case sectionImage:
			m.Images = append(m.Images, Image{
				SlotClass: sec.slotClass,
				Checksum:  parseChecksum(values),
				Filename:  values[keyFilename],
			})
		case sectionFile:
			m.Files = append(m.Files, File{
				SlotClass: sec.slotClass,
				DestName:  sec.destName,
				Checksum:  parseChecksum(values),
				Filename:  values[keyFilename],
			})
		case sectionIgnored:
		}
	}

	if m.UpdateCompatible == "" {
		return nil, fmt.Errorf("%w: update.compatible", ErrMissingRequiredField)
	}

	return m, nil
}

// sectionValues returns the unescaped values of the keys defined in s.
func sectionValues(s keyFileSection) (map[string]string, error) {
	values := make(map[string]string, len(s.keys))
	for _, key := range s.keys {
		v, err := unescapeValue(s.values[key])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: [%s] %s: %v", ErrFormat, s.line, s.name, key, err)
		}
		values[key] = v
	}
	return values, nil
}

// assign sets *dst when key is present, so a repeated section only
// overrides the keys it defines.
func assign(dst *string, values map[string]string, key string) {
	if v, ok := values[key]; ok {
		*dst = v
	}
}

func parseChecksum(values map[string]string) checksum.Checksum {
	var sum checksum.Checksum

	if digest, ok := values[keySHA256]; ok {
		sum.Algorithm = checksum.SHA256
		sum.Digest = digest
	}

	if raw, ok := values[keySize]; ok {
		// An unreadable size is left unset.
		if size, err := strconv.ParseUint(raw, 10, 64); err == nil {
			sum.Size = size
		}
	}

	return sum
}

// Serialize encodes m as manifest text. Sections are written in a fixed
// order (update, keyring, handler, images, files) and values are escaped so
// that Parse returns the same manifest.
func Serialize(m *Manifest) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%w: cannot serialize invalid manifest: %w", ErrFormat, err)
	}

	var w keyFileWriter

	w.section(sectionNameUpdate,
		keyCompatible, m.UpdateCompatible,
		keyVersion, m.UpdateVersion)
	w.section(sectionNameKeyring,
		keyArchive, m.Keyring)
	w.section(sectionNameHandler,
		keyFilename, m.HandlerName,
		keyArgs, m.HandlerArgs)

	for _, image := range m.Images {
		w.entry(imageSectionName(image.SlotClass), image.Checksum, image.Filename)
	}
	for _, file := range m.Files {
		w.entry(fileSectionName(file.SlotClass, file.DestName), file.Checksum, file.Filename)
	}

	return w.buf.Bytes(), nil
}

// Save serializes m and atomically replaces the file at path.
//
// Parameters:
//   - path: destination of the manifest
//   - m: manifest to write; it must pass Validate
//
// Returns the bytes written, so callers can sign exactly what is on disk.
// Invalid manifests fail with ErrFormat before the file is touched and
// write failures wrap ErrIO.
func Save(path string, m *Manifest) ([]byte, error) {
	data, err := Serialize(m)
	if err != nil {
		return nil, err
	}

	if err := storage.AtomicWriteFile(path, data, os.FileMode(filePerm)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}

	return data, nil
}

// keyFileWriter emits "[section]" headers and "key=value" lines with a blank
// line between sections.
type keyFileWriter struct {
	buf      bytes.Buffer
	sections int
}

func (w *keyFileWriter) header(name string) {
	if w.sections > 0 {
		w.buf.WriteByte('\n')
	}
	w.buf.WriteString("[" + name + "]\n")
	w.sections++
}

func (w *keyFileWriter) pair(key, value string) {
	w.buf.WriteString(key + "=" + escapeValue(value) + "\n")
}

// section writes name with the non-empty values of kv, given as key, value
// pairs. Nothing is written when all values are empty.
func (w *keyFileWriter) section(name string, kv ...string) {
	empty := true
	for i := 1; i < len(kv); i += 2 {
		if kv[i] != "" {
			empty = false
			break
		}
	}
	if empty {
		return
	}

	w.header(name)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] != "" {
			w.pair(kv[i], kv[i+1])
		}
	}
}

// entry writes an image or file section. The header is written even without
// keys so the entry survives a round trip.
func (w *keyFileWriter) entry(name string, sum checksum.Checksum, filename string) {
	w.header(name)
	if sum.Algorithm == checksum.SHA256 {
		w.pair(keySHA256, sum.Digest)
	}
	if sum.Size != 0 {
		w.pair(keySize, strconv.FormatUint(sum.Size, 10))
	}
	if filename != "" {
		w.pair(keyFilename, filename)
	}
}

// escapeValue applies key file escapes: backslash, line breaks, tabs, and
// spaces at either end of the value, which a reader would otherwise trim.
func escapeValue(s string) string {
	if s == "" {
		return s
	}

	lead := len(s) - len(strings.TrimLeft(s, " "))
	trail := len(s) - len(strings.TrimRight(s, " "))
	if lead == len(s) {
		trail = 0
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == ' ' && (i < lead || i >= len(s)-trail):
			b.WriteString(`\s`)
		case c == '\\':
			b.WriteString(`\\`)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\t':
			b.WriteString(`\t`)
		case c == '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// unescapeValue reverses escapeValue.
func unescapeValue(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}

		i++
		if i == len(s) {
			return "", fmt.Errorf("value %q ends with an escape character", s)
		}
		switch s[i] {
		case 's':
			b.WriteByte(' ')
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\':
			b.WriteByte('\\')
		default:
			return "", fmt.Errorf("value %q contains invalid escape sequence \\%c", s, s[i])
		}
	}
	return b.String(), nil
}
