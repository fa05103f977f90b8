package manifest

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"
)

// keyFileSection is one "[name]" group of a key file together with the raw
// (still escaped) values of the keys that follow it.
type keyFileSection struct {
	name   string
	line   int
	values map[string]string
	keys   []string
}

// parseKeyFile splits key file text into its sections.
//
// The grammar is deliberately small:
//   - lines are separated by '\n' and leading whitespace is ignored
//   - blank lines and lines starting with '#' are skipped
//   - "[name]" starts a new section; repeated names produce separate sections
//   - any other line is "key=value"; the key is everything before the first
//     '=' and the value everything after it, with surrounding blanks removed
//
// Values are returned verbatim. Quotes, backticks and trailing backslashes
// have no special meaning at this level; escapes are resolved by
// unescapeValue. When a key repeats inside one section the last value wins.
//
// Parameters:
//   - data: the complete key file
//
// Returns the sections in file order, or an error wrapping ErrFormat that
// names the offending line.
func parseKeyFile(data []byte) ([]keyFileSection, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: key file is not valid UTF-8", ErrFormat)
	}

	var sections []keyFileSection
	for i, raw := range bytes.Split(data, []byte("\n")) {
		lineNo := i + 1
		line := strings.TrimLeft(string(raw), " \t\r")

		if line == "" || line[0] == '#' {
			continue
		}

		if line[0] == '[' {
			name, err := parseSectionHeader(line)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrFormat, lineNo, err)
			}
			sections = append(sections, keyFileSection{
				name:   name,
				line:   lineNo,
				values: make(map[string]string),
			})
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("%w: line %d: expected key=value, got %q", ErrFormat, lineNo, line)
		}
		key = strings.TrimRight(key, " \t")
		if err := checkKeyName(key); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrFormat, lineNo, err)
		}
		if len(sections) == 0 {
			return nil, fmt.Errorf("%w: line %d: key %q outside of any section", ErrFormat, lineNo, key)
		}

		s := &sections[len(sections)-1]
		if _, seen := s.values[key]; !seen {
			s.keys = append(s.keys, key)
		}
		s.values[key] = strings.Trim(value, " \t\r")
	}

	return sections, nil
}

// parseSectionHeader returns the name inside a "[name]" line.
func parseSectionHeader(line string) (string, error) {
	line = strings.TrimRight(line, " \t\r")
	if !strings.HasSuffix(line, "]") {
		return "", fmt.Errorf("unterminated section header %q", line)
	}

	name := line[1 : len(line)-1]
	if name == "" {
		return "", fmt.Errorf("empty section name")
	}
	if strings.ContainsAny(name, "[]") || hasControl(name) {
		return "", fmt.Errorf("invalid section name %q", name)
	}
	return name, nil
}

// checkKeyName accepts the key names a key file can carry. Quotes are
// ordinary characters, so `"compatible"` is a different key than compatible.
func checkKeyName(key string) error {
	if key == "" {
		return fmt.Errorf("empty key name")
	}
	if strings.ContainsAny(key, "[]") || hasControl(key) {
		return fmt.Errorf("invalid key name %q", key)
	}
	return nil
}

// hasControl reports whether s contains an ASCII control character.
func hasControl(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] == 0x7f {
			return true
		}
	}
	return false
}
