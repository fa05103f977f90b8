// Package manifest provides the data model, text codec and checksum handling
// for update bundle manifests.
//
// A manifest names the system family it targets, optional handler settings
// and the ordered list of images and files to install, each with the
// checksum its payload must match.
package manifest

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fwbundle/fwbundle/pkg/checksum"
)

// Manifest is the in-memory form of a bundle manifest.
type Manifest struct {
	// UpdateCompatible identifies the target system family. Required.
	UpdateCompatible string `yaml:"compatible" json:"compatible"`

	// UpdateVersion is a free-form version string.
	UpdateVersion string `yaml:"version,omitempty" json:"version,omitempty"`

	// Keyring references a keyring archive shipped inside the bundle.
	Keyring string `yaml:"keyring,omitempty" json:"keyring,omitempty"`

	// HandlerName is the file name of a custom install handler.
	HandlerName string `yaml:"handler_name,omitempty" json:"handler_name,omitempty"`

	// HandlerArgs are the arguments passed to the install handler.
	HandlerArgs string `yaml:"handler_args,omitempty" json:"handler_args,omitempty"`

	// Images are the slot images in manifest order. Slot classes may repeat.
	Images []Image `yaml:"images,omitempty" json:"images,omitempty"`

	// Files are the single files in manifest order.
	Files []File `yaml:"files,omitempty" json:"files,omitempty"`
}

// Image is a payload written to a whole slot.
type Image struct {
	SlotClass string            `yaml:"slotclass" json:"slotclass"`
	Checksum  checksum.Checksum `yaml:"checksum" json:"checksum"`
	Filename  string            `yaml:"filename" json:"filename"`
}

// File is a payload installed at DestName inside a slot.
type File struct {
	SlotClass string            `yaml:"slotclass" json:"slotclass"`
	DestName  string            `yaml:"destname" json:"destname"`
	Checksum  checksum.Checksum `yaml:"checksum" json:"checksum"`
	Filename  string            `yaml:"filename" json:"filename"`
}

// AppendHandlerArgs appends extra to the handler arguments, separated by a
// single space. It is applied when building a bundle, never while parsing.
func (m *Manifest) AppendHandlerArgs(extra string) {
	if extra == "" {
		return
	}
	if m.HandlerArgs == "" {
		m.HandlerArgs = extra
		return
	}
	m.HandlerArgs = m.HandlerArgs + " " + extra
}

// Validate checks that the manifest can be serialized, parsed back without
// loss and signed. Values must be UTF-8 and may contain no control
// characters other than line breaks and tabs, which are escaped on output.
func (m *Manifest) Validate() error {
	if m.UpdateCompatible == "" {
		return fmt.Errorf("%w: update.compatible", ErrMissingRequiredField)
	}

	for _, field := range []struct{ name, value string }{
		{"update.compatible", m.UpdateCompatible},
		{"update.version", m.UpdateVersion},
		{"keyring.archive", m.Keyring},
		{"handler.filename", m.HandlerName},
		{"handler.args", m.HandlerArgs},
	} {
		if err := validateValue(field.value); err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
	}

	for i, image := range m.Images {
		if err := validateLabel(image.SlotClass); err != nil {
			return fmt.Errorf("images[%d]: slotclass: %w", i, err)
		}
		if err := image.Checksum.Validate(); err != nil {
			return fmt.Errorf("images[%d] (%s): %w", i, image.SlotClass, err)
		}
		if err := validateValue(image.Filename); err != nil {
			return fmt.Errorf("images[%d] (%s): filename: %w", i, image.SlotClass, err)
		}
	}

	for i, file := range m.Files {
		if err := validateLabel(file.SlotClass); err != nil {
			return fmt.Errorf("files[%d]: slotclass: %w", i, err)
		}
		if strings.Contains(file.SlotClass, "/") {
			return fmt.Errorf("files[%d]: slotclass %q must not contain '/'", i, file.SlotClass)
		}
		if err := validateLabel(file.DestName); err != nil {
			return fmt.Errorf("files[%d]: destname: %w", i, err)
		}
		if err := file.Checksum.Validate(); err != nil {
			return fmt.Errorf("files[%d] (%s/%s): %w", i, file.SlotClass, file.DestName, err)
		}
		if err := validateValue(file.Filename); err != nil {
			return fmt.Errorf("files[%d] (%s/%s): filename: %w", i, file.SlotClass, file.DestName, err)
		}
	}

	return nil
}

// validateLabel checks a string that becomes part of a section header.
func validateLabel(s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty", ErrMissingRequiredField)
	}
	if strings.TrimSpace(s) != s {
		return fmt.Errorf("%q has surrounding whitespace", s)
	}
	if strings.ContainsAny(s, "[]") || hasControl(s) {
		return fmt.Errorf("%q contains '[', ']' or a control character", s)
	}
	return validateValue(s)
}

// validateValue checks a free-form value written after "key=".
func validateValue(s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%q is not valid UTF-8", s)
	}
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\n' || c == '\t' || c == '\r':
		case c < 0x20 || c == 0x7f:
			return fmt.Errorf("%q contains control character %#x", s, c)
		}
	}
	return nil
}
