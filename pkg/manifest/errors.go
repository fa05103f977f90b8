package manifest

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match them with errors.Is.
var (
	ErrMissingRequiredField = errors.New("missing required field")
	ErrNoData               = errors.New("no data available")
	ErrFormat               = errors.New("invalid manifest format")
	ErrChecksumUpdateFailed = errors.New("failed updating all checksums")
	ErrChecksumVerifyFailed = errors.New("failed verifying all checksums")
	ErrIO                   = errors.New("manifest i/o error")
)

// EntryError identifies the image or file entry whose checksum could not be
// computed or verified.
type EntryError struct {
	Kind      string // "image" or "file"
	SlotClass string
	DestName  string // empty for images
	Path      string
	Err       error
}

func (e *EntryError) Error() string {
	name := e.SlotClass
	if e.DestName != "" {
		name += "/" + e.DestName
	}
	return fmt.Sprintf("%s %s (%s): %v", e.Kind, name, e.Path, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}
