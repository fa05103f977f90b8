package bundle

import (
	"errors"
	"fmt"
)

// Verification stages reported in StageError.
const (
	StageSignature  = "invalid signature"
	StageOpen       = "opening manifest"
	StageChecksums  = "invalid checksums"
	StageCompatible = "invalid compatible"
)

// ErrCompatibleMismatch is returned when a manifest targets another system.
var ErrCompatibleMismatch = errors.New("compatible mismatch")

// StageError reports which verification stage rejected a bundle.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func compatibleMismatch(manifestCompatible, systemCompatible string) error {
	return fmt.Errorf("%w: '%s' (mf) does not match '%s' (sys)", ErrCompatibleMismatch, manifestCompatible, systemCompatible)
}
