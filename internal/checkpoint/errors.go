package checkpoint

import (
	"errors"
	"fmt"
)

// Errors returned when a file cannot be decoded.
var (
	ErrInvalidMagic       = errors.New("checkpoint: not an ANVL file")
	ErrUnsupportedVersion = errors.New("checkpoint: unsupported format version")
	ErrHeaderTooLarge     = errors.New("checkpoint: header exceeds size limit")
	ErrChecksumMismatch   = errors.New("checkpoint: payload checksum mismatch, file may be corrupted")
)

// ValidationError reports a structural problem with the tensor table,
// such as overlapping regions or a hostile tensor name.
type ValidationError struct {
	Type    string // e.g. "offset_overlap", "out_of_bounds", "invalid_name"
	Tensor  string // tensor name involved, when known
	Details string
}

func (e *ValidationError) Error() string {
	if e.Tensor != "" {
		return fmt.Sprintf("checkpoint: %s: tensor %q: %s", e.Type, e.Tensor, e.Details)
	}
	return fmt.Sprintf("checkpoint: %s: %s", e.Type, e.Details)
}
