package core

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds returned by streams and by Resolve. Target packages wrap these
// with fmt.Errorf and %w so callers can test with errors.Is.
var (
	// ErrInvalidOperands is returned when an operand combination has no
	// encoding variant for the requested mnemonic.
	ErrInvalidOperands = errors.New("invalid operand combination")
	// ErrUnsupportedInMode is returned when a variant exists but is illegal
	// in the stream's processor mode.
	ErrUnsupportedInMode = errors.New("instruction not available in this mode")
	// ErrImmediateRange is returned when a literal immediate does not fit
	// the declared width of the selected variant.
	ErrImmediateRange = errors.New("immediate out of range")
	// ErrLabelBound is returned on a second attempt to bind a label.
	ErrLabelBound = errors.New("label already bound")
	// ErrNoSuchLabel is returned for label identities the table never issued.
	ErrNoSuchLabel = errors.New("no such label")
	// ErrUnboundLabel is reported at finalize for labels that were
	// referenced but never bound.
	ErrUnboundLabel = errors.New("unbound label")
	// ErrDisplacementRange is reported at finalize when a relocation value
	// does not fit even the widest available encoding.
	ErrDisplacementRange = errors.New("displacement out of range")
	// ErrFinalized is returned when a stream is used after Finalize.
	ErrFinalized = errors.New("stream already finalized")
)

// ResolveErrors collects every failure found during finalize so the caller
// sees the whole stream's problems in one report.
type ResolveErrors []error

func (e ResolveErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d relocation errors: %s", len(e), strings.Join(msgs, "; "))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e ResolveErrors) Unwrap() []error { return e }
