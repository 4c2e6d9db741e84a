package ebml

import "errors"

// ErrOutOfRange is returned when a read would extend past the source's
// declared length.
var ErrOutOfRange = errors.New("ebml: read out of range")

// ErrMalformed is returned when a variable-length quantity has no marker
// bit within its first 8 octets, or an element's declared size makes the
// stream unparseable.
var ErrMalformed = errors.New("ebml: malformed stream")
