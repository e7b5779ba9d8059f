package wordstore

import "errors"

var (
	ErrInvalidWord  = errors.New("wordstore: invalid word descriptor")
	ErrOverlap      = errors.New("wordstore: word overlaps an existing word")
	ErrAddressRange = errors.New("wordstore: address range exceeds 0..65535")
)
