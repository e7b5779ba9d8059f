package server

import "errors"

var (
	ErrWordStoreFull  = errors.New("server: word store full")
	ErrBusy           = errors.New("server: dispatch mutex busy")
	ErrInvalidWord    = errors.New("server: invalid word descriptor")
	ErrOverlap        = errors.New("server: word overlaps an existing word")
	ErrNotInitialized = errors.New("server: Begin not called")
	ErrInitFailed     = errors.New("server: initialization failed")
	ErrNoTransports   = errors.New("server: no transports registered")
)
