package client

import "errors"

var (
	ErrInvalidFrame   = errors.New("client: invalid request frame")
	ErrBusy           = errors.New("client: a request is already pending")
	ErrTxFailed       = errors.New("client: transport send failed")
	ErrTimeout        = errors.New("client: request timed out")
	ErrInvalidResp    = errors.New("client: invalid response")
	ErrNotInitialized = errors.New("client: Begin not called")
	ErrInitFailed     = errors.New("client: initialization failed")
)
