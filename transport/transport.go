// Package transport defines the core-side boundary Client and Server depend
// on. It is interface-only: reference implementations live in sibling
// packages (transportrtu, transporttcp) and are never imported from here.
// Ref: SPEC_FULL.md §6.2
package transport

import (
	"context"

	"github.com/kestrel-automation/modbus/frame"
)

// Role identifies which side of a half-duplex exchange a Transport plays.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// String returns the string representation of a Role.
func (r Role) String() string {
	if r == RoleServer {
		return "Server"
	}
	return "Client"
}

// TxResult reports the outcome of a send attempt.
type TxResult int

const (
	TxSuccess TxResult = iota
	TxFailure
)

// String returns the string representation of a TxResult.
func (r TxResult) String() string {
	if r == TxSuccess {
		return "Success"
	}
	return "Failure"
}

// Transport is the half-duplex byte-framing boundary the core depends on.
// At most one frame may be in flight per direction at a time. Encoding and
// decoding happen inside implementations (the reference adapters call into
// codec themselves); the core only ever sees and sends *frame.Frame values.
type Transport interface {
	// Role reports whether this transport plays the client or server side.
	Role() Role
	// CatchAllSlaveIDs reports whether this transport lacks per-bus
	// addressing (e.g. a single TCP connection), so the core should accept
	// any slaveId rather than filtering by a configured one.
	CatchAllSlaveIDs() bool
	// Begin starts the transport's background I/O.
	Begin(ctx context.Context) error
	// SendFrame transmits f. When SendFrame returns nil, onTxDone (if
	// non-nil) is invoked exactly once with the outcome; it must not block.
	// When SendFrame returns an error, onTxDone is not invoked.
	SendFrame(ctx context.Context, f *frame.Frame, onTxDone func(TxResult, any), cbCtx any) error
	// SetRecvCallback registers the callback invoked for every frame the
	// transport decodes off the wire. Replaces any previously set callback.
	SetRecvCallback(cb func(*frame.Frame, any), cbCtx any) error
	// AbortCurrentTransaction cancels whatever send/receive is in flight.
	AbortCurrentTransaction()
	// IsReady reports whether the transport can accept a new SendFrame.
	IsReady() bool
}
