// Package wordstore implements the server's register-addressing model: an
// ordered, overlap-free set of Word descriptors per register type, each
// either a direct pointer to a single 16-bit cell or backed by read/write
// handlers.
// Ref: SPEC_FULL.md §4.4
package wordstore

import (
	"github.com/kestrel-automation/modbus/common"
)

// RegType is one of the four Modbus register/coil address spaces.
type RegType byte

const (
	Coil RegType = iota
	DiscreteInput
	HoldingRegister
	InputRegister
)

// String returns the string representation of a RegType.
func (t RegType) String() string {
	switch t {
	case Coil:
		return "Coil"
	case DiscreteInput:
		return "DiscreteInput"
	case HoldingRegister:
		return "HoldingRegister"
	case InputRegister:
		return "InputRegister"
	default:
		return "Unknown"
	}
}

// IsReadOnly reports whether t must not carry a write handler.
func (t RegType) IsReadOnly() bool {
	return t == DiscreteInput || t == InputRegister
}

// DefaultMaxWordSize bounds NbRegs for a single Word absent an explicit
// Store option.
const DefaultMaxWordSize = 8

// ReadHandler produces the current value of a handler-backed Word.
// Returning a non-zero ExceptionCode aborts the whole response with that code.
type ReadHandler func(w *Word, out []uint16, ctx any) common.ExceptionCode

// WriteHandler applies values to a handler-backed Word.
// Returning a non-zero ExceptionCode records that exception for the response.
type WriteHandler func(values []uint16, w *Word, ctx any) common.ExceptionCode

// Word is a single contiguous address-range mapping within a register type.
// Either DirectPtr is set (only legal when NbRegs==1) or ReadHandler (and,
// for writable types, WriteHandler) is set.
type Word struct {
	RegType      RegType
	StartAddr    common.Address
	NbRegs       common.Quantity
	DirectPtr    *uint16
	ReadHandler  ReadHandler
	WriteHandler WriteHandler
	UserCtx      any
}

// End returns the address one past the last address this Word covers.
func (w *Word) End() common.Address {
	return w.StartAddr + common.Address(w.NbRegs)
}

// Covers reports whether addr falls within [StartAddr, StartAddr+NbRegs).
func (w *Word) Covers(addr common.Address) bool {
	return addr >= w.StartAddr && addr < w.End()
}

// HasReadAccess reports whether the word can satisfy a read.
func (w *Word) HasReadAccess() bool {
	return w.DirectPtr != nil || w.ReadHandler != nil
}

// HasWriteAccess reports whether the word can satisfy a write.
func (w *Word) HasWriteAccess() bool {
	if w.RegType.IsReadOnly() {
		return false
	}
	return (w.DirectPtr != nil && w.NbRegs == 1) || w.WriteHandler != nil
}
