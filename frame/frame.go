// Package frame defines the in-memory representation of a Modbus PDU,
// independent of whether it arrived over RTU or TCP. A Frame is a fixed-size
// value: no field heap-allocates, so constructing and copying one on the hot
// dispatch path costs nothing beyond the copy itself.
package frame

import (
	"fmt"

	"github.com/kestrel-automation/modbus/common"
)

// Type distinguishes a request, a response, and the zero-value "nothing here".
type Type byte

const (
	// Null is the zero value: no frame, used as a sentinel return.
	Null Type = iota
	Request
	Response
)

// String returns the string representation of a Type.
func (t Type) String() string {
	switch t {
	case Request:
		return "Request"
	case Response:
		return "Response"
	default:
		return "Null"
	}
}

// Frame is the core value type flowing between Client, Transport, Codec and
// Server. Ref: SPEC_FULL.md §3 (Data Model).
type Frame struct {
	Type          Type
	FC            common.FunctionCode
	SlaveID       common.SlaveID
	RegAddress    common.Address
	RegCount      common.Quantity
	Data          [common.FrameDataSize]uint16
	ExceptionCode common.ExceptionCode
}

// IsBroadcast reports whether the frame targets the broadcast slave id.
func (f *Frame) IsBroadcast() bool {
	return f.SlaveID == common.BroadcastSlaveID
}

// IsException reports whether the frame carries a non-zero exception code.
func (f *Frame) IsException() bool {
	return f.ExceptionCode != common.ExceptionNone
}

// String is for diagnostics only; never on the hot path.
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{%s fc=%s slave=%d addr=%d count=%d exc=%s}",
		f.Type, f.FC, f.SlaveID, f.RegAddress, f.RegCount, f.ExceptionCode)
}

// GetRegister returns data[i] if i is within RegCount, else 0.
// Ref: SPEC_FULL.md §4.1
func (f *Frame) GetRegister(i int) uint16 {
	if i < 0 || common.Quantity(i) >= f.RegCount || i >= len(f.Data) {
		return 0
	}
	return f.Data[i]
}

// GetCoil returns bit i%16 of data[i/16] if i is within RegCount, else false.
func (f *Frame) GetCoil(i int) bool {
	if i < 0 || common.Quantity(i) >= f.RegCount {
		return false
	}
	word := i / 16
	if word >= len(f.Data) {
		return false
	}
	return (f.Data[word]>>(uint(i)%16))&1 != 0
}

// SetRegisters bulk-copies src into Data starting at startIdx. If startIdx is
// negative, RegCount is updated to len(src); otherwise RegCount is left
// untouched (the caller is writing into an already-sized frame, e.g. a
// partial Word's slice of a larger response). Returns false if the copy
// would exceed the 125-register scratch space.
func (f *Frame) SetRegisters(src []uint16, startIdx int) bool {
	if startIdx < 0 {
		startIdx = 0
		if len(src) > len(f.Data) {
			return false
		}
		copy(f.Data[:], src)
		f.RegCount = common.Quantity(len(src))
		return true
	}
	if startIdx+len(src) > len(f.Data) {
		return false
	}
	copy(f.Data[startIdx:], src)
	return true
}

// SetCoils packs src (one bool per logical coil) into Data starting at the
// coil index startIdx, LSB-first within each word. If startIdx is negative,
// RegCount is updated to len(src) and packing starts at coil 0.
func (f *Frame) SetCoils(src []bool, startIdx int) bool {
	updateCount := startIdx < 0
	if startIdx < 0 {
		startIdx = 0
	}
	if startIdx+len(src) > common.MaxCoilsRead {
		return false
	}
	for i, v := range src {
		coilIdx := startIdx + i
		word := coilIdx / 16
		if word >= len(f.Data) {
			return false
		}
		bit := uint(coilIdx % 16)
		if v {
			f.Data[word] |= 1 << bit
		} else {
			f.Data[word] &^= 1 << bit
		}
	}
	if updateCount {
		f.RegCount = common.Quantity(len(src))
	}
	return true
}
