package frame

import (
	"math"

	"github.com/kestrel-automation/modbus/common"
)

// Order16 selects the byte order within a single 16-bit register.
// Ref: SPEC_FULL.md §4.1
type Order16 byte

const (
	// AB is big-endian (Modbus's native register byte order).
	AB Order16 = iota
	// BA swaps the two bytes of the register.
	BA
)

// Order32 selects the word/byte order across a 2-register (32-bit) value.
// The label sequence (A,B,C,D) names the bytes of the value in big-endian
// order; the variant says how those four bytes land across the two
// registers. Per SPEC_FULL.md §9, BADC and DCBA follow the explicit byte
// labeling below, not the "byte+word swap" prose gloss some Modbus guides use.
type Order32 byte

const (
	// ABCD: register[0]=AB, register[1]=CD (big-endian, Modbus-native).
	ABCD Order32 = iota
	// CDAB: register[0]=CD, register[1]=AB (word-swapped).
	CDAB
	// BADC: register[0]=BA, register[1]=DC (bytes swapped within each register).
	BADC
	// DCBA: register[0]=DC, register[1]=BA (both swapped).
	DCBA
)

func put16(order Order16, v uint16) uint16 {
	if order == BA {
		return v>>8 | v<<8
	}
	return v
}

func get16(order Order16, reg uint16) uint16 {
	// AB/BA swap is its own inverse.
	return put16(order, reg)
}

// split32 decomposes v into its four big-endian bytes A,B,C,D (A is most significant).
func split32(v uint32) (a, b, c, d byte) {
	return byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)
}

func join32(a, b, c, d byte) uint32 {
	return uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(d)
}

// regs32 returns the two registers holding v under the given byte order.
func regs32(order Order32, v uint32) (r0, r1 uint16) {
	a, b, c, d := split32(v)
	switch order {
	case CDAB:
		return uint16(c)<<8 | uint16(d), uint16(a)<<8 | uint16(b)
	case BADC:
		return uint16(b)<<8 | uint16(a), uint16(d)<<8 | uint16(c)
	case DCBA:
		return uint16(d)<<8 | uint16(c), uint16(b)<<8 | uint16(a)
	default: // ABCD
		return uint16(a)<<8 | uint16(b), uint16(c)<<8 | uint16(d)
	}
}

// value32 reassembles v from two registers under the given byte order.
func value32(order Order32, r0, r1 uint16) uint32 {
	switch order {
	case CDAB:
		return join32(byte(r1>>8), byte(r1), byte(r0>>8), byte(r0))
	case BADC:
		return join32(byte(r0), byte(r0>>8), byte(r1), byte(r1>>8))
	case DCBA:
		return join32(byte(r1), byte(r1>>8), byte(r0), byte(r0>>8))
	default: // ABCD
		return join32(byte(r0>>8), byte(r0), byte(r1>>8), byte(r1))
	}
}

// SetU16 writes a single register at idx with the given byte order, auto
// extending RegCount. Returns false if idx is out of range.
func (f *Frame) SetU16(v uint16, idx int, order Order16) bool {
	if idx < 0 || idx >= len(f.Data) {
		return false
	}
	f.Data[idx] = put16(order, v)
	if common.Quantity(idx+1) > f.RegCount {
		f.RegCount = common.Quantity(idx + 1)
	}
	return true
}

// GetU16 reads a single register at idx. Returns false if idx is beyond RegCount.
func (f *Frame) GetU16(idx int, order Order16) (uint16, bool) {
	if idx < 0 || common.Quantity(idx+1) > f.RegCount || idx >= len(f.Data) {
		return 0, false
	}
	return get16(order, f.Data[idx]), true
}

// SetI16 is SetU16 for a signed value (two's complement reinterpretation).
func (f *Frame) SetI16(v int16, idx int, order Order16) bool {
	return f.SetU16(uint16(v), idx, order)
}

// GetI16 is GetU16 for a signed value.
func (f *Frame) GetI16(idx int, order Order16) (int16, bool) {
	u, ok := f.GetU16(idx, order)
	return int16(u), ok
}

// SetU32 writes two registers at idx..idx+1 with the given byte order.
func (f *Frame) SetU32(v uint32, idx int, order Order32) bool {
	if idx < 0 || idx+2 > len(f.Data) {
		return false
	}
	r0, r1 := regs32(order, v)
	f.Data[idx], f.Data[idx+1] = r0, r1
	if common.Quantity(idx+2) > f.RegCount {
		f.RegCount = common.Quantity(idx + 2)
	}
	return true
}

// GetU32 reads two registers at idx..idx+1.
func (f *Frame) GetU32(idx int, order Order32) (uint32, bool) {
	if idx < 0 || common.Quantity(idx+2) > f.RegCount || idx+2 > len(f.Data) {
		return 0, false
	}
	return value32(order, f.Data[idx], f.Data[idx+1]), true
}

// SetI32 is SetU32 for a signed value.
func (f *Frame) SetI32(v int32, idx int, order Order32) bool {
	return f.SetU32(uint32(v), idx, order)
}

// GetI32 is GetU32 for a signed value.
func (f *Frame) GetI32(idx int, order Order32) (int32, bool) {
	u, ok := f.GetU32(idx, order)
	return int32(u), ok
}

// SetFloat writes a 32-bit IEEE-754 float across two registers at idx.
func (f *Frame) SetFloat(v float32, idx int, order Order32) bool {
	return f.SetU32(math.Float32bits(v), idx, order)
}

// GetFloat reads a 32-bit IEEE-754 float from two registers at idx.
func (f *Frame) GetFloat(idx int, order Order32) (float32, bool) {
	u, ok := f.GetU32(idx, order)
	if !ok {
		return 0, false
	}
	return math.Float32frombits(u), true
}
