package common

import "fmt"

// SlaveID identifies a device on a Modbus bus (RTU) or the unit behind a
// gateway (TCP). 0 is reserved for broadcast.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 4.1 (MBAP Header), Field 4
type SlaveID byte

// TransactionID is the MBAP transaction identifier, opaque to the core and
// echoed verbatim on the matching response.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 4.1 (MBAP Header), Field 1
type TransactionID uint16

// ExceptionCode represents an exception code in a Modbus response.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 7 (Exception Responses)
type ExceptionCode byte

// FunctionCode represents a Modbus function code.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6 (MODBUS Function Codes)
type FunctionCode byte

// Address represents a Modbus register/coil address (0-65535).
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 4.4 (Addressing Model)
type Address uint16

// Quantity represents the number of coils or registers to read/write.
type Quantity uint16

// Function codes supported by this stack.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6 (Function Codes)
const (
	FuncNull                   FunctionCode = 0x00 // sentinel: no function code / unset frame
	FuncReadCoils              FunctionCode = 0x01 // Ref: Section 6.1
	FuncReadDiscreteInputs     FunctionCode = 0x02 // Ref: Section 6.2
	FuncReadHoldingRegisters   FunctionCode = 0x03 // Ref: Section 6.3
	FuncReadInputRegisters     FunctionCode = 0x04 // Ref: Section 6.4
	FuncWriteSingleCoil        FunctionCode = 0x05 // Ref: Section 6.5
	FuncWriteSingleRegister    FunctionCode = 0x06 // Ref: Section 6.6
	FuncWriteMultipleCoils     FunctionCode = 0x0F // Ref: Section 6.11
	FuncWriteMultipleRegisters FunctionCode = 0x10 // Ref: Section 6.12
)

// Exception codes.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 7 (Exception Codes)
const (
	ExceptionNone               ExceptionCode = 0x00
	ExceptionIllegalFunction    ExceptionCode = 0x01 // Ref: Section 7.1
	ExceptionIllegalDataAddress ExceptionCode = 0x02 // Ref: Section 7.2
	ExceptionIllegalDataValue   ExceptionCode = 0x03 // Ref: Section 7.3
	ExceptionSlaveDeviceFailure ExceptionCode = 0x04 // Ref: Section 7.4
	ExceptionSlaveDeviceBusy    ExceptionCode = 0x06 // Ref: Section 7.6
)

// ExceptionBit is the bit set in the wire function code of an exception response.
const ExceptionBit byte = 0x80

// IsException reports whether the raw wire function code carries the exception bit.
func IsException(wireFC byte) bool {
	return wireFC&ExceptionBit != 0
}

// OriginalFunctionCode strips the exception bit from a wire function code.
func OriginalFunctionCode(wireFC byte) byte {
	return wireFC &^ ExceptionBit
}

// IsReadFunction reports whether fc is one of the read function codes (0x01-0x04).
func IsReadFunction(fc FunctionCode) bool {
	switch fc {
	case FuncReadCoils, FuncReadDiscreteInputs, FuncReadHoldingRegisters, FuncReadInputRegisters:
		return true
	}
	return false
}

// IsWriteFunction reports whether fc is one of the write function codes.
func IsWriteFunction(fc FunctionCode) bool {
	switch fc {
	case FuncWriteSingleCoil, FuncWriteSingleRegister, FuncWriteMultipleCoils, FuncWriteMultipleRegisters:
		return true
	}
	return false
}

// IsSingleWriteFunction reports whether fc writes exactly one item.
func IsSingleWriteFunction(fc FunctionCode) bool {
	return fc == FuncWriteSingleCoil || fc == FuncWriteSingleRegister
}

// IsKnownFunction reports whether fc is one of the function codes this stack implements.
// Ref: SPEC_FULL.md Non-goals — function codes outside {0x01-0x06, 0x0F, 0x10} are unsupported.
func IsKnownFunction(fc FunctionCode) bool {
	return IsReadFunction(fc) || IsWriteFunction(fc)
}

// IsCoilFunction reports whether fc operates on coils (vs registers).
func IsCoilFunction(fc FunctionCode) bool {
	switch fc {
	case FuncReadCoils, FuncWriteSingleCoil, FuncWriteMultipleCoils:
		return true
	}
	return false
}

// String returns the string representation of a FunctionCode.
func (f FunctionCode) String() string {
	switch f {
	case FuncNull:
		return "Null"
	case FuncReadCoils:
		return "ReadCoils"
	case FuncReadDiscreteInputs:
		return "ReadDiscreteInputs"
	case FuncReadHoldingRegisters:
		return "ReadHoldingRegisters"
	case FuncReadInputRegisters:
		return "ReadInputRegisters"
	case FuncWriteSingleCoil:
		return "WriteSingleCoil"
	case FuncWriteSingleRegister:
		return "WriteSingleRegister"
	case FuncWriteMultipleCoils:
		return "WriteMultipleCoils"
	case FuncWriteMultipleRegisters:
		return "WriteMultipleRegisters"
	default:
		if IsException(byte(f)) {
			return fmt.Sprintf("Exception(%s)", FunctionCode(OriginalFunctionCode(byte(f))).String())
		}
		return fmt.Sprintf("Unknown(0x%02X)", byte(f))
	}
}

// String returns the string representation of an ExceptionCode.
func (e ExceptionCode) String() string {
	switch e {
	case ExceptionNone:
		return "None"
	case ExceptionIllegalFunction:
		return "IllegalFunction"
	case ExceptionIllegalDataAddress:
		return "IllegalDataAddress"
	case ExceptionIllegalDataValue:
		return "IllegalDataValue"
	case ExceptionSlaveDeviceFailure:
		return "SlaveDeviceFailure"
	case ExceptionSlaveDeviceBusy:
		return "SlaveDeviceBusy"
	default:
		return fmt.Sprintf("Unknown(0x%02X)", byte(e))
	}
}

// Protocol-specific constants.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 4 (Data Model)
const (
	TCPHeaderLength = 7   // TransactionID(2) + ProtocolID(2) + Length(2) + UnitID(1)
	TCPMaxFrame     = 260 // MBAP header + max PDU
	RTUMaxFrame     = 256
	RTUMinFrame     = 4 // slaveId(1) + fc(1) + CRC(2), shortest legal RTU ADU

	FrameDataSize = 125 // words of scratch space in a Frame

	MaxCoilsRead      = 2000
	MaxCoilsWrite     = 1968
	MaxRegistersRead  = 125
	MaxRegistersWrite = 123

	// CoilOnU16/CoilOffU16 are the wire values for a single coil write.
	// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 6.5
	CoilOnU16  = 0xFF00
	CoilOffU16 = 0x0000

	// BroadcastSlaveID is the reserved slave id that elicits no reply.
	BroadcastSlaveID SlaveID = 0
	// MaxSlaveID is the highest assignable unicast slave id.
	MaxSlaveID SlaveID = 247
)
