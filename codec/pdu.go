// Package codec implements Modbus RTU and TCP (MBAP) wire encoding/decoding.
// Ref: SPEC_FULL.md §4.2, §4.3
package codec

import (
	"bytes"
	"encoding/binary"

	"github.com/kestrel-automation/modbus/common"
	"github.com/kestrel-automation/modbus/frame"
)

// byteCountForRead returns the wire byteCount for a read response of qty
// items of the given function code.
func byteCountForRead(fc common.FunctionCode, qty common.Quantity) int {
	if common.IsCoilFunction(fc) {
		return int((qty + 7) / 8)
	}
	return int(qty) * 2
}

// validate checks Type/FC/SlaveID/RegCount invariants shared by RTU and TCP.
// Ref: SPEC_FULL.md §4.2 Encode validation rules.
func validate(f *frame.Frame) error {
	switch f.Type {
	case frame.Request, frame.Response:
	default:
		return ErrInvalidType
	}
	if !common.IsKnownFunction(f.FC) {
		return ErrInvalidFC
	}
	if f.SlaveID == common.BroadcastSlaveID && f.Type == frame.Response {
		// Broadcast responses have no meaning; only requests may target it.
		return ErrInvalidSlaveID
	}
	if f.SlaveID > common.MaxSlaveID && f.SlaveID != common.BroadcastSlaveID {
		return ErrInvalidSlaveID
	}
	if f.IsException() {
		return nil // exception responses carry no register count
	}
	switch f.FC {
	case common.FuncReadCoils, common.FuncReadDiscreteInputs:
		if f.Type == frame.Request && (f.RegCount == 0 || f.RegCount > common.MaxCoilsRead) {
			return ErrInvalidRegCount
		}
	case common.FuncReadHoldingRegisters, common.FuncReadInputRegisters:
		if f.Type == frame.Request && (f.RegCount == 0 || f.RegCount > common.MaxRegistersRead) {
			return ErrInvalidRegCount
		}
	case common.FuncWriteSingleCoil, common.FuncWriteSingleRegister:
		if f.RegCount != 1 {
			return ErrInvalidRegCount
		}
	case common.FuncWriteMultipleCoils:
		if f.RegCount == 0 || f.RegCount > common.MaxCoilsWrite {
			return ErrInvalidRegCount
		}
	case common.FuncWriteMultipleRegisters:
		if f.RegCount == 0 || f.RegCount > common.MaxRegistersWrite {
			return ErrInvalidRegCount
		}
	}
	return nil
}

// encodePDU serializes f's function-specific payload (everything after the
// unit/slave id and before any framing trailer).
func encodePDU(f *frame.Frame) ([]byte, error) {
	if err := validate(f); err != nil {
		return nil, err
	}
	var buf bytes.Buffer

	if f.IsException() {
		buf.WriteByte(byte(f.FC) | common.ExceptionBit)
		buf.WriteByte(byte(f.ExceptionCode))
		return buf.Bytes(), nil
	}

	buf.WriteByte(byte(f.FC))

	switch f.FC {
	case common.FuncReadCoils, common.FuncReadDiscreteInputs, common.FuncReadHoldingRegisters, common.FuncReadInputRegisters:
		if f.Type == frame.Request {
			binary.Write(&buf, binary.BigEndian, uint16(f.RegAddress))
			binary.Write(&buf, binary.BigEndian, uint16(f.RegCount))
			return buf.Bytes(), nil
		}
		// Response
		bc := byteCountForRead(f.FC, f.RegCount)
		buf.WriteByte(byte(bc))
		if common.IsCoilFunction(f.FC) {
			nbWords := (bc + 1) / 2
			for i := 0; i < nbWords; i++ {
				w := f.Data[i]
				lo := byte(w)
				if i*2+1 < bc {
					buf.WriteByte(lo)
					buf.WriteByte(byte(w >> 8))
				} else {
					buf.WriteByte(lo)
				}
			}
		} else {
			for i := 0; i < int(f.RegCount); i++ {
				binary.Write(&buf, binary.BigEndian, f.Data[i])
			}
		}
		return buf.Bytes(), nil

	case common.FuncWriteSingleCoil, common.FuncWriteSingleRegister:
		binary.Write(&buf, binary.BigEndian, uint16(f.RegAddress))
		binary.Write(&buf, binary.BigEndian, f.Data[0])
		return buf.Bytes(), nil

	case common.FuncWriteMultipleCoils, common.FuncWriteMultipleRegisters:
		binary.Write(&buf, binary.BigEndian, uint16(f.RegAddress))
		binary.Write(&buf, binary.BigEndian, uint16(f.RegCount))
		if f.Type == frame.Response {
			return buf.Bytes(), nil
		}
		if f.FC == common.FuncWriteMultipleCoils {
			bc := int((f.RegCount + 7) / 8)
			buf.WriteByte(byte(bc))
			nbWords := (bc + 1) / 2
			for i := 0; i < nbWords; i++ {
				w := f.Data[i]
				if i*2+1 < bc {
					buf.WriteByte(byte(w))
					buf.WriteByte(byte(w >> 8))
				} else {
					buf.WriteByte(byte(w))
				}
			}
		} else {
			bc := int(f.RegCount) * 2
			buf.WriteByte(byte(bc))
			for i := 0; i < int(f.RegCount); i++ {
				binary.Write(&buf, binary.BigEndian, f.Data[i])
			}
		}
		return buf.Bytes(), nil
	}

	return nil, ErrInvalidFC
}

// decodePDU fills f from a raw PDU (fc + payload, no framing). msgType must
// be declared by the caller: the wire format alone cannot distinguish a
// request from a response for most function codes.
func decodePDU(pdu []byte, msgType frame.Type, f *frame.Frame) error {
	if msgType != frame.Request && msgType != frame.Response {
		return ErrInvalidType
	}
	if len(pdu) < 1 {
		return ErrInvalidLen
	}
	wireFC := pdu[0]
	f.Type = msgType

	if common.IsException(wireFC) {
		if msgType == frame.Request {
			return ErrInvalidException
		}
		if len(pdu) != 2 {
			return ErrInvalidLen
		}
		f.FC = common.FunctionCode(common.OriginalFunctionCode(wireFC))
		if !common.IsKnownFunction(f.FC) {
			return ErrInvalidFC
		}
		f.ExceptionCode = common.ExceptionCode(pdu[1])
		f.RegCount = 0
		return nil
	}

	f.FC = common.FunctionCode(wireFC)
	f.ExceptionCode = common.ExceptionNone
	if !common.IsKnownFunction(f.FC) {
		return ErrInvalidFC
	}

	switch f.FC {
	case common.FuncReadCoils, common.FuncReadDiscreteInputs, common.FuncReadHoldingRegisters, common.FuncReadInputRegisters:
		if msgType == frame.Request {
			if len(pdu) != 5 {
				return ErrInvalidLen
			}
			f.RegAddress = common.Address(binary.BigEndian.Uint16(pdu[1:3]))
			f.RegCount = common.Quantity(binary.BigEndian.Uint16(pdu[3:5]))
			return validate(f)
		}
		if len(pdu) < 2 {
			return ErrInvalidLen
		}
		bc := int(pdu[1])
		if len(pdu) != 2+bc {
			return ErrInvalidLen
		}
		if common.IsCoilFunction(f.FC) {
			qty := common.Quantity(bc * 8)
			f.RegCount = qty
			nbWords := (bc + 1) / 2
			for i := 0; i < nbWords; i++ {
				lo := pdu[2+i*2]
				var hi byte
				if i*2+1 < bc {
					hi = pdu[2+i*2+1]
				}
				f.Data[i] = uint16(lo) | uint16(hi)<<8
			}
		} else {
			if bc%2 != 0 {
				return ErrInvalidLen
			}
			f.RegCount = common.Quantity(bc / 2)
			for i := 0; i < int(f.RegCount); i++ {
				f.Data[i] = binary.BigEndian.Uint16(pdu[2+i*2 : 4+i*2])
			}
		}
		return nil

	case common.FuncWriteSingleCoil, common.FuncWriteSingleRegister:
		if len(pdu) != 5 {
			return ErrInvalidLen
		}
		f.RegAddress = common.Address(binary.BigEndian.Uint16(pdu[1:3]))
		f.Data[0] = binary.BigEndian.Uint16(pdu[3:5])
		f.RegCount = 1
		return validate(f)

	case common.FuncWriteMultipleCoils, common.FuncWriteMultipleRegisters:
		if len(pdu) < 5 {
			return ErrInvalidLen
		}
		f.RegAddress = common.Address(binary.BigEndian.Uint16(pdu[1:3]))
		f.RegCount = common.Quantity(binary.BigEndian.Uint16(pdu[3:5]))
		if msgType == frame.Response {
			if len(pdu) != 5 {
				return ErrInvalidLen
			}
			return validate(f)
		}
		if len(pdu) < 6 {
			return ErrInvalidLen
		}
		bc := int(pdu[5])
		if len(pdu) != 6+bc {
			return ErrInvalidLen
		}
		if err := validate(f); err != nil {
			return err
		}
		if f.FC == common.FuncWriteMultipleCoils {
			nbWords := (bc + 1) / 2
			for i := 0; i < nbWords; i++ {
				lo := pdu[6+i*2]
				var hi byte
				if i*2+1 < bc {
					hi = pdu[6+i*2+1]
				}
				f.Data[i] = uint16(lo) | uint16(hi)<<8
			}
		} else {
			if bc != int(f.RegCount)*2 {
				return ErrInvalidRegCount
			}
			for i := 0; i < int(f.RegCount); i++ {
				f.Data[i] = binary.BigEndian.Uint16(pdu[6+i*2 : 8+i*2])
			}
		}
		return nil
	}

	return ErrInvalidFC
}
