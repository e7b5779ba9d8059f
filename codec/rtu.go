package codec

import (
	"github.com/kestrel-automation/modbus/common"
	"github.com/kestrel-automation/modbus/frame"
)

// EncodeRTU serializes f as a Modbus RTU ADU: slaveId | PDU | CRC16.
// Ref: SPEC_FULL.md §4.2
func EncodeRTU(f *frame.Frame) ([]byte, error) {
	if f.SlaveID == common.BroadcastSlaveID && f.Type == frame.Request && !common.IsWriteFunction(f.FC) {
		return nil, ErrInvalidSlaveID
	}
	pdu, err := encodePDU(f)
	if err != nil {
		return nil, err
	}
	adu := make([]byte, 0, 1+len(pdu)+2)
	adu = append(adu, byte(f.SlaveID))
	adu = append(adu, pdu...)
	adu = appendCRC(adu)
	if len(adu) > common.RTUMaxFrame {
		return nil, ErrInvalidLen
	}
	return adu, nil
}

// DecodeRTU parses an RTU ADU into a Frame. msgType must be declared by the
// caller (Request or Response); the wire alone does not distinguish them.
// Ref: SPEC_FULL.md §4.2
func DecodeRTU(wire []byte, msgType frame.Type) (*frame.Frame, error) {
	if len(wire) < common.RTUMinFrame || len(wire) > common.RTUMaxFrame {
		return nil, ErrInvalidLen
	}
	if !verifyCRC(wire) {
		return nil, ErrInvalidCRC
	}
	slaveID := common.SlaveID(wire[0])
	pdu := wire[1 : len(wire)-2]

	f := &frame.Frame{SlaveID: slaveID}
	if err := decodePDU(pdu, msgType, f); err != nil {
		return nil, err
	}
	f.SlaveID = slaveID

	if msgType == frame.Request && f.SlaveID == common.BroadcastSlaveID && common.IsReadFunction(f.FC) {
		return nil, ErrInvalidSlaveID
	}
	return f, nil
}
