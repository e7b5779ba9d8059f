package codec

import (
	"encoding/binary"

	"github.com/kestrel-automation/modbus/common"
	"github.com/kestrel-automation/modbus/frame"
)

// mbapProtocolID is the fixed Modbus protocol identifier on TCP.
// Ref: Modbus_Application_Protocol_V1_1b3.pdf, Section 4.1 (MBAP Header), Field 2
const mbapProtocolID = 0x0000

// EncodeTCP serializes f as an MBAP-framed ADU: txnId | protoId | length | unitId | PDU.
// Ref: SPEC_FULL.md §4.3
func EncodeTCP(f *frame.Frame, txnID common.TransactionID) ([]byte, error) {
	pdu, err := encodePDU(f)
	if err != nil {
		return nil, err
	}
	length := uint16(1 + len(pdu)) // unitId + PDU
	adu := make([]byte, common.TCPHeaderLength, common.TCPHeaderLength+len(pdu))
	binary.BigEndian.PutUint16(adu[0:2], uint16(txnID))
	binary.BigEndian.PutUint16(adu[2:4], mbapProtocolID)
	binary.BigEndian.PutUint16(adu[4:6], length)
	adu[6] = byte(f.SlaveID)
	adu = append(adu, pdu...)
	if len(adu) > common.TCPMaxFrame {
		return nil, ErrInvalidLen
	}
	return adu, nil
}

// DecodeTCP parses an MBAP-framed ADU, returning the Frame and the echoed
// transaction id. msgType must be declared by the caller.
// Ref: SPEC_FULL.md §4.3
func DecodeTCP(wire []byte, msgType frame.Type) (*frame.Frame, common.TransactionID, error) {
	if len(wire) < common.TCPHeaderLength {
		return nil, 0, ErrInvalidLen
	}
	if len(wire) > common.TCPMaxFrame {
		return nil, 0, ErrInvalidMBAPLen
	}
	txnID := common.TransactionID(binary.BigEndian.Uint16(wire[0:2]))
	protoID := binary.BigEndian.Uint16(wire[2:4])
	if protoID != mbapProtocolID {
		return nil, 0, ErrInvalidMBAPProtocolID
	}
	length := binary.BigEndian.Uint16(wire[4:6])
	if int(length) != len(wire)-6 {
		return nil, 0, ErrInvalidMBAPLen
	}
	slaveID := common.SlaveID(wire[6])
	pdu := wire[7:]

	f := &frame.Frame{SlaveID: slaveID}
	if err := decodePDU(pdu, msgType, f); err != nil {
		return nil, 0, err
	}
	f.SlaveID = slaveID
	return f, txnID, nil
}
