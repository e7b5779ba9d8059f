package codec

import (
	"bytes"
	"testing"

	"github.com/kestrel-automation/modbus/common"
	"github.com/kestrel-automation/modbus/frame"
)

// TestTCPWriteSingleRegisterScenario is scenario S2: txn=1, write register 10
// to value 42.
func TestTCPWriteSingleRegisterScenario(t *testing.T) {
	req := &frame.Frame{
		Type:       frame.Request,
		FC:         common.FuncWriteSingleRegister,
		SlaveID:    1,
		RegAddress: 10,
		RegCount:   1,
	}
	req.Data[0] = 42
	wire, err := EncodeTCP(req, 1)
	if err != nil {
		t.Fatalf("EncodeTCP: %v", err)
	}
	want := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x06, 0x01, 0x06, 0x00, 0x0A, 0x00, 0x2A}
	if !bytes.Equal(wire, want) {
		t.Fatalf("wire = % X, want % X", wire, want)
	}

	decoded, txnID, err := DecodeTCP(wire, frame.Request)
	if err != nil {
		t.Fatalf("DecodeTCP: %v", err)
	}
	if txnID != 1 {
		t.Fatalf("txnID = %d, want 1", txnID)
	}
	if decoded.RegAddress != 10 || decoded.Data[0] != 42 {
		t.Fatalf("decoded addr=%d data=%d, want 10, 42", decoded.RegAddress, decoded.Data[0])
	}
}

func TestTCPInvalidProtocolID(t *testing.T) {
	wire := []byte{0x00, 0x01, 0x00, 0x01, 0x00, 0x06, 0x01, 0x06, 0x00, 0x0A, 0x00, 0x2A}
	if _, _, err := DecodeTCP(wire, frame.Request); err != ErrInvalidMBAPProtocolID {
		t.Fatalf("err = %v, want ErrInvalidMBAPProtocolID", err)
	}
}

func TestTCPInvalidLength(t *testing.T) {
	wire := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x09, 0x01, 0x06, 0x00, 0x0A, 0x00, 0x2A}
	if _, _, err := DecodeTCP(wire, frame.Request); err != ErrInvalidMBAPLen {
		t.Fatalf("err = %v, want ErrInvalidMBAPLen", err)
	}
}

func TestTCPRoundTripReadHoldingRegistersResponse(t *testing.T) {
	resp := &frame.Frame{
		Type:       frame.Response,
		FC:         common.FuncReadHoldingRegisters,
		SlaveID:    1,
		RegAddress: 100,
		RegCount:   2,
	}
	resp.Data[0], resp.Data[1] = 0x1234, 0x5678
	wire, err := EncodeTCP(resp, 7)
	if err != nil {
		t.Fatalf("EncodeTCP: %v", err)
	}
	decoded, txnID, err := DecodeTCP(wire, frame.Response)
	if err != nil {
		t.Fatalf("DecodeTCP: %v", err)
	}
	if txnID != 7 {
		t.Fatalf("txnID = %d, want 7", txnID)
	}
	if decoded.Data[0] != 0x1234 || decoded.Data[1] != 0x5678 {
		t.Fatalf("decoded registers = %04X %04X, want 1234 5678", decoded.Data[0], decoded.Data[1])
	}
}

func TestTCPExceptionResponse(t *testing.T) {
	resp := &frame.Frame{
		Type:          frame.Response,
		FC:            common.FuncReadHoldingRegisters,
		SlaveID:       1,
		ExceptionCode: common.ExceptionIllegalDataAddress,
	}
	wire, err := EncodeTCP(resp, 3)
	if err != nil {
		t.Fatalf("EncodeTCP: %v", err)
	}
	decoded, _, err := DecodeTCP(wire, frame.Response)
	if err != nil {
		t.Fatalf("DecodeTCP: %v", err)
	}
	if !decoded.IsException() || decoded.ExceptionCode != common.ExceptionIllegalDataAddress {
		t.Fatalf("decoded exception = %v, want IllegalDataAddress", decoded.ExceptionCode)
	}
}
