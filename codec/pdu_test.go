package codec

import (
	"errors"
	"testing"

	"github.com/kestrel-automation/modbus/common"
	"github.com/kestrel-automation/modbus/frame"
)

func TestEncodeRejectsResponseToBroadcast(t *testing.T) {
	f := &frame.Frame{Type: frame.Response, FC: common.FuncReadHoldingRegisters, SlaveID: common.BroadcastSlaveID, RegCount: 1}
	if _, err := encodePDU(f); !errors.Is(err, ErrInvalidSlaveID) {
		t.Fatalf("err = %v, want ErrInvalidSlaveID", err)
	}
}

func TestEncodeRejectsSlaveIDAboveMax(t *testing.T) {
	f := &frame.Frame{Type: frame.Request, FC: common.FuncReadHoldingRegisters, SlaveID: common.MaxSlaveID + 1, RegCount: 1}
	if _, err := encodePDU(f); !errors.Is(err, ErrInvalidSlaveID) {
		t.Fatalf("err = %v, want ErrInvalidSlaveID", err)
	}
}

func TestEncodeAllowsBroadcastAboveMaxCheck(t *testing.T) {
	f := &frame.Frame{Type: frame.Request, FC: common.FuncWriteSingleRegister, SlaveID: common.BroadcastSlaveID, RegCount: 1}
	if _, err := encodePDU(f); err != nil {
		t.Fatalf("encodePDU: %v, want broadcast write to be accepted", err)
	}
}

func TestEncodeRejectsUnknownFunction(t *testing.T) {
	f := &frame.Frame{Type: frame.Request, FC: 0x2B, SlaveID: 1, RegCount: 1}
	if _, err := encodePDU(f); !errors.Is(err, ErrInvalidFC) {
		t.Fatalf("err = %v, want ErrInvalidFC", err)
	}
}

func TestEncodeRejectsCountAboveMax(t *testing.T) {
	f := &frame.Frame{Type: frame.Request, FC: common.FuncReadHoldingRegisters, SlaveID: 1, RegCount: common.MaxRegistersRead + 1}
	if _, err := encodePDU(f); !errors.Is(err, ErrInvalidRegCount) {
		t.Fatalf("err = %v, want ErrInvalidRegCount", err)
	}
}

func TestEncodeRejectsZeroCount(t *testing.T) {
	f := &frame.Frame{Type: frame.Request, FC: common.FuncReadHoldingRegisters, SlaveID: 1, RegCount: 0}
	if _, err := encodePDU(f); !errors.Is(err, ErrInvalidRegCount) {
		t.Fatalf("err = %v, want ErrInvalidRegCount", err)
	}
}

func TestEncodeRejectsSingleWriteCountNotOne(t *testing.T) {
	f := &frame.Frame{Type: frame.Request, FC: common.FuncWriteSingleRegister, SlaveID: 1, RegCount: 2}
	if _, err := encodePDU(f); !errors.Is(err, ErrInvalidRegCount) {
		t.Fatalf("err = %v, want ErrInvalidRegCount", err)
	}
}

func TestCodecRoundTripCoilsReadResponse(t *testing.T) {
	resp := &frame.Frame{
		Type:       frame.Response,
		FC:         common.FuncReadCoils,
		SlaveID:    1,
		RegAddress: 0,
		RegCount:   10,
	}
	resp.SetCoils([]bool{true, false, true, true, false, false, true, false, true, true}, 0)
	pdu, err := encodePDU(resp)
	if err != nil {
		t.Fatalf("encodePDU: %v", err)
	}
	decoded := &frame.Frame{}
	if err := decodePDU(pdu, frame.Response, decoded); err != nil {
		t.Fatalf("decodePDU: %v", err)
	}
	// The wire carries only a byte count (2 bytes for 10 coils), so the
	// decoded RegCount is byteCount*8; the client re-injects the requested count.
	if decoded.RegCount != 16 {
		t.Fatalf("RegCount = %d, want 16", decoded.RegCount)
	}
	want := []bool{true, false, true, true, false, false, true, false, true, true}
	for i, w := range want {
		if decoded.GetCoil(i) != w {
			t.Errorf("coil %d = %v, want %v", i, decoded.GetCoil(i), w)
		}
	}
}
