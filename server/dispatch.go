package server

import (
	"context"

	"github.com/kestrel-automation/modbus/common"
	"github.com/kestrel-automation/modbus/frame"
	"github.com/kestrel-automation/modbus/transport"
	"github.com/kestrel-automation/modbus/wordstore"
)

// regTypeFor maps a function code to the register address space it operates on.
func regTypeFor(fc common.FunctionCode) wordstore.RegType {
	switch fc {
	case common.FuncReadCoils, common.FuncWriteSingleCoil, common.FuncWriteMultipleCoils:
		return wordstore.Coil
	case common.FuncReadDiscreteInputs:
		return wordstore.DiscreteInput
	case common.FuncReadInputRegisters:
		return wordstore.InputRegister
	default: // ReadHoldingRegisters, WriteSingleRegister, WriteMultipleRegisters
		return wordstore.HoldingRegister
	}
}

// onFrame is the Transport receive callback. cbCtx is the transport the
// frame arrived on, as passed to SetRecvCallback in Begin.
// Ref: SPEC_FULL.md §4.5
func (s *Server) onFrame(f *frame.Frame, cbCtx any) {
	t, _ := cbCtx.(transport.Transport)
	if t == nil {
		return
	}
	ctx := context.Background()

	if f.Type != frame.Request {
		return // step 3: drop non-REQUEST frames
	}

	accepted := f.IsBroadcast() || f.SlaveID == s.slaveID || s.slaveID == common.BroadcastSlaveID || t.CatchAllSlaveIDs()
	if !accepted {
		return // step 2: address filter
	}

	broadcast := f.IsBroadcast()

	if !s.acquireMutex() {
		if !broadcast {
			s.sendResponse(ctx, t, s.exceptionResponse(f, common.ExceptionSlaveDeviceBusy))
		}
		return
	}

	if broadcast && common.IsReadFunction(f.FC) {
		s.releaseMutex()
		return // step 4: reject read FCs on broadcast, silently
	}

	if !common.IsKnownFunction(f.FC) {
		s.releaseMutex()
		if !broadcast {
			s.sendResponse(ctx, t, s.exceptionResponse(f, common.ExceptionIllegalFunction))
		}
		return
	}

	var resp *frame.Frame
	if common.IsReadFunction(f.FC) {
		resp = s.handleRead(f)
	} else {
		resp = s.handleWrite(f)
	}
	s.releaseMutex()

	if broadcast {
		return // server never replies to broadcast
	}
	s.sendResponse(ctx, t, resp)
}

func (s *Server) sendResponse(ctx context.Context, t transport.Transport, resp *frame.Frame) {
	if resp == nil {
		return
	}
	if err := t.SendFrame(ctx, resp, nil, nil); err != nil {
		s.log.Error(ctx, "server: send response failed: %v", err)
	}
}

func (s *Server) exceptionResponse(req *frame.Frame, ec common.ExceptionCode) *frame.Frame {
	return &frame.Frame{
		Type:          frame.Response,
		FC:            req.FC,
		SlaveID:       req.SlaveID,
		ExceptionCode: ec,
	}
}

// handleRead implements the read path: a validation scan followed by a
// streaming execution scan. Caller holds the dispatch mutex.
func (s *Server) handleRead(req *frame.Frame) *frame.Frame {
	regType := regTypeFor(req.FC)
	start := req.RegAddress
	end := start + common.Address(req.RegCount)

	if ec := s.validateRead(regType, start, end); ec != common.ExceptionNone {
		return s.exceptionResponse(req, ec)
	}

	resp := &frame.Frame{
		Type:       frame.Response,
		FC:         req.FC,
		SlaveID:    req.SlaveID,
		RegAddress: req.RegAddress,
		RegCount:   req.RegCount,
	}

	coil := common.IsCoilFunction(req.FC)
	addr := start
	for addr < end {
		w, ok := s.store.FindContaining(regType, addr)
		if !ok {
			next, hasNext := s.store.FindNext(regType, addr+1)
			if hasNext && next.StartAddr < end {
				addr = next.StartAddr
			} else {
				addr = end
			}
			continue
		}
		values, ec := s.readWord(w)
		if ec != common.ExceptionNone {
			return s.exceptionResponse(req, ec)
		}
		for i, v := range values {
			a := w.StartAddr + common.Address(i)
			if a < start || a >= end {
				continue
			}
			offset := int(a - start)
			if coil {
				if v != 0 {
					resp.Data[offset/16] |= 1 << uint(offset%16)
				}
			} else {
				resp.Data[offset] = v
			}
		}
		addr = w.End()
	}
	return resp
}

// validateRead walks [start,end) checking every address is covered, not
// partially covered, and readable.
func (s *Server) validateRead(regType wordstore.RegType, start, end common.Address) common.ExceptionCode {
	addr := start
	for addr < end {
		w, ok := s.store.FindContaining(regType, addr)
		if !ok {
			if s.rejectUndefined {
				return common.ExceptionIllegalDataAddress
			}
			next, hasNext := s.store.FindNext(regType, addr+1)
			if hasNext && next.StartAddr < end {
				addr = next.StartAddr
			} else {
				addr = end
			}
			continue
		}
		if w.StartAddr < start || w.End() > end {
			return common.ExceptionIllegalDataAddress
		}
		if !w.HasReadAccess() {
			return common.ExceptionIllegalDataAddress
		}
		addr = w.End()
	}
	return common.ExceptionNone
}

func (s *Server) readWord(w *wordstore.Word) ([]uint16, common.ExceptionCode) {
	if w.DirectPtr != nil {
		return []uint16{*w.DirectPtr}, common.ExceptionNone
	}
	out := make([]uint16, w.NbRegs)
	ec := w.ReadHandler(w, out, w.UserCtx)
	return out, ec
}

// handleWrite implements the write path: validation scan, then an
// execution scan that records (but does not stop on) the first exception.
// Caller holds the dispatch mutex.
func (s *Server) handleWrite(req *frame.Frame) *frame.Frame {
	regType := regTypeFor(req.FC)
	start := req.RegAddress
	end := start + common.Address(req.RegCount)

	if ec := s.validateWrite(regType, start, end); ec != common.ExceptionNone {
		return s.exceptionResponse(req, ec)
	}

	coil := common.IsCoilFunction(req.FC)
	var firstErr common.ExceptionCode

	addr := start
	for addr < end {
		w, ok := s.store.FindContaining(regType, addr)
		if !ok {
			addr++
			continue
		}
		values := make([]uint16, w.NbRegs)
		for i := range values {
			a := w.StartAddr + common.Address(i)
			offset := int(a - start)
			if coil {
				bit := (req.Data[offset/16] >> uint(offset%16)) & 1
				values[i] = bit
			} else {
				values[i] = req.Data[offset]
			}
		}
		ec := s.writeWord(values, w)
		if ec != common.ExceptionNone && firstErr == common.ExceptionNone {
			firstErr = ec
		}
		addr = w.End()
	}

	if firstErr != common.ExceptionNone {
		return s.exceptionResponse(req, firstErr)
	}

	resp := &frame.Frame{
		Type:       frame.Response,
		FC:         req.FC,
		SlaveID:    req.SlaveID,
		RegAddress: req.RegAddress,
		RegCount:   req.RegCount,
	}
	if common.IsSingleWriteFunction(req.FC) {
		resp.Data[0] = req.Data[0]
	}
	return resp
}

func (s *Server) validateWrite(regType wordstore.RegType, start, end common.Address) common.ExceptionCode {
	addr := start
	for addr < end {
		w, ok := s.store.FindContaining(regType, addr)
		if !ok {
			return common.ExceptionIllegalDataAddress
		}
		if w.StartAddr < start || w.End() > end {
			return common.ExceptionIllegalDataAddress
		}
		if !w.HasWriteAccess() {
			return common.ExceptionIllegalDataAddress
		}
		addr = w.End()
	}
	return common.ExceptionNone
}

func (s *Server) writeWord(values []uint16, w *wordstore.Word) common.ExceptionCode {
	if w.WriteHandler != nil {
		return w.WriteHandler(values, w, w.UserCtx)
	}
	if w.DirectPtr != nil && len(values) == 1 {
		*w.DirectPtr = values[0]
		return common.ExceptionNone
	}
	return common.ExceptionIllegalDataAddress
}
