package client

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/kestrel-automation/modbus/common"
	"github.com/kestrel-automation/modbus/frame"
)

// Callback receives the outcome of an asynchronous request. response is nil
// on failure; a non-nil response carries ExceptionCode set when the server
// replied with a Modbus exception (result is still nil in that case — the
// transport exchange itself succeeded).
// Ref: SPEC_FULL.md §6.4
type Callback func(result error, response *frame.Frame, userCtx any)

// ResultTracker is a caller-owned result cell for SendRequestAsync.
type ResultTracker struct {
	mu       sync.Mutex
	done     bool
	response *frame.Frame
	err      error
}

// Done reports whether the tracked request has finalized.
func (t *ResultTracker) Done() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Result returns the finalized response/error. Valid only once Done reports true.
func (t *ResultTracker) Result() (*frame.Frame, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.response, t.err
}

func (t *ResultTracker) set(resp *frame.Frame, err error) {
	t.mu.Lock()
	t.response, t.err, t.done = resp, err, true
	t.mu.Unlock()
}

// pendingRequest is the client's single in-flight request slot. Ref: SPEC_FULL.md §3, §4.6
type pendingRequest struct {
	fc         common.FunctionCode
	slaveID    common.SlaveID
	regAddress common.Address
	regCount   common.Quantity

	createdAt time.Time
	timer     *time.Timer

	// Exactly one of waiter/tracker/callback is set, selected by which
	// SendRequest* entry point armed this pending request.
	waiter   chan struct{}
	tracker  *ResultTracker
	callback Callback
	cbCtx    any

	// Four-layer timer race defense. Ref: SPEC_FULL.md §4.6 "Timer race hazard"
	active           atomic.Bool
	respClosing      atomic.Bool
	timerClosing     atomic.Bool
	callbackDisarmed atomic.Bool

	resultFrame *frame.Frame
	resultErr   error
}

// idle reports whether a new request may be armed. Safe to call without
// the state mutex: SendRequest re-checks under the lock before committing.
func (p *pendingRequest) idle() bool {
	return !p.active.Load() && !p.respClosing.Load() && !p.timerClosing.Load()
}

// killTimer neutralizes the pending timeout timer from the response path.
// If Stop() cannot guarantee the callback will never run, the callback is
// logically disarmed instead: it checks callbackDisarmed at entry and
// becomes a no-op if a late firing does occur.
// Ref: SPEC_FULL.md §4.6 "Physical timer neutralization (killTimer)"
func (p *pendingRequest) killTimer() {
	p.respClosing.Store(true)
	if p.timer == nil {
		return
	}
	if !p.timer.Stop() {
		// Stop returned false: the callback already fired or is about to.
		// We cannot un-schedule it, so disarm it logically instead.
		p.callbackDisarmed.Store(true)
	}
}

// finalize applies the terminal result under the caller-held state mutex,
// recording it in whichever result sink this pending request was armed
// with, and returns the async callback (if any) to be invoked *outside*
// the lock by the caller. Ref: SPEC_FULL.md §4.6 "Mutual exclusion"
func (p *pendingRequest) finalize(resp *frame.Frame, err error) (cb Callback, cbResp *frame.Frame, cbErr error, cbCtx any, hasCallback bool) {
	p.resultFrame = resp
	p.resultErr = err
	p.active.Store(false)
	p.respClosing.Store(false)

	if p.tracker != nil {
		p.tracker.set(resp, err)
	}
	if p.waiter != nil {
		select {
		case p.waiter <- struct{}{}:
		default:
		}
	}
	if p.callback != nil {
		return p.callback, resp, err, p.cbCtx, true
	}
	return nil, nil, nil, nil, false
}
