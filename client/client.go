// Package client implements the Modbus master-side request lifecycle: a
// single-in-flight request coordinator with bounded-time response handling
// and exactly-once finalization in the face of a concurrently-firing
// timeout timer.
// Ref: SPEC_FULL.md §4.6
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kestrel-automation/modbus/common"
	"github.com/kestrel-automation/modbus/frame"
	"github.com/kestrel-automation/modbus/logging"
	"github.com/kestrel-automation/modbus/transport"
)

// DefaultRequestTimeout is used when no WithRequestTimeout option is given.
const DefaultRequestTimeout = 1000 * time.Millisecond

// syncWaitEpsilon is the safety margin SendRequest waits beyond its own
// timeout before force-finalizing, covering scheduler jitter between the
// timer firing and the waiter being signaled.
const syncWaitEpsilon = 25 * time.Millisecond

// Client drives a single Transport in the client Role, coordinating at
// most one in-flight request at a time.
type Client struct {
	transport transport.Transport
	timeout   time.Duration
	log       common.LoggerInterface

	stateMu sync.Mutex
	pending pendingRequest
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithRequestTimeout overrides DefaultRequestTimeout.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithLogger installs a logger. Defaults to logging.NewNoopLogger().
func WithLogger(l common.LoggerInterface) Option {
	return func(c *Client) { c.log = l }
}

// New constructs a Client bound to t. Call Begin before sending requests.
func New(t transport.Transport, opts ...Option) *Client {
	c := &Client{
		transport: t,
		timeout:   DefaultRequestTimeout,
		log:       logging.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Begin wires this client as the transport's receive callback and starts it.
func (c *Client) Begin(ctx context.Context) error {
	if err := c.transport.SetRecvCallback(c.onRecv, nil); err != nil {
		return fmt.Errorf("%w: %v", ErrInitFailed, err)
	}
	if err := c.transport.Begin(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrInitFailed, err)
	}
	return nil
}

// IsReady reports whether the client can accept a new request.
func (c *Client) IsReady() bool {
	return c.pending.idle() && c.transport.IsReady()
}

// arm validates req and installs it as the single pending request. Returns
// ErrBusy if a request is already in flight or mid-finalization.
func (c *Client) arm(req *frame.Frame) (*pendingRequest, error) {
	if req == nil || req.Type != frame.Request || !common.IsKnownFunction(req.FC) {
		return nil, ErrInvalidFrame
	}
	if !c.pending.idle() {
		return nil, ErrBusy
	}

	c.stateMu.Lock()
	if !c.pending.idle() {
		c.stateMu.Unlock()
		return nil, ErrBusy
	}
	p := &c.pending
	p.fc = req.FC
	p.slaveID = req.SlaveID
	p.regAddress = req.RegAddress
	p.regCount = req.RegCount
	p.createdAt = time.Now()
	p.waiter = nil
	p.tracker = nil
	p.callback = nil
	p.cbCtx = nil
	p.resultFrame = nil
	p.resultErr = nil
	p.respClosing.Store(false)
	p.timerClosing.Store(false)
	p.callbackDisarmed.Store(false)
	p.active.Store(true)
	c.stateMu.Unlock()

	p.timer = time.AfterFunc(c.timeout, func() { c.onTimeout(p) })
	return p, nil
}

// send transmits req on behalf of the already-armed p, finalizing
// immediately on a synchronous send error.
func (c *Client) send(ctx context.Context, p *pendingRequest, req *frame.Frame) {
	err := c.transport.SendFrame(ctx, req, c.onTxDone, p)
	if err != nil {
		c.finalizeResponse(p, nil, fmt.Errorf("%w: %v", ErrTxFailed, err))
	}
}

// SendRequest sends req and blocks for the response or timeout.
// Ref: SPEC_FULL.md §4.6 "Synchronous mode"
func (c *Client) SendRequest(ctx context.Context, req *frame.Frame) (*frame.Frame, error) {
	p, err := c.arm(req)
	if err != nil {
		return nil, err
	}
	p.waiter = make(chan struct{}, 1)
	c.send(ctx, p, req)

	select {
	case <-p.waiter:
	case <-ctx.Done():
		c.forceFinalize(p, ctx.Err())
	case <-time.After(c.timeout + syncWaitEpsilon):
		c.forceFinalize(p, ErrTimeout)
	}
	return p.resultFrame, p.resultErr
}

// forceFinalize is the synchronous caller's last-resort fallback when
// neither a response nor the pending request's own timer has finalized it
// within the caller's wait budget (context cancellation, or scheduler
// jitter past timeout+epsilon).
func (c *Client) forceFinalize(p *pendingRequest, err error) {
	c.stateMu.Lock()
	if !p.active.Load() {
		c.stateMu.Unlock()
		return
	}
	c.stateMu.Unlock()

	p.killTimer()
	c.stateMu.Lock()
	if !p.active.Load() {
		c.stateMu.Unlock()
		return
	}
	cb, cbResp, cbErr, cbCtx, hasCb := p.finalize(nil, err)
	c.stateMu.Unlock()
	if hasCb {
		cb(cbErr, cbResp, cbCtx)
	}
}

// SendRequestAsync sends req and reports completion through tracker, which
// the caller polls or waits on.
func (c *Client) SendRequestAsync(ctx context.Context, req *frame.Frame, tracker *ResultTracker) error {
	p, err := c.arm(req)
	if err != nil {
		return err
	}
	p.tracker = tracker
	c.send(ctx, p, req)
	return nil
}

// SendRequestCallback sends req and invokes cb exactly once on completion,
// outside of any internal lock.
func (c *Client) SendRequestCallback(ctx context.Context, req *frame.Frame, cb Callback, cbCtx any) error {
	p, err := c.arm(req)
	if err != nil {
		return err
	}
	p.callback = cb
	p.cbCtx = cbCtx
	c.send(ctx, p, req)
	return nil
}

// onTxDone is the Transport send-completion callback.
func (c *Client) onTxDone(result transport.TxResult, cbCtx any) {
	p, ok := cbCtx.(*pendingRequest)
	if !ok || p != &c.pending {
		return
	}
	if result == transport.TxFailure {
		c.finalizeResponse(p, nil, ErrTxFailed)
		return
	}
	if p.slaveID == common.BroadcastSlaveID {
		empty := &frame.Frame{Type: frame.Response, FC: p.fc, SlaveID: p.slaveID, RegAddress: p.regAddress, RegCount: p.regCount}
		c.finalizeResponse(p, empty, nil)
	}
	// Unicast TX success: remain Pending, awaiting response or timeout.
}

// onRecv is the Transport receive callback.
// Ref: SPEC_FULL.md §4.6 "Response handling"
func (c *Client) onRecv(f *frame.Frame, _ any) {
	c.stateMu.Lock()
	p := &c.pending
	if !p.active.Load() {
		c.stateMu.Unlock()
		return
	}
	fc, slaveID, regAddr, regCount := p.fc, p.slaveID, p.regAddress, p.regCount
	c.stateMu.Unlock()

	if slaveID == common.BroadcastSlaveID {
		return // broadcast requests expect no reply
	}
	if !c.transport.CatchAllSlaveIDs() && f.SlaveID != slaveID {
		return
	}
	if f.Type != frame.Response || f.FC != fc {
		return
	}

	resp := *f
	resp.RegAddress = regAddr
	resp.RegCount = regCount
	c.finalizeResponse(p, &resp, nil)
}

// finalizeResponse runs the response-path branch of the four-layer defense:
// kill the timer (or logically disarm it), then finalize under the state
// mutex, then invoke any async callback outside the lock.
func (c *Client) finalizeResponse(p *pendingRequest, resp *frame.Frame, err error) {
	p.killTimer()
	c.stateMu.Lock()
	if !p.active.Load() {
		c.stateMu.Unlock()
		return
	}
	cb, cbResp, cbErr, cbCtx, hasCb := p.finalize(resp, err)
	c.stateMu.Unlock()
	if hasCb {
		cb(cbErr, cbResp, cbCtx)
	}
}

// onTimeout is the timer-path branch of the four-layer defense. It never
// calls killTimer and never disarms: that machinery exists solely for the
// response path to shut this one down.
func (c *Client) onTimeout(p *pendingRequest) {
	p.timerClosing.Store(true)
	defer p.timerClosing.Store(false)

	if p.callbackDisarmed.Load() {
		return
	}
	c.stateMu.Lock()
	if !p.active.Load() {
		c.stateMu.Unlock()
		return
	}
	c.transport.AbortCurrentTransaction()
	cb, cbResp, cbErr, cbCtx, hasCb := p.finalize(nil, ErrTimeout)
	c.stateMu.Unlock()
	if hasCb {
		cb(cbErr, cbResp, cbCtx)
	}
}
