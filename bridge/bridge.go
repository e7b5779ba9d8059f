// Package bridge couples two Transport pairs with inverted roles, forwarding
// frames between them untouched. It has no Modbus semantics of its own: it
// does not inspect register addresses, validate function codes, or touch a
// WordStore. Encoding/decoding, including TCP transaction-id management,
// stays inside each side's Transport implementation.
// Ref: SPEC_FULL.md §4.7
package bridge

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

// MaxTransactions bounds the pending-forward table: the same ceiling the
// reference stack's transaction pool sizes itself to, since both exist for
// the same reason (a fixed-size correlation table that must never grow
// unbounded under a hostile or leaking peer).
const MaxTransactions = 0xFFFF + 1

// DefaultTimeout is how long a forwarded request waits for B's response
// before the bridge gives up and frees the slot.
const DefaultTimeout = 5 * time.Second

var (
	ErrRoleMismatch   = fmt.Errorf("bridge: A and B must have inverted roles")
	ErrBusy           = fmt.Errorf("bridge: downstream transport busy")
	ErrForwardTimeout = fmt.Errorf("bridge: no response from downstream transport")
)

// pendingForward is one in-flight A-request waiting on B's response.
type pendingForward struct {
	from    transport.Transport // the A side this request arrived on
	reqFC   common.FunctionCode
	slaveID common.SlaveID
	done    chan struct{}
}

// Bridge couples A (upstream, the side that receives requests) and B
// (downstream, the side that receives responses): a request received on A is
// forwarded onto B, and B's response is forwarded back onto A. A and B must
// declare opposite Role()s, matching the role-inversion every hop in a
// Modbus gateway performs. Forwarding runs in the A-to-B direction only:
// responses arriving on A and requests arriving on B are dropped, so A is
// the server-role transport and B the client-role one.
type Bridge struct {
	a, b transport.Transport
	log  common.LoggerInterface

	mu      sync.Mutex
	inFlite chan struct{} // 1-buffered: bounds B to one forwarded request at a time
	pending map[uint32]*pendingForward
	nextID  uint32

	timeout time.Duration
}

// Option configures a Bridge at construction time.
type Option func(*Bridge)

// WithLogger installs a logger. Defaults to logging.NewNoopLogger().
func WithLogger(l common.LoggerInterface) Option {
	return func(br *Bridge) { br.log = l }
}

// WithForwardTimeout bounds how long a forwarded request waits for B's response.
func WithForwardTimeout(d time.Duration) Option {
	return func(br *Bridge) { br.timeout = d }
}

// New constructs a Bridge coupling a and b. a and b must have inverted
// Role()s (one client-facing, one server-facing); New returns
// ErrRoleMismatch otherwise. New does not check which of the two is the
// server-role side; requests are forwarded only when they arrive on a.
func New(a, b transport.Transport, opts ...Option) (*Bridge, error) {
	if a.Role() == b.Role() {
		return nil, ErrRoleMismatch
	}
	br := &Bridge{
		a:       a,
		b:       b,
		log:     logging.NewNoopLogger(),
		inFlite: make(chan struct{}, 1),
		pending: make(map[uint32]*pendingForward, 16),
		timeout: DefaultTimeout,
	}
	br.inFlite <- struct{}{}
	for _, opt := range opts {
		opt(br)
	}
	return br, nil
}

// Begin starts both transports and wires the cross-forwarding callbacks.
func (br *Bridge) Begin(ctx context.Context) error {
	if err := br.a.SetRecvCallback(br.onRecvA, nil); err != nil {
		return fmt.Errorf("bridge: wiring A: %w", err)
	}
	if err := br.b.SetRecvCallback(br.onRecvB, nil); err != nil {
		return fmt.Errorf("bridge: wiring B: %w", err)
	}
	if err := br.a.Begin(ctx); err != nil {
		return fmt.Errorf("bridge: starting A: %w", err)
	}
	if err := br.b.Begin(ctx); err != nil {
		return fmt.Errorf("bridge: starting B: %w", err)
	}
	return nil
}

// onRecvA handles a frame arriving on the A side. Requests are forwarded to
// B; anything else (a response arriving on what should be a request-only
// side) is dropped.
func (br *Bridge) onRecvA(f *frame.Frame, _ any) {
	if f.Type != frame.Request {
		return
	}
	br.forward(br.a, br.b, f)
}

// onRecvB handles a frame arriving on the B side: its responses are
// correlated back to the A side that originated the request and forwarded.
func (br *Bridge) onRecvB(f *frame.Frame, _ any) {
	if f.Type != frame.Response {
		return
	}
	br.mu.Lock()
	var match *pendingForward
	var matchID uint32
	for id, p := range br.pending {
		if p.reqFC == f.FC && p.slaveID == f.SlaveID {
			match, matchID = p, id
			break
		}
	}
	if match != nil {
		delete(br.pending, matchID)
	}
	br.mu.Unlock()

	if match == nil {
		br.log.Warn(context.Background(), "bridge: unmatched response fc=%v slaveId=%v", f.FC, f.SlaveID)
		return
	}
	ctx := context.Background()
	if err := match.from.SendFrame(ctx, f, nil, nil); err != nil {
		br.log.Error(ctx, "bridge: forwarding response to A failed: %v", err)
	}
	close(match.done)
}

// forward sends req (received on src) out on dst, tracking it in the
// pending table until dst's response arrives or the forward times out.
// Ref: SPEC_FULL.md §4.7
func (br *Bridge) forward(src, dst transport.Transport, req *frame.Frame) {
	select {
	case <-br.inFlite:
	default:
		if !req.IsBroadcast() {
			br.log.Warn(context.Background(), "bridge: downstream busy, dropping fc=%v", req.FC)
		}
		return
	}
	defer func() { br.inFlite <- struct{}{} }()

	p := &pendingForward{from: src, reqFC: req.FC, slaveID: req.SlaveID, done: make(chan struct{})}

	br.mu.Lock()
	if len(br.pending) >= MaxTransactions {
		br.mu.Unlock()
		br.log.Error(context.Background(), "bridge: pending-forward table full")
		return
	}
	id := br.nextID
	br.nextID++
	br.pending[id] = p
	br.mu.Unlock()

	ctx := context.Background()
	if err := dst.SendFrame(ctx, req, nil, nil); err != nil {
		br.mu.Lock()
		delete(br.pending, id)
		br.mu.Unlock()
		br.log.Error(ctx, "bridge: forwarding request to downstream failed: %v", err)
		return
	}

	if req.IsBroadcast() {
		// Downstream elicits no reply; free the slot immediately instead of
		// waiting out the full forward timeout.
		br.mu.Lock()
		delete(br.pending, id)
		br.mu.Unlock()
		return
	}

	select {
	case <-p.done:
	case <-time.After(br.timeout):
		br.mu.Lock()
		delete(br.pending, id)
		br.mu.Unlock()
		br.log.Warn(ctx, "bridge: %v fc=%v slaveId=%v", ErrForwardTimeout, req.FC, req.SlaveID)
	}
}
