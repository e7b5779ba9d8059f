// Package transporttcp is the reference Transport implementation for
// Modbus TCP: MBAP-framed requests/responses over a net.Conn. It is a
// concrete adapter of the core transport.Transport boundary, not the
// boundary itself, and is never imported by codec/wordstore/server/client.
// Ref: SPEC_FULL.md §6.2, §1 "reference adapters"
package transporttcp

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kestrel-automation/modbus/codec"
	"github.com/kestrel-automation/modbus/common"
	"github.com/kestrel-automation/modbus/frame"
	"github.com/kestrel-automation/modbus/logging"
	"github.com/kestrel-automation/modbus/transport"
)

// readTimeout bounds each read so the read loop can observe shutdown
// promptly, matching the reference stack's tcp_transport.go polling pattern.
const readTimeout = 100 * time.Millisecond

type pendingWrite struct {
	adu      []byte
	onTxDone func(transport.TxResult, any)
	cbCtx    any
}

// Adapter implements transport.Transport over a single net.Conn.
type Adapter struct {
	conn   net.Conn
	role   transport.Role
	logger common.LoggerInterface

	msgType frame.Type // Request for a server adapter's inbound decode, Response for a client's

	mu        sync.Mutex
	recvCb    func(*frame.Frame, any)
	recvCbCtx any
	lastTxnID common.TransactionID
	nextTxnID uint32

	dialTimeout time.Duration

	writeCh chan pendingWrite
	done    chan struct{}
	closed  atomic.Bool
}

// Option configures an Adapter at construction time.
type Option func(*Adapter)

// WithLogger installs a logger. Defaults to logging.NewNoopLogger().
func WithLogger(l common.LoggerInterface) Option {
	return func(a *Adapter) { a.logger = l }
}

// WithDialTimeout bounds NewClient's connection attempt.
func WithDialTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.dialTimeout = d }
}

// NewClient dials addr and returns a client-role Adapter decoding MBAP
// responses off the connection.
func NewClient(addr string, opts ...Option) (*Adapter, error) {
	a := &Adapter{role: transport.RoleClient, msgType: frame.Response, logger: logging.NewNoopLogger()}
	timeout := 10 * time.Second
	for _, opt := range opts {
		opt(a)
	}
	if a.dialTimeout > 0 {
		timeout = a.dialTimeout
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transporttcp: dial %s: %w", addr, err)
	}
	a.conn = conn
	return a, nil
}

// NewServerConn wraps an already-accepted connection as a server-role
// Adapter decoding MBAP requests off the connection. Use with a net.Listener
// Accept loop: one Adapter (and one server.Server, or a shared one) per connection.
func NewServerConn(conn net.Conn, opts ...Option) *Adapter {
	a := &Adapter{role: transport.RoleServer, msgType: frame.Request, conn: conn, logger: logging.NewNoopLogger()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Role reports this adapter's role.
func (a *Adapter) Role() transport.Role { return a.role }

// CatchAllSlaveIDs is always true for TCP: a single connection carries no
// per-bus addressing, so the unit id is advisory at best.
func (a *Adapter) CatchAllSlaveIDs() bool { return true }

// Begin starts the background read/write loops.
func (a *Adapter) Begin(ctx context.Context) error {
	a.writeCh = make(chan pendingWrite, 16)
	a.done = make(chan struct{})
	go a.readLoop()
	go a.writeLoop()
	return nil
}

// SetRecvCallback registers the callback invoked for every decoded frame.
func (a *Adapter) SetRecvCallback(cb func(*frame.Frame, any), cbCtx any) error {
	a.mu.Lock()
	a.recvCb, a.recvCbCtx = cb, cbCtx
	a.mu.Unlock()
	return nil
}

// AbortCurrentTransaction has no connection-level effect for TCP beyond
// letting the in-flight read time out naturally; there is no partial frame
// to discard mid-ADU since MBAP framing is read to completion.
func (a *Adapter) AbortCurrentTransaction() {}

// IsReady reports whether the adapter is open and able to accept a send.
func (a *Adapter) IsReady() bool {
	return !a.closed.Load()
}

// SendFrame encodes f as an MBAP ADU and queues it for the write loop.
// Server-role adapters echo the txnId of the most recently received
// request (matching the half-duplex, at-most-one-in-flight contract);
// client-role adapters mint a fresh one.
func (a *Adapter) SendFrame(ctx context.Context, f *frame.Frame, onTxDone func(transport.TxResult, any), cbCtx any) error {
	txnID := a.txnIDForSend()
	adu, err := codec.EncodeTCP(f, txnID)
	if err != nil {
		return fmt.Errorf("transporttcp: encode: %w", err)
	}
	select {
	case a.writeCh <- pendingWrite{adu: adu, onTxDone: onTxDone, cbCtx: cbCtx}:
		return nil
	case <-a.done:
		return fmt.Errorf("transporttcp: adapter closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Adapter) txnIDForSend() common.TransactionID {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.role == transport.RoleServer {
		return a.lastTxnID
	}
	a.nextTxnID++
	return common.TransactionID(a.nextTxnID)
}

func (a *Adapter) writeLoop() {
	for {
		select {
		case <-a.done:
			return
		case pw := <-a.writeCh:
			a.hexdump(context.Background(), "tcp-tx", pw.adu)
			_, err := a.conn.Write(pw.adu)
			if pw.onTxDone != nil {
				if err != nil {
					pw.onTxDone(transport.TxFailure, pw.cbCtx)
				} else {
					pw.onTxDone(transport.TxSuccess, pw.cbCtx)
				}
			}
			if err != nil {
				a.closeWithError(err)
				return
			}
		}
	}
}

func (a *Adapter) readLoop() {
	ctx := context.Background()
	header := make([]byte, common.TCPHeaderLength)
	for {
		select {
		case <-a.done:
			return
		default:
		}
		if deadline, ok := a.conn.(interface{ SetReadDeadline(time.Time) error }); ok {
			deadline.SetReadDeadline(time.Now().Add(readTimeout))
		}
		if _, err := io.ReadFull(a.conn, header); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			a.closeWithError(err)
			return
		}
		length := int(header[4])<<8 | int(header[5])
		if length <= 0 || length > common.TCPMaxFrame-6 {
			a.logger.Error(ctx, "transporttcp: invalid MBAP length %d", length)
			continue
		}
		body := make([]byte, length-1)
		if _, err := io.ReadFull(a.conn, body); err != nil {
			a.closeWithError(err)
			return
		}
		adu := append(header, body...)
		a.hexdump(ctx, "tcp-rx", adu)

		f, txnID, err := codec.DecodeTCP(adu, a.msgType)
		if err != nil {
			a.logger.Warn(ctx, "transporttcp: decode: %v", err)
			continue
		}
		a.mu.Lock()
		a.lastTxnID = txnID
		cb, cbCtx := a.recvCb, a.recvCbCtx
		a.mu.Unlock()
		if cb != nil {
			cb(f, cbCtx)
		}
		header = make([]byte, common.TCPHeaderLength)
	}
}

// hexdump forwards to the logger's optional LoggerInterfaceHexdump, a no-op
// when the configured logger doesn't implement it.
func (a *Adapter) hexdump(ctx context.Context, label string, data []byte) {
	if hd, ok := a.logger.(common.LoggerInterfaceHexdump); ok {
		hd.Hexdump(ctx, label, data)
	}
}

func (a *Adapter) closeWithError(err error) {
	if a.closed.Swap(true) {
		return
	}
	a.logger.Error(context.Background(), "transporttcp: connection closed: %v", err)
	close(a.done)
	a.conn.Close()
}

// Close shuts the adapter down and closes the underlying connection.
func (a *Adapter) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	close(a.done)
	return a.conn.Close()
}
