// Package transportrtu is the reference Transport implementation for
// Modbus RTU: CRC-framed ADUs over a serial line, with frame boundaries
// detected by the inter-character/inter-frame silence intervals defined
// by the Modbus over Serial Line specification. It is a concrete adapter
// of the core transport.Transport boundary, not the boundary itself, and
// is never imported by codec/wordstore/server/client.
// Ref: SPEC_FULL.md §6.1, §1 "reference adapters"
package transportrtu

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goburrow/serial"

	"github.com/kestrel-automation/modbus/codec"
	"github.com/kestrel-automation/modbus/common"
	"github.com/kestrel-automation/modbus/frame"
	"github.com/kestrel-automation/modbus/logging"
	"github.com/kestrel-automation/modbus/transport"
)

// Adapter implements transport.Transport over a serial.Port, framing ADUs
// by CRC and by the silence intervals below rather than by a length field.
type Adapter struct {
	cfg    serial.Config
	role   transport.Role
	logger common.LoggerInterface

	msgType frame.Type // Response for a client-role adapter's decode, Request for a server-role adapter's

	mu           sync.Mutex
	port         serial.Port
	recvCb       func(*frame.Frame, any)
	recvCbCtx    any
	abortPending bool

	writeCh chan pendingWrite
	done    chan struct{}
	closed  atomic.Bool
}

type pendingWrite struct {
	adu      []byte
	onTxDone func(transport.TxResult, any)
	cbCtx    any
}

// Option configures an Adapter at construction time.
type Option func(*Adapter)

// WithLogger installs a logger. Defaults to logging.NewNoopLogger().
func WithLogger(l common.LoggerInterface) Option {
	return func(a *Adapter) { a.logger = l }
}

// WithSerialConfig overrides the full serial.Config (address, data bits,
// parity, stop bits). Options apply in the order given: a WithBaudRate placed
// after this overrides cfg.BaudRate, one placed before it is overwritten.
func WithSerialConfig(cfg serial.Config) Option {
	return func(a *Adapter) { a.cfg = cfg }
}

// WithBaudRate sets the baud rate used both for the wire and for the
// silence-interval calculation below.
func WithBaudRate(baud int) Option {
	return func(a *Adapter) { a.cfg.BaudRate = baud }
}

// WithTimeout sets the serial read timeout used to detect end-of-frame silence.
func WithTimeout(d time.Duration) Option {
	return func(a *Adapter) { a.cfg.Timeout = d }
}

// NewClient opens the named serial device as a client-role Adapter decoding
// RTU responses off the line.
func NewClient(address string, opts ...Option) (*Adapter, error) {
	return newAdapter(address, transport.RoleClient, frame.Response, opts)
}

// NewServer opens the named serial device as a server-role Adapter decoding
// RTU requests off the line.
func NewServer(address string, opts ...Option) (*Adapter, error) {
	return newAdapter(address, transport.RoleServer, frame.Request, opts)
}

func newAdapter(address string, role transport.Role, msgType frame.Type, opts []Option) (*Adapter, error) {
	a := &Adapter{
		role:    role,
		msgType: msgType,
		logger:  logging.NewNoopLogger(),
		cfg: serial.Config{
			Address:  address,
			BaudRate: 19200,
			DataBits: 8,
			Parity:   "N",
			StopBits: 1,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.cfg.Timeout <= 0 {
		a.cfg.Timeout = frameDelay(a.cfg.BaudRate)
	}
	port, err := serial.Open(&a.cfg)
	if err != nil {
		return nil, fmt.Errorf("transportrtu: open %s: %w", address, err)
	}
	a.port = port
	return a, nil
}

// characterDelay and frameDelay implement the silence-interval formula from
// the Modbus over Serial Line specification (3.5 character times between
// frames, 1.5 between characters within a frame): at baud rates at or below
// 19200 the nominal bit time dominates, above it a fixed floor applies.
func characterDelay(baud int) time.Duration {
	if baud <= 0 || baud > 19200 {
		return 750 * time.Microsecond
	}
	return time.Duration(15000000/baud) * time.Microsecond
}

func frameDelay(baud int) time.Duration {
	if baud <= 0 || baud > 19200 {
		return 1750 * time.Microsecond
	}
	return time.Duration(35000000/baud) * time.Microsecond
}

// Role reports this adapter's role.
func (a *Adapter) Role() transport.Role { return a.role }

// CatchAllSlaveIDs is always false for RTU: the slave id on the wire is
// an addressable bus identity, not advisory.
func (a *Adapter) CatchAllSlaveIDs() bool { return false }

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

// AbortCurrentTransaction drops whatever partial frame the read loop has
// accumulated so far, resyncing to the next silence gap.
func (a *Adapter) AbortCurrentTransaction() {
	a.mu.Lock()
	a.abortPending = true
	a.mu.Unlock()
}

// IsReady reports whether the adapter's serial line is open.
func (a *Adapter) IsReady() bool {
	return !a.closed.Load()
}

// SendFrame encodes f as an RTU ADU and queues it for the write loop.
func (a *Adapter) SendFrame(ctx context.Context, f *frame.Frame, onTxDone func(transport.TxResult, any), cbCtx any) error {
	adu, err := codec.EncodeRTU(f)
	if err != nil {
		return fmt.Errorf("transportrtu: encode: %w", err)
	}
	select {
	case a.writeCh <- pendingWrite{adu: adu, onTxDone: onTxDone, cbCtx: cbCtx}:
		return nil
	case <-a.done:
		return fmt.Errorf("transportrtu: adapter closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Adapter) writeLoop() {
	for {
		select {
		case <-a.done:
			return
		case pw := <-a.writeCh:
			a.hexdump(context.Background(), "rtu-tx", pw.adu)
			_, err := a.port.Write(pw.adu)
			// Hold the line silent for one frame delay so our own echo (on
			// half-duplex RS-485 transceivers) or the responder's reply has
			// a clean silence gap to key off of.
			time.Sleep(frameDelay(a.cfg.BaudRate))
			if pw.onTxDone != nil {
				if err != nil {
					pw.onTxDone(transport.TxFailure, pw.cbCtx)
				} else {
					pw.onTxDone(transport.TxSuccess, pw.cbCtx)
				}
			}
			if err != nil {
				a.logger.Error(context.Background(), "transportrtu: write failed: %v", err)
			}
		}
	}
}

// readLoop accumulates bytes until a read yields nothing within the
// frame silence interval, then attempts to decode whatever has
// accumulated as one ADU. A short scratch buffer is reused across reads;
// the accumulated frame is reset whenever decode succeeds, whenever it
// fails (the line resynchronizes on the next silence gap), or when
// AbortCurrentTransaction is called mid-accumulation.
func (a *Adapter) readLoop() {
	ctx := context.Background()
	buf := make([]byte, 0, common.RTUMaxFrame)
	chunk := make([]byte, 256)
	for {
		select {
		case <-a.done:
			return
		default:
		}
		n, err := a.port.Read(chunk)

		a.mu.Lock()
		abort := a.abortPending
		a.abortPending = false
		a.mu.Unlock()
		if abort {
			buf = buf[:0]
		}

		if n > 0 {
			buf = append(buf, chunk[:n]...)
			continue // more bytes may follow within the same frame; read again before the silence gap closes it
		}
		if err != nil && !isTimeout(err) {
			a.logger.Error(ctx, "transportrtu: read error: %v", err)
			continue
		}
		if len(buf) == 0 {
			continue // silence with nothing accumulated: idle line
		}

		a.hexdump(ctx, "rtu-rx", buf)
		f, decErr := codec.DecodeRTU(buf, a.msgType)
		buf = buf[:0]
		if decErr != nil {
			a.logger.Warn(ctx, "transportrtu: decode: %v", decErr)
			continue
		}
		a.mu.Lock()
		cb, cbCtx := a.recvCb, a.recvCbCtx
		a.mu.Unlock()
		if cb != nil {
			cb(f, cbCtx)
		}
	}
}

// hexdump forwards to the logger's optional LoggerInterfaceHexdump, a no-op
// when the configured logger doesn't implement it.
func (a *Adapter) hexdump(ctx context.Context, label string, data []byte) {
	if hd, ok := a.logger.(common.LoggerInterfaceHexdump); ok {
		hd.Hexdump(ctx, label, data)
	}
}

func isTimeout(err error) bool {
	type timeout interface{ Timeout() bool }
	te, ok := err.(timeout)
	return ok && te.Timeout()
}

// Close shuts the adapter down and closes the underlying serial port.
func (a *Adapter) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	close(a.done)
	return a.port.Close()
}
