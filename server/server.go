// Package server implements the Modbus slave-side request dispatcher: it
// validates incoming requests against a wordstore.Store and emits
// responses or exceptions.
// Ref: SPEC_FULL.md §4.5
package server

import (
	"context"
	"fmt"
	"time"

	"github.com/kestrel-automation/modbus/common"
	"github.com/kestrel-automation/modbus/logging"
	"github.com/kestrel-automation/modbus/transport"
	"github.com/kestrel-automation/modbus/wordstore"
)

// Server dispatches decoded requests arriving on one or more transports
// against a single wordstore.Store, replying on whichever transport
// delivered the request.
type Server struct {
	slaveID         common.SlaveID
	rejectUndefined bool
	reqMutexTimeout time.Duration

	store      *wordstore.Store
	transports []transport.Transport
	log        common.LoggerInterface

	mu    chan struct{} // 1-buffered binary semaphore; the "server mutex" of §4.5
	began bool
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithSlaveID sets the unit id this server answers to. 0 (BroadcastSlaveID)
// makes the server a catch-all that answers every unicast address too.
func WithSlaveID(id common.SlaveID) Option {
	return func(s *Server) { s.slaveID = id }
}

// WithRejectUndefined controls whether reads over unmapped addresses return
// ILLEGAL_DATA_ADDRESS (true, the default) or silently gap-fill with zeros.
func WithRejectUndefined(reject bool) Option {
	return func(s *Server) { s.rejectUndefined = reject }
}

// WithReqMutexTimeout bounds how long dispatch waits to acquire the
// server's request mutex before replying SLAVE_DEVICE_BUSY. Zero (the
// default) blocks forever.
func WithReqMutexTimeout(d time.Duration) Option {
	return func(s *Server) { s.reqMutexTimeout = d }
}

// WithMaxWordSize overrides the default per-Word register/coil cap (8).
func WithMaxWordSize(n common.Quantity) Option {
	return func(s *Server) { s.store = wordstore.New(wordstore.WithMaxWordSize(n)) }
}

// WithLogger installs a logger. Defaults to logging.NewNoopLogger().
func WithLogger(l common.LoggerInterface) Option {
	return func(s *Server) { s.log = l }
}

// WithTransport registers a transport this server dispatches requests from
// and replies on. May be called multiple times.
func WithTransport(t transport.Transport) Option {
	return func(s *Server) { s.transports = append(s.transports, t) }
}

// New constructs a Server. Call Store() to populate Words, then Begin to
// start dispatching.
func New(opts ...Option) *Server {
	s := &Server{
		rejectUndefined: true,
		store:           wordstore.New(),
		log:             logging.NewNoopLogger(),
		mu:              make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mu <- struct{}{}
	return s
}

// Store returns the WordStore backing this server, for Insert calls prior
// to Begin.
func (s *Server) Store() *wordstore.Store {
	return s.store
}

// Begin finalizes the word store (sort + overlap scan) and starts every
// registered transport, wiring this server's dispatch as their receive
// callback.
// Ref: SPEC_FULL.md §4.4 WordStore lifecycle
func (s *Server) Begin(ctx context.Context) error {
	if len(s.transports) == 0 {
		return ErrNoTransports
	}
	if err := s.store.SortAll(); err != nil {
		return fmt.Errorf("%w: %v", ErrInitFailed, err)
	}
	for _, t := range s.transports {
		if err := t.SetRecvCallback(s.onFrame, t); err != nil {
			return fmt.Errorf("%w: %v", ErrInitFailed, err)
		}
		if err := t.Begin(ctx); err != nil {
			return fmt.Errorf("%w: %v", ErrInitFailed, err)
		}
	}
	s.began = true
	return nil
}

// acquireMutex blocks up to reqMutexTimeout (forever if zero) trying to
// acquire the dispatch mutex. Returns false on timeout.
func (s *Server) acquireMutex() bool {
	if s.reqMutexTimeout <= 0 {
		<-s.mu
		return true
	}
	select {
	case <-s.mu:
		return true
	case <-time.After(s.reqMutexTimeout):
		return false
	}
}

func (s *Server) releaseMutex() {
	s.mu <- struct{}{}
}
