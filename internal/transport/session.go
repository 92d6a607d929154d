// Package transport owns the lifecycle of one serial connection to the
// board: availability checks, opening the port, a read loop feeding the
// frame decoder, and teardown that always releases every handle.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/uset82/v0-banana-piano-app/internal/frame"
	"github.com/uset82/v0-banana-piano-app/internal/keys"
)

// Baud is fixed by the board firmware.
const Baud = 115200

const readChunk = 256

// State is the connection lifecycle.
type State int

const (
	Disconnected State = iota
	Connecting
	Open
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

type subscriber struct {
	id uint64
	fn func(keys.KeyEvent)
}

type conn struct {
	port   Port
	reader io.ReadCloser
	cancel context.CancelFunc
}

// Session is one board connection. At most one read loop runs at a time;
// Connect while not disconnected is a no-op.
type Session struct {
	host   Host
	logger *slog.Logger

	mu           sync.Mutex
	state        State
	restricted   bool // sticky after a permission failure
	abort        context.CancelFunc
	conn         *conn
	decoder      *frame.Decoder
	last         keys.KeyEvent
	hasLast      bool
	err          error
	subs         []subscriber
	nextID       uint64
	onDisconnect func(error)
}

// NewSession returns a disconnected session over host. A nil logger
// means slog.Default().
func NewSession(host Host, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{host: host, logger: logger, decoder: frame.NewDecoder()}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the last connection-lifecycle error, cleared by a
// successful Connect.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Availability runs the pre-connect checks without touching any device.
func (s *Session) Availability() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.availability(); err != nil {
		return err
	}
	return nil
}

func (s *Session) availability() *Error {
	if !s.host.Supported() {
		return unsupported()
	}
	if s.restricted || s.host.Restricted() {
		return restricted(ErrRestricted)
	}
	if s.host.Permission() == PermissionDenied {
		return &Error{Kind: Restricted, Reason: "serial permission was denied", Err: ErrPermissionDenied}
	}
	return nil
}

// Last returns the most recently decoded event.
func (s *Session) Last() (keys.KeyEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.hasLast
}

// Stats returns the decoder counters for the life of the session.
func (s *Session) Stats() frame.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decoder.Stats()
}

// Subscribe registers fn for every decoded event. Subscribers run on the
// read loop goroutine in registration order and see events in stream
// order.
func (s *Session) Subscribe(fn func(keys.KeyEvent)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// SetDisconnectHandler sets fn to run after every teardown. cause is nil
// for a requested disconnect or end of stream, a Fault otherwise.
func (s *Session) SetDisconnectHandler(fn func(cause error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDisconnect = fn
}

// -------------------- Connect --------------------

// Connect requests a port from the host, opens it and starts the read
// loop. ctx bounds the request and open, not the connection. Every
// returned error is an *Error.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Disconnected {
		state := s.state
		s.mu.Unlock()
		s.logger.Debug("transport: connect ignored", "state", state.String())
		return nil
	}
	if err := s.availability(); err != nil {
		s.err = err
		s.mu.Unlock()
		s.logger.Warn("transport: unavailable", "kind", err.Kind.String(), "err", err)
		return err
	}
	cctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.state = Connecting
	s.abort = cancel
	s.mu.Unlock()

	s.logger.Info("transport: connecting", "baud", Baud)
	c, err := s.open(cctx)
	if err == nil && cctx.Err() != nil {
		s.release(c)
		err = cctx.Err()
	}

	s.mu.Lock()
	s.abort = nil
	if err != nil {
		te := classifyConnect(err)
		if te.Kind == Restricted {
			s.restricted = true
		}
		s.err = te
		s.state = Disconnected
		s.mu.Unlock()
		s.logger.Warn("transport: connect failed", "kind", te.Kind.String(), "err", te)
		return te
	}
	loopCtx, loopCancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = loopCancel
	s.conn = c
	s.err = nil
	s.state = Open
	s.mu.Unlock()

	s.logger.Info("transport: open", "device", portName(c.port))
	go s.readLoop(loopCtx, c)
	return nil
}

func (s *Session) open(ctx context.Context) (*conn, error) {
	p, err := s.host.RequestPort(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.Open(Baud); err != nil {
		s.guard("close port", p.Close)
		return nil, err
	}
	r, err := p.Reader()
	if err != nil {
		s.guard("close port", p.Close)
		return nil, err
	}
	return &conn{port: p, reader: r, cancel: func() {}}, nil
}

// -------------------- Disconnect --------------------

// Disconnect stops the read loop and releases the reader, the port and
// the receive buffer. It is safe to call in any state and any number of
// times. Called during Connecting it aborts the pending connect.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.abort != nil {
		s.abort()
	}
	c := s.conn
	if c == nil {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.state = Closing
	s.mu.Unlock()

	s.teardown(c, nil)
}

// finish runs when the read loop exits for any reason. A loop whose
// connection was already torn down by Disconnect has nothing left to do.
func (s *Session) finish(c *conn, cause error) {
	s.mu.Lock()
	if s.conn != c {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.state = Closing
	if cause != nil {
		s.err = cause
	}
	s.mu.Unlock()

	s.teardown(c, cause)
}

func (s *Session) teardown(c *conn, cause error) {
	s.release(c)

	s.mu.Lock()
	s.decoder.Reset()
	s.state = Disconnected
	handler := s.onDisconnect
	s.mu.Unlock()

	if cause != nil {
		s.logger.Warn("transport: connection lost", "err", cause)
	} else {
		s.logger.Info("transport: disconnected")
	}
	if handler != nil {
		handler(cause)
	}
}

// release attempts every cleanup step regardless of the others.
func (s *Session) release(c *conn) {
	s.guard("cancel read", func() error { c.cancel(); return nil })
	s.guard("close reader", c.reader.Close)
	s.guard("close port", c.port.Close)
}

func (s *Session) guard(op string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Debug("transport: cleanup panicked", "op", op, "panic", r)
		}
	}()
	if err := fn(); err != nil {
		s.logger.Debug("transport: cleanup failed", "op", op, "err", err)
	}
}

// -------------------- Read loop --------------------

func (s *Session) readLoop(ctx context.Context, c *conn) {
	var cause error
	defer func() {
		if r := recover(); r != nil {
			cause = &Error{Kind: Fault, Reason: "read loop failed", Err: fmt.Errorf("panic: %v", r)}
		}
		s.finish(c, cause)
	}()

	buf := make([]byte, readChunk)
	for {
		n, err := c.reader.Read(buf)
		if n > 0 {
			s.dispatch(c, buf[:n])
		}
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				cause = &Error{Kind: Fault, Reason: "device read failed", Err: err}
			}
			return
		}
	}
}

func (s *Session) dispatch(c *conn, chunk []byte) {
	s.mu.Lock()
	if s.conn != c {
		s.mu.Unlock()
		return
	}
	evs := s.decoder.Feed(chunk)
	if len(evs) == 0 {
		s.mu.Unlock()
		return
	}
	s.last, s.hasLast = evs[len(evs)-1], true
	subs := append([]subscriber(nil), s.subs...)
	s.mu.Unlock()

	for _, ev := range evs {
		s.logger.Debug("transport: event", "event", ev.String())
		for _, sub := range subs {
			sub.fn(ev)
		}
	}
}

func portName(p Port) string {
	if st, ok := p.(fmt.Stringer); ok {
		return st.String()
	}
	return "serial"
}
