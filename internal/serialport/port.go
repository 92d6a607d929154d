package serialport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"go.bug.st/serial"
)

// ErrReaderClosed is returned by Read once the reader has been closed.
var ErrReaderClosed = errors.New("serialport: reader closed")

// Port is one named serial device. It is opened by the transport session.
type Port struct {
	name string
	host *Host

	mu   sync.Mutex
	port serial.Port
}

func (p *Port) String() string { return p.name }

// Open opens the device at baud, 8N1, and drops bytes queued before we
// arrived.
func (p *Port) Open(baud int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port != nil {
		return nil
	}
	logger := p.host.logger
	sp, err := p.host.open(p.name, &serial.Mode{BaudRate: baud})
	if err != nil {
		logger.Error("serial: failed to open port", "device", p.name, "baud", baud, "err", err)
		return classify(err)
	}
	if err := sp.SetReadTimeout(p.host.cfg.ReadTimeout); err != nil {
		_ = sp.Close()
		return fmt.Errorf("serial: set read timeout: %w", err)
	}
	if err := sp.ResetInputBuffer(); err != nil {
		logger.Debug("serial: reset input buffer", "device", p.name, "err", err)
	}
	p.port = sp
	logger.Info("serial: port opened", "device", p.name, "baud", baud)
	return nil
}

// Reader returns a reader over the open device.
func (p *Port) Reader() (io.ReadCloser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port == nil {
		return nil, fmt.Errorf("serial: %s is not open", p.name)
	}
	return &reader{port: p.port}, nil
}

// Close closes the device. A pending Read returns a PortClosed error.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.port == nil {
		return nil
	}
	p.host.logger.Info("serial: closing port", "device", p.name)
	err := p.port.Close()
	p.port = nil
	return err
}

// reader turns read timeouts into a poll of its own closed flag, so
// closing the reader alone ends a blocked Read within one timeout.
type reader struct {
	port   serial.Port
	closed atomic.Bool
}

func (r *reader) Read(b []byte) (int, error) {
	for {
		if r.closed.Load() {
			return 0, ErrReaderClosed
		}
		n, err := r.port.Read(b)
		if err != nil || n > 0 {
			return n, err
		}
	}
}

func (r *reader) Close() error {
	r.closed.Store(true)
	return nil
}
