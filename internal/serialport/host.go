// Package serialport is the transport.Host for real serial devices,
// built on go.bug.st/serial.
package serialport

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/uset82/v0-banana-piano-app/internal/transport"
)

// -------------------- Config --------------------

// Config selects which device RequestPort returns.
type Config struct {
	// Device is an explicit path; it skips auto-detection.
	Device string `yaml:"device"`
	// PreferredVIDs: USB vendor IDs picked first (hex, case-insensitive).
	PreferredVIDs []string `yaml:"preferred_vids"`
	// Preferred: name patterns picked next.
	Preferred []string `yaml:"preferred"`
	// Excluded: name patterns never auto-selected.
	Excluded []string `yaml:"excluded"`
	// ReadTimeout bounds each blocking read so a closed reader is noticed.
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// DefaultConfig prefers STMicroelectronics USB CDC boards.
func DefaultConfig() Config {
	return Config{
		PreferredVIDs: []string{"0483"},
		Preferred:     []string{"ttyACM", "usbmodem"},
		Excluded:      []string{"Bluetooth", "debug-console"},
		ReadTimeout:   100 * time.Millisecond,
	}
}

// -------------------- Host --------------------

// Host implements transport.Host over the local serial devices.
type Host struct {
	cfg    Config
	logger *slog.Logger

	// seams for tests
	names   func() ([]string, error)
	details func() ([]*enumerator.PortDetails, error)
	open    func(name string, mode *serial.Mode) (serial.Port, error)
	access  func(path string) error
}

var _ transport.Host = (*Host)(nil)

// NewHost returns a host using cfg. A nil logger means slog.Default().
func NewHost(cfg Config, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultConfig().ReadTimeout
	}
	return &Host{
		cfg:     cfg,
		logger:  logger,
		names:   serial.GetPortsList,
		details: enumerator.GetDetailedPortsList,
		open:    serial.Open,
		access:  accessRW,
	}
}

// Supported is false only where the serial library has no implementation
// for this platform.
func (h *Host) Supported() bool {
	_, err := h.names()
	return !isCode(err, serial.FunctionNotImplemented)
}

// Restricted reports a sandbox that hides the device directory.
func (h *Host) Restricted() bool {
	_, err := h.names()
	if err != nil && errors.Is(err, fs.ErrPermission) {
		h.logger.Debug("serial: enumeration denied", "err", err)
		return true
	}
	return false
}

// Permission probes the configured device. Without one there is nothing
// to ask about yet.
func (h *Host) Permission() transport.Permission {
	if h.cfg.Device == "" {
		return transport.PermissionUnknown
	}
	err := h.access(h.cfg.Device)
	switch {
	case err == nil:
		return transport.PermissionGranted
	case errors.Is(err, fs.ErrPermission):
		return transport.PermissionDenied
	}
	return transport.PermissionUnknown
}

// RequestPort returns the configured device or the best auto-detected one.
func (h *Host) RequestPort(ctx context.Context) (transport.Port, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name := h.cfg.Device
	if name == "" {
		var ok bool
		if name, ok = h.pick(); !ok {
			return nil, transport.ErrNoDevice
		}
	}
	h.logger.Info("serial: device selected", "device", name)
	return &Port{name: name, host: h}, nil
}

// -------------------- Selection --------------------

// PortInfo is one enumerated device.
type PortInfo struct {
	Name    string
	USB     bool
	VID     string
	PID     string
	Serial  string
	Product string
}

func (p PortInfo) String() string {
	if !p.USB {
		return p.Name
	}
	s := fmt.Sprintf("%s [%s:%s]", p.Name, p.VID, p.PID)
	if p.Product != "" {
		s += " " + p.Product
	}
	return s
}

// List enumerates serial devices, with USB details where the platform
// provides them.
func (h *Host) List() ([]PortInfo, error) {
	details, err := h.details()
	if err == nil {
		out := make([]PortInfo, 0, len(details))
		for _, d := range details {
			out = append(out, PortInfo{
				Name: d.Name, USB: d.IsUSB, VID: d.VID, PID: d.PID,
				Serial: d.SerialNumber, Product: d.Product,
			})
		}
		return out, nil
	}
	h.logger.Debug("serial: detailed enumeration failed", "err", err)

	names, err := h.names()
	if err != nil {
		return nil, fmt.Errorf("serial: list ports: %w", err)
	}
	out := make([]PortInfo, 0, len(names))
	for _, n := range names {
		out = append(out, PortInfo{Name: n})
	}
	return out, nil
}

func (h *Host) pick() (string, bool) {
	ports, err := h.List()
	if err != nil {
		h.logger.Warn("serial: enumeration failed", "err", err)
		return "", false
	}
	var cands []PortInfo
	for _, p := range ports {
		if h.excluded(p.Name) {
			h.logger.Debug("serial: port excluded", "device", p.Name)
			continue
		}
		cands = append(cands, p)
	}

	for _, vid := range h.cfg.PreferredVIDs {
		for _, p := range cands {
			if p.USB && strings.EqualFold(p.VID, vid) {
				return p.Name, true
			}
		}
	}
	for _, pat := range h.cfg.Preferred {
		for _, p := range cands {
			if containsCI(p.Name, pat) {
				return p.Name, true
			}
		}
	}
	var usb []string
	for _, p := range cands {
		if p.USB {
			usb = append(usb, p.Name)
		}
	}
	if len(usb) == 1 {
		return usb[0], true
	}
	h.logger.Debug("serial: no preferred device", "candidates", len(cands))
	return "", false
}

func (h *Host) excluded(name string) bool {
	for _, pat := range h.cfg.Excluded {
		if containsCI(name, pat) {
			return true
		}
	}
	return false
}

// -------------------- utility --------------------

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func isCode(err error, code serial.PortErrorCode) bool {
	var pe *serial.PortError
	return errors.As(err, &pe) && pe.Code() == code
}

// classify maps serial errors onto the transport sentinels.
func classify(err error) error {
	var pe *serial.PortError
	if !errors.As(err, &pe) {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %w", transport.ErrNoDevice, err)
		}
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("%w: %w", transport.ErrPermissionDenied, err)
		}
		return err
	}
	switch pe.Code() {
	case serial.PortNotFound:
		return fmt.Errorf("%w: %w", transport.ErrNoDevice, err)
	case serial.PermissionDenied:
		return fmt.Errorf("%w: %w", transport.ErrPermissionDenied, err)
	case serial.FunctionNotImplemented:
		return fmt.Errorf("%w: %w", transport.ErrUnsupported, err)
	}
	return err
}
