package transport

import (
	"context"
	"io"
)

// Permission is the host's standing answer for serial access.
type Permission int

const (
	PermissionUnknown Permission = iota
	PermissionGranted
	PermissionDenied
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	}
	return "unknown"
}

// Host is the environment a Session connects through.
type Host interface {
	// Supported reports whether the host can do serial at all.
	Supported() bool
	// Restricted reports an embedding or sandbox that blocks device access.
	Restricted() bool
	Permission() Permission
	// RequestPort selects a device. It returns ErrNoDevice when nothing
	// was chosen.
	RequestPort(ctx context.Context) (Port, error)
}

// Port is one physical serial device.
//
// Closing the reader or the port must unblock a pending Read.
type Port interface {
	Open(baud int) error
	Reader() (io.ReadCloser, error)
	Close() error
}
