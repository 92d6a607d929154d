package keyboard

import (
	"bytes"
	"errors"
	"io"
	"os"

	"golang.org/x/term"
)

// ErrNotTerminal is returned by MakeRaw when f is not a terminal.
var ErrNotTerminal = errors.New("keyboard: not a terminal")

// MakeRaw puts f into raw mode so single keystrokes arrive unbuffered.
// The returned func restores the previous mode.
func MakeRaw(f *os.File) (restore func(), err error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return func() {}, ErrNotTerminal
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		return func() {}, err
	}
	return func() { _ = term.Restore(fd, old) }, nil
}

// CRLFWriter rewrites "\n" as "\r\n"; raw mode disables the terminal's
// own translation.
type CRLFWriter struct {
	W io.Writer
}

func (c CRLFWriter) Write(p []byte) (int, error) {
	if _, err := c.W.Write(bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))); err != nil {
		return 0, err
	}
	return len(p), nil
}
