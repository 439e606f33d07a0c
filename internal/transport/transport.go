// Package transport implements the uniform read/write/flush surface
// over the three concrete backends crget can speak to a logger
// through — a local serial line, a dialed modem, or a raw TCP socket —
// plus the line framer layered directly on top of it.
package transport

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"github.com/dhx/crget/internal/buffer"
	"github.com/dhx/crget/internal/protolog"
)

// Transport is an opaque handle over a character-oriented duplex byte
// channel. It owns exactly one OS descriptor and a pushback Buffer
// buffer. If it owns terminal attributes it restores them on Close.
type Transport struct {
	fd          int
	push        *buffer.Buffer
	ownsTermios bool
	saved       unix.Termios
	log         *protolog.Logger
}

// NewFromDescriptor wraps an already-connected stream socket (the raw
// TCP backend). No termios handling is applied.
func NewFromDescriptor(fd int) *Transport {
	return &Transport{fd: fd, push: buffer.New(), log: protolog.Default()}
}

// Close restores the original termios (if owned) and closes the
// descriptor. Safe to call once.
func (t *Transport) Close() error {
	if t.ownsTermios {
		_ = unix.IoctlSetTermios(t.fd, unix.TCSETS, &t.saved)
	}
	return unix.Close(t.fd)
}

// Write writes buf to the underlying channel in full or returns an
// error; it never waits on readability.
func (t *Transport) Write(buf []byte) (int, error) {
	t.log.Trace("TX", buf)
	written := 0
	for written < len(buf) {
		n, err := unix.Write(t.fd, buf[written:])
		if err != nil {
			return written, fmt.Errorf("transport write: %w", err)
		}
		written += n
	}
	return written, nil
}

// Flush discards any buffered pushback bytes and, for a backend that
// owns terminal attributes, both kernel-side input/output queues. A raw
// socket has no terminal queues to flush.
func (t *Transport) Flush() error {
	t.push.Clear()
	if !t.ownsTermios {
		return nil
	}
	return unix.IoctlSetInt(t.fd, unix.TCFLSH, unix.TCIOFLUSH)
}

// ReadRaw drains up to len(dst) bytes already sitting in the pushback
// buffer; if that is not enough, it waits up to timeout for readability
// and performs exactly one underlying read. It returns the combined
// byte count. An error is returned only when nothing was already
// buffered and neither the wait nor the read yielded data.
func (t *Transport) ReadRaw(dst []byte, timeout time.Duration) (int, error) {
	n := t.push.Take(dst)
	if n == len(dst) {
		return n, nil
	}

	ready, err := t.waitReadable(timeout)
	if err != nil {
		if n > 0 {
			return n, nil
		}
		return n, err
	}
	if !ready {
		if n > 0 {
			return n, nil
		}
		return n, ErrTimeout
	}

	m, err := unix.Read(t.fd, dst[n:])
	if err != nil || m == 0 {
		if n > 0 {
			return n, nil
		}
		if err == nil {
			err = ErrEOF
		}
		return n, err
	}
	if n+m > 0 {
		t.log.Trace("RX", dst[n:n+m])
	}
	return n + m, nil
}

// ReadExact repeats ReadRaw until exactly len(dst) bytes are delivered
// or the deadline (timeout applied per underlying attempt) is blown.
func (t *Transport) ReadExact(dst []byte, timeout time.Duration) error {
	got := 0
	for got < len(dst) {
		n, err := t.ReadRaw(dst[got:], timeout)
		got += n
		if err != nil {
			if got == len(dst) {
				return nil
			}
			return err
		}
		if n == 0 {
			return ErrTimeout
		}
	}
	return nil
}

// ReadLine reads through ReadRaw into dst one byte at a time, stopping
// at the first CR or LF, and returns the line with the terminator
// stripped. Bytes after the terminator are left unread. After a CR one
// more byte is read: an LF is consumed as part of the terminator, any
// other byte is pushed back into the pushback buffer. A ReadRaw failure
// is always propagated, even after bytes have already been accumulated:
// a stall mid-line is a transport error, not a short line. If
// len(dst)-1 bytes are consumed with no terminator found, those bytes
// are returned with no error.
func (t *Transport) ReadLine(dst []byte, timeout time.Duration) (string, error) {
	if len(dst) == 0 {
		return "", ErrIllegalArgument
	}
	got := 0
	for got < len(dst)-1 {
		n, err := t.ReadRaw(dst[got:got+1], timeout)
		if err != nil {
			return "", err
		}
		if n == 0 {
			break
		}
		got++
		c := dst[got-1]
		if c == '\r' || c == '\n' {
			lineEnd := got - 1
			if c == '\r' {
				// peek one more byte to see whether CR is followed by LF
				var next [1]byte
				m, perr := t.ReadRaw(next[:], timeout)
				if perr == nil && m == 1 && next[0] != '\n' {
					t.push.Prepend(next[:1])
				}
			}
			return string(dst[:lineEnd]), nil
		}
	}
	return string(dst[:got]), nil
}

// BytesPending reports the pushback size plus the kernel-side readable
// byte count (FIONREAD).
func (t *Transport) BytesPending() (int, error) {
	kernel, err := unix.IoctlGetInt(t.fd, unix.FIONREAD)
	if err != nil {
		return t.push.Size(), fmt.Errorf("FIONREAD: %w", err)
	}
	return t.push.Size() + kernel, nil
}

// BytesPendingBlocking waits until readable or timeout, then reports
// as BytesPending.
func (t *Transport) BytesPendingBlocking(timeout time.Duration) (int, error) {
	if t.push.Size() > 0 {
		return t.BytesPending()
	}
	ready, err := t.waitReadable(timeout)
	if err != nil {
		return 0, err
	}
	if !ready {
		return 0, ErrTimeout
	}
	return t.BytesPending()
}

func (t *Transport) waitReadable(timeout time.Duration) (bool, error) {
	if timeout < 0 {
		timeout = 0
	}
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	var rfds unix.FdSet
	rfds.Set(t.fd)
	n, err := unix.Select(t.fd+1, &rfds, nil, nil, &tv)
	if err != nil {
		return false, fmt.Errorf("select: %w", err)
	}
	return n > 0, nil
}
