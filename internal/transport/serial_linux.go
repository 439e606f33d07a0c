package transport

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/dhx/crget/internal/buffer"
	"github.com/dhx/crget/internal/protolog"
)

// NewSerial opens device non-controlling, snapshots its termios, and
// configures it for raw character I/O: local line with no modem
// control signals required, receiver enabled, XON/XOFF disabled,
// CR/LF translation disabled, non-canonical with echo and signals
// disabled. The snapshot is restored on Close.
func NewSerial(device string) (*Transport, error) {
	fd, err := unix.Open(device, unix.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", device, err)
	}

	saved, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("get termios %s: %w", device, err)
	}

	cfg := *saved
	configureDataMode(&cfg)
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &cfg); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set termios %s: %w", device, err)
	}

	t := &Transport{fd: fd, push: buffer.New(), ownsTermios: true, saved: *saved, log: protolog.Default()}
	return t, nil
}

// NewFromModemFD takes ownership of a descriptor handed over by the
// modem driver after a CONNECT response. It sets the descriptor
// non-blocking, drains any pending bytes, flushes both queues, and
// applies the same data-mode termios as the local-serial backend.
func NewFromModemFD(fd int) (*Transport, error) {
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, fmt.Errorf("set nonblocking: %w", err)
	}

	saved, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, fmt.Errorf("get termios: %w", err)
	}

	cfg := *saved
	configureDataMode(&cfg)
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &cfg); err != nil {
		return nil, fmt.Errorf("set termios: %w", err)
	}

	t := &Transport{fd: fd, push: buffer.New(), ownsTermios: true, saved: *saved, log: protolog.Default()}
	drainPending(t)
	_ = t.Flush()
	return t, nil
}

// configureDataMode applies the raw, non-canonical mode shared by the
// serial and modem-handoff backends.
func configureDataMode(tio *unix.Termios) {
	tio.Cflag |= unix.CLOCAL | unix.CREAD
	tio.Iflag &^= unix.IXON | unix.IXOFF | unix.IXANY
	tio.Iflag &^= unix.INLCR | unix.IGNCR | unix.ICRNL
	tio.Lflag &^= unix.ICANON | unix.ECHO | unix.ECHOE | unix.ISIG
	tio.Oflag &^= unix.OPOST
	tio.Cc[unix.VMIN] = 1
	tio.Cc[unix.VTIME] = 0
}

func drainPending(t *Transport) {
	var scratch [256]byte
	for {
		n, err := unix.Read(t.fd, scratch[:])
		if err != nil || n <= 0 {
			return
		}
	}
}
