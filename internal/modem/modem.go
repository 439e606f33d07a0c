// Package modem implements the modem driver: it opens a serial
// device directly with a canonical-mode termios tuned for AT chatter,
// and handles init/dial/hangup. On a successful CONNECT it hands its
// descriptor to the transport package, which re-configures it for raw
// data-mode I/O.
package modem

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/dhx/crget/internal/console"
	"github.com/dhx/crget/internal/protolog"
)

const (
	InitRetries   = 10
	DialTimeout   = 120 * time.Second
	HangupRetries = 20
)

// DialResult enumerates the distinct outcomes of Dial.
type DialResult int

const (
	DialConnect DialResult = iota
	DialBusy
	DialNoDialtone
	DialNoCarrier
	DialError
)

// Modem owns a serial descriptor configured for AT-command chatter:
// canonical line mode, hardware flow control, CR/LF translation on
// input.
type Modem struct {
	fd    int
	saved unix.Termios
	log   *protolog.Logger
}

// Open opens device and configures it for AT-command mode.
func Open(device string) (*Modem, error) {
	fd, err := unix.Open(device, unix.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("modem: open %s: %w", device, err)
	}
	saved, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("modem: get termios: %w", err)
	}
	cfg := *saved
	cfg.Cflag |= unix.CRTSCTS | unix.CS8 | unix.CLOCAL | unix.CREAD
	cfg.Cflag &^= unix.CSIZE
	cfg.Cflag |= unix.CS8
	cfg.Iflag |= unix.IGNPAR | unix.ICRNL
	cfg.Iflag &^= unix.IXON | unix.IXOFF
	cfg.Lflag |= unix.ICANON
	cfg.Lflag &^= unix.ECHO | unix.ECHOE | unix.ISIG
	cfg.Cc[unix.VEOF] = 4
	cfg.Cc[unix.VMIN] = 1
	cfg.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &cfg); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("modem: set termios: %w", err)
	}
	return &Modem{fd: fd, saved: *saved, log: protolog.Default()}, nil
}

// Close restores termios and closes the descriptor. Only meaningful
// before the descriptor has been handed off to the transport layer.
func (m *Modem) Close() error {
	_ = unix.IoctlSetTermios(m.fd, unix.TCSETS, &m.saved)
	return unix.Close(m.fd)
}

// Descriptor hands ownership of the underlying fd to the caller (the
// transport layer, after a successful Dial), so further Modem methods
// must not be used.
func (m *Modem) Descriptor() int {
	return m.fd
}

func (m *Modem) write(s string) error {
	_, err := unix.Write(m.fd, []byte(s))
	return err
}

func (m *Modem) readLine(timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	var line []byte
	for time.Now().Before(deadline) {
		var b [1]byte
		n, err := unix.Read(m.fd, b[:])
		if err != nil {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if n == 0 {
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if b[0] == '\n' || b[0] == '\r' {
			if len(line) == 0 {
				continue
			}
			return string(line), nil
		}
		line = append(line, b[0])
	}
	return string(line), fmt.Errorf("modem: read timeout")
}

// command writes instr+CRLF, discards the echoed line, and returns the
// first differing response line.
func (m *Modem) command(instr string, timeout time.Duration) (string, error) {
	if err := m.write(instr + "\r\n"); err != nil {
		return "", err
	}
	for {
		line, err := m.readLine(timeout)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(line) == instr {
			continue
		}
		return strings.TrimSpace(line), nil
	}
}

// Reset issues the standard +++/ATZ escape-and-reset sequence, retries
// up to InitRetries, then issues the init string (MODEM_INITSTRING or
// ATM1L0) and expects OK.
func (m *Modem) Reset() error {
	ok := false
	for attempt := 0; attempt < InitRetries; attempt++ {
		_ = m.write("+++")
		time.Sleep(2 * time.Second)
		reply, err := m.command("ATZ", 3*time.Second)
		if err == nil && strings.Contains(reply, "OK") {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("modem: no response to ATZ after %d attempts", InitRetries)
	}

	initString := console.ModemInitString()
	reply, err := m.command(initString, 3*time.Second)
	if err != nil {
		return err
	}
	if !strings.Contains(reply, "OK") {
		return fmt.Errorf("modem: init string %q not acknowledged", initString)
	}
	return nil
}

// Dial issues ATDT<number> and classifies the response.
func (m *Modem) Dial(number string) (DialResult, error) {
	if err := m.write(fmt.Sprintf("ATDT%s\r\n", number)); err != nil {
		return DialError, err
	}
	reply, err := m.readLine(DialTimeout)
	if err != nil {
		return DialError, err
	}
	return classifyDialReply(reply)
}

// classifyDialReply maps a single response line to a DialResult.
func classifyDialReply(reply string) (DialResult, error) {
	switch {
	case strings.HasPrefix(reply, "CONNECT"):
		return DialConnect, nil
	case strings.HasPrefix(reply, "BUSY"):
		return DialBusy, nil
	case strings.HasPrefix(reply, "NO DIALTONE"):
		return DialNoDialtone, nil
	case strings.HasPrefix(reply, "NO CARRIER"):
		return DialNoCarrier, nil
	default:
		return DialError, fmt.Errorf("modem: unrecognized dial response %q", reply)
	}
}

// Hangup ends the logger-side session (E\r\n), then sends +++ until it
// is acknowledged and after that ATH until it is acknowledged, within
// one shared budget of HangupRetries attempts, declaring success only
// once both acknowledgements (OK to +++, OK to ATH) have been observed.
func (m *Modem) Hangup() error {
	_ = m.write("E\r\n")

	escapeOK, athOK := false, false
	debug := console.EnvFlag("DEBUG_HANGUP")
	for attempt := 0; attempt < HangupRetries && !(escapeOK && athOK); attempt++ {
		if !escapeOK {
			_ = m.write("+++")
			reply, err := m.readLine(2 * time.Second)
			if debug {
				m.log.Debugf("[MODEM][HANGUP] +++ -> %q err=%v", reply, err)
			}
			if err == nil && strings.Contains(reply, "OK") {
				escapeOK = true
			}
			continue
		}
		reply, err := m.command("ATH", 2*time.Second)
		if debug {
			m.log.Debugf("[MODEM][HANGUP] ATH -> %q err=%v", reply, err)
		}
		if err == nil && strings.Contains(reply, "OK") {
			athOK = true
		}
	}
	if !(escapeOK && athOK) {
		return fmt.Errorf("modem: hangup not acknowledged after %d attempts", HangupRetries)
	}
	return nil
}
