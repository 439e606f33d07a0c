package transport

import (
	"fmt"
	"net"
	"time"
)

// DialTCP connects to host:port and wraps the resulting socket as a raw
// Transport (no termios handling — the TCP path is a serial bridge, not
// a terminal device).
func DialTCP(host string, port int, timeout time.Duration) (*Transport, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		conn.Close()
		return nil, fmt.Errorf("dial %s: not a TCP connection", addr)
	}
	raw, err := tcpConn.SyscallConn()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	var fd int
	ctrlErr := raw.Control(func(descriptor uintptr) {
		fd = int(descriptor)
	})
	if ctrlErr != nil {
		conn.Close()
		return nil, fmt.Errorf("dial %s: %w", addr, ctrlErr)
	}
	dupFd, err := dup(fd)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("dial %s: dup: %w", addr, err)
	}
	conn.Close()
	return NewFromDescriptor(dupFd), nil
}
