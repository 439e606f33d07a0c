package transport

import "golang.org/x/sys/unix"

// dup duplicates fd so the caller can close its original net.Conn
// wrapper while the Transport keeps a descriptor it owns outright.
func dup(fd int) (int, error) {
	return unix.Dup(fd)
}
