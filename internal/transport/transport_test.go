package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dhx/crget/internal/buffer"
)

// loopbackTransport builds a Transport around a pushback buffer alone,
// with no live descriptor, to exercise ReadRaw/ReadLine pushback
// behavior without opening a real device.
func loopbackTransport(seed []byte) *Transport {
	t := &Transport{fd: -1, push: buffer.New()}
	t.push.Append(seed)
	return t
}

func TestReadRawDrainsPushbackFirst(t *testing.T) {
	tr := loopbackTransport([]byte("abcdef"))
	dst := make([]byte, 4)
	n, err := tr.ReadRaw(dst, time.Second)
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "abcd", string(dst))
}

func TestReadLinePushesBackRemainderAfterCRLF(t *testing.T) {
	tr := loopbackTransport([]byte("hello\r\nworld"))
	dst := make([]byte, 64)
	line, err := tr.ReadLine(dst, time.Second)
	assert.NoError(t, err)
	assert.Equal(t, "hello", line)

	rest := make([]byte, 64)
	n, err := tr.ReadRaw(rest, time.Second)
	assert.NoError(t, err)
	assert.Equal(t, "world", string(rest[:n]))
}

func TestReadLinePushesBackRemainderAfterBareLF(t *testing.T) {
	tr := loopbackTransport([]byte("one\ntwo"))
	dst := make([]byte, 64)
	line, err := tr.ReadLine(dst, time.Second)
	assert.NoError(t, err)
	assert.Equal(t, "one", line)

	rest := make([]byte, 64)
	n, err := tr.ReadRaw(rest, time.Second)
	assert.NoError(t, err)
	assert.Equal(t, "two", string(rest[:n]))
}

// TestReadLinePropagatesErrorAfterPartialRead checks that a stall in
// the middle of a line (bytes already accumulated, then the
// underlying read fails or times out with no terminator seen) fails
// the whole call instead of returning the partial bytes as a clean,
// errorless line.
func TestReadLinePropagatesErrorAfterPartialRead(t *testing.T) {
	tr := loopbackTransport([]byte("ab"))
	dst := make([]byte, 64)
	line, err := tr.ReadLine(dst, 20*time.Millisecond)
	assert.Error(t, err)
	assert.Equal(t, "", line)
}
