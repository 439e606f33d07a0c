package decode

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLowResDecode(t *testing.T) {
	cases := []struct {
		in   []byte
		want string
	}{
		{[]byte{0x00, 0x05}, ",5"},
		{[]byte{0x20, 0x05}, ",0.5"},
		{[]byte{0x80, 0x05}, ",-5"},
		{[]byte{0xA0, 0x05}, ",-0.5"},
	}
	for _, c := range cases {
		var buf bytes.Buffer
		d := New(&buf)
		assert.NoError(t, d.Decode(c.in))
		assert.Equal(t, c.want, buf.String())
	}
}

func TestArrayHeaderThenLowRes(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf)
	assert.NoError(t, d.Decode([]byte{0xFC, 0x01, 0x00, 0x07}))
	assert.Equal(t, "1,7", buf.String())

	buf.Reset()
	assert.NoError(t, d.Decode([]byte{0xFC, 0x02, 0x00, 0x08}))
	assert.Equal(t, "\n2,8", buf.String())
}

func TestHiResPair(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf)
	assert.NoError(t, d.Decode([]byte{0x1C, 0x01, 0x3C, 0x02}))
	assert.Equal(t, ",258", buf.String())

	buf.Reset()
	d2 := New(&buf)
	assert.NoError(t, d2.Decode([]byte{0x5C, 0x01, 0x3C, 0x02}))
	assert.Equal(t, ",-258", buf.String())
}

// TestClassificationDisjoint checks that every possible
// high byte selects exactly one of the four cell classes.
func TestClassificationDisjoint(t *testing.T) {
	for hi := 0; hi <= 0xff; hi++ {
		h := byte(hi)
		classes := 0
		if h&0x1c == 0x1c {
			if h&0xfc == 0xfc {
				classes++
			}
			if h&0x3c == 0x1c {
				classes++
			}
			if h&0xfc == 0x3c {
				classes++
			}
		} else {
			classes++
		}
		assert.Equal(t, 1, classes, "hi=0x%02x classified %d ways", h, classes)
	}
}
