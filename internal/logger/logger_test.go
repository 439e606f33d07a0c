package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestChecksumAlgorithm is end-to-end scenario S4.
func TestChecksumAlgorithm(t *testing.T) {
	state := checksumState{0xAA, 0xAA}
	state.addByte(0x01)
	assert.Equal(t, uint16(0x00AA), state.pack())
}

func TestChecksumSingleBitFlipChangesResult(t *testing.T) {
	base := checksumState{0xAA, 0xAA}
	base.addByte(0x10)

	flipped := checksumState{0xAA, 0xAA}
	flipped.addByte(0x11)

	assert.NotEqual(t, base.pack(), flipped.pack())
}

func TestParseSignedDigits(t *testing.T) {
	cases := []struct {
		in   string
		want int
		ok   bool
	}{
		{"+123.rest", 123, true},
		{"-45.", -45, true},
		{"67", 67, true},
		{"", 0, false},
		{"+.", 0, false},
	}
	for _, c := range cases {
		v, ok := parseSignedDigits(c.in)
		assert.Equal(t, c.ok, ok, c.in)
		if c.ok {
			assert.Equal(t, c.want, v, c.in)
		}
	}
}

func TestStripToLastPrompt(t *testing.T) {
	assert.Equal(t, "DATA", stripToLastPrompt("junk*DATA"))
	assert.Equal(t, "plain", stripToLastPrompt("plain"))
}

func TestDayToYearSeconds(t *testing.T) {
	assert.Equal(t, 0, dayToYearSeconds(1, 0, 0, 0))
	assert.Equal(t, 24*3600, dayToYearSeconds(2, 0, 0, 0))
}
