package modem

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyDialReply(t *testing.T) {
	cases := []struct {
		in   string
		want DialResult
	}{
		{"CONNECT 9600", DialConnect},
		{"BUSY", DialBusy},
		{"NO DIALTONE", DialNoDialtone},
		{"NO CARRIER", DialNoCarrier},
		{"ERROR", DialError},
	}
	for _, c := range cases {
		got, err := classifyDialReply(c.in)
		assert.Equal(t, c.want, got)
		if c.want == DialError {
			assert.Error(t, err)
		} else {
			assert.NoError(t, err)
		}
	}
}
