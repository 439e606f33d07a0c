package logger

import "errors"

var (
	ErrNoPrompt         = errors.New("logger: no prompt seen within character budget")
	ErrProtocol         = errors.New("logger: unexpected response")
	ErrBadChecksum      = errors.New("logger: bulk-read checksum mismatch")
	ErrPositionMismatch = errors.New("logger: set_position echo did not match")
	ErrAlignMismatch    = errors.New("logger: record_align reply malformed")
	ErrMissingField     = errors.New("logger: get_position reply missing a field")
)
