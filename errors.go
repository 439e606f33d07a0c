// Package crget ties together the byte-buffer, transport, logger
// client, download planner and sample decoder into a single retrieval
// tool. This file carries the package's stable, numbered fatal-error
// tags; operators grep logs for "Error #NNN".
package crget

import "fmt"

// Fault is a numbered fatal condition: a retry budget exhausted, or a
// modem hangup that could not be completed. Configuration errors are
// not Faults; cmd/crget reports them as plain messages. The number is
// stable across releases so operators can grep logs for it.
type Fault int

const (
	FaultConnectExhausted     Fault = 201
	FaultSessionExhausted     Fault = 202
	FaultBringUpExhausted     Fault = 203
	FaultAlignExhausted       Fault = 204
	FaultDownloadExhausted    Fault = 205
	FaultModemHangupExhausted Fault = 206
)

var faultMessages = map[Fault]string{
	FaultConnectExhausted:     "could not establish a transport within the connect attempt budget",
	FaultSessionExhausted:     "could not bring up a logger session within the connect attempt budget",
	FaultBringUpExhausted:     "too many failed attempts bringing up the download session",
	FaultAlignExhausted:       "too many failed attempts aligning to a record boundary",
	FaultDownloadExhausted:    "too many failed attempts downloading data and insufficient data to salvage",
	FaultModemHangupExhausted: "could not reopen the modem device or get the hangup acknowledged",
}

func (f Fault) Error() string {
	if msg, ok := faultMessages[f]; ok {
		return fmt.Sprintf("Error #%d: %s", int(f), msg)
	}
	return fmt.Sprintf("Error #%d: unknown fault", int(f))
}
