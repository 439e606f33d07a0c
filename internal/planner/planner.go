// Package planner implements the ring-memory download planner: it
// converts a reference/fill pair into an ordered list of chunk fetches
// that correctly handles wrap-around, record alignment, and
// partial-progress recovery across transport resets.
package planner

import (
	"io"
	"time"

	crget "github.com/dhx/crget"
	"github.com/dhx/crget/internal/console"
	"github.com/dhx/crget/internal/decode"
	"github.com/dhx/crget/internal/logger"
	"github.com/dhx/crget/internal/protolog"
	"github.com/dhx/crget/internal/transport"
)

const (
	MaxConnectAttempts = 1
	MaxFailedAttempts  = 3
	MaxRecordSize      = 100
	ChunkSize          = 4096
)

// TransportFactory is a closure returning a fresh Transport, reopening
// the serial device / redialing the modem / reconnecting the TCP
// socket as appropriate to its concrete backend.
type TransportFactory func() (*transport.Transport, error)

// Options configures one download run.
type Options struct {
	SecurityCode      string
	UpdateClock       bool
	UserStartLocation int // -1 selects the heuristic default
	HideDownloadBar   bool
}

// Result is returned on a successful (including salvaged) download.
type Result struct {
	EndLocation int
	Downloaded  int
	Salvaged    bool
}

// Download runs the full five-phase plan against sessions produced by
// factory, streaming decoded samples into out, and returns the new end
// location to persist.
func Download(factory TransportFactory, opts Options, out io.Writer) (Result, error) {
	log := protolog.Default()
	clockDone := !opts.UpdateClock

	var (
		session *logger.Session
		pos     logger.Position
	)

	// failures is a single cumulative retry budget shared across
	// bring-up, record alignment, and the chunked pull below — not a
	// fresh budget handed out at each retry site. A persistently flaky
	// line must exhaust this one counter, not the product of per-phase
	// budgets.
	failures := 0

	// Phase 1 — bring-up.
	for {
		if failures >= MaxFailedAttempts {
			return Result{}, crget.FaultBringUpExhausted
		}
		s, err := cnWrapper(factory, opts.SecurityCode)
		if err != nil {
			failures++
			log.Warnf("%s bring-up attempt %d: %v", protolog.Tag("PLANNER", "BRINGUP"), failures, err)
			continue
		}
		session = s

		if !clockDone {
			if _, err := session.UpdateClock(time.Now()); err != nil {
				failures++
				log.Warnf("%s clock update failed: %v", protolog.Tag("PLANNER", "BRINGUP"), err)
				session.Close()
				continue
			}
			clockDone = true
		}

		p, err := session.GetPosition()
		if err != nil {
			failures++
			log.Warnf("%s get_position failed: %v", protolog.Tag("PLANNER", "BRINGUP"), err)
			session.Close()
			continue
		}
		pos = p
		break
	}
	defer session.Close()

	// Phase 2 — compute the window.
	start := opts.UserStartLocation
	if start < 0 {
		start = pos.ReferenceLocation + MaxRecordSize
	}
	if start > pos.FilledLocations {
		start = 1
	}
	end := pos.ReferenceLocation

	// Phase 3 — record alignment, same shared budget.
	for {
		if failures >= MaxFailedAttempts {
			return Result{}, crget.FaultAlignExhausted
		}
		if err := session.RecordAlign(&start); err == nil {
			break
		}
		failures++
		log.Warnf("%s record_align attempt %d failed, reconnecting", protolog.Tag("PLANNER", "ALIGN"), failures)
		session.Close()
		s, err := cnWrapper(factory, opts.SecurityCode)
		if err != nil {
			continue
		}
		session = s
	}

	// Phase 4 — chunked pull with salvage, same shared budget.
	total := end - start
	if start > end {
		total = pos.FilledLocations - start + end - 1
	}
	buf := make([]byte, 2*total)
	downloaded := 0
	wrapped := false
	salvaged := false

	for downloaded < total {
		if start+downloaded >= pos.FilledLocations {
			wrapped = true
		}

		locToStart, locToRead := nextLeg(start, end, pos.FilledLocations, downloaded, wrapped)
		if locToRead > ChunkSize {
			locToRead = ChunkSize
		}
		if locToRead <= 0 {
			break
		}

		console.DrawBar(downloaded, total, opts.HideDownloadBar)

		got, err := session.ReadData(buf[downloaded*2:], locToStart, locToRead)
		downloaded += got
		if err == nil {
			continue
		}

		failures++
		log.Warnf("%s read_data failed at %d/%d: %v", protolog.Tag("PLANNER", "DOWNLOAD"), downloaded, total, err)
		session.Close()
		if failures >= MaxFailedAttempts {
			if downloaded > MaxRecordSize {
				downloaded, end = salvage(downloaded, start, pos.FilledLocations, pos.LocationsPerArray)
				salvaged = true
				break
			}
			return Result{}, crget.FaultDownloadExhausted
		}
		s, err := cnWrapper(factory, opts.SecurityCode)
		if err != nil {
			continue
		}
		session = s
	}

	// Phase 5 — decode and finish.
	d := decode.New(out)
	if err := d.Decode(buf[:downloaded*2]); err != nil {
		return Result{}, err
	}
	if _, err := io.WriteString(out, "\n"); err != nil {
		return Result{}, err
	}

	return Result{EndLocation: end, Downloaded: downloaded, Salvaged: salvaged}, nil
}

// nextLeg computes (loc_to_start, loc_to_read) for the current
// sub-request's wrapped/non-wrapped branches.
func nextLeg(start, end, filled, downloaded int, wrapped bool) (int, int) {
	if !wrapped {
		locToStart := start + downloaded
		if start <= end {
			return locToStart, end - locToStart
		}
		return locToStart, filled - locToStart
	}
	locToStart := downloaded - (filled - start) + 1
	return locToStart, end - locToStart
}

// salvage truncates downloaded to a whole-record boundary and
// recomputes the new end location: downloaded%locationsPerArray==0
// and end==(start+downloaded)%filled.
func salvage(downloaded, start, filled, locationsPerArray int) (int, int) {
	truncated := (downloaded / locationsPerArray) * locationsPerArray
	end := (start + truncated) % filled
	return truncated, end
}

// cnWrapper obtains a transport and brings up a logger session, then
// applies the security code if given. MaxConnectAttempts is
// deliberately 1: a connect failure here falls through to the caller's
// own retry loop rather than retrying twice at two different layers.
func cnWrapper(factory TransportFactory, securityCode string) (*logger.Session, error) {
	var t *transport.Transport
	for attempt := 0; attempt < MaxConnectAttempts; attempt++ {
		got, err := factory()
		if err == nil {
			t = got
			break
		}
	}
	if t == nil {
		return nil, crget.FaultConnectExhausted
	}

	var session *logger.Session
	for attempt := 0; attempt < MaxConnectAttempts; attempt++ {
		s, err := logger.New(t)
		if err == nil {
			session = s
			break
		}
	}
	if session == nil {
		t.Close()
		return nil, crget.FaultSessionExhausted
	}

	if securityCode != "" {
		if _, err := session.SetSecurityLevel(securityCode); err != nil {
			protolog.Default().Warnf("%s security code not accepted: %v", protolog.Tag("PLANNER", "BRINGUP"), err)
		}
	}
	return session, nil
}
