// Package logger implements the synchronous command/response state
// machine layered on a line-based command interface with a
// binary bulk-read sub-protocol and its own checksum. The session is
// strictly single-threaded: every public method either completes with
// the transport back at prompt, or fails and the caller must tear the
// session down.
package logger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dhx/crget/internal/protolog"
	"github.com/dhx/crget/internal/transport"
)

const (
	ResponseTimeout        = 10 * time.Second
	InitRetries            = 10
	PromptAttempts         = 5
	PromptCharacters       = 256
	ResponseLines          = 6
	ClockThreshold         = 30 // seconds
	StandardDataChunkSize  = 1024
	ExceptionDataChunkSize = 64
	MaxChecksumFailures    = 5
)

// Session carries the owned transport and the currently negotiated
// numeric security level (0 if never negotiated).
type Session struct {
	t             *transport.Transport
	securityLevel int
	log           *protolog.Logger
}

// New drives the initial CR+LF wake-up against t until the logger
// produces any byte, up to InitRetries attempts (logger_create).
func New(t *transport.Transport) (*Session, error) {
	s := &Session{t: t, log: protolog.Default()}
	if err := t.Flush(); err != nil {
		return nil, err
	}
	for attempt := 0; attempt < InitRetries; attempt++ {
		if _, err := t.Write([]byte("\r\n")); err != nil {
			return nil, fmt.Errorf("logger create: %w", err)
		}
		n, err := t.BytesPendingBlocking(ResponseTimeout / InitRetries)
		if err == nil && n > 0 {
			return s, nil
		}
	}
	return nil, fmt.Errorf("logger create: %w", ErrNoPrompt)
}

// Close tears down the underlying transport.
func (s *Session) Close() error {
	return s.t.Close()
}

// getPrompt flushes pending input, writes CR+LF, and reads byte-by-byte
// with a per-attempt timeout, resending CR+LF on each attempt timeout,
// up to PromptAttempts, looking for '*' within PromptCharacters bytes.
func (s *Session) getPrompt() error {
	if pending, err := s.t.BytesPending(); err == nil && pending > 0 {
		_ = s.t.Flush()
	}
	perAttempt := ResponseTimeout / PromptAttempts
	seen := 0
	for attempt := 0; attempt < PromptAttempts; attempt++ {
		if _, err := s.t.Write([]byte("\r\n")); err != nil {
			return err
		}
		for seen < PromptCharacters {
			var b [1]byte
			n, err := s.t.ReadRaw(b[:], perAttempt)
			if err != nil || n == 0 {
				break // timed out this attempt; resend CR+LF
			}
			seen++
			if b[0] == '*' {
				return nil
			}
		}
	}
	return ErrNoPrompt
}

// command writes req terminated by CR+LF, then reads up to
// ResponseLines lines (timeout ResponseTimeout each), looking for the
// echo of req followed by the first differing nonempty line. If a
// nonempty non-echo line arrives before the echo, the session is
// resynced via getPrompt and the whole command is retried once.
func (s *Session) command(req string) (string, error) {
	return s.commandAttempt(req, true)
}

func (s *Session) commandAttempt(req string, allowRetry bool) (string, error) {
	if _, err := s.t.Write([]byte(req + "\r\n")); err != nil {
		return "", err
	}

	echoSeen := false
	for i := 0; i < ResponseLines; i++ {
		dst := make([]byte, 512)
		line, err := s.t.ReadLine(dst, ResponseTimeout)
		if err != nil {
			return "", err
		}
		line = stripToLastPrompt(line)
		if line == "" {
			continue
		}
		if line == req {
			echoSeen = true
			continue
		}
		if !echoSeen {
			if allowRetry {
				if err := s.getPrompt(); err != nil {
					return "", err
				}
				return s.commandAttempt(req, false)
			}
			return "", ErrProtocol
		}
		return line, nil
	}
	return "", ErrProtocol
}

// stripToLastPrompt strips everything up to and including the last '*'
// in line, handling a prompt character glued onto a response line.
func stripToLastPrompt(line string) string {
	if idx := strings.LastIndexByte(line, '*'); idx >= 0 {
		return line[idx+1:]
	}
	return line
}

// SetSecurityLevel writes <password>L\r\n\n directly (bypassing
// command) and validates the logger's reported checksum against one
// computed locally over the response bytes. Returns (accepted bool,
// err). accepted is false if the logger reported no new security
// level; err is non-nil only on a checksum mismatch or transport
// failure.
func (s *Session) SetSecurityLevel(password string) (bool, error) {
	if _, err := s.t.Write([]byte(password + "L\r\n\n")); err != nil {
		return false, err
	}

	var (
		checksum    int
		reportedSum = -1
		newLevel    = -1
		atLineStart = true
	)

	for {
		var b [1]byte
		n, err := s.t.ReadRaw(b[:], ResponseTimeout)
		if err != nil || n == 0 {
			return false, ErrNoPrompt
		}
		c := b[0]
		if c == '*' {
			break
		}
		checksum = (checksum + int(c)) % 8192

		if atLineStart && c == 'C' {
			v, consumed := readLeadingDigits(s, ResponseTimeout)
			if consumed {
				reportedSum = v
			}
		}
		if atLineStart && c == 'S' {
			v, consumed := readLeadingDigits(s, ResponseTimeout)
			if consumed {
				newLevel = v
			}
		}
		atLineStart = c == '\n'
	}

	if reportedSum >= 0 && reportedSum != checksum {
		return false, ErrBadChecksum
	}
	if newLevel < 0 {
		return false, nil
	}
	s.securityLevel = newLevel
	return true, nil
}

// readLeadingDigits reads digit bytes from the transport until a
// non-digit terminates the run, returning the parsed integer. Used by
// SetSecurityLevel's inline C<digits>/S<digits> scan.
func readLeadingDigits(s *Session, timeout time.Duration) (int, bool) {
	var digits []byte
	for {
		var b [1]byte
		n, err := s.t.ReadRaw(b[:], timeout)
		if err != nil || n == 0 {
			break
		}
		if b[0] < '0' || b[0] > '9' {
			break
		}
		digits = append(digits, b[0])
	}
	if len(digits) == 0 {
		return 0, false
	}
	v, err := strconv.Atoi(string(digits))
	if err != nil {
		return 0, false
	}
	return v, true
}

// ClockSkew reports the result of UpdateClock: the measured skew in
// seconds (wall clock minus logger clock) and whether the logger's
// clock was adjusted.
type ClockSkew struct {
	SkewSeconds int
	Adjusted    bool
}

// UpdateClock issues C, parses the logger's reported day-of-year and
// time-of-day, computes standard (non-DST) wall clock seconds-of-year,
// and if the skew exceeds ClockThreshold, sets the logger's clock via
// DDD:HH:MM:SSC.
func (s *Session) UpdateClock(now time.Time) (ClockSkew, error) {
	reply, err := s.command("C")
	if err != nil {
		return ClockSkew{}, err
	}

	var day, hour, minute, second int
	haveDay, haveTime := false, false
	for _, tok := range strings.Fields(reply) {
		switch {
		case strings.HasPrefix(tok, "D"):
			if v, err := strconv.Atoi(strings.TrimRight(tok[1:], ".")); err == nil {
				day = v
				haveDay = true
			}
		case strings.HasPrefix(tok, "T"):
			parts := strings.SplitN(strings.TrimRight(tok[1:], "."), ":", 3)
			if len(parts) == 3 {
				h, e1 := strconv.Atoi(parts[0])
				m, e2 := strconv.Atoi(parts[1])
				sec, e3 := strconv.Atoi(parts[2])
				if e1 == nil && e2 == nil && e3 == nil {
					hour, minute, second = h, m, sec
					haveTime = true
				}
			}
		}
	}
	if !haveDay || !haveTime {
		return ClockSkew{}, ErrProtocol
	}

	loggerSeconds := dayToYearSeconds(day, hour, minute, second)
	wallDay, wallHour, wallMinute, wallSecond := standardTimeComponents(now)
	wallSeconds := dayToYearSeconds(wallDay, wallHour, wallMinute, wallSecond)

	skew := wallSeconds - loggerSeconds
	result := ClockSkew{SkewSeconds: skew}
	if skew < 0 {
		if -skew <= ClockThreshold {
			return result, nil
		}
	} else if skew <= ClockThreshold {
		return result, nil
	}

	setCmd := fmt.Sprintf("%03d:%02d:%02d:%02dC", wallDay, wallHour, wallMinute, wallSecond)
	if _, err := s.command(setCmd); err != nil {
		return result, err
	}
	result.Adjusted = true
	return result, nil
}

func dayToYearSeconds(day, hour, minute, second int) int {
	return ((day-1)*24+hour)*3600 + minute*60 + second
}

// standardTimeComponents returns now's day-of-year/hour/minute/second
// in standard (non-DST) local time: if the zone is currently observing
// DST, the hour is rolled back by one, rolling the day back on
// underflow. This matches the logger's own clock, which never observes
// DST.
func standardTimeComponents(now time.Time) (day, hour, minute, second int) {
	local := now.Local()
	day = local.YearDay()
	hour = local.Hour()
	minute = local.Minute()
	second = local.Second()

	if local.IsDST() {
		hour--
		if hour < 0 {
			hour += 24
			day--
			if day < 1 {
				day = dayCountOfYear(local.Year() - 1)
			}
		}
	}
	return
}

func dayCountOfYear(year int) int {
	if time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC).YearDay() == 366 {
		return 366
	}
	return 365
}

// Position is the ring-parameter quadruple reported by GetPosition.
type Position struct {
	ReferenceLocation int
	FilledLocations   int
	MemoryPointer     int
	LocationsPerArray int
}

// GetPosition issues A and parses the R/F/M/L tokens from the reply.
func (s *Session) GetPosition() (Position, error) {
	reply, err := s.command("A")
	if err != nil {
		return Position{}, err
	}

	var pos Position
	var haveR, haveF, haveM, haveL bool
	for _, tok := range strings.Fields(reply) {
		if len(tok) < 2 {
			continue
		}
		letter := tok[0]
		v, ok := parseSignedDigits(tok[1:])
		if !ok {
			continue
		}
		switch letter {
		case 'R':
			pos.ReferenceLocation, haveR = v, true
		case 'F':
			pos.FilledLocations, haveF = v, true
		case 'M':
			pos.MemoryPointer, haveM = v, true
		case 'L':
			pos.LocationsPerArray, haveL = v, true
		}
	}
	if !haveR || !haveF || !haveM || !haveL {
		return Position{}, ErrMissingField
	}
	return pos, nil
}

// parseSignedDigits parses the "<sign>digits.anything" shape used by
// R/F/M/L tokens (an optional leading '+' or '-', then digits, then
// anything after a '.').
func parseSignedDigits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	sign := 1
	if s[0] == '+' {
		s = s[1:]
	} else if s[0] == '-' {
		sign = -1
		s = s[1:]
	}
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		s = s[:dot]
	}
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	v, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return sign * v, true
}

// SetPosition issues <loc>G and validates the L<sign>digits echo
// matches loc.
func (s *Session) SetPosition(loc int) error {
	reply, err := s.command(fmt.Sprintf("%dG", loc))
	if err != nil {
		return err
	}
	for _, tok := range strings.Fields(reply) {
		if len(tok) < 2 || tok[0] != 'L' {
			continue
		}
		v, ok := parseSignedDigits(tok[1:])
		if ok && v == loc {
			return nil
		}
	}
	return ErrPositionMismatch
}

// RecordAlign calls SetPosition(*location), issues B, and advances
// *location to the L+<digits> token in the reply.
func (s *Session) RecordAlign(location *int) error {
	if err := s.SetPosition(*location); err != nil {
		return err
	}
	reply, err := s.command("B")
	if err != nil {
		return err
	}
	idx := strings.Index(reply, "L+")
	if idx < 0 {
		return ErrAlignMismatch
	}
	rest := reply[idx+2:]
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return ErrAlignMismatch
	}
	v, err := strconv.Atoi(rest[:end])
	if err != nil {
		return ErrAlignMismatch
	}
	*location = v
	return nil
}

// checksumState is the two-byte rotate-add checksum accumulator.
type checksumState [2]byte

func (s *checksumState) addByte(b byte) {
	t1 := s[1]
	s[1] = s[0]
	t2 := (s[0] << 1) | (s[0] >> 7)
	s[0] = t2 + t1 + b
}

func (s checksumState) pack() uint16 {
	return uint16(s[0])<<8 | uint16(s[1])
}

// ReadRawData implements the binary bulk-read sub-protocol: get
// prompt, write "<n>F\r", discard until 'F', read the CRLF, read
// 2*n data bytes, read the logger's little-endian checksum, and
// compare against a locally computed checksum. Returns ErrBadChecksum
// (non-fatal to the caller) on mismatch.
func (s *Session) ReadRawData(dst []byte, locations int) error {
	if len(dst) < 2*locations {
		return fmt.Errorf("logger: dst too small for %d locations", locations)
	}
	if err := s.getPrompt(); err != nil {
		return err
	}
	if _, err := s.t.Write([]byte(fmt.Sprintf("%dF\r", locations))); err != nil {
		return err
	}

	seen := 0
	for seen < PromptCharacters {
		var b [1]byte
		n, err := s.t.ReadRaw(b[:], ResponseTimeout)
		if err != nil || n == 0 {
			return ErrNoPrompt
		}
		seen++
		if b[0] == 'F' {
			break
		}
		if seen == PromptCharacters {
			return ErrNoPrompt
		}
	}

	var crlf [2]byte
	if err := s.t.ReadExact(crlf[:], ResponseTimeout); err != nil {
		return err
	}

	data := dst[:2*locations]
	if err := s.t.ReadExact(data, ResponseTimeout); err != nil {
		return err
	}

	var checksumBytes [2]byte
	if err := s.t.ReadExact(checksumBytes[:], ResponseTimeout); err != nil {
		return err
	}
	loggerChecksum := uint16(checksumBytes[0]) | uint16(checksumBytes[1])<<8

	state := checksumState{0xAA, 0xAA}
	for _, b := range data {
		state.addByte(b)
	}
	if state.pack() != loggerChecksum {
		return ErrBadChecksum
	}
	return nil
}

// ReadData implements the checksum-tolerant chunked read: standard
// chunks of StandardDataChunkSize, falling into exception mode
// (sub-chunks of ExceptionDataChunkSize with up to MaxChecksumFailures
// retries each) on a checksum mismatch.
func (s *Session) ReadData(dst []byte, startLocation, nLocations int) (int, error) {
	if err := s.SetPosition(startLocation); err != nil {
		return 0, err
	}

	read := 0
	loc := startLocation
	remaining := nLocations
	for remaining > 0 {
		k := remaining
		if k > StandardDataChunkSize {
			k = StandardDataChunkSize
		}
		err := s.ReadRawData(dst[read*2:], k)
		if err == nil {
			read += k
			loc += k
			remaining -= k
			continue
		}
		if err != ErrBadChecksum {
			return read, err
		}

		if err := s.SetPosition(loc); err != nil {
			return read, err
		}
		gotChunk, err := s.readExceptionMode(dst[read*2:], loc, k)
		if err != nil {
			return read, err
		}
		read += gotChunk
		loc += gotChunk
		remaining -= gotChunk
	}
	return read, nil
}

func (s *Session) readExceptionMode(dst []byte, startLocation, n int) (int, error) {
	read := 0
	loc := startLocation
	remaining := n
	for remaining > 0 {
		k := remaining
		if k > ExceptionDataChunkSize {
			k = ExceptionDataChunkSize
		}
		var lastErr error
		ok := false
		for attempt := 0; attempt < MaxChecksumFailures; attempt++ {
			if err := s.SetPosition(loc); err != nil {
				return read, err
			}
			err := s.ReadRawData(dst[read*2:], k)
			if err == nil {
				ok = true
				break
			}
			if err != ErrBadChecksum {
				return read, err
			}
			lastErr = err
		}
		if !ok {
			return read, lastErr
		}
		read += k
		loc += k
		remaining -= k
	}
	return read, nil
}
