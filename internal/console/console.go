// Package console wires -q and the VERBOSE_OUTPUT/HIDE_DOWNLOADBAR/
// DEBUG_HANGUP environment toggles to logrus's level, and draws the
// download progress bar.
package console

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"golang.org/x/term"
)

// ConfigureLevel sets the process-wide log level from the -q flag and
// the VERBOSE_OUTPUT environment variable. Quiet wins over verbose.
func ConfigureLevel(quiet bool) {
	switch {
	case quiet:
		log.SetLevel(log.PanicLevel)
	case EnvFlag("VERBOSE_OUTPUT"):
		log.SetLevel(log.DebugLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}

// EnvFlag reports whether the named environment variable is set to any
// value other than empty or "0" — "set at all" toggle semantics for a
// handful of debug environment variables.
func EnvFlag(name string) bool {
	v, ok := os.LookupEnv(name)
	if !ok {
		return false
	}
	v = strings.TrimSpace(v)
	if v == "" || v == "0" {
		return false
	}
	return true
}

// ModemInitString returns MODEM_INITSTRING or the conventional default.
func ModemInitString() string {
	if v, ok := os.LookupEnv("MODEM_INITSTRING"); ok && v != "" {
		return v
	}
	return "ATM1L0"
}

// lastPrinted is the shared progress-bar state: a TTY gets
// carriage-return redraws; a non-TTY (e.g. a cron log) gets one line
// per percentage point instead, so redirected output doesn't fill up
// with \r noise.
var lastPrinted = -1

// DrawBar renders cur/total as a percentage bar, suppressed by hide
// (wired from HIDE_DOWNLOADBAR).
func DrawBar(cur, total int, hide bool) {
	if hide || total <= 0 {
		return
	}
	pct := cur * 100 / total
	if pct == lastPrinted && cur != total {
		return
	}
	lastPrinted = pct

	filled := pct * 20 / 100
	bar := strings.Repeat("*", filled) + strings.Repeat(" ", 20-filled)

	if term.IsTerminal(int(os.Stderr.Fd())) {
		if cur >= total {
			fmt.Fprintf(os.Stderr, "\r100%%\t[%s] %d/%d\n", bar, cur, total)
		} else {
			fmt.Fprintf(os.Stderr, "\r%3d%%\t[%s] %d/%d", pct, bar, cur, total)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "%3d%%\t[%s] %d/%d\n", pct, bar, cur, total)
}

// ParseBaseTenInt parses a base-10 integer, rejecting values outside
// the platform int range, for -l.
func ParseBaseTenInt(s string) (int, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, err
	}
	if v > int64(^uint(0)>>1) {
		return 0, fmt.Errorf("value overflows int")
	}
	return int(v), nil
}
