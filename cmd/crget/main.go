// Command crget retrieves measurement records from a Campbell-style
// field datalogger over serial, modem, or TCP, decodes them, and
// appends the result to an output file, persisting a resume location
// on success.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	crget "github.com/dhx/crget"
	"github.com/dhx/crget/internal/console"
	"github.com/dhx/crget/internal/modem"
	"github.com/dhx/crget/internal/planner"
	"github.com/dhx/crget/internal/siteconfig"
	"github.com/dhx/crget/internal/transport"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("crget", flag.ContinueOnError)
	device := fs.String("d", "", "force local serial device")
	port := fs.Int("p", 2030, "TCP port")
	forceTCP := fs.Bool("i", false, "force TCP interpretation of the positional argument")
	locArg := fs.String("l", "", "start location, or a file containing one")
	securityCode := fs.String("c", "", "security code")
	outputPath := fs.String("o", "", "output path (- for stdout)")
	noClockUpdate := fs.Bool("C", false, "suppress clock update")
	quiet := fs.Bool("q", false, "quiet")
	_ = fs.String("s", "", "reserved, accepted for compatibility, ignored")
	siteFile := fs.String("f", "", "optional site-defaults INI file")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *device != "" && (*port != 2030 || *forceTCP) {
		fmt.Fprintln(os.Stderr, "crget: -d is mutually exclusive with -p and -i")
		return 1
	}

	if *siteFile != "" {
		defaults, err := siteconfig.Load(*siteFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "crget: reading %s: %v\n", *siteFile, err)
			return 1
		}
		if *device == "" {
			*device = defaults.Device
		}
		if *securityCode == "" {
			*securityCode = defaults.SecurityCode
		}
	}

	console.ConfigureLevel(*quiet)

	positional := ""
	if fs.NArg() > 0 {
		positional = fs.Arg(0)
	}

	startLocation := -1
	locationFile := ""
	if *locArg != "" {
		v, path, err := resolveStartLocation(*locArg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "crget: -l: %v\n", err)
			return 1
		}
		startLocation = v
		locationFile = path
		if console.EnvFlag("VERBOSE_OUTPUT") {
			log.Debugf("[CLI] start location %d (from %s)", startLocation, *locArg)
		}
	}

	out, outPath, err := openOutput(*outputPath, *device, positional)
	if err != nil {
		fmt.Fprintf(os.Stderr, "crget: opening output: %v\n", err)
		return 1
	}
	defer out.Close()

	opts := planner.Options{
		SecurityCode:      *securityCode,
		UpdateClock:       *securityCode != "" && !*noClockUpdate,
		UserStartLocation: startLocation,
		HideDownloadBar:   console.EnvFlag("HIDE_DOWNLOADBAR"),
	}

	factory, hangup, err := buildFactory(*device, *forceTCP, *port, positional)
	if err != nil {
		fmt.Fprintf(os.Stderr, "crget: %v\n", err)
		return 1
	}

	result, err := planner.Download(factory, opts, out)
	if hangup != nil {
		if hErr := hangup(); hErr != nil {
			log.Warnf("%v", crget.FaultModemHangupExhausted)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "crget: %v\n", err)
		return 1
	}

	if locationFile != "" {
		if err := os.WriteFile(locationFile, []byte(strconv.Itoa(result.EndLocation)), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "crget: writing location file: %v\n", err)
			return 1
		}
		if console.EnvFlag("VERBOSE_OUTPUT") {
			log.Debugf("[CLI] persisted end location %d to %s", result.EndLocation, locationFile)
		}
	}

	_ = outPath
	return 0
}

// resolveStartLocation implements -l's dual interpretation: a readable
// file is read for a single integer and remembered so the new end
// location can be written back; otherwise the argument itself is
// parsed as a base-10 integer.
func resolveStartLocation(arg string) (value int, rememberPath string, err error) {
	if data, ferr := os.ReadFile(arg); ferr == nil {
		v, perr := console.ParseBaseTenInt(strings.TrimSpace(string(data)))
		if perr != nil {
			return 0, "", fmt.Errorf("malformed location in %s: %w", arg, perr)
		}
		return v, arg, nil
	}
	v, perr := console.ParseBaseTenInt(arg)
	if perr != nil {
		return 0, "", fmt.Errorf("not a file and not an integer: %s", arg)
	}
	return v, "", nil
}

// isPhoneNumber applies the source's check_arg_type heuristic: only
// digits, '-', and at most one ',' means "phone number"; anything else
// means "TCP host".
func isPhoneNumber(s string) bool {
	commas := 0
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c == '-':
		case c == ',':
			commas++
			if commas > 1 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func openOutput(outputPath, device, positional string) (*os.File, string, error) {
	path := outputPath
	if path == "" {
		path = defaultOutputName(device, positional)
	}
	if path == "-" {
		return os.Stdout, path, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	return f, path, err
}

func defaultOutputName(device, positional string) string {
	date := time.Now().Format("20060102")
	if device != "" {
		return fmt.Sprintf("logger_data-%s", date)
	}
	if positional != "" {
		return fmt.Sprintf("logger_data-%s-%s", positional, date)
	}
	return fmt.Sprintf("logger_data-%s", date)
}

// buildFactory constructs the transport factory closure for the
// selected backend (serial, modem, or TCP) and, for modem, a hangup
// function to run after the download regardless of outcome.
func buildFactory(device string, forceTCP bool, port int, positional string) (planner.TransportFactory, func() error, error) {
	switch {
	case device != "":
		return func() (*transport.Transport, error) {
			return transport.NewSerial(device)
		}, nil, nil

	case !forceTCP && isPhoneNumber(positional) && positional != "":
		number := positional
		return func() (*transport.Transport, error) {
			m, err := modem.Open(modemDeviceFor(number))
			if err != nil {
				return nil, err
			}
			if err := m.Reset(); err != nil {
				m.Close()
				return nil, err
			}
			result, err := m.Dial(number)
			if err != nil {
				m.Close()
				return nil, err
			}
			if result != modem.DialConnect {
				m.Close()
				return nil, fmt.Errorf("modem: dial result %v", result)
			}
			return transport.NewFromModemFD(m.Descriptor())
		}, func() error {
			m, err := modem.Open(modemDeviceFor(number))
			if err != nil {
				return err
			}
			defer m.Close()
			return m.Hangup()
		}, nil

	case positional != "":
		host := positional
		return func() (*transport.Transport, error) {
			return transport.DialTCP(host, port, 30*time.Second)
		}, nil, nil
	}

	return nil, nil, fmt.Errorf("no device, phone number, or host given")
}

// modemDeviceFor returns the modem device path. The source takes this
// from a dedicated flag; crget's expanded CLI keeps it fixed to the
// conventional dial-out device, overridable via MODEM_DEVICE for sites
// with a nonstandard mapping.
func modemDeviceFor(number string) string {
	if v := os.Getenv("MODEM_DEVICE"); v != "" {
		return v
	}
	return "/dev/ttyS0"
}
