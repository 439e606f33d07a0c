// Package siteconfig reads the optional site-defaults INI file: a
// [defaults] section with device, port, security_code and output_dir
// keys. cmd/crget applies device and security_code when -d or -c was
// not given (command-line flags win); port and output_dir are read
// into Defaults but not applied by cmd/crget.
package siteconfig

import "gopkg.in/ini.v1"

// Defaults holds the [defaults] section fields, any of which may be
// empty if absent from the file.
type Defaults struct {
	Device       string
	Port         string
	SecurityCode string
	OutputDir    string
}

// Load reads path and returns its [defaults] section. A missing file
// is not an error at this layer — callers treat "-f" as optional and
// only call Load when the flag was given.
func Load(path string) (Defaults, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return Defaults{}, err
	}
	section := cfg.Section("defaults")
	return Defaults{
		Device:       section.Key("device").String(),
		Port:         section.Key("port").String(),
		SecurityCode: section.Key("security_code").String(),
		OutputDir:    section.Key("output_dir").String(),
	}, nil
}
