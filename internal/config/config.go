// Package config loads the daemon-level configuration: socket path, home
// directory (under which programs/ and log/ live), and log level. This is
// a flat key/value file distinct from a program's own program.conf
// (internal/program), which has its own richer schema (spec.md §6).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the daemon's top-level configuration, normally read from
// /etc/redbrickapid/redbrickapid.conf.
type Config struct {
	SocketPath string
	Home       string
	LogLevel   string
	DebugLog   bool
}

// Default returns the built-in configuration used when no config file is
// present, matching spec.md §6's "socket filename configurable; default
// under /var/run/".
func Default() Config {
	return Config{
		SocketPath: "/var/run/redbrickapid.socket",
		Home:       "/usr/share/red-brick-apid",
		LogLevel:   "info",
	}
}

// Load reads path as a flat "key = value" file, overlaying it onto
// Default(). A missing file is not an error (the daemon simply runs with
// defaults, as plenty of installs do); a malformed line is reported back
// to the caller as a warning string rather than aborting the load, matching
// the "configuration parse warnings do not fail load" policy spec.md §7
// states for program.conf and that this daemon-level file follows too.
func Load(path string) (Config, []string, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil, nil
		}

		return cfg, nil, err
	}

	var warnings []string

	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			warnings = append(warnings, fmt.Sprintf("%s:%d: missing '='", path, i+1))
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "socket_path":
			cfg.SocketPath = value
		case "home":
			cfg.Home = value
		case "log_level":
			cfg.LogLevel = value
		case "debug":
			if b, err := strconv.ParseBool(value); err == nil {
				cfg.DebugLog = b
			} else {
				warnings = append(warnings, fmt.Sprintf("%s:%d: %q is not a bool", path, i+1, value))
			}
		default:
			warnings = append(warnings, fmt.Sprintf("%s:%d: unknown key %q", path, i+1, key))
		}
	}

	return cfg, warnings, nil
}

// ProgramsDirectory is where each persistent program's root directory
// lives, per the original's <home>/programs/<identifier> layout (spec.md's
// expanded supplemented features, see DESIGN.md).
func (c Config) ProgramsDirectory() string {
	return c.Home + "/programs"
}
