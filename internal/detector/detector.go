// Package detector handles host build detection.
package detector

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/retroenv/retrohook/internal/hooktable"
)

// executables maps the lower case executable names to the build they ship.
var executables = map[string]string{
	"skyrimse.exe": "1.5.80.0",
	"skyrimvr.exe": "1.4.15.0",
}

// Detect determines the build from an explicit build identifier, falling
// back to the packed version of the running host.
func Detect(table *hooktable.Table, override string, version uint64) (string, hooktable.Build, error) {
	if override != "" {
		build, err := table.Lookup(override)
		if err != nil {
			return "", hooktable.Build{}, err
		}
		return override, build, nil
	}
	return table.LookupVersion(version)
}

// DetectFromFile determines the build identifier from the name of the host
// executable. Windows path separators are accepted on every platform.
func DetectFromFile(filename string) (string, bool) {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	id, ok := executables[strings.ToLower(name)]
	return id, ok
}

// ParseVersion packs a dotted version like "1.5.80.0" into 16 bits per
// component, major version in the highest bits.
func ParseVersion(s string) (uint64, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return 0, fmt.Errorf("version '%s' does not have 4 components", s)
	}

	var version uint64
	for _, part := range parts {
		n, err := strconv.ParseUint(part, 10, 16)
		if err != nil {
			return 0, fmt.Errorf("parsing version '%s': %w", s, err)
		}
		version = version<<16 | n
	}
	return version, nil
}

// FormatVersion formats a packed version as dotted string.
func FormatVersion(version uint64) string {
	return fmt.Sprintf("%d.%d.%d.%d",
		version>>48, version>>32&0xFFFF, version>>16&0xFFFF, version&0xFFFF)
}
