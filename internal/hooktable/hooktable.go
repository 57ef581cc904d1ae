// Package hooktable contains the call sites that are hooked per supported
// host build.
package hooktable

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
)

// ErrUnsupportedBuild is returned for a host build that has no table entry.
var ErrUnsupportedBuild = errors.New("unsupported host build")

// Variant selects when the handler runs relative to the original call.
type Variant string

// Supported interception variants.
const (
	// Pre calls the handler with the unmodified argument registers before
	// the original target runs.
	Pre Variant = "pre"
	// Post calls the handler without arguments after the original target
	// returned, preserving registers that the following code reads.
	Post Variant = "post"
)

// DefaultLength is the length of the rel32 call instruction at most sites.
const DefaultLength = 5

// SiteSpec describes a hooked call instruction of a host build.
type SiteSpec struct {
	Name string `toml:"name"`
	// Anchor names an address supplied by the host loader that Offset is
	// relative to. An empty anchor means the module base.
	Anchor string `toml:"anchor"`
	Offset uint64 `toml:"offset"`
	Opcode uint8  `toml:"opcode"`
	Length int    `toml:"length"`
	// Target is the module relative call target, required for sites that
	// do not use the rel32 call encoding.
	Target uint64 `toml:"target"`
	// Tail is the number of bytes after the call instruction that the
	// trampoline executes before it returns.
	Tail     int     `toml:"tail"`
	Variant  Variant `toml:"variant"`
	Handler  string  `toml:"handler"`
	Required bool    `toml:"required"`
}

// InstructionLength returns the length of the hooked instruction.
func (s SiteSpec) InstructionLength() int {
	if s.Length == 0 {
		return DefaultLength
	}
	return s.Length
}

// Build is the hook configuration of one host build.
type Build struct {
	Name string `toml:"name"`
	// Version is the packed host version, 16 bits per component.
	Version uint64 `toml:"version"`
	// Events reports whether the host exposes the event sink interface that
	// drives per-frame processing. Builds without it use a frame hook.
	Events bool       `toml:"events"`
	Sites  []SiteSpec `toml:"sites"`
}

// Table maps a build identifier like "1.5.80.0" to its configuration.
type Table struct {
	Builds map[string]Build `toml:"builds"`
}

//go:embed default.toml
var defaultTable []byte

// Default returns the embedded table of all supported builds.
func Default() (*Table, error) {
	return Parse(defaultTable)
}

// Parse parses and validates a TOML encoded table.
func Parse(data []byte) (*Table, error) {
	var t Table
	if _, err := toml.Decode(string(data), &t); err != nil {
		return nil, fmt.Errorf("decoding hook table: %w", err)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Load reads and validates a table file.
func Load(path string) (*Table, error) {
	var t Table
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return nil, fmt.Errorf("decoding hook table '%s': %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("hook table '%s': %w", path, err)
	}
	return &t, nil
}

// Lookup returns the configuration of a build.
func (t *Table) Lookup(build string) (Build, error) {
	b, ok := t.Builds[build]
	if !ok {
		return Build{}, fmt.Errorf("%w: '%s'", ErrUnsupportedBuild, build)
	}
	return b, nil
}

// LookupVersion returns the identifier and configuration of the build with
// the given packed version.
func (t *Table) LookupVersion(version uint64) (string, Build, error) {
	for _, id := range t.IDs() {
		if b := t.Builds[id]; b.Version == version {
			return id, b, nil
		}
	}
	return "", Build{}, fmt.Errorf("%w: version 0x%016X", ErrUnsupportedBuild, version)
}

// IDs returns the sorted build identifiers.
func (t *Table) IDs() []string {
	ids := make([]string, 0, len(t.Builds))
	for id := range t.Builds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Validate checks every site of every build for consistency.
func (t *Table) Validate() error {
	if len(t.Builds) == 0 {
		return errors.New("no builds defined")
	}
	for _, id := range t.IDs() {
		b := t.Builds[id]
		names := make(map[string]struct{}, len(b.Sites))
		for i, site := range b.Sites {
			if err := site.validate(); err != nil {
				return fmt.Errorf("build '%s' site %d: %w", id, i, err)
			}
			if _, ok := names[site.Name]; ok {
				return fmt.Errorf("build '%s': duplicate site '%s'", id, site.Name)
			}
			names[site.Name] = struct{}{}
		}
	}
	return nil
}

func (s SiteSpec) validate() error {
	switch {
	case s.Name == "":
		return errors.New("missing name")
	case s.Handler == "":
		return fmt.Errorf("site '%s': missing handler", s.Name)
	case s.Variant != Pre && s.Variant != Post:
		return fmt.Errorf("site '%s': unsupported variant '%s'", s.Name, s.Variant)
	case s.InstructionLength() < DefaultLength:
		return fmt.Errorf("site '%s': instruction length %d is shorter than a branch", s.Name, s.Length)
	case s.Tail < 0:
		return fmt.Errorf("site '%s': negative tail length", s.Name)
	case s.Opcode != 0xE8 && s.Target == 0:
		return fmt.Errorf("site '%s': opcode 0x%02X requires an explicit target", s.Name, s.Opcode)
	case s.Opcode == 0xE8 && s.InstructionLength() != DefaultLength:
		return fmt.Errorf("site '%s': rel32 call must be %d bytes", s.Name, DefaultLength)
	}
	return nil
}
