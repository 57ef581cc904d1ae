// Package options contains the program options.
package options

// Graph output formats.
const (
	GraphNone  = ""
	GraphCalls = "calls"
	GraphCFG   = "cfg"
)

// Parameters contains file path options.
type Parameters struct {
	Input   string   `flag:"i" usage:"host executable to plan hooks for"`
	Output  string   `flag:"o" usage:"output listing file (default: stdout)"`
	Config  string   `flag:"c" usage:"configuration file" default:"retrohook.toml"`
	Table   string   `flag:"table" usage:"hook table file (default: embedded table)"`
	Build   string   `flag:"build" usage:"host build identifier (default: auto-detect)"`
	Base    string   `flag:"base" usage:"load address of the executable (default: image base)"`
	Anchors []string `flag:"anchor" usage:"module relative anchor offset as name=offset, repeatable"`
}

// Flags contains behavior options.
type Flags struct {
	Graph string `flag:"graph" usage:"write a Graphviz graph instead of a listing: calls, cfg"`
	List  bool   `flag:"list" usage:"list the supported builds and exit"`
	Debug bool   `flag:"debug" usage:"enable debug logging"`
	Quiet bool   `flag:"q" usage:"quiet mode"`
}

// Program options of the hook planner.
type Program struct {
	Parameters
	Flags
}

// Listing defines options to control the listing output.
type Listing struct {
	HexComments    bool
	OffsetComments bool
}

// NewListing returns a new options instance with default options.
func NewListing() Listing {
	return Listing{
		HexComments:    true,
		OffsetComments: true,
	}
}
