// Package cli handles command line interface logic
package cli

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/retroenv/retrohook/internal/config"
	"github.com/retroenv/retrohook/internal/options"
	"github.com/retroenv/retrohook/internal/pipeline"
)

// ParseFlags parses command line flags and returns program and listing options
func ParseFlags() (options.Program, options.Listing, error) {
	flags := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	var opts options.Program
	readOptionFlags(flags, &opts)
	listing := options.NewListing()
	readListingOptionFlags(flags, &listing)

	err := flags.Parse(os.Args[1:])
	args := flags.Args()
	if err != nil {
		return opts, listing, &UsageError{flags: flags}
	}
	if opts.List {
		return opts, listing, nil
	}
	if len(args) == 0 && opts.Input == "" {
		return opts, listing, &UsageError{flags: flags}
	}

	if err := validateArgs(args); err != nil {
		return opts, listing, err
	}

	if err := normalizeOptions(&opts); err != nil {
		return opts, listing, err
	}

	if opts.Input == "" {
		opts.Input = args[0]
	}
	return opts, listing, nil
}

// UsageError represents an error that should show usage information
type UsageError struct {
	flags *flag.FlagSet
	msg   string
}

func (e *UsageError) Error() string {
	return e.msg
}

func (e *UsageError) ShowUsage() {
	fmt.Printf("usage: retrohook [options] <host executable>\n\n")
	if e.flags != nil {
		e.flags.PrintDefaults()
	}
	fmt.Println()
}

// validateArgs checks if arguments are in correct order
func validateArgs(args []string) error {
	for i, arg := range args {
		if i > 0 && arg != "" && arg[0] == '-' {
			return &UsageError{
				msg: fmt.Sprintf("Potential argument %s found after host executable, please pass the executable as last argument", arg),
			}
		}
	}
	return nil
}

// normalizeOptions normalizes and validates option values
func normalizeOptions(opts *options.Program) error {
	opts.Graph = strings.ToLower(opts.Graph)

	validGraphs := []string{options.GraphNone, options.GraphCalls, options.GraphCFG}
	for _, valid := range validGraphs {
		if opts.Graph == valid {
			return nil
		}
	}

	return fmt.Errorf("unsupported graph: %s. Valid options: %s, %s",
		opts.Graph, options.GraphCalls, options.GraphCFG)
}

// PipelineOptions converts the program options to planning options. Flags
// take precedence over the hook settings of the configuration.
func PipelineOptions(opts options.Program, cfg config.Hooks) (pipeline.Options, error) {
	pipelineOptions := pipeline.Options{
		Input: opts.Input,
		Build: opts.Build,
	}
	if pipelineOptions.Build == "" {
		pipelineOptions.Build = cfg.Build
	}

	if opts.Base != "" {
		base, err := parseAddress(opts.Base)
		if err != nil {
			return pipelineOptions, fmt.Errorf("invalid base address '%s': %w", opts.Base, err)
		}
		pipelineOptions.Base = base
	}

	pipelineOptions.Anchors = make(map[string]uintptr, len(opts.Anchors))
	for _, anchor := range opts.Anchors {
		name, value, ok := strings.Cut(anchor, "=")
		if !ok || name == "" {
			return pipelineOptions, fmt.Errorf("invalid anchor '%s', expected name=offset", anchor)
		}
		offset, err := parseAddress(value)
		if err != nil {
			return pipelineOptions, fmt.Errorf("invalid offset of anchor '%s': %w", name, err)
		}
		pipelineOptions.Anchors[name] = offset
	}
	return pipelineOptions, nil
}

// TablePath returns the hook table file to use, empty for the embedded one.
func TablePath(opts options.Program, cfg config.Hooks) string {
	if opts.Table != "" {
		return opts.Table
	}
	return cfg.Table
}

func parseAddress(s string) (uintptr, error) {
	value, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, err
	}
	return uintptr(value), nil
}

type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(value string) error {
	*l = append(*l, value)
	return nil
}

func readOptionFlags(flags *flag.FlagSet, opts *options.Program) {
	flags.StringVar(&opts.Input, "i", "", "name of the host executable to plan hooks for")
	flags.StringVar(&opts.Output, "o", "", "name of the output file, printed on console if no name given")
	flags.StringVar(&opts.Config, "c", config.FileName, "name of the configuration file")
	flags.StringVar(&opts.Table, "table", "", "name of a hook table file to use instead of the embedded table")
	flags.StringVar(&opts.Build, "build", "", "host build identifier like 1.5.80.0, auto-detected from the file name if not given")
	flags.StringVar(&opts.Base, "base", "", "load address of the executable, the image base if not given")
	flags.Var((*stringList)(&opts.Anchors), "anchor", "module relative offset of an anchor as name=offset, can be repeated")
	flags.StringVar(&opts.Graph, "graph", "", "write a Graphviz DOT graph instead of a listing (calls/cfg)")
	flags.BoolVar(&opts.List, "list", false, "list the supported host builds")
	flags.BoolVar(&opts.Debug, "debug", false, "enable debugging options for extended logging")
	flags.BoolVar(&opts.Quiet, "q", false, "perform operations quietly")
}

func readListingOptionFlags(flags *flag.FlagSet, opts *options.Listing) {
	flags.BoolFunc("nohexcomments", "do not output instruction bytes as hex values in comments", func(string) error {
		opts.HexComments = false
		return nil
	})
	flags.BoolFunc("nooffsets", "do not output addresses in comments", func(string) error {
		opts.OffsetComments = false
		return nil
	})
}
