// Package fileprocessor handles file loading and processing operations
package fileprocessor

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/retroenv/retrohook/internal/cli"
	"github.com/retroenv/retrohook/internal/config"
	"github.com/retroenv/retrohook/internal/hookgraph"
	"github.com/retroenv/retrohook/internal/hooktable"
	"github.com/retroenv/retrohook/internal/options"
	"github.com/retroenv/retrohook/internal/pipeline"
	"github.com/retroenv/retrohook/internal/writer"
	"github.com/retroenv/retrogolib/buildinfo"
	"github.com/retroenv/retrogolib/log"
)

// ProcessFile handles the complete planning workflow of a host executable.
func ProcessFile(ctx context.Context, logger *log.Logger, opts options.Program, listing options.Listing,
	cfg config.Config) error {

	table, err := LoadTable(cli.TablePath(opts, cfg.Hooks))
	if err != nil {
		return fmt.Errorf("loading hook table: %w", err)
	}

	pipelineOptions, err := cli.PipelineOptions(opts, cfg.Hooks)
	if err != nil {
		return err
	}

	plan, err := pipeline.New(logger, table).Execute(ctx, pipelineOptions)
	if err != nil {
		return fmt.Errorf("planning hooks: %w", err)
	}

	if !opts.Quiet {
		logger.Info("Planned hooks",
			log.String("build", plan.BuildID),
			log.Int("installed", plan.Installed()),
			log.Int("sites", len(plan.Reports)))
	}

	w, err := createWriter(opts)
	if err != nil {
		return fmt.Errorf("creating writer: %w", err)
	}
	defer func() {
		if closer, ok := w.(io.Closer); ok && w != os.Stdout {
			_ = closer.Close()
		}
	}()

	return WriteOutput(w, plan, opts.Graph, listing)
}

// WriteOutput writes the plan as listing or as graph of the given kind.
func WriteOutput(w io.Writer, plan *pipeline.Plan, graph string, listing options.Listing) error {
	title := fmt.Sprintf("%s %s", plan.BuildID, plan.Build.Name)

	switch graph {
	case options.GraphNone:
		lw := writer.New(w, writer.Options{
			HexComments:    listing.HexComments,
			OffsetComments: listing.OffsetComments,
		})
		if err := lw.WritePlan(plan); err != nil {
			return fmt.Errorf("writing listing: %w", err)
		}
		return nil

	case options.GraphCalls:
		if _, err := io.WriteString(w, hookgraph.DOT(plan.Reports, title)); err != nil {
			return fmt.Errorf("writing call graph: %w", err)
		}
		return nil

	case options.GraphCFG:
		dot, err := hookgraph.DOTCFG(plan.Reports, title)
		if err != nil {
			return fmt.Errorf("building control flow graph: %w", err)
		}
		if _, err := io.WriteString(w, dot); err != nil {
			return fmt.Errorf("writing control flow graph: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unsupported graph '%s'", graph)
	}
}

// LoadTable loads the hook table file, or the embedded table if path is empty.
func LoadTable(path string) (*hooktable.Table, error) {
	if path == "" {
		return hooktable.Default()
	}
	return hooktable.Load(path)
}

// PrintBuilds writes the supported host builds of the table.
func PrintBuilds(w io.Writer, table *hooktable.Table) error {
	for _, id := range table.IDs() {
		build := table.Builds[id]
		events := "frame hook"
		if build.Events {
			events = "event sinks"
		}
		if _, err := fmt.Fprintf(w, "%-12s %-28s %2d sites, %s\n", id, build.Name, len(build.Sites), events); err != nil {
			return fmt.Errorf("writing build: %w", err)
		}
	}
	return nil
}

func createWriter(opts options.Program) (io.Writer, error) {
	if opts.Output == "" {
		return os.Stdout, nil
	}

	file, err := os.Create(opts.Output)
	if err != nil {
		return nil, fmt.Errorf("creating output file %s: %w", opts.Output, err)
	}
	return file, nil
}

// PrintBanner logs the program version unless running quietly.
func PrintBanner(logger *log.Logger, opts options.Program, version, commit, date string) {
	if opts.Quiet {
		return
	}

	if len(commit) > 7 {
		commit = commit[:7]
	}
	if strings.Contains(date, "unknown") {
		date = ""
	}
	logger.Info("retrohook", log.String("version", buildinfo.Version(version, commit, date)))
}
