// Package pipeline orchestrates the offline hook planning workflow stages.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/retroenv/retrohook/internal/detector"
	"github.com/retroenv/retrohook/internal/hook"
	"github.com/retroenv/retrohook/internal/hooktable"
	"github.com/retroenv/retrohook/internal/loader"
	"github.com/retroenv/retrogolib/log"
)

// handlerBase is the address of the first placeholder handler of a plan.
const handlerBase = 0x7FF800000000

var errNoBuild = errors.New("host build could not be detected, pass it explicitly")

// Options controls a planning run.
type Options struct {
	Input   string             // host executable
	Build   string             // build identifier, detected from Input if empty
	Base    uintptr            // load address, the image base if zero
	Anchors map[string]uintptr // module relative anchor offsets
}

// Plan is the result of installing a build into a loaded executable.
type Plan struct {
	BuildID  string
	Build    hooktable.Build
	Module   *loader.Module
	Handlers map[string]uintptr
	Reports  []hook.Report
}

// Installed returns the number of installed sites.
func (p *Plan) Installed() int {
	n := 0
	for _, r := range p.Reports {
		if r.Err == nil {
			n++
		}
	}
	return n
}

// Pipeline orchestrates the complete planning workflow.
type Pipeline struct {
	logger *log.Logger
	table  *hooktable.Table
	loader *loader.Loader
}

// New creates a new planning pipeline for the sites of table.
func New(logger *log.Logger, table *hooktable.Table) *Pipeline {
	return &Pipeline{
		logger: logger,
		table:  table,
		loader: loader.New(),
	}
}

// Execute loads the executable and plans the hooks of its build.
func (p *Pipeline) Execute(ctx context.Context, opts Options) (*Plan, error) {
	module, err := p.loader.Load(opts.Input, opts.Base)
	if err != nil {
		return nil, fmt.Errorf("loading executable: %w", err)
	}
	return p.ExecuteWithModule(ctx, module, opts)
}

// ExecuteWithModule plans the hooks for a pre-loaded module.
// This is useful for testing and programmatic usage where the module is already in memory.
func (p *Pipeline) ExecuteWithModule(ctx context.Context, module *loader.Module, opts Options) (*Plan, error) {
	id := opts.Build
	if id == "" {
		var ok bool
		if id, ok = detector.DetectFromFile(opts.Input); !ok {
			return nil, errNoBuild
		}
		p.logger.Debug("Auto-detected build",
			log.String("build", id),
			log.String("file", opts.Input))
	}
	build, err := p.table.Lookup(id)
	if err != nil {
		return nil, fmt.Errorf("looking up build: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("planning canceled: %w", err)
	}

	plan := &Plan{
		BuildID:  id,
		Build:    build,
		Module:   module,
		Handlers: placeholderHandlers(build),
	}

	loc := hook.Locator{
		Base:    module.Base,
		Anchors: make(map[string]uintptr, len(opts.Anchors)),
	}
	for name, offset := range opts.Anchors {
		loc.Anchors[name] = module.Base + offset
	}

	p.logger.Info("Planning hooks",
		log.String("build", id),
		log.Hex("base", module.Base),
		log.Int("sites", len(build.Sites)))

	engine := hook.NewEngine(p.logger, module.Image, module.Image, module.Base)
	plan.Reports, err = engine.InstallAll(build, loc, plan.Handlers)
	if err != nil {
		return plan, fmt.Errorf("installing hooks: %w", err)
	}
	return plan, nil
}

// placeholderHandlers assigns a distinct address to every handler named by
// the sites of build.
func placeholderHandlers(build hooktable.Build) map[string]uintptr {
	var names []string
	seen := make(map[string]bool)
	for _, site := range build.Sites {
		if !seen[site.Handler] {
			seen[site.Handler] = true
			names = append(names, site.Handler)
		}
	}
	sort.Strings(names)

	handlers := make(map[string]uintptr, len(names))
	for i, name := range names {
		handlers[name] = handlerBase + uintptr(i+1)*0x1000
	}
	return handlers
}
