package hook

import (
	"errors"
	"fmt"

	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/retrohook/internal/arch/x64"
	"github.com/retroenv/retrohook/internal/hooktable"
	"github.com/retroenv/retrohook/internal/memory"
	"github.com/retroenv/retrohook/internal/verification"
)

// Report is the outcome of installing one site.
type Report struct {
	Name string
	Site *Site // nil if the site could not be resolved
	Err  error
}

// Engine installs all sites of a host build.
type Engine struct {
	logger    *log.Logger
	mem       memory.Memory
	alloc     *memory.Allocator
	installer *Installer
}

// NewEngine returns an engine that patches mem and allocates trampolines
// from pager within branch range of base.
func NewEngine(logger *log.Logger, mem memory.Memory, pager memory.Pager, base uintptr) *Engine {
	return &Engine{
		logger:    logger,
		mem:       mem,
		alloc:     memory.NewAllocator(pager, base),
		installer: NewInstaller(logger, mem),
	}
}

// Allocator returns the trampoline allocator of the engine.
func (e *Engine) Allocator() *memory.Allocator {
	return e.alloc
}

// InstallAll resolves, generates, verifies and installs every site of the
// build. Sites that fail are reported and skipped. An error is only returned
// if no trampoline could be allocated for a required site, in that case no
// site has been patched yet. All trampolines are written before the first
// site is patched, so trampoline pages are never writable while reachable.
func (e *Engine) InstallAll(build hooktable.Build, loc Locator, handlers map[string]uintptr) ([]Report, error) {
	reports := make([]Report, 0, len(build.Sites))

	for _, spec := range build.Sites {
		site, err := e.prepare(spec, loc, handlers)
		if err == nil {
			err = e.allocate(site)
		}
		reports = append(reports, Report{Name: spec.Name, Site: site, Err: err})
		if err == nil {
			continue
		}

		e.logger.Warn("Hook not installed",
			log.String("site", spec.Name),
			log.Err(err))
		if spec.Required && isAllocationFailure(err) {
			return reports, fmt.Errorf("installing required site '%s': %w", spec.Name, err)
		}
	}

	for i := range reports {
		report := &reports[i]
		if report.Err != nil {
			continue
		}

		site := report.Site
		if err := e.install(site); err != nil {
			report.Err = err
			e.logger.Warn("Hook not installed",
				log.String("site", site.Name),
				log.Err(err))
			continue
		}

		e.logger.Info("Hook installed",
			log.String("site", site.Name),
			log.Hex("enter", site.Enter),
			log.Hex("trampoline", site.Trampoline),
			log.Hex("return", site.Return))
	}

	return reports, nil
}

func (e *Engine) prepare(spec hooktable.SiteSpec, loc Locator, handlers map[string]uintptr) (*Site, error) {
	site, err := Resolve(spec, loc, e.mem)
	if err != nil {
		return nil, fmt.Errorf("resolving site: %w", err)
	}

	handler, ok := handlers[spec.Handler]
	if !ok || handler == 0 {
		return site, fmt.Errorf("no handler '%s' registered", spec.Handler)
	}
	site.Handler = handler

	e.logger.Debug("Site resolved",
		log.String("site", site.Name),
		log.Hex("enter", site.Enter),
		log.Hex("target", site.OriginalTarget),
		log.String("live", site.Live.String()))

	site.Code, err = Generate(site)
	if err != nil {
		return site, fmt.Errorf("generating trampoline: %w", err)
	}
	err = verification.VerifyTrampoline(site.Code, verification.Expectation{
		Variant:  site.Variant,
		Handler:  uint64(site.Handler),
		Original: uint64(site.OriginalTarget),
		Return:   uint64(site.Return),
		Tail:     site.Tail,
	})
	if err != nil {
		return site, fmt.Errorf("verifying trampoline: %w", err)
	}
	return site, nil
}

// allocate emits the trampoline of the site into the allocator region.
func (e *Engine) allocate(site *Site) error {
	if site.Trampoline == 0 {
		cursor, err := e.alloc.Begin()
		if err != nil {
			return &allocationError{err: err}
		}
		if _, err := cursor.Write(site.Code); err != nil {
			cursor.Abort()
			return &allocationError{err: err}
		}
		site.Trampoline, err = cursor.End()
		if err != nil {
			return &allocationError{err: err}
		}
	}

	// the region is only known to be reachable from the module base
	if !x64.InRange(site.Enter, site.Trampoline) {
		return &allocationError{err: fmt.Errorf("%w: trampoline 0x%X is not reachable from 0x%X",
			memory.ErrOutOfRange, site.Trampoline, site.Enter)}
	}
	return nil
}

func (e *Engine) install(site *Site) error {
	if err := e.installer.Install(site); err != nil {
		return err
	}

	patch, err := Patch(site)
	if err != nil {
		return err
	}
	return verification.VerifyPatch(e.logger, e.mem, site.Enter, patch)
}

type allocationError struct {
	err error
}

func (e *allocationError) Error() string {
	return "allocating trampoline: " + e.err.Error()
}

func (e *allocationError) Unwrap() error {
	return e.err
}

func isAllocationFailure(err error) bool {
	var allocErr *allocationError
	return errors.As(err, &allocErr)
}
