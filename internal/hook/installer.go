package hook

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/retroenv/retrohook/internal/arch/x64"
	"github.com/retroenv/retrohook/internal/memory"
	"github.com/retroenv/retrogolib/log"
)

// ErrPreImageMismatch is returned when the bytes at a site changed between
// resolution and installation.
var ErrPreImageMismatch = errors.New("call site bytes differ from the resolved pre-image")

var errNoCode = errors.New("trampoline not allocated")

// nop fills the bytes of hooked instructions that are longer than the branch.
const nop = 0x90

// Installer patches call sites to branch to their trampolines.
type Installer struct {
	logger *log.Logger
	mem    memory.Memory
}

// NewInstaller returns an installer that patches the given memory.
func NewInstaller(logger *log.Logger, mem memory.Memory) *Installer {
	return &Installer{
		logger: logger,
		mem:    mem,
	}
}

// Install overwrites the hooked instruction with a jump to the trampoline.
// The bytes at the site are verified against the pre-image right before the
// write. Installing an installed site does nothing.
func (i *Installer) Install(site *Site) error {
	if site.Installed {
		i.logger.Debug("Hook already installed", log.String("site", site.Name))
		return nil
	}
	if site.Trampoline == 0 || len(site.Code) == 0 {
		return fmt.Errorf("site '%s': %w", site.Name, errNoCode)
	}

	patch, err := Patch(site)
	if err != nil {
		return err
	}

	current, err := i.mem.Read(site.Enter, len(site.PreImage))
	if err != nil {
		return fmt.Errorf("reading site '%s': %w", site.Name, err)
	}
	if !bytes.Equal(current, site.PreImage) {
		return fmt.Errorf("site '%s' at 0x%X: %w", site.Name, site.Enter, ErrPreImageMismatch)
	}

	if err := i.mem.Patch(site.Enter, patch); err != nil {
		return fmt.Errorf("patching site '%s': %w", site.Name, err)
	}
	site.Installed = true
	return nil
}

// Patch returns the bytes that replace the hooked instruction: a rel32 jump
// to the trampoline, padded to the instruction length.
func Patch(site *Site) ([]byte, error) {
	branch, err := x64.EncodeBranch(x64.OpJmpRel32, site.Enter, site.Trampoline)
	if err != nil {
		return nil, fmt.Errorf("site '%s': %w", site.Name, err)
	}
	if site.Length < len(branch) {
		return nil, fmt.Errorf("site '%s': instruction of %d bytes can not hold a branch", site.Name, site.Length)
	}
	for len(branch) < site.Length {
		branch = append(branch, nop)
	}
	return branch, nil
}
