// Package loader handles loading host executables into a simulated address
// space for offline planning.
package loader

import (
	"bytes"
	"debug/pe"
	"errors"
	"fmt"

	"github.com/retroenv/retrohook/internal/memory"
)

var errNot64Bit = errors.New("executable is not a 64 bit PE image")

// Module is a host executable mapped into a memory image.
type Module struct {
	Path  string
	Base  uintptr
	Size  uintptr
	Image *memory.Image
}

// Loader handles loading executables from disk.
type Loader struct{}

// New creates a new executable loader.
func New() *Loader {
	return &Loader{}
}

// Load maps the sections of the PE file at path into a new image. A zero
// base maps the module at its preferred image base.
func (l *Loader) Load(path string, base uintptr) (*Module, error) {
	file, err := pe.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening executable %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	return l.load(file, path, base)
}

// LoadFromBytes maps the sections of an in memory PE file.
func (l *Loader) LoadFromBytes(data []byte, base uintptr) (*Module, error) {
	file, err := pe.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parsing executable: %w", err)
	}
	return l.load(file, "", base)
}

func (l *Loader) load(file *pe.File, path string, base uintptr) (*Module, error) {
	header, ok := file.OptionalHeader.(*pe.OptionalHeader64)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errNot64Bit, path)
	}
	if base == 0 {
		base = uintptr(header.ImageBase)
	}

	m := &Module{
		Path:  path,
		Base:  base,
		Size:  uintptr(header.SizeOfImage),
		Image: memory.NewImage(),
	}
	for _, section := range file.Sections {
		if err := l.mapSection(m, section); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// mapSection maps a section padded with zeros to its virtual size.
func (l *Loader) mapSection(m *Module, section *pe.Section) error {
	size := max(section.VirtualSize, section.Size)
	if size == 0 {
		return nil
	}

	data := make([]byte, size)
	if section.Size > 0 {
		raw, err := section.Data()
		if err != nil {
			return fmt.Errorf("reading section %s: %w", section.Name, err)
		}
		copy(data, raw)
	}

	if err := m.Image.Map(m.Base+uintptr(section.VirtualAddress), data); err != nil {
		return fmt.Errorf("mapping section %s: %w", section.Name, err)
	}
	return nil
}
