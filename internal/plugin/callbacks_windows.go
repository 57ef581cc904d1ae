//go:build windows

package plugin

import (
	"unsafe"

	"github.com/retroenv/retrohook/internal/session"
	"golang.org/x/sys/windows"
)

// gfxValue mirrors the layout of a menu value passed to an invoke.
type gfxValue struct {
	objectInterface uintptr
	kind            uint32
	_               uint32
	data            uintptr
}

const (
	gfxString  = 4
	gfxManaged = 0x40
)

// Surfaces wraps a native menu movie pointer.
type Surfaces func(movie uintptr) session.Surface

// Callbacks returns the native entry points of the handlers named in the
// hook table.
func (p *Plugin) Callbacks(surfaces Surfaces) map[string]uintptr {
	return map[string]uintptr{
		HandlerInvoke: windows.NewCallback(func(movie, method, argv uintptr, argc uint32) uintptr {
			p.OnInvoke(surfaces(movie), invokeArgs(argv, argc))
			return 0
		}),
		HandlerFrame: windows.NewCallback(func() uintptr {
			p.OnFrame()
			return 0
		}),
		HandlerPostLoad: windows.NewCallback(func() uintptr {
			p.OnPostLoad()
			return 0
		}),
	}
}

// invokeArgs returns the string arguments of an invoke, other argument
// types are returned as empty strings.
func invokeArgs(argv uintptr, argc uint32) []string {
	if argv == 0 || argc == 0 {
		return nil
	}

	values := unsafe.Slice((*gfxValue)(unsafe.Pointer(argv)), argc) //nolint:govet // host memory
	args := make([]string, argc)
	for i, value := range values {
		if value.kind&^gfxManaged == gfxString && value.data != 0 {
			args[i] = windows.BytePtrToString((*byte)(unsafe.Pointer(value.data))) //nolint:govet // host memory
		}
	}
	return args
}
