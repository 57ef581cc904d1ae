//go:build windows

package plugin

import (
	"context"
	"fmt"

	"github.com/retroenv/retrohook/internal/bridge"
	"github.com/retroenv/retrohook/internal/config"
	"github.com/retroenv/retrohook/internal/hook"
	"github.com/retroenv/retrohook/internal/hooktable"
	"github.com/retroenv/retrohook/internal/memory"
	"github.com/retroenv/retrogolib/log"
)

// Attach connects to the recognizer and hooks the current process.
func Attach(ctx context.Context, logger *log.Logger, cfg config.Config, host Host, surfaces Surfaces) (*Plugin, error) {
	table, err := loadTable(cfg.Hooks.Table)
	if err != nil {
		return nil, err
	}

	conn, err := bridge.Dial(ctx, cfg.Bridge.Address)
	if err != nil {
		return nil, fmt.Errorf("connecting to recognizer: %w", err)
	}
	p := New(logger, cfg, host, conn)
	if err := install(logger, p, table, surfaces); err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.Start(ctx)
	return p, nil
}

func loadTable(path string) (*hooktable.Table, error) {
	if path == "" {
		return hooktable.Default()
	}
	return hooktable.Load(path)
}

func install(logger *log.Logger, p *Plugin, table *hooktable.Table, surfaces Surfaces) error {
	mem, err := memory.NewLive()
	if err != nil {
		return fmt.Errorf("opening process memory: %w", err)
	}
	base, err := memory.ModuleBase()
	if err != nil {
		return fmt.Errorf("locating host module: %w", err)
	}

	engine := hook.NewEngine(logger, mem, mem, base)
	_, err = p.Install(engine, table, p.Callbacks(surfaces))
	return err
}
