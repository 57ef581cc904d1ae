// Package main implements the offline hook planner, which resolves, generates
// and verifies the hooks of a host executable without running it.
package main

import (
	"context"
	"errors"
	"os"

	"github.com/retroenv/retrohook/internal/cli"
	"github.com/retroenv/retrohook/internal/config"
	"github.com/retroenv/retrohook/internal/fileprocessor"
	"github.com/retroenv/retrogolib/app"
	"github.com/retroenv/retrogolib/log"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	ctx := app.Context()

	opts, listing, err := cli.ParseFlags()
	if err != nil {
		logger := config.CreateLogger(opts.Debug, opts.Quiet)
		var usageErr *cli.UsageError
		if errors.As(err, &usageErr) {
			fileprocessor.PrintBanner(logger, opts, version, commit, date)
			usageErr.ShowUsage()
		} else {
			logger.Fatal(err.Error())
		}
		os.Exit(1)
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		config.CreateLogger(opts.Debug, opts.Quiet).Fatal(err.Error())
	}

	logger := config.CreateLogger(opts.Debug || cfg.Debug, opts.Quiet)
	fileprocessor.PrintBanner(logger, opts, version, commit, date)

	if opts.List {
		table, err := fileprocessor.LoadTable(cli.TablePath(opts, cfg.Hooks))
		if err != nil {
			logger.Fatal(err.Error())
		}
		if err := fileprocessor.PrintBuilds(os.Stdout, table); err != nil {
			logger.Fatal(err.Error())
		}
		return
	}

	if err := fileprocessor.ProcessFile(ctx, logger, opts, listing, cfg); err != nil {
		// Handle context cancellation (Ctrl+C) gracefully
		if errors.Is(err, context.Canceled) {
			logger.Info("Operation cancelled")
			return
		}
		logger.Error("Planning hooks failed", log.Err(err))
		os.Exit(1)
	}
}
