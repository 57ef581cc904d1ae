// Package main implements a console that stands in for the speech recognizer.
// It accepts plugin connections, prints the announced dialogues and forwards
// typed lines like "select 1" or "COMMAND|tgm" to the plugin.
package main

import (
	"errors"
	"flag"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/retroenv/retrohook/internal/config"
	"github.com/retroenv/retrohook/internal/console"
	"github.com/retroenv/retrogolib/app"
	"github.com/retroenv/retrogolib/log"
)

type settings struct {
	Address string `env:"BRIDGE_ADDR"`
	Debug   bool   `env:"DEBUG"`
}

func main() {
	ctx := app.Context()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		config.CreateLogger(false, false).Fatal("Loading .env file failed", log.Err(err))
	}

	s := settings{Address: config.Default().Bridge.Address}
	if err := config.ParseEnv(&s); err != nil {
		config.CreateLogger(false, false).Fatal(err.Error())
	}

	flags := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	flags.StringVar(&s.Address, "l", s.Address, "address to listen on, tcp://host:port or ws://host:port")
	flags.BoolVar(&s.Debug, "debug", s.Debug, "enable debugging options for extended logging")
	_ = flags.Parse(os.Args[1:])

	logger := config.CreateLogger(s.Debug, false)

	listener, err := console.Listen(s.Address)
	if err != nil {
		logger.Fatal("Listening failed", log.Err(err))
	}
	defer func() { _ = listener.Close() }()
	logger.Info("Waiting for plugin", log.String("address", listener.Addr().String()))

	c := console.New(logger, os.Stdout)
	input := console.ReadLines(ctx, os.Stdin)

	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("Accepting plugin failed", log.Err(err))
			}
			return
		}
		logger.Info("Plugin connected")
		if err := c.Serve(ctx, conn, input); err != nil {
			logger.Warn("Plugin connection failed", log.Err(err))
		}
	}
}
