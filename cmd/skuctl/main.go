package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/jacentio/skutrail/config"
	"github.com/jacentio/skutrail/internal/bootstrap"
	"github.com/jacentio/skutrail/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCmd(func(ctx context.Context, path string) (*cli.App, error) {
		settings, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		logger := settings.Log.Logger(os.Stderr)
		log.Logger = logger

		rt, err := bootstrap.New(ctx, settings, logger)
		if err != nil {
			return nil, err
		}
		return &cli.App{
			Guard:   rt.Guard,
			Lister:  rt.Backend,
			History: rt.History,
			Logger:  logger,
			Close:   rt.Close,
		}, nil
	})

	code := cli.Execute(ctx, cmd)
	stop()
	os.Exit(code)
}
