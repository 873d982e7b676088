// Package cli implements the skuctl command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jacentio/skutrail/history"
	"github.com/jacentio/skutrail/lifecycle"
)

// App carries what the commands operate on.
type App struct {
	Guard   *lifecycle.Guard
	Lister  lifecycle.Lister
	History *history.Logger
	Logger  zerolog.Logger

	// Now defaults to time.Now.
	Now func() time.Time

	// Close, when set, runs after the command finishes.
	Close func() error
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// Loader builds the App from the configuration file at path. An empty path
// selects the default locations.
type Loader func(ctx context.Context, path string) (*App, error)

var errNoHistory = errors.New("sku history is not configured")

// NewRootCmd returns the skuctl root command. load runs once, before the
// selected subcommand.
func NewRootCmd(load Loader) *cobra.Command {
	var (
		configFile string
		app        *App
	)

	cmd := &cobra.Command{
		Use:   "skuctl",
		Short: "skuctl manages product and variant SKUs",
		Long: `skuctl regenerates product and variant SKUs and inspects their
history. Settings are read from skutrail.yaml and SKUTRAIL_* environment
variables.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd.Context(), configFile)
			if err != nil {
				return err
			}
			app = a
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to configuration file to override default")

	current := func() *App { return app }
	cmd.AddCommand(newRegenerateCmd(current))
	cmd.AddCommand(newHistoryCmd(current))
	closeAfterRun(cmd, func() error {
		if app == nil || app.Close == nil {
			return nil
		}
		return app.Close()
	})
	return cmd
}

// closeAfterRun wraps every RunE under c so closeApp runs whether or not
// the command fails. Cobra skips post-run hooks on error.
func closeAfterRun(c *cobra.Command, closeApp func() error) {
	if run := c.RunE; run != nil {
		c.RunE = func(cmd *cobra.Command, args []string) (err error) {
			defer func() {
				if cerr := closeApp(); err == nil {
					err = cerr
				}
			}()
			return run(cmd, args)
		}
	}
	for _, sub := range c.Commands() {
		closeAfterRun(sub, closeApp)
	}
}

// Execute runs cmd and returns the process exit code.
func Execute(ctx context.Context, cmd *cobra.Command) int {
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		return 1
	}
	return 0
}

func printf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format+"\n", args...)
}
