package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jacentio/skutrail/lifecycle"
	"github.com/jacentio/skutrail/sku"
)

type regenerateOptions struct {
	chunk   int
	dryRun  bool
	reason  string
	retries uint
}

func newRegenerateCmd(app func() *App) *cobra.Command {
	var opts regenerateOptions

	cmd := &cobra.Command{
		Use:   "regenerate <type>",
		Short: "Regenerate SKUs for every entity of a type",
		Long: `Regenerate the SKU of every entity of the given type, for example
product or variant. Each entity is regenerated independently; failures are
reported and the run continues.

Example:
  skuctl regenerate product
  skuctl regenerate variant --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegenerate(cmd, app(), args[0], opts)
		},
	}

	cmd.Flags().IntVar(&opts.chunk, "chunk", lifecycle.DefaultChunkSize, "Number of entities loaded at a time")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Show the new SKUs without saving them")
	cmd.Flags().StringVar(&opts.reason, "reason", "", "Reason recorded in the SKU history")
	cmd.Flags().UintVar(&opts.retries, "retries", 3, "Attempts per entity before giving up")
	return cmd
}

func runRegenerate(cmd *cobra.Command, app *App, entityType string, opts regenerateOptions) error {
	if opts.chunk <= 0 {
		return fmt.Errorf("--chunk must be positive, got %d", opts.chunk)
	}
	out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
	ctx := cmd.Context()

	result, err := app.Guard.RegenerateAll(ctx, app.Lister, entityType, lifecycle.BatchOptions{
		ChunkSize: opts.chunk,
		DryRun:    opts.dryRun,
		Reason:    opts.reason,
		Retry:     retrier(ctx, opts.retries, app.Logger),
		OnItem: func(item lifecycle.ItemResult) {
			switch {
			case item.Err != nil:
				printf(errOut, "Failed to regenerate %s %s: %v", item.EntityType, item.EntityID, item.Err)
			case opts.dryRun:
				printf(out, "Would update SKU: %s → %s", item.OldSku, item.NewSku)
			default:
				printf(out, "Updated SKU: %s → %s", item.OldSku, item.NewSku)
			}
		},
	})
	if err != nil {
		return err
	}

	if opts.dryRun {
		printf(out, "Dry run: no SKUs were saved.")
	}
	printf(out, "✅ Finished regenerating SKUs for %d records.", result.Processed)
	if result.Failed > 0 {
		return fmt.Errorf("%d of %d records failed", result.Failed, result.Processed)
	}
	return nil
}

// retrier retries transient failures. Configuration and parent errors fail
// the same way on every attempt and are returned at once.
func retrier(ctx context.Context, attempts uint, logger zerolog.Logger) func(func() error) error {
	if attempts <= 1 {
		return nil
	}
	return func(fn func() error) error {
		return retry.Do(fn,
			retry.Context(ctx),
			retry.Attempts(attempts),
			retry.Delay(100*time.Millisecond),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
			retry.RetryIf(retryable),
			retry.OnRetry(func(n uint, err error) {
				logger.Warn().Err(err).Uint("attempt", n+1).Msg("retrying sku regeneration")
			}),
		)
	}
}

func retryable(err error) bool {
	for _, permanent := range []error{
		sku.ErrConfiguration,
		sku.ErrUnmappedType,
		sku.ErrUnsupportedTypeTag,
		sku.ErrMissingParent,
	} {
		if errors.Is(err, permanent) {
			return false
		}
	}
	return true
}
