// Command skustream is the DynamoDB stream Lambda that cascades soft
// deletes from products to their variants and records the SKU history of
// cascaded variants.
package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/jacentio/skutrail/catalog"
	"github.com/jacentio/skutrail/config"
	"github.com/jacentio/skutrail/internal/bootstrap"
	"github.com/jacentio/skutrail/stream"
)

func main() {
	settings, err := config.Load(os.Getenv("SKUTRAIL_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger := settings.Log.Logger(os.Stderr)
	log.Logger = logger

	if settings.Storage.Driver != config.DriverDynamoDB {
		logger.Fatal().Str("driver", settings.Storage.Driver).Msg("skustream requires the dynamodb storage driver")
	}

	rt, err := bootstrap.New(context.Background(), settings, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize")
	}

	handler := stream.NewHandler(rt.Store,
		stream.WithLogger(logger),
		stream.WithDeleteHook(catalog.TypeVariant, catalog.VariantDeleteHook(rt.Guard, rt.Store)),
	)
	lambda.Start(handler.HandleCascadeDelete)
}
