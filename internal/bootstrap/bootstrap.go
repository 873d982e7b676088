// Package bootstrap assembles the SKU guard and its backends from
// configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/rs/zerolog"

	"github.com/jacentio/skutrail/catalog"
	"github.com/jacentio/skutrail/config"
	"github.com/jacentio/skutrail/events"
	"github.com/jacentio/skutrail/history"
	"github.com/jacentio/skutrail/lifecycle"
	"github.com/jacentio/skutrail/memstore"
	"github.com/jacentio/skutrail/postgres"
	"github.com/jacentio/skutrail/sku"
	"github.com/jacentio/skutrail/store"
)

// Backend is what a storage driver provides.
type Backend interface {
	lifecycle.Repository
	lifecycle.Lister
	sku.Lookup
}

// Runtime is a wired guard with its backends.
type Runtime struct {
	Guard     *lifecycle.Guard
	Backend   Backend
	History   *history.Logger
	Publisher *events.Publisher

	// Store is set for the dynamodb driver.
	Store *store.Store

	closers []func() error
}

// Close releases connections in reverse order of creation.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// New connects the configured storage driver and event sinks and returns
// the guard built on them.
func New(ctx context.Context, s *config.Settings, logger zerolog.Logger) (_ *Runtime, err error) {
	rt := &Runtime{}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	var records history.Store
	switch s.Storage.Driver {
	case config.DriverMemory:
		rt.Backend = memstore.New()
		records = memstore.NewHistoryStore()

	case config.DriverDynamoDB:
		client, err := dynamoClient(ctx, s.Storage.DynamoDB)
		if err != nil {
			return nil, err
		}
		rt.Store = store.NewWithRegistry(client, s.Storage.DynamoDB.Tables, catalog.Registry())
		rt.Backend = catalog.NewDynamoRepository(rt.Store).WithLogger(logger)
		records = rt.Store.History()

	case config.DriverPostgres:
		db, err := postgres.Open(ctx, s.Storage.Postgres)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() error { db.Close(); return nil })
		repo := postgres.NewRepository(db.Pool)
		repo.OnCascade = func(ctx context.Context, v *catalog.Variant) {
			rt.Guard.NotifyDelete(ctx, v, catalog.CascadeReason)
		}
		rt.Backend = repo
		records = postgres.NewHistoryStore(db.Pool, s.History.TableName)

	default:
		return nil, fmt.Errorf("unknown storage driver %q", s.Storage.Driver)
	}

	rt.History = history.NewLogger(s.History, records, history.WithLogger(logger))

	rt.Publisher, err = newPublisher(ctx, s.Events, logger, rt)
	if err != nil {
		return nil, err
	}

	gen, err := sku.NewGenerator(s.Sku, rt.Backend, sku.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	rt.Guard = lifecycle.New(gen, rt.Backend,
		lifecycle.WithHistory(rt.History),
		lifecycle.WithEvents(rt.Publisher),
		lifecycle.WithLogger(logger),
	)

	logger.Debug().
		Str("driver", s.Storage.Driver).
		Bool("history", s.History.Enabled).
		Msg("sku runtime ready")
	return rt, nil
}

func dynamoClient(ctx context.Context, c config.DynamoDB) (*dynamodb.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if c.Region != "" {
		opts = append(opts, awsconfig.WithRegion(c.Region))
	}
	if c.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(c.Profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = &c.Endpoint
		}
	}), nil
}

func newPublisher(ctx context.Context, c config.Events, logger zerolog.Logger, rt *Runtime) (*events.Publisher, error) {
	opts := []events.Option{events.WithLogger(logger)}

	if c.AMQP.URL != "" {
		sink, closeFn, err := events.DialAMQP(c.AMQP.URL, c.AMQP.Exchange)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, closeFn)
		opts = append(opts, events.WithSink(sink))
	}

	if c.Redis.Address != "" {
		client, err := events.NewRedisClient(ctx, events.RedisOptions{
			Address:  c.Redis.Address,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, client.Close)
		opts = append(opts, events.WithSink(events.NewRedisSink(client, c.Redis.Prefix)))
	}

	p := events.NewPublisher(opts...)
	rt.closers = append(rt.closers, func() error { p.Close(); return nil })
	return p, nil
}
