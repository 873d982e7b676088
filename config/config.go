// Package config loads skutrail settings from a YAML file and the
// environment.
//
// Every key can be overridden with an environment variable prefixed with
// SKUTRAIL_, dots replaced by underscores (SKUTRAIL_SKU_PREFIX,
// SKUTRAIL_STORAGE_DRIVER, ...).
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/jacentio/skutrail/history"
	"github.com/jacentio/skutrail/postgres"
	"github.com/jacentio/skutrail/sku"
	"github.com/jacentio/skutrail/store"
)

// EnvPrefix prefixes environment overrides.
const EnvPrefix = "SKUTRAIL"

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverDynamoDB = "dynamodb"
	DriverPostgres = "postgres"
)

// Settings is the complete configuration.
type Settings struct {
	Sku     sku.Config     `mapstructure:"sku"`
	History history.Config `mapstructure:"history"`
	Storage Storage        `mapstructure:"storage"`
	Events  Events         `mapstructure:"events"`
	Log     Log            `mapstructure:"log"`
}

// Storage selects and configures the persistence backend.
type Storage struct {
	Driver   string          `mapstructure:"driver" validate:"required,oneof=memory dynamodb postgres"`
	DynamoDB DynamoDB        `mapstructure:"dynamodb"`
	Postgres postgres.Config `mapstructure:"postgres"`
}

// DynamoDB configures the AWS client and the store tables.
type DynamoDB struct {
	Region   string `mapstructure:"region"`
	Profile  string `mapstructure:"profile"`
	Endpoint string `mapstructure:"endpoint" validate:"omitempty,url"`

	Tables store.Config `mapstructure:",squash"`
}

// Events configures the external sinks. Empty sections are disabled.
type Events struct {
	AMQP  AMQP  `mapstructure:"amqp"`
	Redis Redis `mapstructure:"redis"`
}

type AMQP struct {
	URL      string `mapstructure:"url" validate:"omitempty,url"`
	Exchange string `mapstructure:"exchange" validate:"required_with=URL"`
}

type Redis struct {
	Address  string `mapstructure:"address" validate:"omitempty,hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0"`
	Prefix   string `mapstructure:"prefix"`
}

// Log configures zerolog.
type Log struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Pretty bool   `mapstructure:"pretty"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("sku.prefix", "TM")
	v.SetDefault("sku.separator", sku.DefaultSeparator)
	v.SetDefault("sku.ulid_length", 8)

	hc := history.DefaultConfig()
	v.SetDefault("history.enabled", hc.Enabled)
	v.SetDefault("history.track_user", hc.TrackUser)
	v.SetDefault("history.track_ip", hc.TrackIP)
	v.SetDefault("history.track_user_agent", hc.TrackUserAgent)
	v.SetDefault("history.table_name", hc.TableName)

	sc := store.DefaultConfig()
	v.SetDefault("storage.driver", DriverMemory)
	v.SetDefault("storage.dynamodb.region", "")
	v.SetDefault("storage.dynamodb.profile", "")
	v.SetDefault("storage.dynamodb.endpoint", "")
	v.SetDefault("storage.dynamodb.relationship_table", sc.RelationshipTable)
	v.SetDefault("storage.dynamodb.unique_table", sc.UniqueTable)
	v.SetDefault("storage.dynamodb.num_shards", sc.NumShards)
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.postgres.max_conns", 5)
	v.SetDefault("storage.postgres.migrate", false)

	v.SetDefault("events.amqp.url", "")
	v.SetDefault("events.amqp.exchange", "skutrail")
	v.SetDefault("events.redis.address", "")
	v.SetDefault("events.redis.password", "")
	v.SetDefault("events.redis.db", 0)
	v.SetDefault("events.redis.prefix", "skutrail:")

	v.SetDefault("log.level", "info")
}

// Load reads path, or skutrail.yaml from the working directory and
// /etc/skutrail when path is empty. A missing default file is not an error.
func Load(path string) (*Settings, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("skutrail")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/skutrail")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return decode(v)
}

// defaultModels applies when the configuration names no models. It is not
// a viper default because viper merges nested default maps into the file's.
var defaultModels = map[string]any{
	"product": string(sku.KindProduct),
	"variant": string(sku.KindVariant),
}

func decode(v *viper.Viper) (*Settings, error) {
	if !v.IsSet("sku.models") {
		v.Set("sku.models", defaultModels)
	}
	bundle, _ := v.AllSettings()["sku"].(map[string]any)
	if err := sku.ValidateBundle(bundle); err != nil {
		return nil, err
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if s.History.TableName == "" {
		s.History.TableName = history.DefaultTableName
	}
	s.Storage.DynamoDB.Tables.HistoryTable = s.History.TableName

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(func(sl validator.StructLevel) {
		st := sl.Current().Interface().(Storage)
		if st.Driver == DriverPostgres && st.Postgres.DSN == "" {
			sl.ReportError(st.Postgres.DSN, "Postgres.DSN", "dsn", "required_for_driver", DriverPostgres)
		}
	}, Storage{})
	return v
}

// Validate checks field constraints and the SKU generator configuration.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := s.Sku.Validate(); err != nil {
		return err
	}
	if s.Storage.Driver == DriverPostgres && s.Storage.Postgres.Migrate && s.History.TableName != history.DefaultTableName {
		return fmt.Errorf("invalid config: storage.postgres.migrate creates %s, history.table_name %q must be created by hand",
			history.DefaultTableName, s.History.TableName)
	}
	if d := s.History.RetentionDays; d != nil && *d <= 0 {
		return fmt.Errorf("invalid config: history.retention_days must be positive, got %d", *d)
	}
	return nil
}

// Logger returns a zerolog logger writing to w at the configured level.
func (l Log) Logger(w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level, err := zerolog.ParseLevel(l.Level)
	if err != nil || l.Level == "" {
		level = zerolog.InfoLevel
	}
	if l.Pretty {
		w = zerolog.ConsoleWriter{Out: w}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
