package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/skutrail/config"
	"github.com/jacentio/skutrail/sku"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "skutrail.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	s, err := config.Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, "TM", s.Sku.Prefix)
	assert.Equal(t, "-", s.Sku.Separator)
	assert.Equal(t, 8, s.Sku.UlidLength)
	assert.Equal(t, sku.KindProduct, s.Sku.Models["product"])
	assert.Equal(t, sku.KindVariant, s.Sku.Models["variant"])
	assert.Nil(t, s.Sku.Category)

	assert.True(t, s.History.Enabled)
	assert.True(t, s.History.TrackUser)
	assert.Equal(t, "sku_histories", s.History.TableName)
	assert.Nil(t, s.History.RetentionDays)

	assert.Equal(t, config.DriverMemory, s.Storage.Driver)
	assert.Equal(t, 1, s.Storage.DynamoDB.Tables.NumShards)
	assert.Equal(t, "sku_histories", s.Storage.DynamoDB.Tables.HistoryTable)
	assert.Equal(t, "info", s.Log.Level)
	assert.Equal(t, "skutrail:", s.Events.Redis.Prefix)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
sku:
  prefix: AB
  ulid_length: 6
  models:
    item: product
  category:
    accessor: categories
    field: name
    length: 4
    has_many: true
history:
  table_name: audit_skus
  retention_days: 90
storage:
  driver: dynamodb
  dynamodb:
    region: eu-west-1
    unique_table: uniques
    num_shards: 8
events:
  redis:
    address: localhost:6379
log:
  level: debug
  pretty: true
`)
	s, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "AB", s.Sku.Prefix)
	assert.Equal(t, 6, s.Sku.UlidLength)
	assert.Equal(t, map[string]sku.Kind{"item": sku.KindProduct}, s.Sku.Models)
	require.NotNil(t, s.Sku.Category)
	assert.True(t, s.Sku.Category.HasMany)
	assert.Equal(t, 4, s.Sku.Category.Length)

	require.NotNil(t, s.History.RetentionDays)
	assert.Equal(t, 90, *s.History.RetentionDays)

	assert.Equal(t, "eu-west-1", s.Storage.DynamoDB.Region)
	assert.Equal(t, "uniques", s.Storage.DynamoDB.Tables.UniqueTable)
	assert.Equal(t, "skutrail_relationships", s.Storage.DynamoDB.Tables.RelationshipTable)
	assert.Equal(t, 8, s.Storage.DynamoDB.Tables.NumShards)
	assert.Equal(t, "audit_skus", s.Storage.DynamoDB.Tables.HistoryTable)
	assert.Equal(t, "skutrail", s.Events.Redis.Prefix)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SKUTRAIL_SKU_PREFIX", "ENV")
	t.Setenv("SKUTRAIL_STORAGE_DRIVER", "postgres")
	t.Setenv("SKUTRAIL_STORAGE_POSTGRES_DSN", "postgres://localhost/skus")

	s, err := config.Load(writeConfig(t, "sku:\n  prefix: FILE\n"))
	require.NoError(t, err)
	assert.Equal(t, "ENV", s.Sku.Prefix)
	assert.Equal(t, config.DriverPostgres, s.Storage.Driver)
	assert.Equal(t, "postgres://localhost/skus", s.Storage.Postgres.DSN)
}

func TestLoad_MigratedPostgresDefaultHistoryTable(t *testing.T) {
	s, err := config.Load(writeConfig(t, `
storage:
  driver: postgres
  postgres:
    dsn: postgres://localhost/skus
    migrate: true
`))
	require.NoError(t, err)
	assert.True(t, s.Storage.Postgres.Migrate)
	assert.Equal(t, "sku_histories", s.History.TableName)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "incomplete category section",
			body: "sku:\n  category:\n    accessor: category\n    field: name\n",
			want: "category.length",
		},
		{
			name: "unknown model type",
			body: "sku:\n  models:\n    item: bundle\n",
			want: "models.item",
		},
		{
			name: "unknown driver",
			body: "storage:\n  driver: mongo\n",
			want: "Driver",
		},
		{
			name: "postgres without dsn",
			body: "storage:\n  driver: postgres\n",
			want: "DSN",
		},
		{
			name: "amqp without exchange",
			body: "events:\n  amqp:\n    url: amqp://localhost\n    exchange: \"\"\n",
			want: "Exchange",
		},
		{
			name: "bad log level",
			body: "log:\n  level: loud\n",
			want: "Level",
		},
		{
			name: "non positive retention",
			body: "history:\n  retention_days: 0\n",
			want: "retention_days",
		},
		{
			name: "migrated postgres with custom history table",
			body: "storage:\n  driver: postgres\n  postgres:\n    dsn: postgres://localhost/skus\n    migrate: true\nhistory:\n  table_name: audit.sku_log\n",
			want: "history.table_name",
		},
		{
			name: "separator too long",
			body: "sku:\n  separator: \"--\"\n",
			want: "separator",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLog_Logger(t *testing.T) {
	var buf bytes.Buffer
	l := config.Log{Level: "warn"}.Logger(&buf)
	l.Info().Msg("hidden")
	l.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Equal(t, zerolog.WarnLevel, l.GetLevel())

	assert.Equal(t, zerolog.InfoLevel, config.Log{Level: "nonsense"}.Logger(&buf).GetLevel())
}
