package store

import (
	"github.com/jacentio/skutrail/history"
	"github.com/jacentio/skutrail/internal/shard"
)

const (
	// DefaultRelationshipTable holds parent to child links.
	DefaultRelationshipTable = "skutrail_relationships"

	// DefaultUniqueTable holds one record per claimed unique value.
	DefaultUniqueTable = "skutrail_unique_constraints"
)

// Config holds configuration for the Store.
type Config struct {
	// RelationshipTable is the name of the relationship table.
	RelationshipTable string `mapstructure:"relationship_table"`

	// UniqueTable is the name of the unique constraints table.
	UniqueTable string `mapstructure:"unique_table"`

	// HistoryTable is the name of the SKU history table.
	// Default: "sku_histories"
	HistoryTable string `mapstructure:"history_table"`

	// NumShards is the number of shards for the relationship table.
	// Each shard sustains about 1,000 writes/sec per parent, so a product
	// with many concurrently created variants may need more than one.
	// Default: 1 (single query). Max: 256.
	NumShards int `mapstructure:"num_shards"`
}

// DefaultConfig returns defaults suitable for a single catalog.
func DefaultConfig() Config {
	return Config{
		RelationshipTable: DefaultRelationshipTable,
		UniqueTable:       DefaultUniqueTable,
		HistoryTable:      history.DefaultTableName,
		NumShards:         1,
	}
}

// validate fills empty table names and clamps NumShards.
func (c *Config) validate() {
	if c.RelationshipTable == "" {
		c.RelationshipTable = DefaultRelationshipTable
	}
	if c.UniqueTable == "" {
		c.UniqueTable = DefaultUniqueTable
	}
	if c.HistoryTable == "" {
		c.HistoryTable = history.DefaultTableName
	}
	if c.NumShards < 1 {
		c.NumShards = 1
	}
	if c.NumShards > shard.MaxShards {
		c.NumShards = shard.MaxShards
	}
}
