// Package shard derives partition and sort keys for the relationship,
// unique constraint and history tables.
package shard

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"time"
)

// MaxShards is the upper bound on relationship shards per parent.
const MaxShards = 256

// historyLayout is fixed width so sort keys order lexically by time.
const historyLayout = "2006-01-02T15:04:05.000000000Z"

// RelationshipPK computes the sharded partition key for a relationship record.
// With numShards <= 1 every child of a parent lands in shard "00"; otherwise
// children are spread by the fnv hash of childRef.
func RelationshipPK(parentRef, childRef string, numShards int) string {
	if numShards <= 1 {
		return Key(parentRef, 0)
	}
	h := fnv.New32a()
	h.Write([]byte(childRef))
	return Key(parentRef, int(h.Sum32()%uint32(numShards)))
}

// Key returns the partition key of shard n for parentRef.
func Key(parentRef string, n int) string {
	return fmt.Sprintf("%s#%02x", parentRef, n)
}

// UniqueConstraintPK computes a hash-distributed partition key for a unique
// value. Constraints are scoped to a table, so the same value may appear once
// per table.
func UniqueConstraintPK(table, field, value string) string {
	data := fmt.Sprintf("%s#%s#%s", table, field, value)
	h := sha256.Sum256([]byte(data))
	return hex.EncodeToString(h[:16])
}

// HistoryPK is the partition key of a subject's history records.
func HistoryPK(subjectType, subjectID string) string {
	return subjectType + "#" + subjectID
}

// HistorySortKey orders records of one subject by creation time, with the
// record id breaking ties.
func HistorySortKey(createdAt time.Time, id string) string {
	return HistoryTimestamp(createdAt) + "#" + id
}

// HistoryTimestamp formats t so that string order matches time order.
// Every sort key created before t compares less than HistoryTimestamp(t).
func HistoryTimestamp(t time.Time) string {
	return t.UTC().Format(historyLayout)
}
