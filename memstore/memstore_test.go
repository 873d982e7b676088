package memstore_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/skutrail/history"
	"github.com/jacentio/skutrail/memstore"
	"github.com/jacentio/skutrail/sku"
)

type item struct {
	typ, table, id, sku string
}

func (i *item) EntityType() string { return i.typ }
func (i *item) EntityID() string   { return i.id }
func (i *item) TableName() string  { return i.table }
func (i *item) Sku() string        { return i.sku }
func (i *item) SetSku(s string)    { i.sku = s }

func product(id, s string) *item { return &item{typ: "product", table: "products", id: id, sku: s} }

func TestStore_UniqueSkuPerTable(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, product("a", "X")))
	assert.ErrorIs(t, s.Insert(ctx, product("b", "X")), memstore.ErrDuplicateSku)
	assert.ErrorIs(t, s.Insert(ctx, product("a", "Y")), memstore.ErrAlreadyExists)

	require.NoError(t, s.Insert(ctx, &item{typ: "variant", table: "product_variants", id: "v", sku: "X"}))
	require.NoError(t, s.Insert(ctx, product("c", "")))
	require.NoError(t, s.Insert(ctx, product("d", "")))
}

func TestStore_PersistedSkuTracksWrites(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	p := product("a", "X")
	require.NoError(t, s.Insert(ctx, p))

	p.SetSku("Y")
	got, err := s.PersistedSku(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "X", got)

	require.NoError(t, s.Update(ctx, p))
	got, err = s.PersistedSku(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "Y", got)

	taken, err := s.SkuExists(ctx, product("b", ""), "X")
	require.NoError(t, err)
	assert.False(t, taken, "old sku is released on update")

	taken, err = s.SkuExists(ctx, product("b", ""), "Y")
	require.NoError(t, err)
	assert.True(t, taken)

	taken, err = s.SkuExists(ctx, p, "Y")
	require.NoError(t, err)
	assert.False(t, taken, "own sku is not a collision")

	found, err := s.FindBySku(ctx, "products", "Y")
	require.NoError(t, err)
	assert.Equal(t, "a", found.EntityID())
}

func TestStore_Delete(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	p := product("a", "X")
	require.NoError(t, s.Insert(ctx, p))
	require.NoError(t, s.Delete(ctx, p))
	assert.ErrorIs(t, s.Delete(ctx, p), memstore.ErrNotFound)

	_, err := s.Get(ctx, "products", "a")
	assert.ErrorIs(t, err, memstore.ErrNotFound)
	require.NoError(t, s.Insert(ctx, product("b", "X")))
}

func TestStore_ListChunks(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	for i := 5; i > 0; i-- {
		require.NoError(t, s.Insert(ctx, product(fmt.Sprintf("p%d", i), "")))
	}
	require.NoError(t, s.Insert(ctx, &item{typ: "variant", table: "product_variants", id: "v1"}))

	var chunks [][]string
	err := s.ListChunks(ctx, "product", 2, func(chunk []sku.Entity) error {
		var ids []string
		for _, e := range chunk {
			ids = append(ids, e.EntityID())
		}
		chunks = append(chunks, ids)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"p1", "p2"}, {"p3", "p4"}, {"p5"}}, chunks)
}

func TestHistoryStore(t *testing.T) {
	h := memstore.NewHistoryStore()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := range 4 {
		require.NoError(t, h.Append(ctx, &history.Record{
			SubjectType: "product",
			SubjectID:   fmt.Sprintf("p%d", i),
			EventType:   history.EventCreated,
			CreatedAt:   base.AddDate(0, 0, i),
		}))
	}

	n, err := h.CountBefore(ctx, base.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = h.DeleteBefore(ctx, base.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, h.Len())

	records, err := h.List(ctx, history.Filter{Descending: true})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "p3", records[0].SubjectID)
}

func TestHistoryStore_ListReturnsCopies(t *testing.T) {
	h := memstore.NewHistoryStore()
	ctx := context.Background()

	newSku := "TM-SHI-AAAAAAAA"
	require.NoError(t, h.Append(ctx, &history.Record{
		NewSku:      &newSku,
		SubjectType: "product",
		SubjectID:   "p1",
		EventType:   history.EventCreated,
		Metadata:    map[string]any{"source": "import"},
		CreatedAt:   time.Now(),
	}))

	records, err := h.List(ctx, history.Filter{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	records[0].Metadata["source"] = "edited"
	*records[0].NewSku = "TM-SHI-BBBBBBBB"

	again, err := h.List(ctx, history.Filter{})
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, "import", again[0].Metadata["source"])
	assert.Equal(t, "TM-SHI-AAAAAAAA", *again[0].NewSku)
}
