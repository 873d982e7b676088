package sku_test

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/skutrail/sku"
)

func TestNewGenerator_InvalidConfig(t *testing.T) {
	cfg := baseConfig()
	cfg.Models = nil

	_, err := sku.NewGenerator(cfg, newTakenLookup())
	require.Error(t, err)
	assert.ErrorIs(t, err, sku.ErrConfiguration)
}

func TestGenerateProduct_Format(t *testing.T) {
	g, err := sku.NewGenerator(baseConfig(), newTakenLookup())
	require.NoError(t, err)

	p := &testProduct{id: "p1", category: attrs{"name": "Shirts"}}
	got, err := g.Generate(context.Background(), p)
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^TM-SHI-[A-Z0-9]{8}$`), got)
	assert.Empty(t, p.Sku(), "Generate must not assign the sku")
}

func TestGenerateProduct_FragmentIsUpperCasedAndTruncated(t *testing.T) {
	g, err := sku.NewGenerator(baseConfig(), newTakenLookup(), fixedFragment("01hzxabcdefghjk"))
	require.NoError(t, err)

	got, err := g.Generate(context.Background(), &testProduct{id: "p1", category: attrs{"name": "shoes"}})
	require.NoError(t, err)
	assert.Equal(t, "TM-SHO-01HZXABC", got)
}

func TestGenerateProduct_Uncategorized(t *testing.T) {
	tests := []struct {
		name string
		cfg  func(*sku.Config)
		p    *testProduct
		want string
	}{
		{
			name: "no category",
			p:    &testProduct{id: "p1"},
			want: "TM-UNC-ABCDEFGH",
		},
		{
			name: "empty category name",
			p:    &testProduct{id: "p1", category: attrs{"slug": "shirts"}},
			want: "TM-UNC-ABCDEFGH",
		},
		{
			name: "has many with none",
			cfg: func(c *sku.Config) {
				c.Category = &sku.CategoryConfig{Accessor: "categories", Field: "name", Length: 4, HasMany: true}
			},
			p:    &testProduct{id: "p1", category: attrs{"name": "Ignored"}},
			want: "TM-UNCA-ABCDEFGH",
		},
		{
			name: "has many takes first",
			cfg: func(c *sku.Config) {
				c.Category = &sku.CategoryConfig{Accessor: "categories", Field: "name", Length: 3, HasMany: true}
			},
			p:    &testProduct{id: "p1", categories: []sku.Ref{attrs{"name": "Hats"}, attrs{"name": "Shirts"}}},
			want: "TM-HAT-ABCDEFGH",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			g, err := sku.NewGenerator(cfg, newTakenLookup(), fixedFragment("abcdefghij"))
			require.NoError(t, err)

			got, err := g.Generate(context.Background(), tt.p)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGenerateProduct_EmptyPrefixOmitted(t *testing.T) {
	cfg := baseConfig()
	cfg.Prefix = ""
	g, err := sku.NewGenerator(cfg, newTakenLookup(), fixedFragment("abcdefgh"))
	require.NoError(t, err)

	got, err := g.Generate(context.Background(), &testProduct{id: "p1", category: attrs{"name": "Shirts"}})
	require.NoError(t, err)
	assert.Equal(t, "SHI-ABCDEFGH", got)
}

func TestGenerateProduct_CustomSeparator(t *testing.T) {
	cfg := baseConfig()
	cfg.Separator = "_"
	g, err := sku.NewGenerator(cfg, newTakenLookup(), fixedFragment("abcdefgh"))
	require.NoError(t, err)

	got, err := g.Generate(context.Background(), &testProduct{id: "p1", category: attrs{"name": "Shirts"}})
	require.NoError(t, err)
	assert.Equal(t, "TM_SHI_ABCDEFGH", got)
}

func TestGenerateVariant_DescendingCodes(t *testing.T) {
	g, err := sku.NewGenerator(baseConfig(), newTakenLookup())
	require.NoError(t, err)

	v := &testVariant{
		id:     "v1",
		parent: &testProduct{id: "p1", sku: "TM-SHI-ABCDEFGH"},
		values: []sku.Ref{attrs{"value": "Large"}, attrs{"value": "Red"}},
	}
	got, err := g.Generate(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, "TM-SHI-ABCDEFGH-RED-LAR", got)
}

func TestGenerateVariant_SkipsEmptyCodes(t *testing.T) {
	g, err := sku.NewGenerator(baseConfig(), newTakenLookup())
	require.NoError(t, err)

	v := &testVariant{
		id:     "v1",
		parent: &testProduct{id: "p1", sku: "P-1"},
		values: []sku.Ref{attrs{"value": ""}, nil, attrs{"value": "blue"}},
	}
	got, err := g.Generate(context.Background(), v)
	require.NoError(t, err)
	assert.Equal(t, "P-1-BLU", got)
}

func TestGenerateVariant_CustomSuffix(t *testing.T) {
	cfg := baseConfig()
	cfg.CustomSuffix = func(e sku.Entity) string {
		if v, ok := e.(*testVariant); ok {
			return v.color
		}
		return ""
	}
	g, err := sku.NewGenerator(cfg, newTakenLookup())
	require.NoError(t, err)

	parent := &testProduct{id: "p1", sku: "P-1"}

	withSuffix := &testVariant{id: "v1", parent: parent, values: []sku.Ref{attrs{"value": "small"}}, color: "x1"}
	got, err := g.Generate(context.Background(), withSuffix)
	require.NoError(t, err)
	assert.Equal(t, "P-1-SMA-X1", got)

	emptySuffix := &testVariant{id: "v2", parent: parent, values: []sku.Ref{attrs{"value": "small"}}}
	got, err = g.Generate(context.Background(), emptySuffix)
	require.NoError(t, err)
	assert.Equal(t, "P-1-SMA", got)

	noCodes := &testVariant{id: "v3", parent: parent, color: "x1"}
	got, err = g.Generate(context.Background(), noCodes)
	require.NoError(t, err)
	assert.Equal(t, "P-1", got, "suffix is only appended after property codes")
}

func TestGenerateVariant_NoCodesCollidesWithSibling(t *testing.T) {
	lookup := newTakenLookup()
	g, err := sku.NewGenerator(baseConfig(), lookup)
	require.NoError(t, err)

	parent := &testProduct{id: "p1", sku: "TM-SHI-ABCDEFGH"}
	first := &testVariant{id: "v1", parent: parent}
	got, err := g.Generate(context.Background(), first)
	require.NoError(t, err)
	assert.Equal(t, parent.Sku(), got)
	lookup.take(first.TableName(), got, first.id)

	second := &testVariant{id: "v2", parent: parent}
	got, err = g.Generate(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, parent.Sku()+"-1", got)
}

func TestGenerateVariant_MissingParent(t *testing.T) {
	g, err := sku.NewGenerator(baseConfig(), newTakenLookup())
	require.NoError(t, err)

	tests := []struct {
		name string
		v    *testVariant
	}{
		{name: "nil parent", v: &testVariant{id: "v1"}},
		{name: "parent without sku", v: &testVariant{id: "v1", parent: &testProduct{id: "p1"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Generate(context.Background(), tt.v)
			require.Error(t, err)
			assert.ErrorIs(t, err, sku.ErrMissingParent)

			var mpe *sku.MissingParentError
			require.True(t, errors.As(err, &mpe))
			assert.Equal(t, "v1", mpe.EntityID)
		})
	}
}

func TestGenerateVariant_NoParentCapability(t *testing.T) {
	cfg := baseConfig()
	cfg.Models["plain"] = sku.KindVariant
	g, err := sku.NewGenerator(cfg, newTakenLookup())
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), &plain{id: "x"})
	assert.ErrorIs(t, err, sku.ErrMissingParent)
}

func TestGenerate_UnmappedType(t *testing.T) {
	g, err := sku.NewGenerator(baseConfig(), newTakenLookup())
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), &plain{id: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, sku.ErrUnmappedType)

	var ute *sku.UnmappedTypeError
	require.True(t, errors.As(err, &ute))
	assert.Equal(t, "plain", ute.EntityType)
}

func TestGenerate_CollisionsGetIncrementingSuffix(t *testing.T) {
	lookup := newTakenLookup()
	g, err := sku.NewGenerator(baseConfig(), lookup, fixedFragment("AAAAAAAA"))
	require.NoError(t, err)

	seen := map[string]bool{}
	var got []string
	for i := range 4 {
		p := &testProduct{id: string(rune('a' + i)), category: attrs{"name": "Shirts"}}
		s, err := g.Generate(context.Background(), p)
		require.NoError(t, err)
		require.False(t, seen[s], "duplicate sku %s", s)
		seen[s] = true
		got = append(got, s)
		lookup.take(p.TableName(), s, p.id)
	}

	assert.Equal(t, []string{
		"TM-SHI-AAAAAAAA",
		"TM-SHI-AAAAAAAA-1",
		"TM-SHI-AAAAAAAA-2",
		"TM-SHI-AAAAAAAA-3",
	}, got)
}

func TestGenerate_LookupFailure(t *testing.T) {
	lookup := newTakenLookup()
	lookup.err = errLookup
	g, err := sku.NewGenerator(baseConfig(), lookup)
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), &testProduct{id: "p1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, sku.ErrPersistence)
	assert.ErrorIs(t, err, errLookup)
}

func TestGenerator_ConfigIsCopied(t *testing.T) {
	cfg := baseConfig()
	g, err := sku.NewGenerator(cfg, newTakenLookup(), fixedFragment("abcdefgh"))
	require.NoError(t, err)

	cfg.Prefix = "CHANGED"
	cfg.Models["plain"] = sku.KindProduct

	got, err := g.Generate(context.Background(), &testProduct{id: "p1"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "TM-"), "got %s", got)

	_, ok := g.KindOf("plain")
	assert.False(t, ok)
}

func TestGenerator_WithLookup(t *testing.T) {
	g, err := sku.NewGenerator(baseConfig(), newTakenLookup(), fixedFragment("abcdefgh"))
	require.NoError(t, err)

	other := newTakenLookup()
	other.take("products", "TM-UNC-ABCDEFGH", "someone-else")
	g2 := g.WithLookup(other)

	got, err := g2.Generate(context.Background(), &testProduct{id: "p1"})
	require.NoError(t, err)
	assert.Equal(t, "TM-UNC-ABCDEFGH-1", got)

	got, err = g.Generate(context.Background(), &testProduct{id: "p1"})
	require.NoError(t, err)
	assert.Equal(t, "TM-UNC-ABCDEFGH", got)
}
