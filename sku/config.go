package sku

import (
	"fmt"
	"maps"
	"unicode/utf8"
)

// Kind selects the generation strategy for an entity type.
type Kind string

const (
	KindProduct Kind = "product"
	KindVariant Kind = "variant"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindProduct || k == KindVariant
}

const (
	// DefaultSeparator joins SKU segments when none is configured.
	DefaultSeparator = "-"

	// Uncategorized is the category name used when a product has no category.
	Uncategorized = "UNCATEGORIZED"

	// maxUlidLength is the length of a canonical ULID string.
	maxUlidLength = 26
)

// CategoryConfig selects how a product's category code is read.
type CategoryConfig struct {
	// Accessor names the relation passed to HasCategory / HasCategories.
	Accessor string `mapstructure:"accessor"`

	// Field names the attribute read from the category Ref.
	Field string `mapstructure:"field"`

	// Length is the number of characters kept from the category name.
	Length int `mapstructure:"length"`

	// HasMany reads the first entry of HasCategories instead of HasCategory.
	HasMany bool `mapstructure:"has_many"`
}

// PropertyValuesConfig selects how a variant's property codes are read.
type PropertyValuesConfig struct {
	Accessor string `mapstructure:"accessor"`
	Field    string `mapstructure:"field"`
	Length   int    `mapstructure:"length"`
}

// Config is the SKU generator configuration. A Generator copies it on
// construction; later changes to the caller's value have no effect.
type Config struct {
	Prefix         string                `mapstructure:"prefix"`
	Separator      string                `mapstructure:"separator"`
	UlidLength     int                   `mapstructure:"ulid_length"`
	Category       *CategoryConfig       `mapstructure:"category"`
	PropertyValues *PropertyValuesConfig `mapstructure:"property_values"`

	// Models maps an entity type to its generation strategy.
	Models map[string]Kind `mapstructure:"models"`

	// CustomSuffix, when set, is appended (upper-cased) to variant SKUs that
	// carry property codes. Empty results are ignored.
	CustomSuffix func(Entity) string `mapstructure:"-"`
}

// DefaultCategoryConfig is used when the category section is absent.
func DefaultCategoryConfig() CategoryConfig {
	return CategoryConfig{Accessor: "category", Field: "name", Length: 3}
}

// DefaultPropertyValuesConfig is used when the property values section is absent.
func DefaultPropertyValuesConfig() PropertyValuesConfig {
	return PropertyValuesConfig{Accessor: "property_values", Field: "value", Length: 3}
}

// withDefaults returns a copy of c with optional sections filled in.
func (c Config) withDefaults() Config {
	if c.Separator == "" {
		c.Separator = DefaultSeparator
	}
	if c.Category == nil {
		cc := DefaultCategoryConfig()
		c.Category = &cc
	} else {
		cc := *c.Category
		c.Category = &cc
	}
	if c.PropertyValues == nil {
		pc := DefaultPropertyValuesConfig()
		c.PropertyValues = &pc
	} else {
		pc := *c.PropertyValues
		c.PropertyValues = &pc
	}
	c.Models = maps.Clone(c.Models)
	return c
}

// Validate checks the decoded configuration.
func (c Config) Validate() error {
	if len(c.Models) == 0 {
		return emptyModels()
	}
	for entityType, kind := range c.Models {
		if !kind.Valid() {
			return invalidModelType(entityType, kind)
		}
	}
	if c.UlidLength <= 0 || c.UlidLength > maxUlidLength {
		return &ConfigError{Key: "ulid_length", Reason: fmt.Sprintf("must be between 1 and %d", maxUlidLength)}
	}
	if c.Separator != "" && utf8.RuneCountInString(c.Separator) != 1 {
		return &ConfigError{Key: "separator", Reason: "must be a single character"}
	}
	if cc := c.Category; cc != nil {
		switch {
		case cc.Accessor == "":
			return missingSubKey("category", "accessor")
		case cc.Field == "":
			return missingSubKey("category", "field")
		case cc.Length <= 0:
			return &ConfigError{Key: "category.length", Reason: "must be positive"}
		}
	}
	if pc := c.PropertyValues; pc != nil {
		switch {
		case pc.Accessor == "":
			return missingSubKey("property_values", "accessor")
		case pc.Field == "":
			return missingSubKey("property_values", "field")
		case pc.Length <= 0:
			return &ConfigError{Key: "property_values.length", Reason: "must be positive"}
		}
	}
	return nil
}

var (
	requiredKeys            = []string{"prefix", "ulid_length", "models"}
	requiredCategoryKeys    = []string{"accessor", "field", "length", "has_many"}
	requiredPropertyKeys    = []string{"accessor", "field", "length"}
	optionalSectionRequires = map[string][]string{
		"category":        requiredCategoryKeys,
		"property_values": requiredPropertyKeys,
	}
)

// ValidateBundle checks a raw, nested configuration map (as read from a
// configuration file) for the keys the generator requires. Sections that are
// present must carry all of their sub-keys.
func ValidateBundle(bundle map[string]any) error {
	if bundle == nil {
		return &ConfigError{Key: "sku", Reason: "missing required configuration section"}
	}
	for _, key := range requiredKeys {
		if _, ok := bundle[key]; !ok {
			return missingKey(key)
		}
	}

	models, ok := asMap(bundle["models"])
	if !ok {
		return &ConfigError{Key: "models", Reason: "must be a mapping of entity type to sku type"}
	}
	if len(models) == 0 {
		return emptyModels()
	}
	for entityType, raw := range models {
		tag, _ := raw.(string)
		if !Kind(tag).Valid() {
			return invalidModelType(entityType, Kind(fmt.Sprint(raw)))
		}
	}

	for section, keys := range optionalSectionRequires {
		raw, present := bundle[section]
		if !present || raw == nil {
			continue
		}
		sub, ok := asMap(raw)
		if !ok {
			return &ConfigError{Key: section, Reason: "missing required configuration section"}
		}
		for _, key := range keys {
			if _, ok := sub[key]; !ok {
				return missingSubKey(section, key)
			}
		}
	}
	return nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}
