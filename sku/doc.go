// Package sku generates unique, human-readable stock keeping units for
// products and their variants.
//
// A product SKU is built from a configured prefix, a category code and a
// random, time-sortable fragment:
//
//	TM-SHI-01HZX3K9
//
// A variant SKU extends its parent product's SKU with the codes of its
// property values, sorted in descending order:
//
//	TM-SHI-01HZX3K9-RED-LAR
//
// Every candidate passes through a [Resolver], which appends a numeric
// disambiguator ("-1", "-2", ...) until the value is free in the entity's
// table. The resolver is a pre-check only; the persistence layer's unique
// constraint stays the final authority.
//
// # Entities
//
// Entities implement [Entity] and opt into the capabilities the generator
// needs:
//
//   - [HasCategory] or [HasCategories] for products
//   - [HasParent] and [HasPropertyValues] for variants
//
// The configured accessor and field select which relation and which
// attribute of each [Ref] are read.
//
// # Configuration
//
// [Config] maps entity types to a [Kind]. [ValidateBundle] checks a raw
// configuration map for required keys before it is decoded; [NewGenerator]
// validates the decoded struct.
//
// # Errors
//
//   - [ErrConfiguration] - invalid configuration, raised by [NewGenerator]
//   - [ErrUnmappedType] - entity type has no entry in Models
//   - [ErrUnsupportedTypeTag] - entity type maps to an unknown kind
//   - [ErrMissingParent] - variant has no parent or the parent has no SKU
//   - [ErrPersistence] - the uniqueness lookup failed
package sku
