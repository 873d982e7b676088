package sku

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned when the generator configuration is invalid.
	ErrConfiguration = errors.New("skutrail: invalid sku configuration")

	// ErrUnmappedType is returned when an entity type has no entry in Models.
	ErrUnmappedType = errors.New("skutrail: no sku mapping for entity type")

	// ErrUnsupportedTypeTag is returned when an entity type maps to an unknown kind.
	ErrUnsupportedTypeTag = errors.New("skutrail: unsupported sku type")

	// ErrMissingParent is returned when a variant has no parent with an assigned SKU.
	ErrMissingParent = errors.New("skutrail: variant must belong to a product with a sku")

	// ErrPersistence is returned when the uniqueness lookup fails.
	ErrPersistence = errors.New("skutrail: sku lookup failed")
)

// ConfigError describes a single configuration problem.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("skutrail: invalid sku configuration: %s: %s", e.Key, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

func missingKey(key string) *ConfigError {
	return &ConfigError{Key: key, Reason: "missing required configuration key"}
}

func missingSubKey(section, key string) *ConfigError {
	return &ConfigError{Key: section + "." + key, Reason: "missing required configuration key in section " + section}
}

func invalidModelType(entityType string, kind Kind) *ConfigError {
	return &ConfigError{
		Key:    "models." + entityType,
		Reason: fmt.Sprintf("invalid model type %q, must be %q or %q", kind, KindProduct, KindVariant),
	}
}

func emptyModels() *ConfigError {
	return &ConfigError{Key: "models", Reason: "at least one model must be configured"}
}

// UnmappedTypeError is returned by Generate for entity types missing from Models.
type UnmappedTypeError struct {
	EntityType string
}

func (e *UnmappedTypeError) Error() string {
	return fmt.Sprintf("skutrail: no sku mapping defined for %s", e.EntityType)
}

func (e *UnmappedTypeError) Is(target error) bool { return target == ErrUnmappedType }

// UnsupportedTypeTagError is returned by Generate when Models holds an unknown kind.
type UnsupportedTypeTagError struct {
	Tag        string
	EntityType string
}

func (e *UnsupportedTypeTagError) Error() string {
	return fmt.Sprintf("skutrail: unsupported sku type %q for %s", e.Tag, e.EntityType)
}

func (e *UnsupportedTypeTagError) Is(target error) bool { return target == ErrUnsupportedTypeTag }

// MissingParentError is returned when a variant cannot be derived from its parent.
type MissingParentError struct {
	EntityType string
	EntityID   string
	Reason     string
}

func (e *MissingParentError) Error() string {
	return fmt.Sprintf("skutrail: variant %s#%s: %s", e.EntityType, e.EntityID, e.Reason)
}

func (e *MissingParentError) Is(target error) bool { return target == ErrMissingParent }

// PersistenceError wraps a failure of the persistence layer.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("skutrail: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
