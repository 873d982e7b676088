package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("skutrail: entity not found")

	// ErrAlreadyExists is returned when inserting an existing ID.
	ErrAlreadyExists = errors.New("skutrail: entity already exists")

	// ErrDuplicateSku is returned when a SKU is already taken in the table.
	ErrDuplicateSku = errors.New("skutrail: duplicate sku")

	// ErrParentNotFound is returned when a variant references a missing product.
	ErrParentNotFound = errors.New("skutrail: parent entity not found")

	// ErrConcurrentModification is returned when the version check fails.
	ErrConcurrentModification = errors.New("skutrail: concurrent modification")
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// mapError translates driver errors into the package sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case uniqueViolation:
		if strings.HasSuffix(pgErr.ConstraintName, "_sku_key") {
			return ErrDuplicateSku
		}
		return ErrAlreadyExists
	case foreignKeyViolation:
		return ErrParentNotFound
	}
	return err
}
