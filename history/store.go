package history

import (
	"context"
	"errors"
	"slices"
	"time"
)

var (
	// ErrInvalidEventType is returned when parsing an unknown event type.
	ErrInvalidEventType = errors.New("skutrail: invalid history event type")

	// ErrInvalidFilter is returned for filters a store cannot serve.
	ErrInvalidFilter = errors.New("skutrail: invalid history filter")
)

// Store persists history records.
type Store interface {
	// Append writes a new record.
	Append(ctx context.Context, r *Record) error

	// List returns the records matching f, ordered by (CreatedAt, ID)
	// ascending, or descending when f.Descending is set.
	List(ctx context.Context, f Filter) ([]Record, error)

	// DeleteBefore removes records created before cutoff and returns how many
	// were removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int, error)

	// CountBefore returns how many records were created before cutoff.
	CountBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Filter selects history records. Zero-valued fields do not filter.
type Filter struct {
	SubjectType string
	SubjectID   string

	// Sku matches either the old or the new SKU.
	Sku string

	EventType EventType
	ActorID   string
	ActorType string

	// Since keeps records created at or after the given time.
	Since time.Time

	// Before keeps records created strictly before the given time.
	Before time.Time

	// Until keeps records created at or before the given time.
	Until time.Time

	// Limit caps the number of records returned. Zero means no limit.
	Limit int

	// Descending orders the result newest first.
	Descending bool
}

// ForSubject returns a filter matching a single subject.
func ForSubject(s Subject) Filter {
	return Filter{SubjectType: s.EntityType(), SubjectID: s.EntityID()}
}

// Recent returns a filter matching records from the last days days.
func Recent(now time.Time, days int) Filter {
	return Filter{Since: now.AddDate(0, 0, -days)}
}

// Between returns a filter matching records created in [start, end].
func Between(start, end time.Time) Filter {
	return Filter{Since: start, Until: end}
}

// Match reports whether r satisfies every set field of f. Limit and
// ordering are not considered.
func (f Filter) Match(r Record) bool {
	if f.SubjectType != "" && r.SubjectType != f.SubjectType {
		return false
	}
	if f.SubjectID != "" && r.SubjectID != f.SubjectID {
		return false
	}
	if f.Sku != "" && deref(r.OldSku) != f.Sku && deref(r.NewSku) != f.Sku {
		return false
	}
	if f.EventType != "" && r.EventType != f.EventType {
		return false
	}
	if f.ActorID != "" && deref(r.ActorID) != f.ActorID {
		return false
	}
	if f.ActorType != "" && deref(r.ActorType) != f.ActorType {
		return false
	}
	if !f.Since.IsZero() && r.CreatedAt.Before(f.Since) {
		return false
	}
	if !f.Before.IsZero() && !r.CreatedAt.Before(f.Before) {
		return false
	}
	if !f.Until.IsZero() && r.CreatedAt.After(f.Until) {
		return false
	}
	return true
}

// Apply filters, orders, and limits records in memory. Stores that cannot
// express a filter natively use it on the rows they fetch.
func (f Filter) Apply(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	Sort(out, f.Descending)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// Sort orders records by (CreatedAt, ID).
func Sort(records []Record, descending bool) {
	slices.SortStableFunc(records, func(a, b Record) int {
		switch {
		case a.Before(b):
			if descending {
				return 1
			}
			return -1
		case b.Before(a):
			if descending {
				return -1
			}
			return 1
		}
		return 0
	})
}
