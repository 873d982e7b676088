// Package history records an append-only audit trail of SKU changes.
package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType is the lifecycle transition a Record describes.
type EventType string

const (
	EventCreated     EventType = "created"
	EventRegenerated EventType = "regenerated"
	EventModified    EventType = "modified"
	EventDeleted     EventType = "deleted"
)

// EventTypes lists every known event type in lifecycle order.
var EventTypes = []EventType{EventCreated, EventRegenerated, EventModified, EventDeleted}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventCreated, EventRegenerated, EventModified, EventDeleted:
		return true
	}
	return false
}

// ParseEventType returns the EventType named by s.
func ParseEventType(s string) (EventType, error) {
	t := EventType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidEventType, s)
	}
	return t, nil
}

// Record is a single history entry. Records are never mutated once written.
type Record struct {
	ID          uuid.UUID      `json:"id"`
	OldSku      *string        `json:"old_sku,omitempty"`
	NewSku      *string        `json:"new_sku,omitempty"`
	SubjectType string         `json:"subject_type"`
	SubjectID   string         `json:"subject_id"`
	EventType   EventType      `json:"event_type"`
	ActorID     *string        `json:"actor_id,omitempty"`
	ActorType   *string        `json:"actor_type,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Reason      *string        `json:"reason,omitempty"`
	IPAddress   *string        `json:"ip_address,omitempty"`
	UserAgent   *string        `json:"user_agent,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// FormattedEventType returns the event type with an upper-case first letter.
func (r Record) FormattedEventType() string {
	s := string(r.EventType)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ChangeSummary returns a one-line description of the change.
func (r Record) ChangeSummary() string {
	switch r.EventType {
	case EventCreated:
		return "Created: " + deref(r.NewSku)
	case EventRegenerated:
		return "Regenerated: " + deref(r.OldSku) + " → " + deref(r.NewSku)
	case EventModified:
		return "Modified: " + deref(r.OldSku) + " → " + deref(r.NewSku)
	case EventDeleted:
		return "Deleted: " + deref(r.OldSku)
	default:
		return "Unknown event"
	}
}

// Before reports whether r sorts before o in (CreatedAt, ID) order.
func (r Record) Before(o Record) bool {
	if !r.CreatedAt.Equal(o.CreatedAt) {
		return r.CreatedAt.Before(o.CreatedAt)
	}
	return r.ID.String() < o.ID.String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func ptr(s string) *string {
	return &s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
