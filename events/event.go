// Package events publishes SKU lifecycle events to in-process subscribers
// and external sinks.
package events

import (
	"time"

	"github.com/jacentio/skutrail/sku"
)

// Kind names a SKU lifecycle event.
type Kind string

const (
	Created     Kind = "created"
	Modified    Kind = "modified"
	Regenerated Kind = "regenerated"
	Deleted     Kind = "deleted"
)

// TopicPrefix is prepended to every event topic.
const TopicPrefix = "sku."

// Topic returns the topic events of kind k are published on.
func (k Kind) Topic() string {
	return TopicPrefix + string(k)
}

// Event describes a single SKU lifecycle transition.
//
// Created and Deleted carry Sku. Modified and Regenerated carry OldSku and
// NewSku.
type Event struct {
	Kind       Kind      `json:"kind"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	Sku        string    `json:"sku,omitempty"`
	OldSku     string    `json:"old_sku,omitempty"`
	NewSku     string    `json:"new_sku,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`

	// Subject is the entity the event is about. It is not serialized.
	Subject sku.Entity `json:"-"`
}

// Topic returns the event's topic.
func (e Event) Topic() string {
	return e.Kind.Topic()
}

func newEvent(kind Kind, e sku.Entity, reason string) Event {
	return Event{
		Kind:       kind,
		EntityType: e.EntityType(),
		EntityID:   e.EntityID(),
		Reason:     reason,
		Subject:    e,
	}
}

// NewCreated returns a Created event for e.
func NewCreated(e sku.Entity, value string) Event {
	ev := newEvent(Created, e, "")
	ev.Sku = value
	return ev
}

// NewModified returns a Modified event for e.
func NewModified(e sku.Entity, oldSku, newSku, reason string) Event {
	ev := newEvent(Modified, e, reason)
	ev.OldSku, ev.NewSku = oldSku, newSku
	return ev
}

// NewRegenerated returns a Regenerated event for e.
func NewRegenerated(e sku.Entity, oldSku, newSku, reason string) Event {
	ev := newEvent(Regenerated, e, reason)
	ev.OldSku, ev.NewSku = oldSku, newSku
	return ev
}

// NewDeleted returns a Deleted event for e.
func NewDeleted(e sku.Entity, value, reason string) Event {
	ev := newEvent(Deleted, e, reason)
	ev.Sku = value
	return ev
}
