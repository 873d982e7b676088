package events

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type subscriber struct {
	id      string
	pattern string
	ch      chan Event
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func (s *subscriber) timedSend(ev Event, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s.ch <- ev:
		return true
	case <-timer.C:
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		s.cancel()
		close(s.ch)
	}
}

// Bus fans events out to subscribers by topic pattern. A pattern matches a
// topic when every dot-separated segment is equal or "*"; the pattern "*"
// alone matches every topic.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]*subscriber
	counter     uint64
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string]map[string]*subscriber),
	}
}

// Subscribe returns a channel receiving events whose topic matches pattern,
// and a function that unsubscribes and closes the channel.
func (b *Bus) Subscribe(pattern string, bufferSize int) (<-chan Event, func()) {
	id := fmt.Sprintf("sub-%d", atomic.AddUint64(&b.counter, 1))

	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscriber{
		id:      id,
		pattern: pattern,
		ch:      make(chan Event, bufferSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[pattern]; !ok {
		b.subscribers[pattern] = make(map[string]*subscriber)
	}
	b.subscribers[pattern][id] = sub

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if subs, ok := b.subscribers[pattern]; ok {
			if s, ok := subs[id]; ok {
				s.close()
				delete(subs, id)
				if len(subs) == 0 {
					delete(b.subscribers, pattern)
				}
			}
		}
	}

	return sub.ch, unsubscribe
}

// Publish delivers ev to every matching subscriber and returns how many
// received it. A subscriber whose buffer stays full for timeout misses
// the event.
func (b *Bus) Publish(ev Event, timeout time.Duration) int {
	topic := ev.Topic()

	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for pattern, subs := range b.subscribers {
		if !matchTopic(pattern, topic) {
			continue
		}
		for _, sub := range subs {
			select {
			case <-sub.ctx.Done():
				continue
			default:
				if sub.timedSend(ev, timeout) {
					delivered++
				}
			}
		}
	}
	return delivered
}

// Shutdown closes every subscriber.
func (b *Bus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, subs := range b.subscribers {
		for _, sub := range subs {
			sub.close()
		}
	}
	b.subscribers = make(map[string]map[string]*subscriber)
}

func matchTopic(pattern, topic string) bool {
	if pattern == "" || topic == "" {
		return false
	}
	if pattern == "*" || pattern == topic {
		return true
	}
	patternParts := strings.Split(pattern, ".")
	topicParts := strings.Split(topic, ".")

	if len(patternParts) != len(topicParts) {
		return false
	}
	for i := range patternParts {
		if patternParts[i] != "*" && patternParts[i] != topicParts[i] {
			return false
		}
	}
	return true
}
