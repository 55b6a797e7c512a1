package broadcast

import (
	"context"
	"sync"
)

// Published pairs a topic with the event delivered to it.
type Published struct {
	Topic string
	Event Event
}

// MemorySink is an in-process fan-out for tests. It records events in
// publish order.
type MemorySink struct {
	mu     sync.Mutex
	events []Published
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) Publish(_ context.Context, topic string, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, Published{Topic: topic, Event: ev})
	return nil
}

// Events returns a snapshot of everything published, in order.
func (s *MemorySink) Events() []Published {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Published, len(s.events))
	copy(out, s.events)
	return out
}

// Names returns the event names published to topic, in order.
func (s *MemorySink) Names(topic string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, p := range s.events {
		if p.Topic == topic {
			out = append(out, p.Event.Name)
		}
	}
	return out
}

// Count returns how many events named name were published to topic.
func (s *MemorySink) Count(topic, name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, p := range s.events {
		if p.Topic == topic && p.Event.Name == name {
			n++
		}
	}
	return n
}
