// Package audit delivers structured dispatch and lifecycle events to an
// external audit-log collaborator. The collaborator is consumed through the
// single Record operation; persistence of the records is not this package's
// concern.
package audit

import (
	"sync"

	"github.com/cadiot/hub/pkg/log"
)

// Sink receives structured audit events.
type Sink interface {
	Record(eventType string, fields map[string]interface{})
}

// LogSink writes audit events to the application log.
type LogSink struct{}

func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) Record(eventType string, fields map[string]interface{}) {
	args := make([]interface{}, 0, 2+2*len(fields))
	args = append(args, "event", eventType)
	for k, v := range fields {
		args = append(args, k, v)
	}
	log.Get().Infow("audit", args...)
}

// Event is a recorded audit event.
type Event struct {
	Type   string
	Fields map[string]interface{}
}

// MemorySink keeps audit events in memory. Intended for tests.
type MemorySink struct {
	mutex  sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Record(eventType string, fields map[string]interface{}) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.events = append(s.events, Event{Type: eventType, Fields: fields})
}

// Events returns a copy of all recorded events.
func (s *MemorySink) Events() []Event {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return append([]Event(nil), s.events...)
}

// Types returns the event types in recording order.
func (s *MemorySink) Types() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	types := make([]string, 0, len(s.events))
	for _, e := range s.events {
		types = append(types, e.Type)
	}
	return types
}

// Contains reports whether an event of the given type was recorded.
func (s *MemorySink) Contains(eventType string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, e := range s.events {
		if e.Type == eventType {
			return true
		}
	}
	return false
}
