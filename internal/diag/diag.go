// Package diag carries soft and hard failures from catalogs and layers to a
// host-provided sink. Nothing in this module aborts the process on a native
// failure; it reports here and returns.
package diag

import (
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/featsource/internal/feature"
)

// Severity grades a diagnostic event.
type Severity string

const (
	SeverityDebug   Severity = "debug"
	SeverityWarning Severity = "warning"
	SeverityFailure Severity = "failure"
)

// Event is one structured diagnostic.
type Event struct {
	Severity Severity
	Code     feature.Kind
	Message  string
	Err      error
}

// Sink receives diagnostic events.
type Sink interface {
	Report(Event)
}

// ZapSink writes events to a zap logger.
type ZapSink struct {
	log *zap.Logger
}

// NewZapSink returns a sink that logs to log, or to the global logger when
// log is nil.
func NewZapSink(log *zap.Logger) *ZapSink {
	if log == nil {
		log = zap.L()
	}
	return &ZapSink{log: log}
}

// Report implements Sink.
func (s *ZapSink) Report(ev Event) {
	fields := []zap.Field{zap.String("code", ev.Code.String())}
	if ev.Err != nil {
		fields = append(fields, zap.Error(ev.Err))
	}
	switch ev.Severity {
	case SeverityFailure:
		s.log.Error(ev.Message, fields...)
	case SeverityWarning:
		s.log.Warn(ev.Message, fields...)
	default:
		s.log.Debug(ev.Message, fields...)
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Report implements Sink.
func (r *Recorder) Report(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns the number of recorded events with the given severity.
func (r *Recorder) Count(sev Severity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Severity == sev {
			n++
		}
	}
	return n
}

// Nop discards all events.
type Nop struct{}

// Report implements Sink.
func (Nop) Report(Event) {}
