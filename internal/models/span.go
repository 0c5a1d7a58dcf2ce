// Package models defines the core span and trace data structures for the trace aggregator.
package models

import (
	"errors"
	"fmt"
)

// ErrValidation is the base error for spans rejected before ingestion.
var ErrValidation = errors.New("span validation failed")

// Status marks whether a span completed successfully.
type Status string

const (
	StatusOK    Status = "OK"
	StatusError Status = "ERROR"
)

// Valid reports whether the status is one of the known symbolic values.
func (s Status) Valid() bool {
	return s == StatusOK || s == StatusError
}

// SpanKind classifies the role a span plays in a request.
type SpanKind string

const (
	KindUnspecified SpanKind = "unspecified"
	KindServer      SpanKind = "server"
	KindClient      SpanKind = "client"
	KindProducer    SpanKind = "producer"
	KindConsumer    SpanKind = "consumer"
)

// Valid reports whether the kind is one of the known symbolic values.
func (k SpanKind) Valid() bool {
	switch k {
	case KindUnspecified, KindServer, KindClient, KindProducer, KindConsumer:
		return true
	}
	return false
}

// Span is a single timed unit of work reported by one service. Identity
// (TraceID, SpanID) is assigned by the producer and never changes.
type Span struct {
	TraceID       string            `json:"trace_id"`
	SpanID        string            `json:"span_id"`
	ParentSpanID  string            `json:"parent_span_id,omitempty"`
	ServiceName   string            `json:"service_name"`
	OperationName string            `json:"operation_name"`
	StartTime     float64           `json:"start_time"`
	Duration      float64           `json:"duration"`
	Status        Status            `json:"status"`
	Kind          SpanKind          `json:"kind"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	ErrorMessage  string            `json:"error_message,omitempty"`
}

// EndTime returns the instant the span finished, in seconds.
func (s *Span) EndTime() float64 {
	return s.StartTime + s.Duration
}

// IsError reports whether the span completed with an error status.
func (s *Span) IsError() bool {
	return s.Status == StatusError
}

// Validate checks required fields and value ranges. A span that fails
// validation must not reach shared aggregator state.
func (s *Span) Validate() error {
	switch {
	case s.TraceID == "":
		return fmt.Errorf("%w: missing trace_id", ErrValidation)
	case s.SpanID == "":
		return fmt.Errorf("%w: missing span_id", ErrValidation)
	case s.ServiceName == "":
		return fmt.Errorf("%w: missing service_name", ErrValidation)
	case s.OperationName == "":
		return fmt.Errorf("%w: missing operation_name", ErrValidation)
	case s.Duration < 0:
		return fmt.Errorf("%w: negative duration %v", ErrValidation, s.Duration)
	}
	if s.Status != "" && !s.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrValidation, s.Status)
	}
	if s.Kind != "" && !s.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrValidation, s.Kind)
	}
	return nil
}

// Normalize fills defaulted enum fields on a span that omitted them.
func (s *Span) Normalize() {
	if s.Status == "" {
		s.Status = StatusOK
	}
	if s.Kind == "" {
		s.Kind = KindUnspecified
	}
}

// Clone returns a deep copy, detaching the attribute map.
func (s Span) Clone() Span {
	out := s
	if s.Attributes != nil {
		out.Attributes = make(map[string]string, len(s.Attributes))
		for k, v := range s.Attributes {
			out.Attributes[k] = v
		}
	}
	return out
}
