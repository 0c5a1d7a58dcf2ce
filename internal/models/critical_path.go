package models

import (
	"errors"
	"fmt"
)

// ErrTraceCycle is returned when a parent/child cycle is detected while
// walking a trace. Producers should never emit one, but a malformed trace
// must fail the query instead of recursing forever.
var ErrTraceCycle = errors.New("cycle detected in span tree")

// CriticalPath returns the root-to-leaf chain of spans whose summed durations
// are maximal, together with that cumulative duration.
//
// The root is the first span in insertion order without a parent; a trace
// with no parentless span yields an empty path. Among children with equal
// cumulative durations the earliest-inserted child wins, so results are
// deterministic for a given ingestion order.
func (t *Trace) CriticalPath() ([]Span, float64, error) {
	if len(t.Spans) == 0 {
		return nil, 0, nil
	}

	// Parent -> children index, preserving insertion order.
	children := make(map[string][]*Span, len(t.Spans))
	var root *Span
	for i := range t.Spans {
		span := &t.Spans[i]
		if span.ParentSpanID == "" {
			if root == nil {
				root = span
			}
			continue
		}
		children[span.ParentSpanID] = append(children[span.ParentSpanID], span)
	}
	if root == nil {
		return nil, 0, nil
	}

	visited := make(map[string]bool, len(t.Spans))
	total, path, err := longestPath(root, children, visited)
	if err != nil {
		return nil, 0, err
	}

	out := make([]Span, 0, len(path))
	for _, span := range path {
		out = append(out, span.Clone())
	}
	return out, total, nil
}

func longestPath(span *Span, children map[string][]*Span, visited map[string]bool) (float64, []*Span, error) {
	if visited[span.SpanID] {
		return 0, nil, fmt.Errorf("%w: span %s revisited", ErrTraceCycle, span.SpanID)
	}
	visited[span.SpanID] = true

	var bestTotal float64
	var bestPath []*Span
	for _, child := range children[span.SpanID] {
		total, path, err := longestPath(child, children, visited)
		if err != nil {
			return 0, nil, err
		}
		if bestPath == nil || total > bestTotal {
			bestTotal = total
			bestPath = path
		}
	}

	return span.Duration + bestTotal, append([]*Span{span}, bestPath...), nil
}
