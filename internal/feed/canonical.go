package feed

import (
	"github.com/xll-gen/rtd/internal/ir"
)

// Canonical returns the compiled feed as a map for canonical JSON encoding.
// Durations are written in Go duration syntax; unset topic parameters are
// omitted.
func (s *Spec) Canonical() map[string]any {
	topics := make([]any, len(s.Topics))
	for i, t := range s.Topics {
		m := map[string]any{
			"key":       t.Key,
			"generator": string(t.Generator),
		}
		if len(t.Args) > 0 {
			args := make([]any, len(t.Args))
			for j, a := range t.Args {
				args[j] = a
			}
			m["args"] = args
		}
		if t.Value != nil {
			m["value"] = t.Value
		}
		if t.Generator == GeneratorCounter {
			m["start"] = t.Start
			m["step"] = t.Step
		}
		if t.Layout != "" {
			m["layout"] = t.Layout
		}
		topics[i] = m
	}
	return map[string]any{
		"name":     s.Name,
		"delay":    s.Delay.String(),
		"interval": s.Interval.String(),
		"topics":   topics,
	}
}

// MarshalCanonical encodes the feed as canonical JSON.
func (s *Spec) MarshalCanonical() ([]byte, error) {
	return ir.MarshalCanonical(s.Canonical())
}

// Digest identifies the feed's content. Two files that compile to the same
// feed share a digest regardless of formatting or field order.
func (s *Spec) Digest() (string, error) {
	return ir.Digest(ir.DomainFeed, s.Canonical())
}
