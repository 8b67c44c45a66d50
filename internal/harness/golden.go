package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/xll-gen/rtd/internal/ir"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	InstanceID   string       `json:"instance_id,omitempty"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles IR types and primitives.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"seq": event.Seq,
			"op":  event.Op,
		}
		if event.Key != nil {
			eventMap["key"] = *event.Key
		}
		if len(event.Args) > 0 {
			args := make([]any, len(event.Args))
			for j, a := range event.Args {
				args[j] = a
			}
			eventMap["args"] = args
		}
		if event.Value != nil {
			eventMap["value"] = event.Value
		}
		if event.Accepted != nil {
			eventMap["accepted"] = *event.Accepted
		}
		if event.Count != nil {
			eventMap["count"] = *event.Count
		}
		if event.Table != nil {
			eventMap["table"] = event.Table.Canonical()
		}
		if event.Alive != nil {
			eventMap["alive"] = *event.Alive
		}
		if event.Refs != nil {
			eventMap["refs"] = *event.Refs
		}
		if event.Status != "" {
			eventMap["status"] = event.Status
		}
		traceList[i] = eventMap
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
	if s.InstanceID != "" {
		result["instance_id"] = s.InstanceID
	}
	return result
}

// Snapshot renders a scenario's trace as canonical JSON.
func Snapshot(scenario *Scenario, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenario.Name,
		InstanceID:   scenario.InstanceID,
		Trace:        result.Trace,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}

	traceJSON, err := Snapshot(scenario, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, traceJSON)

	return nil
}

// AssertGolden compares an already computed result against a golden file
// named after the scenario.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	traceJSON, err := Snapshot(scenario, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, traceJSON)

	return nil
}
