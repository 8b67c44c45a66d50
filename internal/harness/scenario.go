package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xll-gen/rtd/internal/ir"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// InstanceID is the engine ID recorded in the trace and journal.
	// If empty, defaults to "test-instance-default".
	InstanceID string `yaml:"instance_id,omitempty"`

	// MaxColumns bounds the refresh table. Zero uses the default.
	MaxColumns int `yaml:"max_columns,omitempty"`

	// Steps run in order. Each step performs exactly one operation.
	Steps []Step `yaml:"steps"`

	// Assertions are checked after the last step.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step operations.
const (
	OpSubscribe   = "subscribe"
	OpUpdate      = "update"
	OpUnsubscribe = "unsubscribe"
	OpNotify      = "notify"
	OpRefresh     = "refresh"
	OpHeartbeat   = "heartbeat"
	OpTerminate   = "terminate"
	OpRelease     = "release"
)

// Step is one operation. Exactly one of the operation fields is set.
type Step struct {
	// Subscribe connects a topic. Args are passed with it.
	Subscribe *int32   `yaml:"subscribe,omitempty"`
	Args      []string `yaml:"args,omitempty"`

	// Update stores Value for a topic, as a producer would.
	Update *int32 `yaml:"update,omitempty"`
	Value  any    `yaml:"value,omitempty"`

	// Unsubscribe disconnects a topic.
	Unsubscribe *int32 `yaml:"unsubscribe,omitempty"`

	// Notify raises an update notification.
	Notify bool `yaml:"notify,omitempty"`

	// Refresh pulls the changed topics through the host binding.
	Refresh *RefreshStep `yaml:"refresh,omitempty"`

	// Heartbeat checks the heartbeat status against the given value.
	Heartbeat *int32 `yaml:"heartbeat,omitempty"`

	// Terminate shuts the server down.
	Terminate bool `yaml:"terminate,omitempty"`

	// Release drops the host's reference on the server.
	Release bool `yaml:"release,omitempty"`
}

// RefreshStep states what a refresh is expected to return.
type RefreshStep struct {
	// Expect lists the entries in order. Nil skips the check.
	Expect []ExpectEntry `yaml:"expect,omitempty"`

	// Empty expects a zero count and no table.
	Empty bool `yaml:"empty,omitempty"`

	// Status is the expected host status, e.g. "E_OUTOFMEMORY".
	// Empty expects success.
	Status string `yaml:"status,omitempty"`
}

// ExpectEntry is one expected (key, value) column.
type ExpectEntry struct {
	Key   int32 `yaml:"key"`
	Value any   `yaml:"value"`
}

// Op returns the step's operation.
func (s Step) Op() (string, error) {
	var ops []string
	if s.Subscribe != nil {
		ops = append(ops, OpSubscribe)
	}
	if s.Update != nil {
		ops = append(ops, OpUpdate)
	}
	if s.Unsubscribe != nil {
		ops = append(ops, OpUnsubscribe)
	}
	if s.Notify {
		ops = append(ops, OpNotify)
	}
	if s.Refresh != nil {
		ops = append(ops, OpRefresh)
	}
	if s.Heartbeat != nil {
		ops = append(ops, OpHeartbeat)
	}
	if s.Terminate {
		ops = append(ops, OpTerminate)
	}
	if s.Release {
		ops = append(ops, OpRelease)
	}

	switch len(ops) {
	case 0:
		return "", fmt.Errorf("no operation")
	case 1:
		return ops[0], nil
	default:
		return "", fmt.Errorf("more than one operation: %s", strings.Join(ops, ", "))
	}
}

// Assertion validates the outcome of a scenario.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Key is the topic (delivered, last_value).
	Key *int32 `yaml:"key,omitempty"`

	// Keys is the expected subscribed set (subscribed).
	Keys []int32 `yaml:"keys,omitempty"`

	// Count is the expected number (notify_count, delivered, live_instances).
	Count int `yaml:"count,omitempty"`

	// Value is the expected value (last_value).
	Value any `yaml:"value,omitempty"`

	// State is the expected lifecycle state name (state).
	State string `yaml:"state,omitempty"`
}

// Assertion type constants.
const (
	AssertNotifyCount      = "notify_count"
	AssertDelivered        = "delivered"
	AssertLastValue        = "last_value"
	AssertSubscribed       = "subscribed"
	AssertLiveInstances    = "live_instances"
	AssertState            = "state"
	AssertCallbackReleased = "callback_released"
	AssertJournalVerified  = "journal_verified"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// LoadScenarios loads every .yaml and .yml file directly inside dir,
// sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenarios: %w", err)
	}

	var scenarios []*Scenario
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		s, err := LoadScenario(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if s.MaxColumns < 0 {
		return fmt.Errorf("max_columns must be non-negative")
	}

	for i, step := range s.Steps {
		op, err := step.Op()
		if err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		if err := validateStep(op, step); err != nil {
			return fmt.Errorf("steps[%d] (%s): %w", i, op, err)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(op string, s Step) error {
	if len(s.Args) > 0 && op != OpSubscribe {
		return fmt.Errorf("args only apply to subscribe")
	}
	if s.Value != nil && op != OpUpdate {
		return fmt.Errorf("value only applies to update")
	}
	if op == OpUpdate {
		if _, err := ir.ValueOf(s.Value); err != nil {
			return fmt.Errorf("value: %w", err)
		}
	}
	if op == OpRefresh {
		r := s.Refresh
		if r.Empty && len(r.Expect) > 0 {
			return fmt.Errorf("empty and expect are mutually exclusive")
		}
		for j, e := range r.Expect {
			if _, err := ir.ValueOf(e.Value); err != nil {
				return fmt.Errorf("expect[%d].value: %w", j, err)
			}
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertNotifyCount, AssertLiveInstances:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertDelivered:
		if a.Key == nil {
			return fmt.Errorf("assertions[%d]: key is required for delivered", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for delivered", index)
		}
	case AssertLastValue:
		if a.Key == nil {
			return fmt.Errorf("assertions[%d]: key is required for last_value", index)
		}
		if _, err := ir.ValueOf(a.Value); err != nil {
			return fmt.Errorf("assertions[%d]: value: %w", index, err)
		}
	case AssertSubscribed, AssertCallbackReleased, AssertJournalVerified:
	case AssertState:
		if a.State == "" {
			return fmt.Errorf("assertions[%d]: state is required for state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
