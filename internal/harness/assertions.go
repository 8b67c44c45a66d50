package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/xll-gen/rtd/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s", ev.Seq, ev.Op)
			if ev.Key != nil {
				fmt.Fprintf(&buf, " %d", *ev.Key)
			}
			if ev.Count != nil {
				fmt.Fprintf(&buf, " count=%d", *ev.Count)
			}
			buf.WriteByte('\n')
		}
	}

	return buf.String()
}

func assertNotifyCount(result *Result, a Assertion) error {
	if result.Notifies == int64(a.Count) {
		return nil
	}
	return &AssertionError{
		Type:     AssertNotifyCount,
		Expected: fmt.Sprintf("%d notifications", a.Count),
		Actual:   fmt.Sprintf("%d notifications", result.Notifies),
		Trace:    result.Trace,
	}
}

// assertDelivered counts how many refreshes returned the key.
func assertDelivered(result *Result, a Assertion) error {
	n := 0
	for _, d := range result.Deliveries() {
		if d.Key == *a.Key {
			n++
		}
	}
	if n == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertDelivered,
		Expected: fmt.Sprintf("topic %d delivered %d times", *a.Key, a.Count),
		Actual:   fmt.Sprintf("delivered %d times", n),
		Trace:    result.Trace,
	}
}

func assertLastValue(result *Result, a Assertion) error {
	want, err := ir.ValueOf(a.Value)
	if err != nil {
		return fmt.Errorf("last_value: %w", err)
	}

	var last ir.Value
	for _, d := range result.Deliveries() {
		if d.Key == *a.Key {
			last = d.Value
		}
	}
	if last != nil && ir.Equal(last, want) {
		return nil
	}

	actual := "never delivered"
	if last != nil {
		actual = describe(last)
	}
	return &AssertionError{
		Type:     AssertLastValue,
		Expected: fmt.Sprintf("topic %d last delivered as %s", *a.Key, describe(want)),
		Actual:   actual,
		Trace:    result.Trace,
	}
}

func assertSubscribed(result *Result, a Assertion) error {
	if result.Journal == nil {
		return fmt.Errorf("subscribed: no journal")
	}
	want := slices.Clone(a.Keys)
	slices.Sort(want)
	got := result.Journal.Subscribed
	if slices.Equal(want, got) || (len(want) == 0 && len(got) == 0) {
		return nil
	}
	return &AssertionError{
		Type:     AssertSubscribed,
		Expected: fmt.Sprintf("subscribed %v", want),
		Actual:   fmt.Sprintf("subscribed %v", got),
	}
}

func assertLiveInstances(result *Result, a Assertion) error {
	if result.LiveInstances == int64(a.Count) {
		return nil
	}
	return &AssertionError{
		Type:     AssertLiveInstances,
		Expected: fmt.Sprintf("%d live instances", a.Count),
		Actual:   fmt.Sprintf("%d live instances", result.LiveInstances),
	}
}

func assertState(result *Result, a Assertion) error {
	if result.State == a.State {
		return nil
	}
	return &AssertionError{
		Type:     AssertState,
		Expected: a.State,
		Actual:   result.State,
		Trace:    result.Trace,
	}
}

func assertCallbackReleased(result *Result) error {
	if result.CallbackRefs == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertCallbackReleased,
		Expected: "no references on the host callback",
		Actual:   fmt.Sprintf("%d references", result.CallbackRefs),
		Trace:    result.Trace,
	}
}

// assertJournalVerified checks that every non-empty refresh was journalled
// and that every journalled batch still matches its digest.
func assertJournalVerified(result *Result) error {
	if result.Journal == nil {
		return fmt.Errorf("journal_verified: no journal")
	}

	refreshed := 0
	for _, ev := range result.Trace {
		if ev.Op == OpRefresh && ev.Count != nil && *ev.Count > 0 {
			refreshed++
		}
	}
	if len(result.Journal.Batches) < refreshed {
		return &AssertionError{
			Type:     AssertJournalVerified,
			Expected: fmt.Sprintf("at least %d journalled batches", refreshed),
			Actual:   fmt.Sprintf("%d journalled batches", len(result.Journal.Batches)),
		}
	}
	if n := len(result.Journal.Mismatches); n > 0 {
		return &AssertionError{
			Type:     AssertJournalVerified,
			Expected: "all batch digests match",
			Actual:   fmt.Sprintf("%d mismatched batches, first at drain %d", n, result.Journal.Mismatches[0].DrainSeq),
		}
	}
	return nil
}

// EvaluateAssertions checks every assertion and returns the failure
// messages, in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertNotifyCount:
			err = assertNotifyCount(result, assertion)
		case AssertDelivered:
			err = assertDelivered(result, assertion)
		case AssertLastValue:
			err = assertLastValue(result, assertion)
		case AssertSubscribed:
			err = assertSubscribed(result, assertion)
		case AssertLiveInstances:
			err = assertLiveInstances(result, assertion)
		case AssertState:
			err = assertState(result, assertion)
		case AssertCallbackReleased:
			err = assertCallbackReleased(result)
		case AssertJournalVerified:
			err = assertJournalVerified(result)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
