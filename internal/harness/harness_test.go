package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xll-gen/rtd/internal/ir"
)

func int32p(v int32) *int32 { return &v }

func TestRun_Scenarios(t *testing.T) {
	scenarios, err := LoadScenarios("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			result, err := Run(s)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
			assert.Len(t, result.Trace, len(s.Steps))
		})
	}
}

func TestRun_BasicUpdate(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/basic_update.yaml")
	require.NoError(t, err)

	result, err := Run(s)
	require.NoError(t, err)
	require.True(t, result.Pass, "errors: %v", result.Errors)

	assert.Equal(t, int64(1), result.Notifies)
	assert.Equal(t, int64(2), result.CallbackRefs, "engine and binding each hold the callback")
	assert.Equal(t, int64(1), result.LiveInstances)
	assert.Equal(t, "started", result.State)

	require.NotNil(t, result.Journal)
	assert.Equal(t, "scenario-basic", result.Journal.Session.ID)
	assert.False(t, result.Journal.Session.Ended)
	assert.Equal(t, []int32{101, 102}, result.Journal.Subscribed)
	assert.Equal(t, ir.Text("Value1"), result.Journal.Latest[101])

	deliveries := result.Deliveries()
	require.Len(t, deliveries, 2)
	assert.Equal(t, Delivered{Seq: 6, Key: 101, Value: ir.Text("Value1")}, deliveries[0])
	assert.Equal(t, Delivered{Seq: 6, Key: 102, Value: ir.Real(123.45)}, deliveries[1])
}

func TestRun_DefaultInstanceID(t *testing.T) {
	s := &Scenario{
		Name:        "default_id",
		Description: "no instance id",
		Steps:       []Step{{Subscribe: int32p(1)}},
	}
	result, err := Run(s)
	require.NoError(t, err)
	require.NotNil(t, result.Journal)
	assert.Equal(t, "test-instance-default", result.Journal.Session.ID)
}

func TestRun_RefreshMismatchIsReported(t *testing.T) {
	s := &Scenario{
		Name:        "mismatch",
		Description: "expects the wrong value",
		Steps: []Step{
			{Subscribe: int32p(1)},
			{Update: int32p(1), Value: 5},
			{Refresh: &RefreshStep{Expect: []ExpectEntry{{Key: 1, Value: 6}}}},
		},
	}
	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "step 3: column 0 = (1, int(5)), expected (1, int(6))")
}

func TestRun_RefreshCountMismatch(t *testing.T) {
	s := &Scenario{
		Name:        "count",
		Description: "expects nothing but gets a topic",
		Steps: []Step{
			{Subscribe: int32p(1)},
			{Update: int32p(1), Value: "x"},
			{Refresh: &RefreshStep{Empty: true}},
		},
	}
	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "refresh returned 1 topics, expected none")
}

func TestRun_UnexpectedStatus(t *testing.T) {
	s := &Scenario{
		Name:        "status",
		Description: "expects a failure that does not happen",
		Steps: []Step{
			{Refresh: &RefreshStep{Status: "E_OUTOFMEMORY"}},
		},
	}
	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "refresh status S_OK, expected E_OUTOFMEMORY")
}

func TestRun_HeartbeatMismatch(t *testing.T) {
	s := &Scenario{
		Name:        "heartbeat",
		Description: "a started server is alive",
		Steps:       []Step{{Heartbeat: int32p(0)}},
	}
	result, err := Run(s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "heartbeat = 1, expected 0")
}

func TestRun_StepAfterRelease(t *testing.T) {
	s := &Scenario{
		Name:        "after_release",
		Description: "nothing may run on a destroyed server",
		Steps: []Step{
			{Release: true},
			{Notify: true},
		},
	}
	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 2: notify after release")
}

func TestRun_InvalidStep(t *testing.T) {
	s := &Scenario{
		Name:        "invalid",
		Description: "step with no operation",
		Steps:       []Step{{}},
	}
	_, err := Run(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 1: no operation")
}

func TestRun_Deterministic(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/coalesce_order.yaml")
	require.NoError(t, err)

	first, err := Run(s)
	require.NoError(t, err)
	second, err := Run(s)
	require.NoError(t, err)

	a, err := Snapshot(s, first)
	require.NoError(t, err)
	b, err := Snapshot(s, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}
