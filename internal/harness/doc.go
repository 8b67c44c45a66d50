// Package harness runs conformance scenarios against a real server.
//
// Each scenario drives one engine through the host binding exactly as a
// spreadsheet would: subscribe topics, let values arrive, refresh, and shut
// down. The resulting trace is compared with golden files and checked by
// assertions.
//
// # Scenario Format
//
// Scenarios are YAML files. Every step performs exactly one operation:
//
//	name: refresh_two_topics
//	description: "Two updated topics come back in subscription order"
//	instance_id: scenario-0001
//	steps:
//	  - subscribe: 101
//	    args: ["IBM", "Last"]
//	  - subscribe: 102
//	  - update: 101
//	    value: "Value1"
//	  - update: 102
//	    value: 123.45
//	  - notify: true
//	  - refresh:
//	      expect:
//	        - {key: 101, value: "Value1"}
//	        - {key: 102, value: 123.45}
//	  - refresh: {empty: true}
//	  - heartbeat: 1
//	  - terminate: true
//	assertions:
//	  - type: notify_count
//	    count: 1
//	  - type: last_value
//	    key: 101
//	    value: "Value1"
//
// Values are YAML scalars: integers become Int, other numbers Real, strings
// Text, null Absent, and {error: 2042} an error code.
//
// # Assertion Types
//
//   - notify_count: the host was notified exactly count times
//   - delivered: key appeared in exactly count refreshes
//   - last_value: the last refreshed value of key
//   - subscribed: the keys still subscribed according to the journal
//   - live_instances: live engine count after the steps
//   - state: the engine lifecycle state after the steps
//   - callback_released: the server holds no reference on the host callback
//   - journal_verified: every journalled batch matches its digest
//
// # Deterministic Testing
//
// The harness uses a fixed instance ID, a manual wall clock, an isolated
// lifecycle counter, and an in-memory journal, so a scenario produces the
// same trace on every run.
package harness
