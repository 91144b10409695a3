// Package harness runs ECA scenarios: model sets plus a sequence of fired
// host events, checked against expected reports and assertions.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	models:
//	  - ../models/greet.yaml
//	max_node_visits: 100
//	ambient: { site: "example" }
//	steps:
//	  - fire: user:login
//	    payload: { user: { name: Ada } }
//	    expect:
//	      - model: greet-on-login
//	        state: completed
//	        visited: 2
//	assertions:
//	  - type: report_count
//	    model: greet-on-login
//	    count: 1
//	  - type: messages
//	    messages: ["greet-on-login: Welcome back, Ada!"]
//
// Model paths are relative to the scenario file. Models may also be given
// inline under "inline".
//
// # Assertion Types
//
//   - report_count: number of reports, optionally filtered by model and state
//   - report_state: some report of model ended in state
//   - report_order: models first appear in the trace in the given order
//   - messages: the set_message output equals the given list
//   - message_contains: some message contains text
//
// # Deterministic Testing
//
// Every run uses a fresh in-memory store, a logical clock starting at 0
// and sequential ids, so traces are identical across runs and can be
// compared against golden files.
package harness
