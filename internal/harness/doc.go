// Package harness runs earbud scenarios against fake collaborators and
// checks what happened.
//
// A scenario drives one earbud on a dispatch loop with manual timers, so
// every run of the same scenario produces the same trace.
//
// # Scenario Format
//
//	name: pair_timeout
//	description: "Pairing never answers and times out"
//	config: behaviour.cue        # optional, relative to the scenario file
//	initial:
//	  paired: false
//	collaborators:
//	  role: primary
//	  pair_status: success
//	  fail_profiles: [hfp]
//	  hold: [pair]               # requests recorded but never answered
//	steps:
//	  - start:
//	  - advance: { by: 30s }
//	  - notify: { kind: role_result, role: secondary }
//	  - request_standalone:
//	  - expect:
//	      state: started
//	      idle: true
//	      last_message: "peer_pair_result {failure}"
//	      called: { cancel_pair: 1 }
//	  - stop:
//	assertions:
//	  - type: trace_contains
//	    kind: goal.completed
//	    subject: pair_peer
//	    detail: timeout
//
// Steps are single-key mappings; their arguments are decoded with
// mapstructure and unknown argument names are rejected.
//
// # Assertion Types
//
//   - trace_contains: a record with the given kind, subject and detail exists
//   - trace_order: records starting with each entry appear in that order
//   - trace_count: exactly count records match kind and subject
//   - final_state: the topology ends in state
//
// # Golden Traces
//
// RunWithGolden compares the rendered trace with
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
