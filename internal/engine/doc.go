// Package engine executes ECA models against fired host events.
//
// Dispatch Flow:
//  1. Dispatch resolves one index snapshot and looks up the subscribers of
//     the host event, ordered by priority, then model id, then node id.
//  2. Each subscriber gets a fresh token context seeded from its event
//     plugin's ExtractContext plus the host ambient entries.
//  3. The model is walked depth-first from the event node. Conditions pick
//     the then or else edge, actions continue or abort, gateways pass
//     through and fan out sequentially.
//  4. Events published by actions are queued on the publishing invocation
//     and dispatched when its walk returns, depth-first, on the same stack.
//
// Every visit, including the event node itself, draws from a Budget shared
// by a root invocation and everything it triggers. Reaching the ceiling
// ends the current invocation with loop_limit_exceeded.
//
// Plugin errors and panics are caught at the node boundary and abort only
// the invocation they occurred in. Dispatch never returns an error.
//
// Reports carry a Seq from the engine's logical Clock. NEVER use wall-clock
// timestamps for ordering reports.
package engine
