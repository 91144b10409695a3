// Package ir holds the intermediate representation shared by every other
// package: the value model used for plugin configuration, the compiled
// model graph, subscription index entries and invocation reports.
//
// ir imports nothing internal. Key constraints:
//   - no float values in model content (see Value)
//   - content identity is SHA-256 over canonical JSON with a domain prefix
//   - all JSON tags use snake_case
package ir
