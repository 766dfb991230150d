// Package dispatch implements the request side of the correlation pattern:
// an asynchronous dispatcher that issues unary calls on a managed channel and
// a process-wide registry that routes each response to whichever handler is
// currently registered under the dispatcher's correlation key.
//
// The two ends of a key are independently lifecycled. A dispatcher with no
// registered handler is a valid state; its responses are logged and dropped.
// Registration is last-writer-wins, so a restarted consumer simply replaces
// its predecessor.
//
// Key behaviors:
//   - Dispatch never blocks the caller; completions run on their own
//     goroutine and are routed through the registry
//   - No ordering guarantee exists between distinct calls; the transport may
//     reorder, retry, or hedge
//   - Transport-level retry/hedging makes delivery to a handler
//     at-least-once; handlers must tolerate duplicates
//   - Failures after the call has left the process are logged, never raised
//     to the dispatch caller
package dispatch
