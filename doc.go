// Package travelmate coordinates long-running agent tasks that may need a
// user to complete a three-legged OAuth authorization in a browser before
// the task can finish.
//
// The agent starts streaming output immediately, detects mid-task that it
// cannot proceed without an external credential, surfaces an authorization
// URL to the caller, blocks while a local callback server completes the
// identity exchange, retries the invocation exactly once with the obtained
// token, and always closes the stream with a single End event.
//
// # Core Types
//
//   - [Queue]: ordered, unbounded event stream with one End sentinel
//   - [Mailbox]: single-slot hand-off of the pending token descriptor
//   - [CallbackServer]: local HTTP listener for the provider redirect
//   - [Runner]: authorization-aware task driver and state machine
//   - [TokenResolver]: blocking identity exchange contract
//   - [Agent]: opaque invocation, prompt in and response out
//
// # Included Implementations
//
// Agents: travel (itinerary planning with drive save).
// Identity: identity (in-process authorization broker).
// Clients: gateway (MCP tool gateway), drive (file upload),
// provider/openaicompat (chat completions).
// Storage: store/sqlite (local), store/postgres.
//
// See cmd/travelmate for a complete wired application and
// cmd/callback-server for the standalone redirect listener.
package travelmate
