// Package airtable is the request core between a dispatched tool call and the
// Airtable REST API.
//
// A call flows through four layers:
//
//   - Governor: per-base admission, at most Ceiling requests in any Window.
//   - Invoker: one authenticated HTTP round trip, no retries.
//   - Coordinator: gates every attempt on the Governor, classifies the outcome
//     and retries 429 and transient 5xx/network failures with exponential
//     backoff and jitter.
//   - Paginator: follows "offset" continuation tokens through the Coordinator
//     and returns a single ordered listing, or the failure of the first page
//     that failed.
//
// Every layer returns a Result, which holds either a JSON payload or a
// *Failure with a stable Kind.
package airtable
