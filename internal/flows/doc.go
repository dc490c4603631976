// Package flows contains the orchestration logic behind every Engine operation.
//
// Each Run function takes a request, the shared Deps and returns a result.
// Multi-record changes go through a single store transaction; token minting
// and password hashing happen before the transaction opens. Mail delivery,
// metrics and audit run after commit and never fail the flow.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import finauth (to avoid import cycles).
//   - Talk to Redis, SQL or SMTP directly; all I/O goes through Deps.
package flows
