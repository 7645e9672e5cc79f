// Package feedhttp serves feeds over HTTP. It mounts as a standard net/http
// handler and writes each feed as one incrementally emitted response body: a
// single JSON array for application/json clients, or one event envelope per
// line for application/x-ndjson clients.
//
// Responsibilities
//   - Feed resolution (code-registered definitions and storage-backed
//     dynamic feeds, via Registry)
//   - Authentication (pluggable auth.Authenticator; bearer challenges per
//     RFC 6750) and an optional write-scope gate on mutating endpoints
//   - Resume positions: plain ?after= event IDs and signed ?cursor= tokens
//   - Emission lifecycle: peer disconnect, the optional ?timeout= deadline,
//     and handler shutdown are merged into one cancellation; an emission cut
//     short leaves its array unterminated and never drains the source
//
// Construction
//
//	h, err := feedhttp.New(
//	    ctx,                          // handler lifetime
//	    "https://api.example/feeds",  // public endpoint base
//	    reg,                          // *feedhttp.Registry
//	    feedhttp.WithAuthenticator(a),
//	)
//
// # Scaling
//
// Horizontal scale relies on a shared storage and broker pair behind the
// Registry plus a shared cursor signing key (WithCursorKey). Any node can
// then serve any feed and honor cursors minted by its peers.
package feedhttp
