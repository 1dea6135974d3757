// Package dpsi is the read-only HTTP query interface to a running engine.
//
// Routes:
//
//	GET /round/current
//	GET /round/previous
//	GET /round/{number}
//	GET /chain-state
//	GET /lib
//	GET /mining-interval
//	GET /producers/{pubkey}/designated?at=RFC3339
//	GET /producers/{pubkey}/command?at=RFC3339
//	GET /metrics
//
// Rounds and chain state are encoded as JSON.
// Unknown rounds result in 404.
package dpsi
