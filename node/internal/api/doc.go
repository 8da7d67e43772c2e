// Package api implements the JSON HTTP surface of freshnode.
//
// New(tracker) returns an http.Handler that serves:
//
//	GET  /api/v1/health             node status and tracked key count
//	GET  /api/v1/keys               freshness of every tracked key
//	GET  /api/v1/keys/{id-or-uri}   freshness of one key; 404 if untracked
//	POST /api/v1/hints              {"uri": "USK@.../7"} hint that an edition exists
//	POST /api/v1/fetches            {"uri": "...", "prefetch": true} temporary poll
//	GET  /api/v1/stats              registry counters
//
// Every response is application/json. Wrong methods get 405.
package api
