// Package hub streams freshness updates to WebSocket clients.
//
// A client connects to /ws/stream?key=<USK URI> and becomes a passive
// subscriber of that key (background=true also keeps a fetcher polling it).
// Every update is sent as an "edition" event, JSON text frames by default or
// CBOR binary frames with format=cbor. A client that falls behind by more
// than its send buffer is disconnected.
package hub
