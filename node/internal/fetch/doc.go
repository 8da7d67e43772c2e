// Package fetch is the boundary to the block fetching machinery.
//
// Subsystem is the narrow contract the freshness tracker consumes: a
// single-block existence probe, a full content retrieval, and the backoff
// policy fetchers apply between unproductive polling rounds.
//
// Gateway implements Subsystem over an HTTP gateway:
//
//	HEAD {endpoint}/{uri}   probe; 200 means the block exists, 404 ErrNotFound
//	GET  {endpoint}/{uri}   content; the body is decoded (identity, zstd or
//	                        lz4 Content-Encoding), counted and discarded
//
// Requests carry an optional bearer token and are bounded by a weighted
// semaphore (max_in_flight). With http2 enabled the client speaks HTTP/2,
// using prior knowledge for plain http:// endpoints.
package fetch
