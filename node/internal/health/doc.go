// Package health hosts the gRPC health service of freshnode.
//
// The overall service ("") and the tracker service report SERVING from start
// until Shutdown. When an API key is configured every call must carry it in
// the x-api-key metadata header.
package health
