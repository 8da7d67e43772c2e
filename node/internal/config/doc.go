// Package config loads and watches the freshnode configuration file.
//
// Top-level types:
//   - Config{Node, Tracker, Gateway}: full tree parsed from YAML
//   - NodeConfig: http_port, grpc_port, log_level
//   - TrackerConfig: max_temporary_fetchers, lookahead windows,
//     verify_background, subscriptions []
//   - GatewayConfig: endpoint, timeout, max_in_flight, http2, token_env,
//     backoff{initial,max,multiplier}
//
// Load(path) reads the YAML file, applies defaults (pool of 50, lookahead
// 10/3, 30s gateway timeout, 1s..5m backoff), applies FRESHWATCH_* environment
// overrides, then validates.
//
// Watch(ctx, path, onChange) uses fsnotify to detect writes and hands the
// reparsed Config to onChange. Only the pool capacity and log level are
// applied live by freshnode; everything else needs a restart.
package config
