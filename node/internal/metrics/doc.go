// Package metrics exposes registry statistics in the Prometheus exposition
// format. Families are built by hand from registry.Stats on every scrape; no
// collector registry is kept.
package metrics
