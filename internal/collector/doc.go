// Package collector orchestrates poll cycles against the appliance and
// publishes their results for exposition.
//
// A cycle fetches the configured sources, maps the raw payloads into
// measurements and atomically replaces the published set. Failures are
// contained per source; only a cycle in which every core source fails leaves
// the previous set in place (last-known-good) and bumps the failure counter.
// The published set is the single shared read path: the Prometheus registry
// reads it through Exporter while the Poller is the single writer, so a
// scrape is never blocked by an in-flight cycle.
package collector
