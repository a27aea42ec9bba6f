// Package mapper turns raw fnOS payloads into named, typed, labeled
// measurements. Map is a pure function: no I/O, no state between calls, and
// deterministic output order, so running it twice over the same input yields
// an identical measurement set.
//
// Appliance bags (uptime, SMART) have no fixed schema. Nested objects are
// flattened with "_" separators, camelCase keys become snake_case, and every
// generated name is validated against the Prometheus data model before it is
// emitted. A field that cannot be converted to its expected metric type is
// skipped and logged; it is never fatal to the mapping pass.
package mapper
