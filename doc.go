// Package blissdatabridge republishes bluesky scan lifecycle documents into
// a remote time-series store.
//
// The bridge subscribes to the four document kinds a scan emits — start,
// descriptor, event and stop — validates each against its event-model
// schema, and drives the store through the matching lifecycle phase: start
// opens a scan session, the descriptor declares one typed append-only
// stream per channel plus the implicit timer channel and publishes the
// assembled scan metadata, events append values to their streams, and stop
// seals every stream and records the scan's outcome.
//
// Two store backends ship with the bridge: NATS JetStream (one stream per
// scan, one subject per channel, scan info in a key-value bucket) and
// InfluxDB v2 (per-channel series tagged with the scan uid). The dispatcher
// in package dispatcher is backend-agnostic and talks to the interfaces in
// package blissdata.
package blissdatabridge
