// Package blissdata defines the narrow contract the bridge holds against the
// remote scan store: sessions, append-only streams, and their encodings.
//
// The dispatcher only ever talks to the Store, Session and Stream interfaces
// defined here. Concrete backends live in subpackages: natsstore publishes
// into NATS JetStream with session metadata in a KV bucket, influxstore
// writes channel values into InfluxDB. Tests use an in-process recorder.
//
// All blocking operations take a context.Context. The bridge never retries a
// failed store call; failures surface to the dispatcher, which decides per
// lifecycle phase whether to continue (per-stream seal, per-channel send) or
// abort the scan.
package blissdata
