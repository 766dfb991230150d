// Package channel manages the long-lived gRPC client connection that carries
// every dispatched call: target parsing, translation of the tuning bundle
// into dial options exactly once at connect time, readiness-gated connection
// establishment, and the wire codecs for the default Event contract and the
// generic raw path.
package channel
