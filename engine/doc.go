// Package engine implements the per-connection media I/O workers.
//
// One worker drives one direction of one connection: it waits for
// data with a bounded timeout, transforms it through the connection's
// codec framer, transfers the result to the opposite endpoint, and
// observes the control-signal channel on every iteration. An A2DP
// source connection runs a single encoding worker, an A2DP sink a
// single decoding worker, and a voice connection runs two workers
// sharing the connection, one per direction.
//
// Error policy: a failure on the Bluetooth-bound side is link loss,
// fatal for the worker; a local-audio failure is logged and the
// iteration skipped, so local hiccups never tear down the Bluetooth
// link. Every exit path, cooperative or forced, releases the
// channel claim and drops the worker's connection reference.
package engine
