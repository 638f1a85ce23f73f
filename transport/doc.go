// Package transport implements the in-memory representation of one
// Bluetooth audio connection.
//
// A Transport carries the connection's identity, profile and
// negotiated codec configuration, the endpoint descriptors for the
// Bluetooth channel and the local audio path, the lifecycle state
// machine, an atomic reference count shared between the registry and
// the I/O workers, and the acquire/release hooks the external
// registry supplies for exclusive channel use.
//
// The package also provides in-memory loopback endpoints
// (NewFramePipe, NewBytePipe) standing in for the kernel sockets a
// live adapter stack would hand over; tests and the aging tool are
// built on them.
package transport
