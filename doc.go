// Package bluepipe is the connection registry of a Bluetooth audio
// bridging daemon. It owns the lifecycle of every audio connection:
// registration under a unique ID, worker startup and teardown per
// negotiated profile, and fan-out of state transitions to the
// embedding application.
//
// The media path itself lives in the subpackages: transport holds
// the shared per-connection object and its channel-claim protocol,
// codec frames PCM into wire frames and back, engine runs the I/O
// workers, and control carries the coalescing signal channel that
// drives them.
//
// # Getting Started
//
// Register a connection for a negotiated profile, wire its
// endpoints, and start the workers:
//
//	reg := bluepipe.NewRegistry(transport.Hooks{})
//	reg.OnStateChange(func(c *bluepipe.Connection, s transport.State) {
//	    fmt.Printf("%s: %s\n", c.ID, s)
//	})
//
//	conn, err := reg.Create(transport.A2DPSource, addr, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	conn.BT, conn.PCM = bt, pcm
//	conn.MTUWrite = mtuWrite
//
//	if err := conn.Start(); err != nil {
//	    log.Fatal(err)
//	}
//	defer reg.Destroy(conn.ID, 5*time.Second)
//
// Pause, resume, drop and terminate reach the running workers
// through conn.Signal; signalling a connection with no workers is a
// recorded no-op.
package bluepipe
