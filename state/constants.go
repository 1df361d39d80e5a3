package state

import "time"

var (
	DefaultMaxHops      = 16
	DefaultQueryTimeout = time.Second * 8
	// MinHopTimeout bounds how early the deepest hops give up
	MinHopTimeout = time.Millisecond * 250
	// HopTimeoutGap separates the deadlines of a hop and its parent
	HopTimeoutGap = time.Millisecond * 50

	TimetableReloadDelay = time.Second * 1
	DeadlineSweepDelay   = time.Millisecond * 50
	StatsSampleDelay     = time.Second * 1

	// client connections
	ClientReadTimeout  = time.Second * 10
	ClientWriteTimeout = time.Second * 10
	DefaultMaxClients  = 256

	// station datagrams
	MaxDatagramSize = 64 * 1024

	SlowDispatchThreshold = time.Millisecond * 4
	DispatchBufferSize    = 128
	TraceBufferSize       = 1024

	DefaultHost = "127.0.0.1"
)
