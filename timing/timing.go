// Package timing holds the default periods and deadlines of ring maintenance.
package timing

import "time"

// periodic tasks
const (
	ChordStabilizeInterval        = time.Second * 3
	ChordPredecessorCheckInterval = time.Second * 7
)

// retries while the ring is changing underneath
const (
	ChordJoinRetryInterval = time.Second
	ChordKVRetryInterval   = time.Millisecond * 250
	ChordKVRetryAttempts   = 10
)

const (
	ChordRPCTimeout       = time.Second * 10
	ChordPingTimeout      = time.Second * 3
	ServerShutdownTimeout = time.Second * 5
)
