package rtt

import (
	"fmt"
	"time"

	"go.miragespace.co/dht/spec/protocol"
)

// Recorder collects round trip times to peers, keyed by MakeMeasurementKey.
// Latencies are in nanoseconds. Negative values are discarded.
type Recorder interface {
	Record(key string, latency float64)
	// Snapshot summarizes samples taken within past of now, or nil when there are none
	Snapshot(key string, past time.Duration) *Statistics
	Drop(key string)
}

type Statistics struct {
	Since, Until time.Time
	Samples      int

	Min               time.Duration
	Average           time.Duration
	Max               time.Duration
	StandardDeviation time.Duration
}

func (s *Statistics) String() string {
	if s == nil {
		return ""
	}
	return fmt.Sprintf("%d samples, min/avg/max/mdev = %v/%v/%v/%v",
		s.Samples, s.Min, s.Average, s.Max, s.StandardDeviation)
}

// MakeMeasurementKey keys measurements by ring position and address, so a node
// rejoining under a different id is measured separately.
func MakeMeasurementKey(node *protocol.Node) string {
	return node.String()
}
