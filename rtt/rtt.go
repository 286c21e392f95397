package rtt

import (
	"sync"
	"time"

	"go.miragespace.co/dht/spec/rtt"
	"go.miragespace.co/dht/util"

	"github.com/montanaflynn/stats"
	"github.com/zhangyunhao116/skipmap"
)

type sample struct {
	at  time.Time
	rtt float64
}

// window is a fixed size ring of samples. head is the slot the next sample goes to.
type window struct {
	mu      sync.Mutex
	samples []sample
	head    int
	filled  int
}

func newWindow(size int) *window {
	return &window{samples: make([]sample, size)}
}

func (w *window) push(s sample) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.samples[w.head] = s
	w.head = (w.head + 1) % len(w.samples)
	if w.filled < len(w.samples) {
		w.filled++
	}
}

// recent returns the samples taken at or after cutoff, oldest first
func (w *window) recent(cutoff time.Time) []sample {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]sample, 0, w.filled)
	start := (w.head - w.filled + len(w.samples)) % len(w.samples)
	for n := 0; n < w.filled; n++ {
		s := w.samples[(start+n)%len(w.samples)]
		if !s.at.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

// Instrumentation keeps the last few round trip times per peer, in nanoseconds.
// Samples older than the requested lookback are left out of a Snapshot.
type Instrumentation struct {
	peers *skipmap.StringMap[*window]
	size  int
}

var _ rtt.Recorder = (*Instrumentation)(nil)

func NewInstrumentation(size int) *Instrumentation {
	return &Instrumentation{
		peers: skipmap.NewString[*window](),
		size:  max(size, 1),
	}
}

func (i *Instrumentation) Record(key string, value float64) {
	if value < 0 {
		return
	}
	w, _ := i.peers.LoadOrStoreLazy(key, func() *window {
		return newWindow(i.size)
	})
	w.push(sample{at: time.Now(), rtt: value})
}

func (i *Instrumentation) Snapshot(key string, last time.Duration) *rtt.Statistics {
	w, ok := i.peers.Load(key)
	if !ok {
		return nil
	}
	recent := w.recent(time.Now().Add(-last))
	if len(recent) == 0 {
		return nil
	}
	values := make([]float64, len(recent))
	for n, s := range recent {
		values[n] = s.rtt
	}
	st := summarize(values)
	st.Since = recent[0].at
	st.Until = recent[len(recent)-1].at
	return st
}

func summarize(values stats.Float64Data) *rtt.Statistics {
	return &rtt.Statistics{
		Samples:           values.Len(),
		Min:               time.Duration(util.Must(values.Min())),
		Average:           time.Duration(util.Must(values.Mean())),
		Max:               time.Duration(util.Must(values.Max())),
		StandardDeviation: time.Duration(util.Must(values.StandardDeviation())),
	}
}

func (i *Instrumentation) Drop(key string) {
	i.peers.Delete(key)
}
