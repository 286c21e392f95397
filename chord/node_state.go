package chord

import (
	"runtime"
	"sync/atomic"
	"time"

	"go.miragespace.co/dht/spec/chord"

	"github.com/zhangyunhao116/skipmap"
)

const (
	stateBits = 4
	stateMask = 1<<stateBits - 1
)

type transition struct {
	state chord.State
	at    time.Time
}

// nodeState holds the lifecycle state together with a sequence number in a single word,
// so Transition only wins against the exact state it observed. Every state entered is
// kept in the log, keyed by its sequence number.
type nodeState struct {
	word atomic.Uint64
	log  *skipmap.Uint64Map[transition]
}

func newNodeState(initial chord.State) *nodeState {
	s := &nodeState{
		log: skipmap.NewUint64[transition](),
	}
	s.word.Store(uint64(initial))
	s.log.Store(0, transition{state: initial, at: time.Now()})
	return s
}

func unpack(word uint64) (seq uint64, state chord.State) {
	return word >> stateBits, chord.State(word & stateMask)
}

func (s *nodeState) Transition(exp chord.State, nxt chord.State) (chord.State, bool) {
	word := s.word.Load()
	seq, curr := unpack(word)
	if curr != exp {
		return curr, false
	}
	if !s.word.CompareAndSwap(word, (seq+1)<<stateBits|uint64(nxt)) {
		return s.Get(), false
	}
	s.log.Store(seq+1, transition{state: nxt, at: time.Now()})
	return nxt, true
}

// Set forces the state regardless of what it currently is
func (s *nodeState) Set(val chord.State) {
	for {
		if _, ok := s.Transition(s.Get(), val); ok {
			return
		}
		runtime.Gosched()
	}
}

func (s *nodeState) Get() chord.State {
	_, state := unpack(s.word.Load())
	return state
}

// Since is when the current state was entered
func (s *nodeState) Since() time.Time {
	seq, _ := unpack(s.word.Load())
	if t, ok := s.log.Load(seq); ok {
		return t.at
	}
	return time.Time{}
}

func (s *nodeState) transitions() []transition {
	out := make([]transition, 0, s.log.Len())
	s.log.Range(func(_ uint64, t transition) bool {
		out = append(out, t)
		return true
	})
	return out
}

func (s *nodeState) History() []chord.State {
	ts := s.transitions()
	h := make([]chord.State, len(ts))
	for i, t := range ts {
		h[i] = t.state
	}
	return h
}
