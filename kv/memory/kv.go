package memory

import (
	"go.miragespace.co/dht/spec/chord"
	"go.miragespace.co/dht/spec/protocol"

	"github.com/zhangyunhao116/skipmap"
)

type HashFn func(string) uint64

// MemoryKV is an in-memory multimap from key to values, indexed by the key's
// ring identifier so range extraction walks the keys in ring order.
type MemoryKV struct {
	s      *skipmap.Uint64Map[*skipmap.StringMap[[]string]]
	hashFn HashFn
}

var _ chord.BindingStore = (*MemoryKV)(nil)

func newInnerMapFunc() *skipmap.StringMap[[]string] {
	return skipmap.NewString[[]string]()
}

func WithHashFn(fn HashFn) *MemoryKV {
	return &MemoryKV{
		s:      skipmap.NewUint64[*skipmap.StringMap[[]string]](),
		hashFn: fn,
	}
}

func (m *MemoryKV) load(key string) ([]string, bool) {
	kMap, ok := m.s.Load(m.hashFn(key))
	if !ok {
		return nil, false
	}
	return kMap.Load(key)
}

func (m *MemoryKV) store(key string, values []string) {
	p := m.hashFn(key)
	if len(values) == 0 {
		if kMap, ok := m.s.Load(p); ok {
			kMap.Delete(key)
			if kMap.Len() == 0 {
				m.s.Delete(p)
			}
		}
		return
	}
	kMap, _ := m.s.LoadOrStoreLazy(p, newInnerMapFunc)
	kMap.Store(key, values)
}

func (m *MemoryKV) Get(key string) []string {
	values, ok := m.load(key)
	if !ok {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func (m *MemoryKV) Add(key, value string) {
	values, _ := m.load(key)
	next := make([]string, len(values), len(values)+1)
	copy(next, values)
	m.store(key, append(next, value))
}

// Delete removes the first occurrence of value under key
func (m *MemoryKV) Delete(key, value string) {
	values, ok := m.load(key)
	if !ok {
		return
	}
	for i, v := range values {
		if v != value {
			continue
		}
		next := make([]string, 0, len(values)-1)
		next = append(next, values[:i]...)
		next = append(next, values[i+1:]...)
		m.store(key, next)
		return
	}
}

func (m *MemoryKV) Clear() {
	m.s = skipmap.NewUint64[*skipmap.StringMap[[]string]]()
}

// Len returns the number of keys with at least one value
func (m *MemoryKV) Len() int {
	n := 0
	m.s.Range(func(_ uint64, kMap *skipmap.StringMap[[]string]) bool {
		n += kMap.Len()
		return true
	})
	return n
}

func (m *MemoryKV) RangeKeys(low, high uint64) []string {
	keys := make([]string, 0)

	m.s.Range(func(id uint64, kMap *skipmap.StringMap[[]string]) bool {
		if chord.Between(low, id, high, true) {
			kMap.Range(func(key string, _ []string) bool {
				keys = append(keys, key)
				return true
			})
		}
		return true
	})

	return keys
}

func (m *MemoryKV) Export(keys []string) []*protocol.KeyBindings {
	vals := make([]*protocol.KeyBindings, 0, len(keys))
	for _, key := range keys {
		values, ok := m.load(key)
		if !ok {
			continue
		}
		out := make([]string, len(values))
		copy(out, values)
		vals = append(vals, &protocol.KeyBindings{
			Key:    key,
			Values: out,
		})
	}
	return vals
}

// Import merges bindings so that every value ends up with max(local, incoming) copies
func (m *MemoryKV) Import(bindings []*protocol.KeyBindings) {
	for _, kb := range bindings {
		if len(kb.GetValues()) == 0 {
			continue
		}
		local, _ := m.load(kb.GetKey())

		have := make(map[string]int, len(local))
		for _, v := range local {
			have[v]++
		}
		next := make([]string, len(local), len(local)+len(kb.GetValues()))
		copy(next, local)
		for _, v := range kb.GetValues() {
			if have[v] > 0 {
				have[v]--
				continue
			}
			next = append(next, v)
		}
		m.store(kb.GetKey(), next)
	}
}

func (m *MemoryKV) RemoveKeys(keys []string) {
	for _, key := range keys {
		m.store(key, nil)
	}
}
