package solcore

import (
	"container/list"
	"sync"
)

// Handle is the key type for a SynchronizedKeyedMap: the identity of a
// managed object's pointer. Callers pass the *Subscription/*Inbox/*Timer
// itself as the key — the map is keyed on pointer identity, never on a
// derived ID.
type Handle = any

// KeyedMapCallback is invoked by ForEach/Drain for each entry. In ForEach a
// non-nil error stops iteration unless ignoreErrors is requested; Drain
// always visits every drained entry. Either way the error is surfaced to
// the caller of ForEach/Drain.
type KeyedMapCallback func(key Handle, data any) error

// SynchronizedKeyedMap is a thread-safe, insertion-ordered container keyed
// by pointer identity. It stands in for the red-black tree the source
// implementation uses to track a Session's live subscriptions/inboxes/
// timers: insertion
// order is a valid total order over the key set at any instant, which is
// all callers of ForEach ever required.
type SynchronizedKeyedMap struct {
	mu      sync.Mutex
	entries map[Handle]*list.Element
	order   *list.List
}

type keyedMapEntry struct {
	key  Handle
	data any
}

// NewSynchronizedKeyedMap returns an empty map.
func NewSynchronizedKeyedMap() *SynchronizedKeyedMap {
	return &SynchronizedKeyedMap{
		entries: make(map[Handle]*list.Element),
		order:   list.New(),
	}
}

// Insert adds data under key. Re-inserting an existing key replaces its
// data without changing its position in iteration order.
func (m *SynchronizedKeyedMap) Insert(key Handle, data any) error {
	if key == nil {
		return WrapStatus(StatusNullArg, ErrNullArg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.entries[key]; ok {
		el.Value.(*keyedMapEntry).data = data
		return nil
	}
	el := m.order.PushBack(&keyedMapEntry{key: key, data: data})
	m.entries[key] = el
	return nil
}

// Remove deletes key from the map and returns its data, or ErrNotFound.
func (m *SynchronizedKeyedMap) Remove(key Handle) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.entries[key]
	if !ok {
		return nil, WrapStatus(StatusNotFound, ErrNotFound)
	}
	delete(m.entries, key)
	m.order.Remove(el)
	return el.Value.(*keyedMapEntry).data, nil
}

// For invokes callback with the single entry matching key, without
// removing it, with the map lock held for the duration of the call. This
// is the whole point of For: it lets callers perform a zero-race
// "shutdown under mutual exclusion with removal", since a concurrent
// Remove cannot complete until callback returns. Returns ErrNotFound if
// key is absent.
func (m *SynchronizedKeyedMap) For(key Handle, callback KeyedMapCallback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.entries[key]
	if !ok {
		return WrapStatus(StatusNotFound, ErrNotFound)
	}
	entry := el.Value.(*keyedMapEntry)
	return callback(entry.key, entry.data)
}

// ForEach invokes callback for every entry in insertion order, holding
// the map lock for the entire sweep like For does, so no entry can be
// inserted or removed mid-iteration. Callbacks must not call back into
// the map. If ignoreErrors is false, the first callback error aborts
// iteration and is returned; if true, iteration continues and the last
// error (if any) is returned. Only Drain releases the lock for its
// callback phase.
func (m *SynchronizedKeyedMap) ForEach(callback KeyedMapCallback, ignoreErrors bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var lastErr error
	for el := m.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*keyedMapEntry)
		if err := callback(e.key, e.data); err != nil {
			if !ignoreErrors {
				return err
			}
			lastErr = err
		}
	}
	return lastErr
}

// Drain removes every entry from the map, invoking callback for each in
// insertion order before it is discarded. Used by destroy-all-* paths
// that must finalize every live child before the parent can be destroyed.
func (m *SynchronizedKeyedMap) Drain(callback KeyedMapCallback) error {
	m.mu.Lock()
	drained := m.order
	m.entries = make(map[Handle]*list.Element)
	m.order = list.New()
	m.mu.Unlock()

	var lastErr error
	for el := drained.Front(); el != nil; el = el.Next() {
		e := el.Value.(*keyedMapEntry)
		if callback == nil {
			continue
		}
		if err := callback(e.key, e.data); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Len returns the current entry count.
func (m *SynchronizedKeyedMap) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func (m *SynchronizedKeyedMap) snapshot() []keyedMapEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]keyedMapEntry, 0, m.order.Len())
	for el := m.order.Front(); el != nil; el = el.Next() {
		out = append(out, *el.Value.(*keyedMapEntry))
	}
	return out
}
