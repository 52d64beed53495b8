package feed

import "sync"

// keyedMutex hands out one mutex per key and forgets it once nobody holds
// or waits for it.
type keyedMutex struct {
	lock    sync.Mutex
	entries map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: map[string]*keyedEntry{}}
}

func (k *keyedMutex) Lock(key string) {
	k.lock.Lock()
	entry, ok := k.entries[key]
	if !ok {
		entry = &keyedEntry{}
		k.entries[key] = entry
	}
	entry.refs++
	k.lock.Unlock()

	entry.mu.Lock()
}

func (k *keyedMutex) Unlock(key string) {
	k.lock.Lock()
	defer k.lock.Unlock()

	entry, ok := k.entries[key]
	if !ok {
		panic("feed: unlock of unlocked key " + key)
	}
	entry.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(k.entries, key)
	}
}

func (k *keyedMutex) size() int {
	k.lock.Lock()
	defer k.lock.Unlock()
	return len(k.entries)
}
