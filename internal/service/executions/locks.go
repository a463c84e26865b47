package executions

import "sync"

// executionLocks serializes coordinator mutations per key: execution ids for
// lifecycle mutations, a simulation-scoped key for starts. Entries are dropped
// once the last holder releases, so the map stays bounded by in-flight work.
type executionLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newExecutionLocks() *executionLocks {
	return &executionLocks{entries: make(map[string]*lockEntry)}
}

func (l *executionLocks) Lock(id string) (release func()) {
	l.mu.Lock()
	entry, ok := l.entries[id]
	if !ok {
		entry = &lockEntry{}
		l.entries[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.entries, id)
		}
		l.mu.Unlock()
	}
}
