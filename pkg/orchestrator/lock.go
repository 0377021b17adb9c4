package orchestrator

import (
	"path/filepath"
	"sync"
)

// pathLocks serialises runs per script path within this process.
type pathLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

var scriptLocks = &pathLocks{held: make(map[string]bool)}

func lockKey(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// tryLock takes path if it is free.
func (l *pathLocks) tryLock(path string) (unlock func(), ok bool) {
	key := lockKey(path)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, false
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, true
}
