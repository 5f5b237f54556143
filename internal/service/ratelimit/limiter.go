package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Rule is one limit to enforce: at most Limit hits for Key within the window.
type Rule struct {
	Scope string
	Key   string
	Limit int
}

// Store checks and consumes a set of rules atomically. It returns the index of the first rule
// that is exhausted, or -1 when every rule passed and one hit was recorded against each.
type Store interface {
	Take(ctx context.Context, window time.Duration, rules []Rule) (int, error)
}

type window struct {
	hits []time.Time // ascending
	last time.Time
}

// MemoryStore is a process-local sliding-window log. One mutex covers every key so a
// multi-rule check and its consumption happen as one step.
type MemoryStore struct {
	mu        sync.Mutex
	m         map[string]*window
	now       func() time.Time
	lastSweep time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]*window), now: time.Now}
}

func (l *MemoryStore) Take(_ context.Context, win time.Duration, rules []Rule) (int, error) {
	now := l.now()
	cutoff := now.Add(-win)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now, win)

	ws := make([]*window, len(rules))
	for i, r := range rules {
		k := r.Scope + ":" + r.Key
		w, ok := l.m[k]
		if !ok {
			w = &window{}
			l.m[k] = w
		}
		w.prune(cutoff)
		if len(w.hits) >= r.Limit {
			return i, nil
		}
		ws[i] = w
	}
	for _, w := range ws {
		w.hits = append(w.hits, now)
		w.last = now
	}
	return -1, nil
}

func (w *window) prune(cutoff time.Time) {
	n := 0
	for n < len(w.hits) && !w.hits[n].After(cutoff) {
		n++
	}
	if n > 0 {
		w.hits = append(w.hits[:0], w.hits[n:]...)
	}
}

// sweep drops keys idle for a full window; they hold no live hits.
func (l *MemoryStore) sweep(now time.Time, win time.Duration) {
	if now.Sub(l.lastSweep) < win {
		return
	}
	for k, w := range l.m {
		if now.Sub(w.last) >= win {
			delete(l.m, k)
		}
	}
	l.lastSweep = now
}

func (l *MemoryStore) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
