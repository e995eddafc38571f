package engine

import (
	"context"
	"sort"
	"sync"
)

// tableLocks serializes commits per table. Only the tables a commit writes are
// locked, always in ascending id order, so commits on disjoint tables never wait
// on each other and overlapping sets cannot deadlock.
type tableLocks struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newTableLocks() *tableLocks {
	return &tableLocks{slots: make(map[string]chan struct{})}
}

func (l *tableLocks) slot(id string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[id]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[id] = ch
	}
	return ch
}

// acquire locks ids and returns the release func. It gives up when ctx is done.
func (l *tableLocks) acquire(ctx context.Context, ids []string) (func(), error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	held := make([]chan struct{}, 0, len(sorted))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i]
		}
	}

	for i, id := range sorted {
		if i > 0 && sorted[i-1] == id {
			continue
		}
		ch := l.slot(id)
		select {
		case ch <- struct{}{}:
			held = append(held, ch)
		case <-ctx.Done():
			release()
			return nil, ctx.Err()
		}
	}
	return release, nil
}
