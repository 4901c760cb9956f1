package tally

import (
	"context"
	"sync"
)

// keyedMutex hands out one lock per key and forgets it once nobody holds it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	ch   chan struct{}
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

// Lock waits until the key is free or ctx is done. On success it returns the
// matching unlock func.
func (km *keyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	km.mu.Lock()
	l, ok := km.locks[key]
	if !ok {
		l = &refLock{ch: make(chan struct{}, 1)}
		km.locks[key] = l
	}
	l.refs++
	km.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		km.release(key, l)
		return nil, ctx.Err()
	}

	return func() {
		<-l.ch
		km.release(key, l)
	}, nil
}

func (km *keyedMutex) release(key string, l *refLock) {
	km.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(km.locks, key)
	}
	km.mu.Unlock()
}

func (km *keyedMutex) size() int {
	km.mu.Lock()
	defer km.mu.Unlock()
	return len(km.locks)
}
