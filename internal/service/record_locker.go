package service

import (
	"context"
	"sync"
)

// RecordLocker serialises reconciliation of one transaction record.
type RecordLocker interface {
	Lock(ctx context.Context, transactionID uint) (unlock func(), err error)
}

type keyedLockEntry struct {
	ch   chan struct{}
	refs int
}

// LocalRecordLocker is an in-process keyed mutex. Entries are dropped once no caller holds
// or waits for them.
type LocalRecordLocker struct {
	mu      sync.Mutex
	entries map[uint]*keyedLockEntry
}

func NewLocalRecordLocker() *LocalRecordLocker {
	return &LocalRecordLocker{entries: map[uint]*keyedLockEntry{}}
}

func (l *LocalRecordLocker) Lock(ctx context.Context, transactionID uint) (func(), error) {
	l.mu.Lock()
	entry, ok := l.entries[transactionID]
	if !ok {
		entry = &keyedLockEntry{ch: make(chan struct{}, 1)}
		l.entries[transactionID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(transactionID, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.ch
			l.release(transactionID, entry)
		})
	}, nil
}

func (l *LocalRecordLocker) release(transactionID uint, entry *keyedLockEntry) {
	l.mu.Lock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, transactionID)
	}
	l.mu.Unlock()
}
