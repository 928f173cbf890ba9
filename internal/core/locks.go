package core

import (
	"sync"
)

// AccountLocks serializes mutating operations per account
type AccountLocks struct {
	mu    sync.Mutex
	locks map[string]*accountLock
}

type accountLock struct {
	mu   sync.Mutex
	refs int
}

// NewAccountLocks creates an empty lock table
func NewAccountLocks() *AccountLocks {
	return &AccountLocks{locks: make(map[string]*accountLock)}
}

// Lock blocks until the account is free and returns the matching unlock func
func (l *AccountLocks) Lock(account string) func() {
	l.mu.Lock()
	lk, ok := l.locks[account]
	if !ok {
		lk = &accountLock{}
		l.locks[account] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()
	return func() {
		lk.mu.Unlock()
		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, account)
		}
		l.mu.Unlock()
	}
}
