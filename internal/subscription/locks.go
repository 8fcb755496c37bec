package subscription

import "sync"

// Locks serializes mutations. Renewals hold the shared side of the custody
// lock plus their account lock; custody drains hold the exclusive side so
// they never interleave with a fee being collected.
type Locks struct {
	custody sync.RWMutex

	mu       sync.Mutex
	accounts map[string]*accountLock
}

type accountLock struct {
	mu   sync.Mutex
	refs int
}

func NewLocks() *Locks {
	return &Locks{accounts: make(map[string]*accountLock)}
}

// Account locks one account and returns the matching unlock.
func (l *Locks) Account(account string) func() {
	l.custody.RLock()

	l.mu.Lock()
	al, ok := l.accounts[account]
	if !ok {
		al = &accountLock{}
		l.accounts[account] = al
	}
	al.refs++
	l.mu.Unlock()

	al.mu.Lock()
	return func() {
		al.mu.Unlock()

		l.mu.Lock()
		al.refs--
		if al.refs == 0 {
			delete(l.accounts, account)
		}
		l.mu.Unlock()

		l.custody.RUnlock()
	}
}

// Custody takes the exclusive custody lock.
func (l *Locks) Custody() func() {
	l.custody.Lock()
	return l.custody.Unlock
}
