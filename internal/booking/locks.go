package booking

import "sync"

// showtimeLocks hands out one mutex per showtime. Entries are dropped once no
// goroutine holds or waits for them.
type showtimeLocks struct {
	mu    sync.Mutex
	locks map[int]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newShowtimeLocks() *showtimeLocks {
	return &showtimeLocks{locks: make(map[int]*refMutex)}
}

func (l *showtimeLocks) lock(showtimeID int) (unlock func()) {
	l.mu.Lock()
	m, ok := l.locks[showtimeID]
	if !ok {
		m = &refMutex{}
		l.locks[showtimeID] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()

	return func() {
		m.Unlock()

		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, showtimeID)
		}
		l.mu.Unlock()
	}
}
