package service

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// usernameFilter answers "definitely free" for usernames without a
// database round trip. Positive answers still go to the database, and
// the unique index stays authoritative.
type usernameFilter struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

func newUsernameFilter(expected uint, fpRate float64) *usernameFilter {
	return &usernameFilter{filter: bloom.NewWithEstimates(expected, fpRate)}
}

func (f *usernameFilter) Add(username string) {
	if username == "" {
		return
	}
	f.mu.Lock()
	f.filter.AddString(username)
	f.mu.Unlock()
}

func (f *usernameFilter) MayContain(username string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.filter.TestString(username)
}
