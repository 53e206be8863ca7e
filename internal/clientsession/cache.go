// Package clientsession keeps a client process's view of who is signed in.
// The Cache is an owned object handed to consumers; the Controller is the
// only writer and keeps it in step with the server.
package clientsession

import (
	"slices"
	"sync"
	"sync/atomic"

	"folio/internal/identity"
	"folio/internal/profile"
)

// State is one immutable snapshot of the client session. Identity and Profile
// are either both set or both nil once IsLoading is false.
type State struct {
	Identity  *identity.Identity
	Session   *identity.Session
	Profile   *profile.Profile
	IsLoading bool
}

// SignedIn reports whether the state carries a resolved identity.
func (s State) SignedIn() bool {
	return !s.IsLoading && s.Identity != nil && s.Profile != nil
}

func loadingState() *State {
	return &State{IsLoading: true}
}

func signedOutState() *State {
	return &State{}
}

// normalize drops a half-resolved identity so readers never observe an
// identity without its profile outside of loading.
func normalize(s *State) *State {
	if !s.IsLoading && (s.Identity == nil || s.Profile == nil) {
		return signedOutState()
	}
	return s
}

// Cache holds the current State. Reads are lock-free; writes replace the
// whole state and notify watchers in write order. Watchers may call Watch or
// their own cancel function, but must not write to the cache.
type Cache struct {
	state atomic.Pointer[State]

	// writeMu serializes writes and their notifications.
	writeMu sync.Mutex

	mu       sync.Mutex
	nextID   int
	watchers map[int]func(State)
}

// NewCache returns a cache in the initial loading state.
func NewCache() *Cache {
	c := &Cache{watchers: make(map[int]func(State))}
	c.state.Store(loadingState())
	return c
}

// Load returns the current snapshot.
func (c *Cache) Load() State {
	return *c.state.Load()
}

// Watch registers fn to be called after every replacement. The returned
// function removes it.
func (c *Cache) Watch(fn func(State)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.watchers[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.watchers, id)
		c.mu.Unlock()
	}
}

func (c *Cache) snapshot() *State {
	return c.state.Load()
}

func (c *Cache) replace(next *State) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	next = normalize(next)
	c.state.Store(next)
	c.notify(*next)
}

// replaceIf stores next only if the state is still old, so a slow
// re-resolution cannot overwrite a newer write.
func (c *Cache) replaceIf(old, next *State) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	next = normalize(next)
	if !c.state.CompareAndSwap(old, next) {
		return false
	}
	c.notify(*next)
	return true
}

// notify calls the watchers registered at the time of the write, in
// registration order. c.mu is not held during the calls.
func (c *Cache) notify(s State) {
	c.mu.Lock()
	ids := make([]int, 0, len(c.watchers))
	for id := range c.watchers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(State), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, c.watchers[id])
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}
