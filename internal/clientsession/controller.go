package clientsession

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"folio/internal/events"
	"folio/internal/identity"
	"folio/internal/profile"
)

var (
	ErrSubmissionInFlight = errors.New("a sign-in is already in progress")
	ErrClosed             = errors.New("session controller closed")
)

// Snapshot is the server's answer to "who am I".
type Snapshot struct {
	Identity identity.Identity
	Session  identity.Session
	Profile  *profile.Profile
}

// API is the server surface the controller drives. CurrentSession returns
// (nil, nil) when the caller is not signed in.
type API interface {
	CurrentSession(ctx context.Context) (*Snapshot, error)
	SignIn(ctx context.Context, email, password string) (*Snapshot, string, error)
	SignOut(ctx context.Context) (string, error)
}

// Controller resolves the client session and keeps the Cache current. It
// holds exactly one bus subscription between Start and Close.
type Controller struct {
	api    API
	bus    events.Bus
	cache  *Cache
	logger *slog.Logger

	group    singleflight.Group
	inFlight atomic.Bool
	pending  chan struct{}

	mu          sync.Mutex
	lastErr     error
	started     bool
	closed      bool
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	done        chan struct{}
}

// NewController wires a controller to api and bus, writing into cache.
func NewController(api API, bus events.Bus, cache *Cache, logger *slog.Logger) *Controller {
	return &Controller{
		api:     api,
		bus:     bus,
		cache:   cache,
		logger:  logger,
		pending: make(chan struct{}, 1),
	}
}

// Cache returns the cache the controller writes to.
func (c *Controller) Cache() *Cache {
	return c.cache
}

// Start subscribes to session changes, performs the initial resolution and
// starts the event loop. When Start returns the cache is no longer loading.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.started {
		c.mu.Unlock()
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	unsubscribe, err := c.bus.Subscribe(ctx, c.onEvent)
	if err != nil {
		cancel()
		c.mu.Unlock()
		return err
	}
	c.started = true
	c.ctx, c.cancel = loopCtx, cancel
	c.unsubscribe = unsubscribe
	c.done = make(chan struct{})
	c.mu.Unlock()

	c.refresh(ctx)
	go c.loop(loopCtx)
	return nil
}

// Close releases the subscription and stops the event loop. It is safe to
// call more than once.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	started := c.started
	c.mu.Unlock()

	if !started {
		return
	}
	c.unsubscribe()
	c.cancel()
	<-c.done
}

// LastError returns the most recent resolution failure, or nil if the last
// resolution succeeded. A signed-out state with a nil LastError means the
// caller is simply not authenticated.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Controller) setLastError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

func (c *Controller) onEvent(ev events.Event) {
	cur := c.cache.Load()
	if cur.Identity != nil && ev.IdentityID != uuid.Nil && ev.IdentityID != cur.Identity.ID {
		return
	}
	select {
	case c.pending <- struct{}{}:
	default:
	}
}

func (c *Controller) loop(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.pending:
			c.refresh(ctx)
		}
	}
}

// Refresh re-resolves the session immediately.
func (c *Controller) Refresh(ctx context.Context) {
	c.refresh(ctx)
}

func (c *Controller) refresh(ctx context.Context) {
	before := c.cache.snapshot()

	v, err, _ := c.group.Do("session", func() (any, error) {
		return c.api.CurrentSession(ctx)
	})
	if err != nil {
		c.setLastError(err)
		c.logger.Warn("failed to resolve session", "error", err)
		if before.IsLoading && !c.inFlight.Load() {
			next := *before
			next.IsLoading = false
			c.cache.replaceIf(before, &next)
		}
		return
	}

	c.setLastError(nil)
	if c.inFlight.Load() {
		// the sign-in in progress owns the next write
		return
	}
	c.cache.replaceIf(before, stateFrom(v.(*Snapshot)))
}

// SignIn submits credentials. Only one submission may be in flight; the
// cache passes through exactly one loading state and then settles with
// identity and profile set together.
func (c *Controller) SignIn(ctx context.Context, email, password string) (string, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return "", ErrSubmissionInFlight
	}
	defer c.inFlight.Store(false)

	c.cache.replace(loadingState())

	snap, redirect, err := c.api.SignIn(ctx, email, password)
	if err != nil {
		c.setLastError(err)
		c.cache.replace(signedOutState())
		return "", err
	}

	c.setLastError(nil)
	c.cache.replace(stateFrom(snap))
	c.publish(ctx, events.SignedIn, snap.Identity.ID)
	return redirect, nil
}

// SignOut revokes the session remotely and clears the cache. The cache is
// left untouched if revocation fails.
func (c *Controller) SignOut(ctx context.Context) (string, error) {
	var who uuid.UUID
	if cur := c.cache.Load(); cur.Identity != nil {
		who = cur.Identity.ID
	}

	redirect, err := c.api.SignOut(ctx)
	if err != nil {
		c.setLastError(err)
		return "", err
	}

	c.setLastError(nil)
	c.cache.replace(signedOutState())
	c.publish(ctx, events.SignedOut, who)
	return redirect, nil
}

func (c *Controller) publish(ctx context.Context, t events.Type, who uuid.UUID) {
	if err := c.bus.Publish(ctx, events.New(t, who)); err != nil {
		c.logger.Warn("failed to publish session event", "type", t, "error", err)
	}
}

func stateFrom(snap *Snapshot) *State {
	if snap == nil || snap.Profile == nil {
		return signedOutState()
	}
	ident := snap.Identity
	sess := snap.Session
	return &State{Identity: &ident, Session: &sess, Profile: snap.Profile}
}
