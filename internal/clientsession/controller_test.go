package clientsession

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/auth"
	"folio/internal/events"
	"folio/internal/identity"
	"folio/internal/logger"
	"folio/internal/profile"
)

var adaID = uuid.MustParse("0b7f6c1e-2d3a-4b5c-8d9e-0f1a2b3c4d5e")

func adaSnapshot(role profile.Role) *Snapshot {
	return &Snapshot{
		Identity: identity.Identity{ID: adaID, Email: "ada@example.com"},
		Session:  identity.Session{ID: "sess-1", Identity: identity.Identity{ID: adaID}},
		Profile:  &profile.Profile{ID: adaID, Role: role, IsActive: true},
	}
}

type fakeAPI struct {
	mu          sync.Mutex
	current     *Snapshot
	currentErr  error
	sessionHits atomic.Int32

	signInFunc  func(ctx context.Context, email, password string) (*Snapshot, string, error)
	signOutErr  error
	signOutHits atomic.Int32
}

func (f *fakeAPI) set(s *Snapshot, err error) {
	f.mu.Lock()
	f.current, f.currentErr = s, err
	f.mu.Unlock()
}

func (f *fakeAPI) CurrentSession(ctx context.Context) (*Snapshot, error) {
	f.sessionHits.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current, f.currentErr
}

func (f *fakeAPI) SignIn(ctx context.Context, email, password string) (*Snapshot, string, error) {
	return f.signInFunc(ctx, email, password)
}

func (f *fakeAPI) SignOut(ctx context.Context) (string, error) {
	f.signOutHits.Add(1)
	if f.signOutErr != nil {
		return "", f.signOutErr
	}
	f.set(nil, nil)
	return "/", nil
}

// recorder captures every state the cache publishes.
type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) add(s State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func newTestController(t *testing.T, api *fakeAPI) (*Controller, *events.Broadcaster, *recorder) {
	t.Helper()
	bus := events.NewBroadcaster()
	cache := NewCache()
	rec := &recorder{}
	cache.Watch(rec.add)
	c := NewController(api, bus, cache, logger.Discard())
	t.Cleanup(c.Close)
	return c, bus, rec
}

func assertNoTornState(t *testing.T, states []State) {
	t.Helper()
	for i, s := range states {
		if !s.IsLoading && s.Identity != nil {
			assert.NotNil(t, s.Profile, "state %d has identity without profile", i)
		}
	}
}

func TestCache_StartsLoading(t *testing.T) {
	c := NewCache()
	assert.True(t, c.Load().IsLoading)
	assert.Equal(t, Defer, Guard(c.Load(), profile.RoleAdmin))
}

func TestCache_NormalizesHalfResolvedState(t *testing.T) {
	c := NewCache()
	c.replace(&State{Identity: &identity.Identity{ID: adaID}})

	s := c.Load()
	assert.False(t, s.IsLoading)
	assert.Nil(t, s.Identity)
	assert.Nil(t, s.Profile)
}

func TestCache_WatchCancel(t *testing.T) {
	c := NewCache()
	calls := 0
	cancel := c.Watch(func(State) { calls++ })
	c.replace(signedOutState())
	cancel()
	c.replace(signedOutState())
	assert.Equal(t, 1, calls)
}

func TestCache_WatcherMayReenter(t *testing.T) {
	c := NewCache()
	var seen []bool
	var cancel func()
	cancel = c.Watch(func(s State) {
		seen = append(seen, s.IsLoading)
		cancel()
		c.Watch(func(State) {})
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.replace(signedOutState())
		c.replace(loadingState())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watcher re-entering the cache deadlocked")
	}
	assert.Equal(t, []bool{false}, seen)
}

func TestController_Start_ResolvesSignedIn(t *testing.T) {
	api := &fakeAPI{current: adaSnapshot(profile.RoleAdmin)}
	c, bus, rec := newTestController(t, api)

	require.NoError(t, c.Start(context.Background()))

	s := c.Cache().Load()
	assert.False(t, s.IsLoading)
	require.NotNil(t, s.Identity)
	assert.Equal(t, adaID, s.Identity.ID)
	assert.Equal(t, profile.RoleAdmin, s.Profile.Role)
	assert.Equal(t, 1, bus.Subscribers())
	assert.Len(t, rec.all(), 1)
	assert.NoError(t, c.LastError())
}

func TestController_Start_Twice_SingleSubscription(t *testing.T) {
	api := &fakeAPI{}
	c, bus, _ := newTestController(t, api)

	require.NoError(t, c.Start(context.Background()))
	require.NoError(t, c.Start(context.Background()))
	assert.Equal(t, 1, bus.Subscribers())

	c.Close()
	assert.Equal(t, 0, bus.Subscribers())
	assert.ErrorIs(t, c.Start(context.Background()), ErrClosed)
}

func TestController_Start_Unauthenticated(t *testing.T) {
	api := &fakeAPI{}
	c, _, _ := newTestController(t, api)

	require.NoError(t, c.Start(context.Background()))

	s := c.Cache().Load()
	assert.False(t, s.IsLoading)
	assert.Nil(t, s.Identity)
	assert.NoError(t, c.LastError())
	assert.Equal(t, RedirectLogin, Guard(s, ""))
}

func TestController_Start_ProfileMissing(t *testing.T) {
	api := &fakeAPI{currentErr: auth.ErrProfileMissing}
	c, _, rec := newTestController(t, api)

	require.NoError(t, c.Start(context.Background()))

	s := c.Cache().Load()
	assert.False(t, s.IsLoading)
	assert.Nil(t, s.Identity)
	assert.ErrorIs(t, c.LastError(), auth.ErrProfileMissing)
	assertNoTornState(t, rec.all())
}

func TestController_Start_UpstreamFailureIsDistinct(t *testing.T) {
	api := &fakeAPI{currentErr: auth.Upstream(errors.New("503"))}
	c, _, _ := newTestController(t, api)

	require.NoError(t, c.Start(context.Background()))

	assert.False(t, c.Cache().Load().IsLoading)
	assert.True(t, auth.Retryable(c.LastError()))
}

func TestController_EventTriggersReResolution(t *testing.T) {
	api := &fakeAPI{}
	c, bus, _ := newTestController(t, api)
	require.NoError(t, c.Start(context.Background()))

	api.set(adaSnapshot(profile.RoleUser), nil)
	require.NoError(t, bus.Publish(context.Background(), events.New(events.SignedIn, adaID)))

	assert.Eventually(t, func() bool {
		return c.Cache().Load().SignedIn()
	}, 2*time.Second, 5*time.Millisecond)
}

func TestController_IgnoresOtherIdentities(t *testing.T) {
	api := &fakeAPI{current: adaSnapshot(profile.RoleUser)}
	c, bus, _ := newTestController(t, api)
	require.NoError(t, c.Start(context.Background()))
	hits := api.sessionHits.Load()

	require.NoError(t, bus.Publish(context.Background(), events.New(events.UserUpdated, uuid.New())))

	assert.Never(t, func() bool {
		return api.sessionHits.Load() != hits
	}, 100*time.Millisecond, 10*time.Millisecond)
}

func TestController_SignIn_LoadingFlipsOnce(t *testing.T) {
	api := &fakeAPI{signInFunc: func(ctx context.Context, email, password string) (*Snapshot, string, error) {
		return adaSnapshot(profile.RoleAdmin), "/admin", nil
	}}
	c, _, rec := newTestController(t, api)
	require.NoError(t, c.Start(context.Background()))
	api.set(adaSnapshot(profile.RoleAdmin), nil)

	redirect, err := c.SignIn(context.Background(), "ada@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "/admin", redirect)

	states := rec.all()
	require.GreaterOrEqual(t, len(states), 3)
	// initial resolution, then the sign-in pair
	signIn := states[1:3]
	assert.True(t, signIn[0].IsLoading)
	assert.False(t, signIn[1].IsLoading)
	require.NotNil(t, signIn[1].Identity)
	require.NotNil(t, signIn[1].Profile)
	assertNoTornState(t, states)

	transitions := 0
	for i := 1; i < len(states); i++ {
		if states[i-1].IsLoading && !states[i].IsLoading {
			transitions++
		}
	}
	assert.Equal(t, 1, transitions)
	assert.Equal(t, Allow, Guard(c.Cache().Load(), profile.RoleAdmin))
}

func TestController_SignIn_RejectsDuplicateSubmission(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	api := &fakeAPI{signInFunc: func(ctx context.Context, email, password string) (*Snapshot, string, error) {
		close(entered)
		<-release
		return adaSnapshot(profile.RoleUser), "/", nil
	}}
	c, _, _ := newTestController(t, api)
	require.NoError(t, c.Start(context.Background()))

	errc := make(chan error, 1)
	go func() {
		_, err := c.SignIn(context.Background(), "ada@example.com", "pw")
		errc <- err
	}()
	<-entered

	_, err := c.SignIn(context.Background(), "ada@example.com", "pw")
	assert.ErrorIs(t, err, ErrSubmissionInFlight)
	assert.True(t, c.Cache().Load().IsLoading)

	close(release)
	require.NoError(t, <-errc)
	assert.True(t, c.Cache().Load().SignedIn())
}

func TestController_SignIn_Failure(t *testing.T) {
	api := &fakeAPI{signInFunc: func(ctx context.Context, email, password string) (*Snapshot, string, error) {
		return nil, "", auth.ErrInvalidCredentials
	}}
	c, _, rec := newTestController(t, api)
	require.NoError(t, c.Start(context.Background()))

	_, err := c.SignIn(context.Background(), "ada@example.com", "bad")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	s := c.Cache().Load()
	assert.False(t, s.IsLoading)
	assert.Nil(t, s.Identity)
	assertNoTornState(t, rec.all())
}

func TestController_SignOut(t *testing.T) {
	api := &fakeAPI{current: adaSnapshot(profile.RoleUser)}
	c, _, _ := newTestController(t, api)
	require.NoError(t, c.Start(context.Background()))

	redirect, err := c.SignOut(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/", redirect)
	assert.Nil(t, c.Cache().Load().Identity)
	assert.Equal(t, int32(1), api.signOutHits.Load())
}

func TestController_SignOut_FailureKeepsState(t *testing.T) {
	api := &fakeAPI{current: adaSnapshot(profile.RoleUser), signOutErr: auth.Upstream(errors.New("timeout"))}
	c, _, _ := newTestController(t, api)
	require.NoError(t, c.Start(context.Background()))

	_, err := c.SignOut(context.Background())
	assert.True(t, auth.Retryable(err))
	assert.True(t, c.Cache().Load().SignedIn())
}
