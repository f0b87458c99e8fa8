package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"idkeeper/cli/internal/eventbus"
	apperrors "idkeeper/cli/internal/errors"
	"idkeeper/cli/internal/reachability"
)

// memStore is an in-memory CredentialStore with injectable failures.
type memStore struct {
	mu      sync.Mutex
	sess    *Session
	saves   int
	clears  int
	saveErr error
	loadErr error
	clrErr  error
}

func (m *memStore) Save(s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.sess = &s
	return nil
}

func (m *memStore) Load() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	if m.sess == nil {
		return nil, nil
	}
	s := *m.sess
	return &s, nil
}

func (m *memStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	if m.clrErr != nil {
		return m.clrErr
	}
	m.sess = nil
	return nil
}

func (m *memStore) stored() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return nil
	}
	s := *m.sess
	return &s
}

func (m *memStore) setSaveErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

type result struct {
	info AccountInformation
	err  error
}

// call is a provider request held until the test answers it.
type call struct {
	op    string
	token string
	reply chan result
}

func (c *call) ok(info AccountInformation) { c.reply <- result{info: info} }
func (c *call) fail(err error)             { c.reply <- result{err: err} }

// fakeService hands every Validate and FetchAccountInformation call to the
// test through calls. Revocations are only recorded.
type fakeService struct {
	calls chan *call

	mu      sync.Mutex
	revoked []string
}

func newFakeService() *fakeService {
	return &fakeService{calls: make(chan *call, 16)}
}

func (f *fakeService) Validate(ctx context.Context, token string) (AccountInformation, error) {
	return f.call(ctx, "validate", token)
}

func (f *fakeService) FetchAccountInformation(ctx context.Context, token string) (AccountInformation, error) {
	return f.call(ctx, "fetch", token)
}

func (f *fakeService) Revoke(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, token)
	return nil
}

func (f *fakeService) revokedTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.revoked...)
}

func (f *fakeService) call(ctx context.Context, op, token string) (AccountInformation, error) {
	c := &call{op: op, token: token, reply: make(chan result, 1)}
	select {
	case f.calls <- c:
	case <-ctx.Done():
		return AccountInformation{}, ctx.Err()
	}
	select {
	case r := <-c.reply:
		return r.info, r.err
	case <-ctx.Done():
		return AccountInformation{}, ctx.Err()
	}
}

func (f *fakeService) next(t *testing.T, op string) *call {
	t.Helper()
	select {
	case c := <-f.calls:
		require.Equal(t, op, c.op, "unexpected provider call")
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("no %s call issued", op)
	}
	return nil
}

func (f *fakeService) expectIdle(t *testing.T) {
	t.Helper()
	select {
	case c := <-f.calls:
		t.Fatalf("unexpected %s call for token %q", c.op, c.token)
	case <-time.After(50 * time.Millisecond):
	}
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type harness struct {
	ctrl   *Controller
	store  *memStore
	svc    *fakeService
	net    *reachability.Manual
	clock  *fakeClock
	events *eventbus.Subscription[Event]
}

type harnessOption func(*Options, *memStore)

func withStored(s Session) harnessOption {
	return func(_ *Options, m *memStore) { m.sess = &s }
}

func withStrict(timeout time.Duration) harnessOption {
	return func(o *Options, _ *memStore) {
		o.StrictLogin = true
		o.LoginTimeout = timeout
	}
}

func withThreshold(d time.Duration) harnessOption {
	return func(o *Options, _ *memStore) { o.StalenessThreshold = d }
}

func withLoadErr(err error) harnessOption {
	return func(_ *Options, m *memStore) { m.loadErr = err }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		store: &memStore{},
		svc:   newFakeService(),
		net:   reachability.NewManual(false),
		clock: &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)},
	}
	o := Options{
		Store:          h.store,
		Service:        h.svc,
		Logger:         zerolog.Nop(),
		Now:            h.clock.Now,
		RequestTimeout: 5 * time.Second,
	}
	for _, fn := range opts {
		fn(&o, h.store)
	}

	ctrl, err := NewController(o)
	require.NoError(t, err)
	h.ctrl = ctrl
	h.events = ctrl.Subscribe()
	t.Cleanup(ctrl.Close)
	return h
}

// start begins reachability watching; the monitor starts unreachable.
func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.ctrl.Start(context.Background(), h.net))
}

// reconnect simulates losing and regaining the network.
func (h *harness) reconnect() {
	h.net.Set(false)
	time.Sleep(20 * time.Millisecond)
	h.net.Set(true)
}

func (h *harness) event(t *testing.T) Event {
	t.Helper()
	select {
	case e, ok := <-h.events.C():
		require.True(t, ok, "event stream closed")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("no event published")
	}
	return Event{}
}

func (h *harness) noEvent(t *testing.T) {
	t.Helper()
	select {
	case e := <-h.events.C():
		t.Fatalf("unexpected event %s (%s)", e.Kind, e.Reason())
	case <-time.After(50 * time.Millisecond):
	}
}

func (h *harness) waitStatus(t *testing.T, want Status) State {
	t.Helper()
	var st State
	require.Eventually(t, func() bool {
		st = h.ctrl.State()
		return st.Status == want
	}, 2*time.Second, 5*time.Millisecond, "status never became %s", want)
	return st
}

func mustSession(t *testing.T, id, token string) Session {
	t.Helper()
	s, err := New(id, token, time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), nil)
	require.NoError(t, err)
	return s
}

var (
	errUnauthorized = apperrors.New(apperrors.Unauthorized, "401 token revoked")
	errNetwork      = apperrors.Wrap(apperrors.Network, "GET /validate", errors.New("connection reset"))
	errMalformed    = apperrors.New(apperrors.Malformed, "decode account")
)

func info(name string) AccountInformation {
	return AccountInformation{UID: "uid-" + name, DisplayName: name, Email: name + "@example.org"}
}
