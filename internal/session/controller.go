// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"idkeeper/cli/internal/eventbus"
	apperrors "idkeeper/cli/internal/errors"
	"idkeeper/cli/internal/logging"
	"idkeeper/cli/internal/reachability"
)

var (
	// ErrLoginInProgress rejects a second authorization result while one is being validated.
	ErrLoginInProgress = errors.New("session: a login is already in progress")
	// ErrNotLoggedIn is returned by operations that need a session.
	ErrNotLoggedIn = errors.New("session: not logged in")
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("session: controller already started")
)

// CredentialStore persists the session between runs.
type CredentialStore interface {
	Save(Session) error
	// Load returns nil, nil when nothing is stored.
	Load() (*Session, error)
	Clear() error
}

// AccountService talks to the identity provider. Errors carry an
// internal/errors Kind: Unauthorized is destructive, anything else is
// treated as a network problem.
type AccountService interface {
	Validate(ctx context.Context, token string) (AccountInformation, error)
	FetchAccountInformation(ctx context.Context, token string) (AccountInformation, error)
	Revoke(ctx context.Context, token string) error
}

// Reachability is the connectivity source consumed by Start.
type Reachability interface {
	Watch(ctx context.Context) <-chan reachability.Transition
}

// Recorder observes controller activity, typically for metrics.
type Recorder interface {
	Transition(from, to Status)
	Event(kind EventKind)
	Outcome(op string, err error)
}

type nopRecorder struct{}

func (nopRecorder) Transition(Status, Status) {}
func (nopRecorder) Event(EventKind)           {}
func (nopRecorder) Outcome(string, error)     {}

// Options configures NewController. Store and Service are required.
type Options struct {
	Store   CredentialStore
	Service AccountService
	// Bus receives events. A private bus is created when nil and closed by Close.
	Bus     *eventbus.Bus[Event]
	Logger  zerolog.Logger
	Metrics Recorder
	Now     func() time.Time

	// StalenessThreshold is the age after which a validated session is
	// checked again when connectivity returns. Zero always checks.
	StalenessThreshold time.Duration
	// StrictLogin keeps a login pending while the provider is unreachable
	// instead of accepting the session unvalidated.
	StrictLogin bool
	// LoginTimeout bounds a strict login or renewal. Zero waits forever.
	LoginTimeout time.Duration
	// RequestTimeout bounds every provider call. Defaults to 10s.
	RequestTimeout time.Duration
}

type op int

const (
	opLogin op = iota + 1
	opRenew
	opValidate
	opRefresh
)

func (o op) String() string {
	switch o {
	case opLogin:
		return "login"
	case opRenew:
		return "renew"
	case opValidate:
		return "validate"
	case opRefresh:
		return "refresh"
	}
	return "unknown"
}

// completion is the result of a provider call re-entering the controller.
type completion struct {
	epoch uint64
	op    op
	token string
	info  AccountInformation
	err   error
}

type reach int

const (
	reachUnknown reach = iota
	reachYes
	reachNo
)

// Controller drives the session state machine. All methods are safe for
// concurrent use; every trigger and provider completion is applied under one
// mutex, in arrival order.
type Controller struct {
	store          CredentialStore
	service        AccountService
	bus            *eventbus.Bus[Event]
	ownsBus        bool
	log            zerolog.Logger
	metrics        Recorder
	now            func() time.Time
	threshold      time.Duration
	strict         bool
	loginTimeout   time.Duration
	requestTimeout time.Duration

	mu    sync.Mutex
	state State

	// candidate is the session under validation while LoggingIn or Renewing.
	candidate       *Session
	epoch           uint64
	seq             uint64
	needsValidation bool
	awaitingNetwork bool
	validatedAt     time.Time
	reach           reach
	timer           *time.Timer
	timerGen        uint64
	loadErr         error
	closed          bool
	stop            context.CancelFunc
	loopDone        chan struct{}

	inflight sync.WaitGroup
}

// NewController restores any stored session and returns a controller that
// is ready for use. A restored session starts LoggedIn and degraded; it is
// validated on the first reachable event after Start.
func NewController(opts Options) (*Controller, error) {
	if opts.Store == nil || opts.Service == nil {
		return nil, errors.New("session: store and service are required")
	}
	c := &Controller{
		store:          opts.Store,
		service:        opts.Service,
		bus:            opts.Bus,
		log:            opts.Logger.With().Str("component", "session").Logger(),
		metrics:        opts.Metrics,
		now:            opts.Now,
		threshold:      opts.StalenessThreshold,
		strict:         opts.StrictLogin,
		loginTimeout:   opts.LoginTimeout,
		requestTimeout: opts.RequestTimeout,
	}
	if c.bus == nil {
		c.bus = eventbus.New[Event]()
		c.ownsBus = true
	}
	if c.metrics == nil {
		c.metrics = nopRecorder{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.requestTimeout <= 0 {
		c.requestTimeout = 10 * time.Second
	}

	stored, err := c.store.Load()
	switch {
	case err != nil:
		// The store stays untouched: it may recover on the next run.
		c.loadErr = err
		c.log.Warn().Err(err).Msg("stored session unavailable, starting logged out")
	case stored != nil:
		c.state = State{Status: LoggedIn, Session: stored, Degraded: true}
		c.needsValidation = true
		c.log.Debug().Str("identifier", stored.Identifier).Msg("restored session")
	}
	return c, nil
}

// LoadError returns the error met while restoring the stored session, if any.
func (c *Controller) LoadError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadErr
}

// State returns a snapshot of the live state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state
	if st.Session != nil {
		s := *st.Session
		st.Session = &s
	}
	if st.Info != nil {
		info := *st.Info
		st.Info = &info
	}
	return st
}

// Subscribe returns a subscription to all events published from now on.
func (c *Controller) Subscribe() *eventbus.Subscription[Event] {
	return c.bus.Subscribe()
}

// Start begins consuming connectivity transitions from src. The controller
// is the only consumer of src; the loop ends on Close or when ctx is done.
func (c *Controller) Start(ctx context.Context, src Reachability) error {
	c.mu.Lock()
	if c.loopDone != nil || c.closed {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	c.stop = cancel
	done := make(chan struct{})
	c.loopDone = done
	c.mu.Unlock()

	transitions := src.Watch(ctx)
	go func() {
		defer close(done)
		for t := range transitions {
			c.handleReachability(t)
		}
	}()
	return nil
}

// Close stops the reachability loop and any login timer. Provider calls
// still in flight finish in the background; their results are dropped.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.disarmTimer()
	stop, done := c.stop, c.loopDone
	c.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
	if c.ownsBus {
		c.bus.Close()
	}
}

// Wait blocks until every provider call started so far has returned,
// including fire-and-forget revocations.
func (c *Controller) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitAuthorizationResult hands the outcome of an external login to the
// controller. While logged out it starts a login; while logged in it starts
// a renewal that replaces the current session only once accepted.
func (c *Controller) SubmitAuthorizationResult(rawToken, identifier string) error {
	sess, err := New(identifier, rawToken, c.now(), nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state.Status {
	case LoggingIn, Renewing:
		return ErrLoginInProgress
	case LoggedOut:
		c.epoch++
		c.setStatus(LoggingIn)
		if err := c.store.Save(sess); err != nil {
			c.log.Warn().Err(err).Msg("could not persist new session")
			c.enterLoggedOut()
			c.publish(Event{Kind: SessionLoginFailed, FailureReason: FailureStoreUnavailable})
			return err
		}
		c.candidate = &sess
		c.armTimer()
		c.launch(opLogin, sess.Token)
	default:
		c.epoch++
		c.candidate = &sess
		c.setStatus(Renewing)
		c.armTimer()
		c.launch(opRenew, sess.Token)
	}
	return nil
}

// Logout ends the session. The stored credential is removed and the token is
// revoked in the background. Logging out while logged out does nothing.
func (c *Controller) Logout() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state.Status {
	case LoggedOut:
		return
	case LoggingIn:
		token := c.candidate.Token
		c.epoch++
		c.enterLoggedOut()
		c.clearStore()
		c.revoke(token)
		c.publish(Event{Kind: SessionLoginFailed, FailureReason: FailureCancelled})
	default:
		id := c.state.Session.Identifier
		tokens := []string{c.state.Session.Token}
		if c.candidate != nil {
			tokens = append(tokens, c.candidate.Token)
		}
		c.epoch++
		c.enterLoggedOut()
		c.clearStore()
		for _, t := range tokens {
			c.revoke(t)
		}
		c.publish(Event{Kind: SessionClosed, Identifier: id, CloseReason: CloseUserInitiated})
	}
}

// Invalidate closes the session after a caller saw the provider reject its
// token. A non-empty token only closes the session it belongs to.
func (c *Controller) Invalidate(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Status == LoggedOut {
		return
	}
	if token != "" && !c.holds(token) {
		c.log.Debug().Str("token", logging.Fingerprint(token)).Msg("ignoring invalidation for a token no longer in use")
		return
	}

	var id string
	switch {
	case c.state.Session != nil:
		id = c.state.Session.Identifier
	case c.candidate != nil:
		id = c.candidate.Identifier
	}
	c.epoch++
	c.enterLoggedOut()
	c.clearStore()
	c.publish(Event{Kind: SessionClosed, Identifier: id, CloseReason: CloseRevoked})
}

// Revalidate checks the current session with the provider now. A login
// waiting for the network is retried instead.
func (c *Controller) Revalidate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state.Status {
	case LoggedOut:
		return ErrNotLoggedIn
	case LoggedIn:
		c.startValidation()
	case LoggingIn, Renewing:
		if c.awaitingNetwork {
			c.retryPending()
		}
	}
	return nil
}

// RefreshAccountInformation fetches fresh account information for the
// current session. The result arrives as a SessionInfoRefreshed event.
// While a validation is outstanding nothing new is started, since its
// success publishes fresh information too.
func (c *Controller) RefreshAccountInformation() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state.Status {
	case LoggedOut:
		return ErrNotLoggedIn
	case LoggingIn, Renewing:
		return ErrLoginInProgress
	case LoggedIn:
		c.launch(opRefresh, c.state.Session.Token)
	case Validating:
	}
	return nil
}

func (c *Controller) handleReachability(t reachability.Transition) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.reach
	if t != reachability.BecameReachable {
		c.reach = reachNo
		return
	}
	c.reach = reachYes
	if prev == reachYes || c.closed {
		return
	}

	switch c.state.Status {
	case LoggedIn:
		if c.needsValidation || c.state.Degraded || c.stale() {
			c.startValidation()
		}
	case LoggingIn, Renewing:
		if c.awaitingNetwork {
			c.retryPending()
		}
	}
}

func (c *Controller) complete(cm completion) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || cm.epoch != c.epoch {
		c.log.Debug().Stringer("op", cm.op).Msg("dropping superseded provider result")
		return
	}
	c.metrics.Outcome(cm.op.String(), cm.err)

	switch cm.op {
	case opLogin:
		if c.state.Status == LoggingIn {
			c.finishLogin(cm)
		}
	case opRenew:
		if c.state.Status == Renewing {
			c.finishRenew(cm)
		}
	case opValidate:
		if c.state.Status == Validating {
			c.finishValidate(cm)
		}
	case opRefresh:
		if c.state.Status == LoggedIn && c.state.Session.Token == cm.token {
			c.finishRefresh(cm)
		}
	}
}

func (c *Controller) finishLogin(cm completion) {
	sess := *c.candidate
	switch {
	case cm.err == nil:
		info := cm.info
		c.accept(sess, &info, false)
		c.publish(Event{Kind: SessionOpened, Identifier: sess.Identifier, Info: &info})
	case apperrors.Is(cm.err, apperrors.Unauthorized):
		c.enterLoggedOut()
		c.clearStore()
		c.publish(Event{Kind: SessionLoginFailed, FailureReason: FailureUnauthorized})
	case c.strict:
		c.log.Info().Err(cm.err).Msg("provider unreachable, login waits for the network")
		c.awaitingNetwork = true
	default:
		c.log.Info().Err(cm.err).Msg("provider unreachable, accepting session unvalidated")
		c.accept(sess, nil, true)
		c.publish(Event{Kind: SessionOpened, Identifier: sess.Identifier})
	}
}

func (c *Controller) finishRenew(cm completion) {
	cand := *c.candidate
	prevID := c.state.Session.Identifier
	switch {
	case cm.err == nil:
		if !c.persist(cand, prevID) {
			return
		}
		info := cm.info
		c.accept(cand, &info, false)
		if cand.Identifier != prevID {
			c.publish(Event{Kind: SessionOpened, Identifier: cand.Identifier, Info: &info})
		} else {
			c.publish(Event{Kind: SessionInfoRefreshed, Identifier: cand.Identifier, Info: &info})
		}
	case apperrors.Is(cm.err, apperrors.Unauthorized):
		c.restorePrevious()
		c.publish(Event{Kind: SessionLoginFailed, FailureReason: FailureUnauthorized})
	case c.strict:
		c.log.Info().Err(cm.err).Msg("provider unreachable, renewal waits for the network")
		c.awaitingNetwork = true
	default:
		if !c.persist(cand, prevID) {
			return
		}
		c.accept(cand, nil, true)
		if cand.Identifier != prevID {
			c.publish(Event{Kind: SessionOpened, Identifier: cand.Identifier})
		}
	}
}

func (c *Controller) finishValidate(cm completion) {
	switch {
	case cm.err == nil:
		info := cm.info
		c.accept(*c.state.Session, &info, false)
		c.publish(Event{Kind: SessionInfoRefreshed, Identifier: c.state.Session.Identifier, Info: &info})
	case apperrors.Is(cm.err, apperrors.Unauthorized):
		c.closeRevoked()
	default:
		c.log.Debug().Err(cm.err).Msg("validation deferred until the network returns")
		c.needsValidation = true
		c.setStatus(LoggedIn)
	}
}

func (c *Controller) finishRefresh(cm completion) {
	switch {
	case cm.err == nil:
		// Display attributes only; a pending validation stays pending.
		info := cm.info
		c.state.Info = &info
		c.publish(Event{Kind: SessionInfoRefreshed, Identifier: c.state.Session.Identifier, Info: &info})
	case apperrors.Is(cm.err, apperrors.Unauthorized):
		c.closeRevoked()
	default:
		c.log.Debug().Err(cm.err).Msg("account refresh failed, keeping cached information")
	}
}

func (c *Controller) onLoginTimeout(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.timerGen {
		return
	}
	switch c.state.Status {
	case LoggingIn:
		c.epoch++
		c.enterLoggedOut()
		c.clearStore()
	case Renewing:
		c.epoch++
		c.restorePrevious()
	default:
		return
	}
	c.log.Warn().Dur("timeout", c.loginTimeout).Msg("login timed out waiting for the provider")
	c.publish(Event{Kind: SessionLoginFailed, FailureReason: FailureTimeout})
}

// The helpers below expect c.mu to be held.

func (c *Controller) setStatus(to Status) {
	from := c.state.Status
	c.state.Status = to
	if from != to {
		c.log.Debug().Stringer("from", from).Stringer("to", to).Msg("session transition")
		c.metrics.Transition(from, to)
	}
}

func (c *Controller) publish(e Event) {
	c.seq++
	e.Seq = c.seq
	e.At = c.now()
	c.metrics.Event(e.Kind)
	c.bus.Publish(e)
}

func (c *Controller) accept(sess Session, info *AccountInformation, degraded bool) {
	c.disarmTimer()
	c.candidate = nil
	c.awaitingNetwork = false
	c.state.Session = &sess
	c.state.Info = info
	c.state.Degraded = degraded
	c.needsValidation = degraded
	if !degraded {
		c.validatedAt = c.now()
	}
	c.setStatus(LoggedIn)
}

func (c *Controller) restorePrevious() {
	c.disarmTimer()
	c.candidate = nil
	c.awaitingNetwork = false
	c.setStatus(LoggedIn)
}

func (c *Controller) enterLoggedOut() {
	c.disarmTimer()
	c.candidate = nil
	c.awaitingNetwork = false
	c.needsValidation = false
	c.validatedAt = time.Time{}
	c.state.Session = nil
	c.state.Info = nil
	c.state.Degraded = false
	c.setStatus(LoggedOut)
}

func (c *Controller) closeRevoked() {
	id := c.state.Session.Identifier
	c.epoch++
	c.enterLoggedOut()
	c.clearStore()
	c.publish(Event{Kind: SessionClosed, Identifier: id, CloseReason: CloseRevoked})
}

// persist saves a renewed session. On failure the controller logs out
// locally; whatever the store still holds is left in place.
func (c *Controller) persist(sess Session, prevID string) bool {
	if err := c.store.Save(sess); err != nil {
		c.log.Error().Err(err).Msg("could not persist renewed session")
		c.epoch++
		c.enterLoggedOut()
		c.publish(Event{Kind: SessionClosed, Identifier: prevID, CloseReason: CloseStoreUnavailable})
		return false
	}
	return true
}

func (c *Controller) clearStore() {
	if err := c.store.Clear(); err != nil {
		c.log.Warn().Err(err).Msg("could not remove stored session")
	}
}

func (c *Controller) holds(token string) bool {
	if c.state.Session != nil && c.state.Session.Token == token {
		return true
	}
	return c.candidate != nil && c.candidate.Token == token
}

func (c *Controller) stale() bool {
	now := c.now()
	if c.threshold <= 0 || c.validatedAt.IsZero() {
		return true
	}
	if c.state.Session != nil && c.state.Session.Expired(now) {
		return true
	}
	return now.Sub(c.validatedAt) >= c.threshold
}

func (c *Controller) startValidation() {
	c.epoch++
	c.setStatus(Validating)
	c.launch(opValidate, c.state.Session.Token)
}

func (c *Controller) retryPending() {
	c.epoch++
	c.awaitingNetwork = false
	o := opLogin
	if c.state.Status == Renewing {
		o = opRenew
	}
	c.launch(o, c.candidate.Token)
}

func (c *Controller) armTimer() {
	c.disarmTimer()
	if !c.strict || c.loginTimeout <= 0 {
		return
	}
	gen := c.timerGen
	c.timer = time.AfterFunc(c.loginTimeout, func() { c.onLoginTimeout(gen) })
}

func (c *Controller) disarmTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerGen++
}

// launch runs a provider call on its own goroutine, tagged with the current epoch.
func (c *Controller) launch(o op, token string) {
	epoch := c.epoch
	c.log.Debug().Stringer("op", o).Str("token", logging.Fingerprint(token)).Uint64("epoch", epoch).Msg("provider call")

	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.requestTimeout)
		defer cancel()

		var (
			info AccountInformation
			err  error
		)
		if o == opRefresh {
			info, err = c.service.FetchAccountInformation(ctx, token)
		} else {
			info, err = c.service.Validate(ctx, token)
		}
		c.complete(completion{epoch: epoch, op: o, token: token, info: info, err: err})
	}()
}

// revoke tells the provider to drop token without waiting for the answer.
func (c *Controller) revoke(token string) {
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.requestTimeout)
		defer cancel()
		if err := c.service.Revoke(ctx, token); err != nil {
			c.log.Debug().Err(err).Msg("token revocation failed")
			return
		}
		c.log.Debug().Str("token", logging.Fingerprint(token)).Msg("token revoked")
	}()
}
