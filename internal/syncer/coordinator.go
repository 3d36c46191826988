// Package syncer keeps the local task list and the server in step. Every
// user change is written locally first together with a queued mutation; sync
// cycles pull the server list, merge it, and replay the queue.
package syncer

import (
	"context"
	"encoding/base64"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"task-sync/internal/encryption"
	"task-sync/internal/errors"
	"task-sync/internal/logging"
	"task-sync/internal/ordering"
	"task-sync/internal/queue"
	"task-sync/internal/remote"
	"task-sync/internal/store"
	"task-sync/internal/validation"
)

// LastSyncMetadataKey holds the RFC 3339 time of the last completed cycle.
const LastSyncMetadataKey = "last-sync-timestamp"

const tracerName = "task-sync/internal/syncer"

// Options configures a Coordinator. The zero value is usable.
type Options struct {
	Logger log.FieldLogger
	Clock  func() time.Time
	// RequestTimeout bounds each remote call. Zero leaves it to the API
	// implementation.
	RequestTimeout time.Duration
	// Backoff paces retries after retryable failures. Defaults to an
	// exponential backoff starting at one second.
	Backoff        backoff.BackOff
	TracerProvider trace.TracerProvider
	// OnEvent is called synchronously from the goroutine that caused the
	// event. It must not call back into the Coordinator's sync methods.
	OnEvent    func(Event)
	Iterations int
	Limits     validation.Limits
	// AutoSync starts a background cycle after every local change.
	AutoSync bool
}

// Coordinator owns the sync state machine for one local store.
type Coordinator struct {
	store      *store.Store
	queue      *queue.Queue
	remote     remote.API
	reconciler *ordering.Reconciler
	validator  *validation.TaskValidator

	now            func() time.Time
	log            *log.Entry
	tracer         trace.Tracer
	onEvent        func(Event)
	iterations     int
	requestTimeout time.Duration
	autoSync       bool

	keyMu sync.RWMutex
	codec *encryption.Codec

	// writeMu serializes local read-modify-write batches.
	writeMu sync.Mutex

	mu           sync.Mutex
	state        State
	online       bool
	authRequired bool
	running      bool
	rerun        bool
	closed       bool
	backoff      backoff.BackOff
	retry        *time.Timer

	bgCtx  context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New returns a coordinator that starts Offline and assumes connectivity
// until SetOnline says otherwise.
func New(s *store.Store, q *queue.Queue, api remote.API, opts Options) *Coordinator {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	b := opts.Backoff
	if b == nil {
		exp := backoff.NewExponentialBackOff()
		exp.InitialInterval = time.Second
		exp.MaxInterval = 5 * time.Minute
		b = exp
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:          s,
		queue:          q,
		remote:         api,
		reconciler:     ordering.NewReconciler(s, now, opts.Logger),
		validator:      validation.NewTaskValidatorWithLimits(opts.Limits),
		now:            now,
		log:            logging.Component(opts.Logger, "syncer"),
		tracer:         tp.Tracer(tracerName),
		onEvent:        opts.OnEvent,
		iterations:     opts.Iterations,
		requestTimeout: opts.RequestTimeout,
		autoSync:       opts.AutoSync,
		state:          StateOffline,
		online:         true,
		backoff:        b,
		bgCtx:          bgCtx,
		cancel:         cancel,
	}
}

// Unlock derives the key from password and the account salt. The salt is
// created and stored on first use.
func (c *Coordinator) Unlock(ctx context.Context, password string) error {
	if password == "" {
		return errors.NewInvalidInputError("password", nil, "password is required")
	}

	salt, ok, err := c.store.GetMeta(ctx, encryption.SaltMetadataKey)
	if err != nil {
		return err
	}
	if !ok {
		if salt, err = encryption.NewSalt(); err != nil {
			return err
		}
		if err := c.store.SetMeta(ctx, encryption.SaltMetadataKey, salt); err != nil {
			return err
		}
		c.log.Info("created encryption salt")
	}

	key, err := encryption.DeriveWithIterations(password, salt, c.iterations)
	if err != nil {
		return err
	}
	codec, err := encryption.NewCodec(key)
	if err != nil {
		return err
	}

	c.keyMu.Lock()
	c.codec = codec
	c.keyMu.Unlock()
	c.log.Debug("unlocked")
	return nil
}

// ImportSalt stores an account salt issued elsewhere so that every device
// of the account derives the same key. A different stored salt is an error:
// changing it would orphan every encrypted task.
func (c *Coordinator) ImportSalt(ctx context.Context, salt string) error {
	if raw, err := base64.StdEncoding.DecodeString(salt); err != nil || len(raw) == 0 {
		return errors.NewKeyDerivationError("salt is not valid base64", err)
	}
	current, ok, err := c.store.GetMeta(ctx, encryption.SaltMetadataKey)
	if err != nil {
		return err
	}
	if ok {
		if current != salt {
			return errors.NewKeyDerivationError("a different salt is already stored", nil)
		}
		return nil
	}
	return c.store.SetMeta(ctx, encryption.SaltMetadataKey, salt)
}

// Salt returns the stored account salt, if any.
func (c *Coordinator) Salt(ctx context.Context) (string, bool, error) {
	return c.store.GetMeta(ctx, encryption.SaltMetadataKey)
}

// Lock forgets the key. Local changes that need it fail until Unlock.
func (c *Coordinator) Lock() {
	c.keyMu.Lock()
	c.codec = nil
	c.keyMu.Unlock()
}

// Unlocked reports whether a key is held.
func (c *Coordinator) Unlocked() bool {
	return c.currentCodec() != nil
}

func (c *Coordinator) currentCodec() *encryption.Codec {
	c.keyMu.RLock()
	defer c.keyMu.RUnlock()
	return c.codec
}

func (c *Coordinator) requireCodec(operation string) (*encryption.Codec, error) {
	codec := c.currentCodec()
	if codec == nil {
		return nil, errors.NewLockedError(operation)
	}
	return codec, nil
}

// State returns the current sync state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AuthRequired reports whether syncing is paused until ResumeAuth.
func (c *Coordinator) AuthRequired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authRequired
}

// Status reports the sync state together with queue and store details.
func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	pending, err := c.queue.Len(ctx)
	if err != nil {
		return Status{}, err
	}
	st := Status{
		Unlocked: c.Unlocked(),
		Pending:  pending,
		Backend:  c.store.Backend(),
		Degraded: c.store.Degraded(),
	}
	if raw, ok, err := c.store.GetMeta(ctx, LastSyncMetadataKey); err != nil {
		return Status{}, err
	} else if ok {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			st.LastSync = ts
		}
	}

	c.mu.Lock()
	st.State = c.state
	st.Online = c.online
	st.AuthRequired = c.authRequired
	c.mu.Unlock()
	return st, nil
}

// SetOnline records the connectivity signal. Going online starts a
// background cycle; going offline cancels any pending retry.
func (c *Coordinator) SetOnline(online bool) {
	c.mu.Lock()
	was := c.online
	c.online = online
	if !online && c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	c.mu.Unlock()

	if !online {
		c.setState(StateOffline)
		return
	}
	if !was {
		c.Trigger()
	}
}

// ResumeAuth clears the auth pause, typically after the token source has new
// credentials, and runs a cycle.
func (c *Coordinator) ResumeAuth(ctx context.Context) error {
	c.mu.Lock()
	c.authRequired = false
	c.mu.Unlock()
	c.log.Info("resuming sync after re-authentication")
	return c.Sync(ctx)
}

// Sync runs one cycle and returns its error. If a cycle is already running
// it returns nil at once and the running cycle makes one more pass.
func (c *Coordinator) Sync(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return errors.NewInvalidInputError("coordinator", nil, "coordinator is closed")
	case !c.online:
		c.mu.Unlock()
		return errors.NewRemoteUnavailableError("sync", 0, nil)
	case c.authRequired:
		c.mu.Unlock()
		return errors.NewAuthError("sync", 0)
	case c.running:
		c.rerun = true
		c.mu.Unlock()
		return nil
	}
	c.running = true
	c.mu.Unlock()

	for {
		err := c.cycle(ctx)

		c.mu.Lock()
		again := c.rerun && err == nil && c.online && !c.authRequired && !c.closed
		c.rerun = false
		if !again {
			c.running = false
		}
		c.mu.Unlock()

		if !again {
			return err
		}
	}
}

// Trigger requests a background cycle without waiting for it.
func (c *Coordinator) Trigger() {
	c.mu.Lock()
	if c.closed || !c.online || c.authRequired {
		c.mu.Unlock()
		return
	}
	if c.running {
		c.rerun = true
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		if err := c.Sync(c.bgCtx); err != nil {
			c.log.WithError(err).Debug("background sync failed")
		}
	}()
}

// Close stops the retry timer, cancels background cycles and waits for them.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	c.closed = true
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	return nil
}

func (c *Coordinator) changed() {
	if c.autoSync {
		c.Trigger()
	}
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()

	c.log.WithField("state", s).Debug("sync state changed")
	c.emit(Event{Type: EventStateChanged, State: s})
}

func (c *Coordinator) emit(ev Event) {
	if c.onEvent != nil {
		c.onEvent(ev)
	}
}

func (c *Coordinator) scheduleRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || !c.online || c.retry != nil {
		return
	}
	wait := c.backoff.NextBackOff()
	if wait == backoff.Stop {
		c.log.Warn("giving up automatic retries until the next change")
		return
	}
	c.log.WithField("wait", wait).Info("sync will be retried")
	c.retry = time.AfterFunc(wait, func() {
		c.mu.Lock()
		c.retry = nil
		c.mu.Unlock()
		c.Trigger()
	})
}

func (c *Coordinator) resetBackoff() {
	c.mu.Lock()
	c.backoff.Reset()
	c.mu.Unlock()
}
