package push

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/looplab/fsm"
	"github.com/rs/zerolog"

	"github.com/mobilebackend/cloudbackend.go/pkg/constants"
)

var (
	ErrRegistrationFailed = errors.New("push registration failed")
	ErrInvalidSenderID    = errors.New("push sender id must be numeric")
	ErrRegistrationLost   = errors.New("push connection lost")
)

// Registration states.
const (
	StateUnregistered = "unregistered"
	StateRegistering  = "registering"
	StateRegistered   = "registered"
	StateFailed       = "failed"
)

const (
	eventRegister = "register"
	eventRetry    = "retry"
	eventSucceed  = "succeed"
	eventFail     = "fail"
	eventLose     = "lose"
)

// Provider obtains a registration id for this device from a push service.
type Provider interface {
	Register(ctx context.Context, senderID string) (string, error)
}

// Registrar tracks the device registration with the push service. The
// registration runs once in the background; callers that need the id wait
// for it with RegistrationID.
//
// When the provider reports a lost connection through Disconnected, the
// registration is dropped and, with a positive ReconnectInterval, attempted
// again in the background until it succeeds or the Registrar is closed.
type Registrar struct {
	SenderID string
	// Timeout bounds RegistrationID. Zero means wait for ctx only.
	Timeout time.Duration
	// ReconnectInterval is the first delay of the reconnect backoff. Zero
	// disables reconnecting; the next RegistrationID registers again.
	ReconnectInterval time.Duration

	provider Provider
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	machine *fsm.FSM
	regID   string
	err     error
	// settled is closed when the current registration attempt finishes.
	settled chan struct{}
	// lostWhileRegistering makes the attempt in flight fail.
	lostWhileRegistering bool
	reconnecting         bool
	onReregistered       func(regID string)
}

func NewRegistrar(senderID string, provider Provider, logger zerolog.Logger) *Registrar {
	r := &Registrar{
		SenderID: senderID,
		Timeout:  constants.DefaultRegistrationTimeout,
		provider: provider,
		logger:   logger,
		settled:  make(chan struct{}),

		ReconnectInterval: constants.DefaultReconnectInterval,
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	r.machine = fsm.NewFSM(
		StateUnregistered,
		fsm.Events{
			{Name: eventRegister, Src: []string{StateUnregistered}, Dst: StateRegistering},
			{Name: eventRetry, Src: []string{StateFailed}, Dst: StateRegistering},
			{Name: eventSucceed, Src: []string{StateRegistering}, Dst: StateRegistered},
			{Name: eventFail, Src: []string{StateRegistering}, Dst: StateFailed},
			{Name: eventLose, Src: []string{StateRegistered}, Dst: StateUnregistered},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				r.logger.Debug().Str("from", e.Src).Str("to", e.Dst).Msg("push_registration_state")
			},
		},
	)
	return r
}

// State returns the current registration state.
func (r *Registrar) State() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.machine.Current()
}

// RegisterIfNeeded starts the registration unless one is running, done, or
// has failed. A failed registration is only attempted again by Retry.
func (r *Registrar) RegisterIfNeeded(ctx context.Context) error {
	return r.start(ctx, eventRegister)
}

// Retry starts a new attempt after a failure.
func (r *Registrar) Retry(ctx context.Context) error {
	return r.start(ctx, eventRetry)
}

func (r *Registrar) start(ctx context.Context, event string) error {
	if _, err := strconv.ParseUint(r.SenderID, 10, 64); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidSenderID, r.SenderID)
	}
	if r.provider == nil {
		return fmt.Errorf("%w: no provider", ErrRegistrationFailed)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.machine.Can(event) {
		return nil
	}
	if err := r.machine.Event(ctx, event); err != nil {
		return err
	}
	if event == eventRetry {
		r.err = nil
		r.settled = make(chan struct{})
	}

	settled := r.settled
	go r.register(context.WithoutCancel(ctx), settled)
	return nil
}

func (r *Registrar) register(ctx context.Context, settled chan struct{}) {
	id, err := r.provider.Register(ctx, r.SenderID)

	r.mu.Lock()
	defer r.mu.Unlock()
	defer close(settled)

	if err == nil && id == "" {
		err = errors.New("provider returned an empty registration id")
	}
	if err == nil && r.lostWhileRegistering {
		err = ErrRegistrationLost
	}
	r.lostWhileRegistering = false
	if err != nil {
		r.err = err
		r.logger.Error().Err(err).Str("senderId", r.SenderID).Msg("push_registration_failed")
		_ = r.machine.Event(ctx, eventFail)
		return
	}
	r.regID = id
	r.logger.Info().Str("regId", id).Msg("push_registered")
	_ = r.machine.Event(ctx, eventSucceed)
}

// RegistrationID returns the registration id, starting the registration if
// needed and waiting for it at most Timeout.
func (r *Registrar) RegistrationID(ctx context.Context) (string, error) {
	if err := r.RegisterIfNeeded(ctx); err != nil {
		return "", err
	}

	r.mu.Lock()
	settled := r.settled
	r.mu.Unlock()

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	select {
	case <-settled:
	case <-ctx.Done():
		return "", ctx.Err()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.machine.Current() != StateRegistered {
		return "", fmt.Errorf("%w: %w", ErrRegistrationFailed, r.err)
	}
	return r.regID, nil
}

// SetReregisteredHandler sets fn to run after a lost registration has been
// replaced by the reconnect loop. Continuous queries must be executed again
// then, since the backend knows them under the old id.
func (r *Registrar) SetReregisteredHandler(fn func(regID string)) *Registrar {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onReregistered = fn
	return r
}

// Disconnected drops the registration after the provider lost its
// connection. It is safe to call from the provider's read goroutine.
func (r *Registrar) Disconnected(cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.machine.Current() {
	case StateRegistering:
		r.lostWhileRegistering = true
	case StateRegistered:
		_ = r.machine.Event(r.ctx, eventLose)
		r.regID = ""
		r.err = cause
		r.settled = make(chan struct{})
	default:
		return
	}
	r.logger.Warn().Err(cause).Str("senderId", r.SenderID).Msg("push_registration_lost")

	if r.ReconnectInterval > 0 && !r.reconnecting && r.ctx.Err() == nil {
		r.reconnecting = true
		go r.reconnect()
	}
}

// reconnect registers again with exponential backoff.
func (r *Registrar) reconnect() {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.ReconnectInterval
	b.MaxElapsedTime = 0

	attempt := func() error {
		if r.State() == StateFailed {
			if err := r.Retry(r.ctx); err != nil {
				return backoff.Permanent(err)
			}
		}
		_, err := r.RegistrationID(r.ctx)
		if errors.Is(err, ErrInvalidSenderID) {
			return backoff.Permanent(err)
		}
		return err
	}
	err := backoff.RetryNotify(attempt, backoff.WithContext(b, r.ctx), func(err error, wait time.Duration) {
		r.logger.Debug().Err(err).Dur("wait", wait).Msg("push_reconnect_retry")
	})

	r.mu.Lock()
	r.reconnecting = false
	regID, fn := r.regID, r.onReregistered
	r.mu.Unlock()

	if err != nil {
		r.logger.Debug().Err(err).Msg("push_reconnect_stopped")
		return
	}
	r.logger.Info().Str("regId", regID).Msg("push_reregistered")
	if fn != nil {
		fn(regID)
	}
}

// Close stops a running reconnect loop. It does not close the provider.
func (r *Registrar) Close() {
	r.cancel()
}
