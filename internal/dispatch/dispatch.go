// Package dispatch maps a resolved database target to a client program and
// runs it as an ephemeral, named session that is always torn down.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/tagconnect/internal/auth"
	"github.com/yairfalse/tagconnect/pkg/resource"
)

// removeTimeout bounds the teardown of a session after the caller's context
// may already be cancelled.
const removeTimeout = 10 * time.Second

// Runtime runs and removes named client sessions.
type Runtime interface {
	// Run blocks until the session exits or ctx is cancelled.
	Run(ctx context.Context, name string, inv Invocation) error
	// Remove tears down the named session. Removing an unknown session is
	// not an error.
	Remove(ctx context.Context, name string) error
}

// Request is everything needed to open one database session.
type Request struct {
	Engine      string
	Target      resource.Target
	Credentials auth.Credentials
	SSL         bool
}

// Dispatcher launches client sessions on a Runtime.
type Dispatcher struct {
	runtime Runtime
	prefix  string
	signals []os.Signal

	newName func(prefix string) string
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSessionPrefix overrides DefaultSessionPrefix.
func WithSessionPrefix(prefix string) Option {
	return func(d *Dispatcher) { d.prefix = prefix }
}

// WithSignals overrides the signals that interrupt a session.
func WithSignals(signals ...os.Signal) Option {
	return func(d *Dispatcher) { d.signals = signals }
}

// NewDispatcher creates a dispatcher on runtime.
func NewDispatcher(runtime Runtime, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		runtime: runtime,
		prefix:  DefaultSessionPrefix,
		signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
		newName: newSessionName,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Invocation builds the client invocation for req without running it.
func (d *Dispatcher) Invocation(req Request) (Invocation, error) {
	engine, err := ParseEngine(req.Engine)
	if err != nil {
		return Invocation{}, err
	}

	return Build(engine, Params{
		Host:     req.Target.Host,
		Port:     req.Target.Port,
		Database: req.Target.DatabaseName,
		Username: req.Credentials.Username,
		IAM:      req.Credentials.Method == auth.MethodIAM,
	}, req.Credentials.Secret, req.SSL)
}

// Connect runs the client session for req and blocks until it ends. The
// session is removed on every exit path: normal exit, runtime failure,
// cancellation of ctx and SIGINT/SIGTERM.
func (d *Dispatcher) Connect(ctx context.Context, req Request) error {
	inv, err := d.Invocation(req)
	if err != nil {
		return err
	}

	name := d.newName(d.prefix)
	logger := log.With().Str("session", name).Str("image", inv.Image).Logger()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			rctx, cancel := context.WithTimeout(context.Background(), removeTimeout)
			defer cancel()
			if err := d.runtime.Remove(rctx, name); err != nil {
				logger.Warn().Err(err).Msg("failed to remove session")
				return
			}
			logger.Debug().Msg("session removed")
		})
	}
	defer cleanup()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g run.Group
	g.Add(func() error {
		logger.Info().Msg("starting session")
		return d.runtime.Run(sessionCtx, name, inv)
	}, func(error) {
		cancel()
		cleanup()
	})
	g.Add(run.SignalHandler(sessionCtx, d.signals...))

	err = g.Run()

	if sig, ok := InterruptSignal(err); ok {
		logger.Info().Str("signal", sig.String()).Msg("session interrupted")
		return fmt.Errorf("session interrupted: %w", err)
	}
	return err
}

// InterruptSignal reports the signal that ended a session, if any.
func InterruptSignal(err error) (os.Signal, bool) {
	var ptr *run.SignalError
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Signal, true
	}
	var val run.SignalError
	if errors.As(err, &val) {
		return val.Signal, true
	}
	return nil, false
}
