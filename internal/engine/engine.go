// Package engine wires the preview components together on one event loop.
package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/vidprev/internal/binder"
	"github.com/saltyorg/vidprev/internal/config"
	"github.com/saltyorg/vidprev/internal/credentials"
	"github.com/saltyorg/vidprev/internal/dom"
	"github.com/saltyorg/vidprev/internal/eventloop"
	"github.com/saltyorg/vidprev/internal/jellyfin"
	"github.com/saltyorg/vidprev/internal/overlay"
	"github.com/saltyorg/vidprev/internal/session"
	"github.com/saltyorg/vidprev/internal/source"
	"github.com/saltyorg/vidprev/internal/watch"
)

// ErrNoServer is returned when no server address can be determined.
var ErrNoServer = fmt.Errorf("%w: no jellyfin server address", credentials.ErrConfiguration)

// Options configures New.
type Options struct {
	Host    dom.Host
	Store   credentials.Store
	Surface *overlay.Surface
	Config  config.Preview

	// ServerURL overrides the server address. When empty the origin of an
	// http(s) host location is used, then the credential record's address.
	ServerURL  string
	HTTPClient *http.Client
}

// Engine owns the loop and every component running on it.
type Engine struct {
	loop    *eventloop.Loop
	ctrl    *session.Controller
	binder  *binder.Binder
	watcher *watch.Watcher

	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
	once    sync.Once
	started bool
}

// New loads credentials and builds the engine. Credential problems are
// returned as credentials.ErrConfiguration and leave nothing running.
func New(opts Options) (*Engine, error) {
	if opts.Host == nil || opts.Surface == nil {
		return nil, errors.New("engine needs a host and a surface")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid preview config: %w", err)
	}

	creds, err := credentials.Load(opts.Store)
	if err != nil {
		return nil, err
	}

	serverURL := ServerURL(opts.ServerURL, opts.Host.Location(), creds.Address)
	if serverURL == "" {
		return nil, ErrNoServer
	}

	client := jellyfin.NewClient(serverURL, creds.Token, opts.HTTPClient)
	resolver := source.NewResolver(client, opts.Config)

	ctx, cancel := context.WithCancel(context.Background())
	loop := eventloop.New()
	ctrl := session.New(ctx, loop, resolver, opts.Surface, opts.Config)
	b := binder.New(opts.Host, loop, ctrl, opts.Config.InputMode)
	w := watch.New(opts.Host, loop, ctrl, opts.Surface.Element(), opts.Config, b.Touch())

	log.Debug().Str("server", serverURL).Str("user_id", creds.UserID).Msg("Preview engine configured")

	return &Engine{
		loop:    loop,
		ctrl:    ctrl,
		binder:  b,
		watcher: w,
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}, nil
}

// ServerURL picks the server base URL: an explicit override, the origin of
// an http(s) page location, or the credential record's address.
func ServerURL(override, location, stored string) string {
	if override != "" {
		return override
	}
	if u, err := url.Parse(location); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		return u.Scheme + "://" + u.Host
	}
	return stored
}

// Loop returns the engine's event loop.
func (e *Engine) Loop() *eventloop.Loop { return e.loop }

// Controller returns the session controller. Register observers before
// Start.
func (e *Engine) Controller() *session.Controller { return e.ctrl }

// Touch reports whether cards take touch input instead of pointer input.
func (e *Engine) Touch() bool { return e.binder.Touch() }

// Start runs the loop and attaches the binder and watchers. The engine
// shuts down when ctx ends or Close is called.
func (e *Engine) Start(ctx context.Context) {
	if e.started {
		return
	}
	e.started = true

	stop := context.AfterFunc(ctx, e.cancel)
	go func() {
		defer close(e.stopped)
		defer stop()
		if err := e.loop.Run(e.ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Event loop stopped")
		}
	}()

	e.call(func() {
		e.binder.Start()
		e.watcher.Start()
	})
	log.Info().Bool("touch", e.binder.Touch()).Msg("Preview engine started")
}

// Close releases the live session, detaches from the host and stops the
// loop. It is safe to call more than once.
func (e *Engine) Close() {
	e.once.Do(func() {
		if e.started {
			e.call(func() {
				e.ctrl.Release(session.ReasonShutdown)
				e.watcher.Stop()
				e.binder.Stop()
			})
		}
		e.cancel()
		if e.started {
			<-e.stopped
		}
		log.Debug().Msg("Preview engine stopped")
	})
}

// Call runs fn on the loop and waits for it. It reports false when the loop
// stopped first.
func (e *Engine) Call(fn func()) bool {
	return e.call(fn)
}

func (e *Engine) call(fn func()) bool {
	done := make(chan struct{})
	e.loop.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return true
	case <-e.stopped:
		return false
	}
}

// Idle waits until no work is queued or outstanding on the loop.
func (e *Engine) Idle(ctx context.Context) error {
	return e.loop.Idle(ctx)
}
