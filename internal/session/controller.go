// Package session holds the preview state machine. One Controller owns the
// single live session and the overlay surface. Every method must be called
// from a task on the controller's event loop.
package session

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/vidprev/internal/config"
	"github.com/saltyorg/vidprev/internal/dom"
	"github.com/saltyorg/vidprev/internal/eventloop"
	"github.com/saltyorg/vidprev/internal/source"
)

// Resolver finds the media to play and builds its candidate streams.
type Resolver interface {
	Resolve(ctx context.Context, itemID string) (string, error)
	Direct(mediaID string) source.Candidate
	Fallback(mediaID string) source.Candidate
}

// Surface is the overlay the controller draws into.
type Surface interface {
	Position(r dom.Rect)
	Load(url string, speed float64)
	Play(ctx context.Context) error
	Seek(seconds float64)
	Hide()
}

// State is the single live session.
type State struct {
	Target    dom.Element
	Container dom.Element
	ItemID    string
	Rect      dom.Rect
	Token     uint64
	Phase     Phase
	Candidate source.Candidate

	timer *eventloop.Timer
}

// Controller drives the session lifecycle.
type Controller struct {
	ctx      context.Context
	loop     *eventloop.Loop
	resolver Resolver
	surface  Surface
	cfg      config.Preview

	state State

	transitions []func(Transition)
	discards    []func(itemID string)
}

// New creates a controller. ctx bounds all network and playback work and is
// only expected to end at shutdown.
func New(ctx context.Context, loop *eventloop.Loop, resolver Resolver, surface Surface, cfg config.Preview) *Controller {
	return &Controller{
		ctx:      ctx,
		loop:     loop,
		resolver: resolver,
		surface:  surface,
		cfg:      cfg,
	}
}

// OnTransition registers fn for every phase change.
func (c *Controller) OnTransition(fn func(Transition)) {
	c.transitions = append(c.transitions, fn)
}

// OnDiscard registers fn for async results that arrived after their session
// was superseded or torn down.
func (c *Controller) OnDiscard(fn func(itemID string)) {
	c.discards = append(c.discards, fn)
}

// State returns a copy of the session state.
func (c *Controller) State() State {
	return c.state
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	return c.state.Phase
}

// Target returns the bound hover target, or nil.
func (c *Controller) Target() dom.Element {
	return c.state.Target
}

func (c *Controller) setPhase(to Phase, reason Reason) {
	t := Transition{
		From:   c.state.Phase,
		To:     to,
		ItemID: c.state.ItemID,
		Reason: reason,
	}
	if to == Playing {
		t.Mode = c.state.Candidate.Mode
	}
	c.state.Phase = to
	for _, fn := range c.transitions {
		fn(t)
	}
}

// Intent registers hover or touch intent on target. Intent on the bound
// target is ignored; intent on any other target tears the current session
// down first and starts a new one. Intent without a target, a container or
// an item id is ignored.
func (c *Controller) Intent(target, container dom.Element, itemID string) {
	if target == nil || container == nil || itemID == "" {
		return
	}
	if c.state.Phase.Live() && c.state.Target == target {
		return
	}
	c.Teardown(ReasonRetarget)

	c.state.Token++
	c.state.Target = target
	c.state.Container = container
	c.state.ItemID = itemID

	token := c.state.Token
	c.state.timer = c.loop.AfterFunc(c.cfg.HoverDelay, func() { c.begin(token) })

	log.Debug().Str("item_id", itemID).Uint64("token", token).Dur("delay", c.cfg.HoverDelay).Msg("Preview pending")
	c.setPhase(Pending, "")
}

// Leave ends the session when target is the bound target.
func (c *Controller) Leave(target dom.Element) {
	if target == nil || target != c.state.Target {
		return
	}
	c.Teardown(ReasonPointerLeave)
}

func (c *Controller) stale(token uint64, want Phase) bool {
	return token != c.state.Token || c.state.Phase != want
}

func (c *Controller) discard(itemID string, token uint64) {
	log.Debug().Str("item_id", itemID).Uint64("token", token).Msg("Discarding stale preview result")
	for _, fn := range c.discards {
		fn(itemID)
	}
}

// begin runs when the hover delay elapses.
func (c *Controller) begin(token uint64) {
	if c.stale(token, Pending) {
		return
	}
	c.state.timer = nil

	rect := c.state.Container.Rect()
	if rect.Empty() {
		log.Debug().Str("item_id", c.state.ItemID).Msg("Container has zero dimensions, skipping preview")
		c.Teardown(ReasonZeroSize)
		return
	}
	c.state.Rect = rect
	c.setPhase(Resolving, "")

	ctx := c.ctx
	itemID := c.state.ItemID
	var (
		mediaID string
		err     error
	)
	c.loop.Go(
		func() { mediaID, err = c.resolver.Resolve(ctx, itemID) },
		func() { c.resolved(token, itemID, mediaID, err) },
	)
}

func (c *Controller) resolved(token uint64, itemID, mediaID string, err error) {
	if c.stale(token, Resolving) {
		c.discard(itemID, token)
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("item_id", itemID).Msg("Failed to resolve preview media")
		c.Teardown(ReasonResolutionFailed)
		return
	}
	c.attempt(token, c.resolver.Direct(mediaID))
}

// attempt loads cand on the loop and plays it off the loop. Loading first
// means a teardown during the attempt always finds the source to clear.
func (c *Controller) attempt(token uint64, cand source.Candidate) {
	c.state.Candidate = cand
	c.surface.Position(c.state.Rect)
	c.surface.Load(cand.URL, c.cfg.PlaybackSpeed)

	log.Debug().
		Str("item_id", c.state.ItemID).
		Str("media_id", cand.MediaID).
		Stringer("mode", cand.Mode).
		Msg("Attempting preview playback")

	ctx := c.ctx
	itemID := c.state.ItemID
	var err error
	c.loop.Go(
		func() { err = c.surface.Play(ctx) },
		func() { c.played(token, itemID, cand, err) },
	)
}

func (c *Controller) played(token uint64, itemID string, cand source.Candidate, err error) {
	if c.stale(token, Resolving) {
		c.discard(itemID, token)
		return
	}
	if err != nil {
		if cand.Mode == source.DirectPlay {
			log.Debug().Err(err).Str("media_id", cand.MediaID).Msg("Direct play rejected, trying transcoded stream")
			c.attempt(token, c.resolver.Fallback(cand.MediaID))
			return
		}
		log.Warn().Err(err).Str("media_id", cand.MediaID).Msg("Transcoded preview playback failed")
		c.Teardown(ReasonPlaybackFailed)
		return
	}

	c.surface.Seek(c.cfg.StartSeconds())
	log.Debug().Str("item_id", itemID).Stringer("mode", cand.Mode).Msg("Preview playing")
	c.setPhase(Playing, "")
}

// Teardown ends the live session: the timer is stopped, playback is stopped,
// the source is cleared and the overlay hidden. It is idempotent and a no-op
// when nothing is live.
func (c *Controller) Teardown(reason Reason) {
	if c.state.Phase == TearingDown {
		return
	}
	if c.state.Phase == Idle && c.state.Target == nil && c.state.timer == nil {
		return
	}

	itemID := c.state.ItemID
	from := c.state.Phase
	c.setPhase(TearingDown, reason)

	c.state.timer.Stop()
	c.surface.Hide()

	log.Debug().Str("item_id", itemID).Str("reason", string(reason)).Stringer("from", from).Msg("Preview torn down")

	c.state = State{Token: c.state.Token, Phase: TearingDown, ItemID: itemID}
	c.setPhase(Idle, reason)
	c.state.ItemID = ""
}

// Release tears the session down and unconditionally clears the surface.
// Used when the page is going away.
func (c *Controller) Release(reason Reason) {
	c.Teardown(reason)
	c.surface.Hide()
}
