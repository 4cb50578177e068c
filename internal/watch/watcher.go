package watch

import (
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/vidprev/internal/config"
	"github.com/saltyorg/vidprev/internal/dom"
	"github.com/saltyorg/vidprev/internal/eventloop"
	"github.com/saltyorg/vidprev/internal/session"
)

// Controller is the part of the session controller the watchers drive.
type Controller interface {
	Phase() session.Phase
	Target() dom.Element
	Teardown(reason session.Reason)
	Release(reason session.Reason)
	OnTransition(fn func(session.Transition))
}

// Watcher feeds host observations through a Policy into the controller.
// Start, Stop and every callback run on the loop.
type Watcher struct {
	host    dom.Host
	loop    *eventloop.Loop
	ctrl    Controller
	overlay dom.Element
	policy  Policy
	cfg     config.Preview
	touch   bool

	cancels    []func()
	started    bool
	subscribed bool

	navTicker    *eventloop.Ticker
	visTicker    *eventloop.Ticker
	lastLocation string
}

// New creates a watcher. overlay may be nil when the surface is not part of
// the host document. touch adds touchstart to the click signal.
func New(host dom.Host, loop *eventloop.Loop, ctrl Controller, overlay dom.Element, cfg config.Preview, touch bool) *Watcher {
	return &Watcher{
		host:    host,
		loop:    loop,
		ctrl:    ctrl,
		overlay: overlay,
		policy:  Policy{Threshold: cfg.MutationThreshold},
		cfg:     cfg,
		touch:   touch,
	}
}

// Start subscribes to the host. Must run on the loop.
func (w *Watcher) Start() {
	if w.started {
		return
	}
	w.started = true

	if !w.subscribed {
		w.ctrl.OnTransition(w.onTransition)
		w.subscribed = true
	}

	w.cancels = append(w.cancels, w.host.Observe(func(batch []dom.Mutation) {
		w.loop.Post(func() { w.onMutations(batch) })
	}))

	for _, ev := range []string{dom.EventPopState, dom.EventHashChange} {
		w.listen(ev, Signal{Kind: SignalHistory})
	}
	w.listen(dom.EventClick, Signal{Kind: SignalClick})
	if w.touch {
		w.listen(dom.EventTouchStart, Signal{Kind: SignalClick})
	}
	for _, ev := range []string{dom.EventPageHide, dom.EventBeforeUnload} {
		w.listen(ev, Signal{Kind: SignalUnload})
	}

	log.Debug().Bool("touch", w.touch).Float64("mutation_threshold", w.policy.Threshold).Msg("Invalidation watchers started")
}

func (w *Watcher) listen(event string, s Signal) {
	w.cancels = append(w.cancels, w.host.Listen(event, func(dom.Event) {
		w.loop.Post(func() { w.signal(s) })
	}))
}

// Stop unsubscribes from the host and stops any polls. Must run on the loop.
func (w *Watcher) Stop() {
	for _, cancel := range w.cancels {
		cancel()
	}
	w.cancels = nil
	w.stopNavigationPoll()
	w.stopVisibilityPoll()
	w.started = false
}

// signal applies the policy to s and tears the session down if it says so.
func (w *Watcher) signal(s Signal) {
	phase := w.ctrl.Phase()
	reason, ok := w.policy.ShouldTeardown(phase, s)
	if !ok {
		return
	}
	log.Debug().Stringer("signal", s.Kind).Stringer("phase", phase).Str("reason", string(reason)).Msg("Invalidation signal")
	if s.Kind == SignalUnload {
		w.ctrl.Release(reason)
		return
	}
	w.ctrl.Teardown(reason)
}

func (w *Watcher) onMutations(batch []dom.Mutation) {
	if !w.ctrl.Phase().Live() {
		return
	}

	if changed := dom.ChangedNodes(batch); changed > 0 {
		w.signal(MutationSignal(changed, w.host.ElementCount()))
		if !w.ctrl.Phase().Live() {
			return
		}
	}

	if affectsVisibility(batch) {
		w.checkVisibility()
	}
}

// affectsVisibility reports whether batch may have hidden or detached
// something.
func affectsVisibility(batch []dom.Mutation) bool {
	for _, m := range batch {
		switch m.Type {
		case dom.Attributes:
			switch m.Attribute {
			case "style", "class", "hidden":
				return true
			}
		case dom.ChildList:
			if m.RemovedNodes > 0 {
				return true
			}
		}
	}
	return false
}

// checkVisibility requires the bound target to be attached and rendered, and
// the overlay as well once playback has started.
func (w *Watcher) checkVisibility() {
	phase := w.ctrl.Phase()
	if !phase.Live() {
		return
	}
	w.signal(Signal{Kind: SignalVisibility, Visible: w.visible(phase)})
}

func (w *Watcher) visible(phase session.Phase) bool {
	target := w.ctrl.Target()
	if target == nil || !target.Connected() || !target.Rendered() {
		return false
	}
	if phase == session.Playing && w.overlay != nil {
		return w.overlay.Connected() && w.overlay.Rendered()
	}
	return true
}

func (w *Watcher) onTransition(t session.Transition) {
	if !w.started {
		return
	}
	switch t.To {
	case session.Pending:
		w.startNavigationPoll()
	case session.Playing:
		w.startVisibilityPoll()
	case session.Idle:
		w.stopNavigationPoll()
		w.stopVisibilityPoll()
	}
}

func (w *Watcher) startNavigationPoll() {
	w.lastLocation = w.host.Location()
	if w.navTicker != nil {
		return
	}
	w.navTicker = w.loop.Every(w.cfg.NavigationPoll, func() {
		loc := w.host.Location()
		if loc == w.lastLocation {
			return
		}
		log.Debug().Str("from", w.lastLocation).Str("to", loc).Msg("Location changed")
		w.lastLocation = loc
		w.signal(Signal{Kind: SignalLocation})
	})
}

func (w *Watcher) stopNavigationPoll() {
	w.navTicker.Stop()
	w.navTicker = nil
}

func (w *Watcher) startVisibilityPoll() {
	if w.visTicker != nil {
		return
	}
	w.visTicker = w.loop.Every(w.cfg.VisibilityPoll, w.checkVisibility)
}

func (w *Watcher) stopVisibilityPoll() {
	w.visTicker.Stop()
	w.visTicker = nil
}
