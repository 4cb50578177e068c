package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltyorg/vidprev/internal/config"
	"github.com/saltyorg/vidprev/internal/dom"
	"github.com/saltyorg/vidprev/internal/dom/htmldom"
	"github.com/saltyorg/vidprev/internal/eventloop"
	"github.com/saltyorg/vidprev/internal/overlay"
	"github.com/saltyorg/vidprev/internal/source"
)

const page = `<html><body>
<div class="card" id="a"></div>
<div class="card" id="b"></div>
<div class="card" id="flat"></div>
</body></html>`

type fakeResolver struct {
	mu      sync.Mutex
	media   map[string]string
	gates   map[string]chan struct{}
	started chan string
	calls   []string
}

func (r *fakeResolver) Resolve(ctx context.Context, itemID string) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, itemID)
	gate := r.gates[itemID]
	mediaID, ok := r.media[itemID]
	r.mu.Unlock()

	if r.started != nil {
		r.started <- itemID
	}
	if gate != nil {
		<-gate
	}
	if !ok {
		return "", errors.New("item not found")
	}
	return mediaID, nil
}

func (r *fakeResolver) Direct(mediaID string) source.Candidate {
	return source.Candidate{MediaID: mediaID, Mode: source.DirectPlay, URL: "direct:" + mediaID}
}

func (r *fakeResolver) Fallback(mediaID string) source.Candidate {
	return source.Candidate{MediaID: mediaID, Mode: source.TranscodedFallback, URL: "fallback:" + mediaID}
}

func (r *fakeResolver) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type harness struct {
	t        *testing.T
	loop     *eventloop.Loop
	ctrl     *Controller
	doc      *htmldom.Document
	overlay  *htmldom.Overlay
	resolver *fakeResolver

	mu          sync.Mutex
	plays       []string
	playErr     func(src string) error
	transitions []Transition
	discarded   []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	doc, err := htmldom.ParseString(page)
	require.NoError(t, err)
	doc.SetRect(doc.Find("#a"), dom.Rect{Top: 10, Left: 20, Width: 200, Height: 300})
	doc.SetRect(doc.Find("#b"), dom.Rect{Top: 10, Left: 240, Width: 200, Height: 300})

	ov, err := doc.CreateOverlay()
	require.NoError(t, err)

	h := &harness{
		t:       t,
		loop:    eventloop.New(),
		doc:     doc,
		overlay: ov,
		resolver: &fakeResolver{
			media: map[string]string{"item-a": "media-a", "item-b": "media-b", "item-flat": "media-flat"},
			gates: map[string]chan struct{}{},
		},
	}
	ov.Video().PlayFunc = func(ctx context.Context, src string) error {
		h.mu.Lock()
		h.plays = append(h.plays, src)
		fn := h.playErr
		h.mu.Unlock()
		if fn != nil {
			return fn(src)
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = h.loop.Run(ctx) }()

	cfg := config.DefaultPreview()
	cfg.HoverDelay = 20 * time.Millisecond

	h.ctrl = New(ctx, h.loop, h.resolver, overlay.New(ov, ov.Video()), cfg)
	h.ctrl.OnTransition(func(tr Transition) {
		h.mu.Lock()
		h.transitions = append(h.transitions, tr)
		h.mu.Unlock()
	})
	h.ctrl.OnDiscard(func(itemID string) {
		h.mu.Lock()
		h.discarded = append(h.discarded, itemID)
		h.mu.Unlock()
	})
	return h
}

func (h *harness) el(id string) dom.Element {
	return h.doc.Find("#" + id)
}

func (h *harness) intent(id, itemID string) {
	h.loop.Call(func() { h.ctrl.Intent(h.el(id), h.el(id), itemID) })
}

func (h *harness) settle() {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(h.t, h.loop.Idle(ctx))
}

func (h *harness) state() State {
	var s State
	h.loop.Call(func() { s = h.ctrl.State() })
	return s
}

func (h *harness) playCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.plays)
}

func (h *harness) playedURLs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.plays...)
}

func (h *harness) playingTransitions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, tr := range h.transitions {
		if tr.To == Playing {
			n++
		}
	}
	return n
}

func (h *harness) assertCleared() {
	h.t.Helper()
	assert.Empty(h.t, h.overlay.Video().Source())
	assert.True(h.t, h.overlay.Video().Paused())
	assert.Zero(h.t, h.overlay.Video().CurrentTime())
	assert.False(h.t, h.overlay.Visible())
}

func TestIntentPlaysAfterDelay(t *testing.T) {
	h := newHarness(t)

	h.intent("a", "item-a")
	assert.Equal(t, Pending, h.state().Phase)

	h.settle()
	s := h.state()
	assert.Equal(t, Playing, s.Phase)
	assert.Equal(t, "item-a", s.ItemID)
	assert.Equal(t, source.DirectPlay, s.Candidate.Mode)
	assert.Equal(t, dom.Rect{Top: 10, Left: 20, Width: 200, Height: 300}, s.Rect)

	video := h.overlay.Video()
	assert.Equal(t, "direct:media-a", video.Source())
	assert.False(t, video.Paused())
	assert.Equal(t, 300.0, video.CurrentTime())
	assert.Equal(t, 1.0, video.PlaybackRate())
	assert.True(t, h.overlay.Visible())
	assert.True(t, h.overlay.Element().Rendered())
}

func TestRectIsCapturedAtPlayTime(t *testing.T) {
	h := newHarness(t)

	h.intent("a", "item-a")
	moved := dom.Rect{Top: 500, Left: 40, Width: 180, Height: 270}
	h.doc.SetRect(h.el("a"), moved)

	h.settle()
	assert.Equal(t, moved, h.state().Rect)
	assert.Equal(t, moved, h.el("a").Rect())
}

func TestSameTargetIntentIsNoOp(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.resolver.gates["item-a"] = gate

	h.intent("a", "item-a")
	token := h.state().Token
	h.intent("a", "item-a")
	assert.Equal(t, token, h.state().Token)

	close(gate)
	h.settle()
	assert.Equal(t, []string{"item-a"}, h.resolver.Calls())
	assert.Equal(t, Playing, h.state().Phase)
}

func TestRetargetBeforeDelayNeverResolvesFirst(t *testing.T) {
	h := newHarness(t)
	h.loop.Call(func() {
		h.ctrl.Intent(h.el("a"), h.el("a"), "item-a")
		h.ctrl.Intent(h.el("b"), h.el("b"), "item-b")
	})

	h.settle()
	assert.Equal(t, []string{"item-b"}, h.resolver.Calls())
	assert.Equal(t, "item-b", h.state().ItemID)
	assert.Equal(t, []string{"direct:media-b"}, h.playedURLs())
}

func TestStaleResolutionIsDiscarded(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.resolver.gates["item-a"] = gate
	h.resolver.started = make(chan string, 4)

	h.intent("a", "item-a")
	require.Equal(t, "item-a", <-h.resolver.started)

	h.loop.Call(func() { h.ctrl.Leave(h.el("a")) })
	h.intent("b", "item-b")
	require.Equal(t, "item-b", <-h.resolver.started)

	close(gate)
	h.settle()

	s := h.state()
	assert.Equal(t, "item-b", s.ItemID)
	assert.Equal(t, Playing, s.Phase)
	assert.Equal(t, []string{"direct:media-b"}, h.playedURLs())
	h.mu.Lock()
	assert.Equal(t, []string{"item-a"}, h.discarded)
	h.mu.Unlock()
}

func TestLeaveDuringResolvingNeverShowsOverlay(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.resolver.gates["item-a"] = gate
	h.resolver.started = make(chan string, 1)

	h.intent("a", "item-a")
	<-h.resolver.started
	h.loop.Call(func() { h.ctrl.Leave(h.el("a")) })
	close(gate)
	h.settle()

	assert.Equal(t, Idle, h.state().Phase)
	assert.Zero(t, h.playCount())
	h.assertCleared()
}

func TestLeaveOnOtherTargetIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.intent("a", "item-a")
	h.loop.Call(func() { h.ctrl.Leave(h.el("b")) })
	h.settle()
	assert.Equal(t, Playing, h.state().Phase)
}

func TestDirectFailureFallsBackExactlyOnce(t *testing.T) {
	h := newHarness(t)
	h.playErr = func(src string) error {
		if strings.HasPrefix(src, "direct:") {
			return errors.New("unsupported codec")
		}
		return nil
	}

	h.intent("a", "item-a")
	h.settle()

	assert.Equal(t, []string{"direct:media-a", "fallback:media-a"}, h.playedURLs())
	s := h.state()
	assert.Equal(t, Playing, s.Phase)
	assert.Equal(t, source.TranscodedFallback, s.Candidate.Mode)
	assert.Equal(t, "fallback:media-a", h.overlay.Video().Source())
}

func TestFallbackFailureTearsDown(t *testing.T) {
	h := newHarness(t)
	h.playErr = func(string) error { return errors.New("rejected") }

	h.intent("a", "item-a")
	h.settle()

	assert.Equal(t, []string{"direct:media-a", "fallback:media-a"}, h.playedURLs())
	assert.Equal(t, Idle, h.state().Phase)
	h.assertCleared()

	h.mu.Lock()
	last := h.transitions[len(h.transitions)-1]
	h.mu.Unlock()
	assert.Equal(t, ReasonPlaybackFailed, last.Reason)
}

func TestResolutionFailureTearsDown(t *testing.T) {
	h := newHarness(t)
	h.intent("a", "unknown")
	h.settle()

	assert.Equal(t, Idle, h.state().Phase)
	assert.Zero(t, h.playCount())
	h.assertCleared()
}

func TestZeroSizeContainerIsSkipped(t *testing.T) {
	h := newHarness(t)
	h.intent("flat", "item-flat")
	h.settle()

	assert.Equal(t, Idle, h.state().Phase)
	assert.Empty(t, h.resolver.Calls())
}

func TestTeardownIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.intent("a", "item-a")
	h.settle()

	var once, twice State
	h.loop.Call(func() {
		h.ctrl.Teardown(ReasonClick)
		once = h.ctrl.State()
		h.ctrl.Teardown(ReasonClick)
		twice = h.ctrl.State()
	})

	assert.Equal(t, once, twice)
	assert.Equal(t, Idle, twice.Phase)
	assert.Nil(t, twice.Target)
	h.assertCleared()

	h.mu.Lock()
	defer h.mu.Unlock()
	var idles int
	for _, tr := range h.transitions {
		if tr.To == Idle {
			idles++
		}
	}
	assert.Equal(t, 1, idles)
}

func TestIncompleteIntentIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.loop.Call(func() {
		h.ctrl.Intent(nil, h.el("a"), "item-a")
		h.ctrl.Intent(h.el("a"), nil, "item-a")
		h.ctrl.Intent(h.el("a"), h.el("a"), "")
	})
	time.Sleep(40 * time.Millisecond)
	h.settle()

	assert.Equal(t, Idle, h.state().Phase)
	assert.Empty(t, h.resolver.Calls())
	h.mu.Lock()
	assert.Empty(t, h.transitions)
	h.mu.Unlock()
}

func TestNilContainerKeepsLiveSession(t *testing.T) {
	h := newHarness(t)
	h.intent("a", "item-a")
	h.settle()
	require.Equal(t, Playing, h.state().Phase)

	h.loop.Call(func() { h.ctrl.Intent(h.el("b"), nil, "item-b") })
	h.settle()

	s := h.state()
	assert.Equal(t, Playing, s.Phase)
	assert.Equal(t, "item-a", s.ItemID)
}

func TestTeardownFromIdleIsNoOp(t *testing.T) {
	h := newHarness(t)
	h.loop.Call(func() { h.ctrl.Teardown(ReasonNavigation) })
	h.mu.Lock()
	assert.Empty(t, h.transitions)
	h.mu.Unlock()
}

func TestTeardownCancelsPendingTimer(t *testing.T) {
	h := newHarness(t)
	h.loop.Call(func() {
		h.ctrl.Intent(h.el("a"), h.el("a"), "item-a")
		h.ctrl.Teardown(ReasonNavigation)
	})
	time.Sleep(40 * time.Millisecond)
	h.settle()

	assert.Empty(t, h.resolver.Calls())
	assert.Equal(t, Idle, h.state().Phase)
}

func TestReleaseClearsSurfaceWhenIdle(t *testing.T) {
	h := newHarness(t)
	h.overlay.Video().SetSource("leftover")
	h.overlay.SetVisible(true)

	h.loop.Call(func() { h.ctrl.Release(ReasonUnload) })
	h.assertCleared()
}

func TestAtMostOnePlayingSession(t *testing.T) {
	h := newHarness(t)
	ids := []string{"a", "b"}
	items := map[string]string{"a": "item-a", "b": "item-b"}

	var maxPlaying int
	h.loop.Call(func() {
		h.ctrl.OnTransition(func(Transition) {
			playing := 0
			if h.ctrl.Phase() == Playing {
				playing = 1
			}
			maxPlaying = max(maxPlaying, playing)
		})
	})

	for i := range 20 {
		id := ids[i%2]
		h.intent(id, items[id])
		if i%3 == 0 {
			h.settle()
		}
		if i%5 == 0 {
			h.loop.Call(func() { h.ctrl.Leave(h.el(id)) })
		}
	}
	h.settle()

	var playing int
	h.loop.Call(func() {
		if h.ctrl.Phase() == Playing {
			playing++
		}
	})
	assert.LessOrEqual(t, playing, 1)
	assert.LessOrEqual(t, maxPlaying, 1)

	// Every Playing transition is preceded by a teardown of the previous one.
	h.mu.Lock()
	defer h.mu.Unlock()
	live := 0
	for _, tr := range h.transitions {
		switch tr.To {
		case Playing:
			live++
		case TearingDown:
			if tr.From == Playing {
				live--
			}
		}
		require.LessOrEqual(t, live, 1)
	}
}
