package binder

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltyorg/vidprev/internal/config"
	"github.com/saltyorg/vidprev/internal/dom"
	"github.com/saltyorg/vidprev/internal/dom/htmldom"
	"github.com/saltyorg/vidprev/internal/eventloop"
)

const (
	desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"
	iphoneUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1"
)

const libraryPage = `<html><body>
<div class="itemsContainer">
  <div class="card" data-id="movie1">
    <div class="cardBox"><div class="cardOverlayContainer" id="poster1"><button is="paper-icon-button-light" data-id="movie1"></button></div></div>
  </div>
  <div class="card">
    <div class="cardBox"><div class="cardOverlayContainer" id="poster2" data-id="series2"></div></div>
  </div>
  <div class="card">
    <div class="cardBox"><div class="cardOverlayContainer" id="orphan"></div></div>
  </div>
</div>
<div class="listItem listItem-largeImage listItem-withContentWrapper" id="row3" data-id="episode3">
  <div class="listItemImage listItemImage-large itemAction" id="thumb3"></div>
</div>
<div class="listItemImage listItemImage-large itemAction" id="stray"></div>
</body></html>`

type call struct {
	kind      string
	target    dom.Element
	container dom.Element
	itemID    string
}

type recorder struct {
	calls []call
}

func (r *recorder) Intent(target, container dom.Element, itemID string) {
	r.calls = append(r.calls, call{"intent", target, container, itemID})
}

func (r *recorder) Leave(target dom.Element) {
	r.calls = append(r.calls, call{kind: "leave", target: target})
}

type fixture struct {
	t    *testing.T
	doc  *htmldom.Document
	loop *eventloop.Loop
	rec  *recorder
	b    *Binder
}

func newFixture(t *testing.T, ua string, mode config.InputMode) *fixture {
	t.Helper()
	doc, err := htmldom.ParseString(libraryPage, htmldom.WithUserAgent(ua))
	require.NoError(t, err)

	loop := eventloop.New()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = loop.Run(ctx) }()

	f := &fixture{t: t, doc: doc, loop: loop, rec: &recorder{}}
	f.b = New(doc, loop, f.rec, mode)
	loop.Call(f.b.Start)
	return f
}

func (f *fixture) settle() {
	f.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(f.t, f.loop.Idle(ctx))
}

func (f *fixture) calls() []call {
	var out []call
	f.loop.Call(func() { out = append(out, f.rec.calls...) })
	return out
}

func TestDetectInputMode(t *testing.T) {
	assert.Equal(t, config.InputTouch, DetectInputMode(iphoneUA))
	assert.Equal(t, config.InputTouch, DetectInputMode("Mozilla/5.0 (Linux; ANDROID 14)"))
	assert.Equal(t, config.InputPointer, DetectInputMode(desktopUA))
}

func TestResolve(t *testing.T) {
	doc, err := htmldom.ParseString(libraryPage)
	require.NoError(t, err)

	b, err := Resolve(doc.Find("#poster1"))
	require.NoError(t, err)
	assert.Equal(t, "movie1", b.ItemID)
	assert.Equal(t, dom.Element(doc.Find("#poster1")), b.Target)

	b, err = Resolve(doc.Find("#poster2"))
	require.NoError(t, err)
	assert.Equal(t, "series2", b.ItemID)

	b, err = Resolve(doc.Find("#thumb3"))
	require.NoError(t, err)
	assert.Equal(t, "episode3", b.ItemID)
	assert.Equal(t, dom.Element(doc.Find("#row3")), b.Target)
	assert.Equal(t, dom.Element(doc.Find("#thumb3")), b.Container)

	_, err = Resolve(doc.Find("#orphan"))
	assert.ErrorIs(t, err, ErrNoItemID)

	_, err = Resolve(doc.Find("#stray"))
	assert.ErrorIs(t, err, ErrNoListItem)
}

func TestStartBindsExistingCards(t *testing.T) {
	f := newFixture(t, desktopUA, config.InputAuto)
	assert.False(t, f.b.Touch())

	var bound int
	f.loop.Call(func() { bound = f.b.Bound() })
	assert.Equal(t, 3, bound)

	for _, id := range []string{"poster1", "poster2", "thumb3", "row3"} {
		v, ok := f.doc.Find("#" + id).Attr(AttachedAttr)
		assert.True(t, ok, id)
		assert.Equal(t, "true", v, id)
	}
	_, ok := f.doc.Find("#orphan").Attr(AttachedAttr)
	assert.False(t, ok)

	assert.Equal(t, 1, f.doc.Find("#poster1").ListenerCount(dom.EventMouseEnter))
	assert.Equal(t, 1, f.doc.Find("#row3").ListenerCount(dom.EventMouseLeave))
	assert.Zero(t, f.doc.Find("#thumb3").ListenerCount(dom.EventMouseEnter))
	assert.Zero(t, f.doc.Find("#poster1").ListenerCount(dom.EventTouchStart))
}

func TestBindIsIdempotent(t *testing.T) {
	f := newFixture(t, desktopUA, config.InputPointer)
	f.loop.Call(func() {
		f.b.Start()
		assert.False(t, f.b.Bind(f.doc.Find("#poster1")))
	})
	f.settle()
	assert.Equal(t, 1, f.doc.Find("#poster1").ListenerCount(dom.EventMouseEnter))
}

func TestPointerEventsReachController(t *testing.T) {
	f := newFixture(t, desktopUA, config.InputAuto)

	poster := f.doc.Find("#poster1")
	assert.False(t, f.doc.Dispatch(poster, dom.EventMouseEnter))
	f.doc.Dispatch(poster, dom.EventMouseLeave)

	row := f.doc.Find("#row3")
	f.doc.Dispatch(row, dom.EventMouseEnter)
	f.settle()

	got := f.calls()
	require.Len(t, got, 3)
	assert.Equal(t, call{"intent", poster, poster, "movie1"}, got[0])
	assert.Equal(t, call{kind: "leave", target: poster}, got[1])
	assert.Equal(t, call{"intent", row, f.doc.Find("#thumb3"), "episode3"}, got[2])
}

func TestTouchModePreventsDefault(t *testing.T) {
	f := newFixture(t, iphoneUA, config.InputAuto)
	require.True(t, f.b.Touch())

	poster := f.doc.Find("#poster2")
	assert.Zero(t, poster.ListenerCount(dom.EventMouseEnter))
	assert.True(t, f.doc.Dispatch(poster, dom.EventTouchStart))
	assert.True(t, f.doc.Dispatch(poster, dom.EventTouchEnd))
	f.settle()

	got := f.calls()
	require.Len(t, got, 2)
	assert.Equal(t, "intent", got[0].kind)
	assert.Equal(t, "series2", got[0].itemID)
	assert.Equal(t, "leave", got[1].kind)
}

func TestConfiguredModeOverridesUserAgent(t *testing.T) {
	f := newFixture(t, iphoneUA, config.InputPointer)
	assert.False(t, f.b.Touch())
	assert.Equal(t, 1, f.doc.Find("#poster1").ListenerCount(dom.EventMouseEnter))
}

func TestLateCardsAreBound(t *testing.T) {
	f := newFixture(t, desktopUA, config.InputAuto)

	added, err := f.doc.AppendHTML(f.doc.Find(".itemsContainer"),
		`<div class="card"><div class="cardBox"><div class="cardOverlayContainer" id="late" data-id="movie9"></div></div></div>`+
			`<div class="cardOverlayContainer" id="direct" data-id="movie10"></div>`)
	require.NoError(t, err)
	require.Len(t, added, 2)
	f.settle()

	late := f.doc.Find("#late")
	assert.Equal(t, 1, late.ListenerCount(dom.EventMouseEnter))
	assert.Equal(t, 1, f.doc.Find("#direct").ListenerCount(dom.EventMouseEnter))

	f.doc.Dispatch(late, dom.EventMouseEnter)
	f.settle()
	got := f.calls()
	require.Len(t, got, 1)
	assert.Equal(t, "movie9", got[0].itemID)
}

func TestStopDetachesListeners(t *testing.T) {
	f := newFixture(t, desktopUA, config.InputAuto)
	f.loop.Call(f.b.Stop)

	assert.Zero(t, f.doc.Find("#poster1").ListenerCount(dom.EventMouseEnter))

	_, err := f.doc.AppendHTML(f.doc.Find(".itemsContainer"), `<div class="cardOverlayContainer" id="late" data-id="m"></div>`)
	require.NoError(t, err)
	f.settle()
	assert.Zero(t, f.doc.Find("#late").ListenerCount(dom.EventMouseEnter))
}
