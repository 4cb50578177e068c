package htmldom

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/saltyorg/vidprev/internal/dom"
)

// ErrNoSource is returned by Video.Play when no source is loaded.
var ErrNoSource = errors.New("no media source")

// Overlay is the preview box appended to the body: a positioned div holding
// a muted video element.
type Overlay struct {
	doc   *Document
	box   *Element
	video *Video

	mu      sync.Mutex
	rect    dom.Rect
	visible bool
}

// CreateOverlay appends the overlay markup to the body.
func (d *Document) CreateOverlay() (*Overlay, error) {
	body := d.Body()
	if body == nil {
		return nil, fmt.Errorf("document has no body")
	}
	added, err := d.AppendHTML(body, `<div id="preview-overlay" style="position:absolute;display:none;pointer-events:none"><video muted playsinline></video></div>`)
	if err != nil {
		return nil, err
	}
	if len(added) != 1 {
		return nil, fmt.Errorf("unexpected overlay markup")
	}

	box := added[0].(*Element)
	v := box.QuerySelector("video").(*Element)
	o := &Overlay{doc: d, box: box, video: &Video{el: v, rate: 1, paused: true}}
	return o, nil
}

// Element returns the overlay container.
func (o *Overlay) Element() dom.Element {
	return o.box
}

// Video returns the overlay's media element.
func (o *Overlay) Video() *Video {
	return o.video
}

// SetRect positions the overlay.
func (o *Overlay) SetRect(r dom.Rect) {
	o.mu.Lock()
	o.rect = r
	o.mu.Unlock()
	o.doc.SetRect(o.box, r)
	o.writeStyle()
}

// SetVisible shows or hides the overlay.
func (o *Overlay) SetVisible(v bool) {
	o.mu.Lock()
	o.visible = v
	o.mu.Unlock()
	o.writeStyle()
}

// Visible reports whether the overlay is displayed.
func (o *Overlay) Visible() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.visible
}

func (o *Overlay) writeStyle() {
	o.mu.Lock()
	display := "none"
	if o.visible {
		display = "block"
	}
	style := fmt.Sprintf("position:absolute;top:%gpx;left:%gpx;width:%gpx;height:%gpx;display:%s;pointer-events:none",
		o.rect.Top, o.rect.Left, o.rect.Width, o.rect.Height, display)
	o.mu.Unlock()
	o.box.SetAttr("style", style)
}

// Video is a headless media element. Playback succeeds for any non-empty
// source unless PlayFunc says otherwise.
type Video struct {
	el *Element

	mu      sync.Mutex
	src     string
	rate    float64
	current float64
	paused  bool

	// PlayFunc decides the outcome of a play attempt for src.
	PlayFunc func(ctx context.Context, src string) error
}

// SetSource implements overlay.Media.
func (v *Video) SetSource(url string) {
	v.mu.Lock()
	v.src = url
	v.current = 0
	v.mu.Unlock()
	if url == "" {
		v.el.RemoveAttr("src")
		return
	}
	v.el.SetAttr("src", url)
}

// Source implements overlay.Media.
func (v *Video) Source() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.src
}

// SetPlaybackRate implements overlay.Media.
func (v *Video) SetPlaybackRate(rate float64) {
	v.mu.Lock()
	v.rate = rate
	v.mu.Unlock()
}

// PlaybackRate returns the configured rate.
func (v *Video) PlaybackRate() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rate
}

// Play implements overlay.Media.
func (v *Video) Play(ctx context.Context) error {
	v.mu.Lock()
	src := v.src
	play := v.PlayFunc
	v.mu.Unlock()

	if src == "" {
		return ErrNoSource
	}
	if play != nil {
		if err := play(ctx, src); err != nil {
			return err
		}
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.src != src {
		return fmt.Errorf("source changed during play: %w", context.Canceled)
	}
	v.paused = false
	return nil
}

// Pause implements overlay.Media.
func (v *Video) Pause() {
	v.mu.Lock()
	v.paused = true
	v.mu.Unlock()
}

// Paused reports whether playback is paused.
func (v *Video) Paused() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.paused
}

// SetCurrentTime implements overlay.Media.
func (v *Video) SetCurrentTime(seconds float64) {
	v.mu.Lock()
	v.current = seconds
	v.mu.Unlock()
}

// CurrentTime returns the playback position.
func (v *Video) CurrentTime() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}
