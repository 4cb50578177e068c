//go:build js && wasm

package jsdom

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"syscall/js"

	"github.com/saltyorg/vidprev/internal/dom"
)

const (
	overlayStyle = "position:absolute;top:0;left:0;width:100%;height:100%;" +
		"background:rgba(0,0,0,0.8);z-index:100;display:none;overflow:hidden;pointer-events:none"
	videoStyle = "width:100%;height:100%;object-fit:contain;pointer-events:none"
)

// Overlay is the preview container and its video element, appended to body.
type Overlay struct {
	box   *Element
	video *Video
}

// CreateOverlay builds the overlay. It is hidden until the first preview.
func (d *Document) CreateOverlay() (*Overlay, error) {
	body := d.doc.Get("body")
	if body.IsNull() {
		return nil, errors.New("document has no body")
	}

	div := d.doc.Call("createElement", "div")
	div.Set("id", "preview-overlay")
	div.Get("style").Set("cssText", overlayStyle)

	video := d.doc.Call("createElement", "video")
	video.Set("muted", true)
	video.Set("controls", false)
	video.Set("playsInline", true)
	video.Get("style").Set("cssText", videoStyle)

	div.Call("appendChild", video)
	body.Call("appendChild", div)

	return &Overlay{box: d.wrap(div), video: &Video{v: video}}, nil
}

// Video returns the media element.
func (o *Overlay) Video() *Video {
	return o.video
}

// Element implements overlay.Box.
func (o *Overlay) Element() dom.Element {
	return o.box
}

// SetRect implements overlay.Box.
func (o *Overlay) SetRect(r dom.Rect) {
	style := o.box.v.Get("style")
	style.Set("top", fmt.Sprintf("%gpx", r.Top))
	style.Set("left", fmt.Sprintf("%gpx", r.Left))
	style.Set("width", fmt.Sprintf("%gpx", r.Width))
	style.Set("height", fmt.Sprintf("%gpx", r.Height))
}

// SetVisible implements overlay.Box.
func (o *Overlay) SetVisible(v bool) {
	display := "none"
	if v {
		display = "block"
	}
	o.box.v.Get("style").Set("display", display)
	o.video.v.Get("style").Set("display", display)
}

// Visible implements overlay.Box.
func (o *Overlay) Visible() bool {
	return o.box.v.Get("style").Get("display").String() != "none"
}

// Video wraps the overlay's HTMLVideoElement.
type Video struct {
	v js.Value
}

// SetSource implements overlay.Media. An empty URL removes the src
// attribute and reloads, which stops any buffering.
func (m *Video) SetSource(url string) {
	if url == "" {
		m.v.Call("removeAttribute", "src")
		m.v.Call("load")
		return
	}
	m.v.Set("src", url)
}

// Source implements overlay.Media.
func (m *Video) Source() string {
	v := m.v.Call("getAttribute", "src")
	if v.IsNull() {
		return ""
	}
	return v.String()
}

// SetPlaybackRate implements overlay.Media.
func (m *Video) SetPlaybackRate(rate float64) {
	m.v.Set("playbackRate", rate)
}

// Play implements overlay.Media. It waits for the promise returned by
// HTMLMediaElement.play. The callbacks are released once the promise
// settles, even if ctx ended first.
func (m *Video) Play(ctx context.Context) error {
	result := make(chan error, 1)

	var resolve, reject js.Func
	var once sync.Once
	settle := func(err error) {
		once.Do(func() {
			result <- err
			resolve.Release()
			reject.Release()
		})
	}
	resolve = js.FuncOf(func(js.Value, []js.Value) any {
		settle(nil)
		return nil
	})
	reject = js.FuncOf(func(_ js.Value, args []js.Value) any {
		msg := "play rejected"
		if len(args) > 0 && !args[0].IsUndefined() && !args[0].IsNull() {
			msg = args[0].Call("toString").String()
		}
		settle(errors.New(msg))
		return nil
	})

	m.v.Call("play").Call("then", resolve, reject)

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause implements overlay.Media.
func (m *Video) Pause() {
	m.v.Call("pause")
}

// SetCurrentTime implements overlay.Media.
func (m *Video) SetCurrentTime(seconds float64) {
	m.v.Set("currentTime", seconds)
}
