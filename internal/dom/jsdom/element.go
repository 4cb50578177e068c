//go:build js && wasm

package jsdom

import (
	"syscall/js"

	"github.com/saltyorg/vidprev/internal/dom"
)

// Element wraps a browser element.
type Element struct {
	doc *Document
	v   js.Value
	key string
}

// Matches implements dom.Element.
func (e *Element) Matches(selector string) bool {
	return e.v.Call("matches", selector).Bool()
}

// Closest implements dom.Element.
func (e *Element) Closest(selector string) dom.Element {
	if el := e.doc.wrap(e.v.Call("closest", selector)); el != nil {
		return el
	}
	return nil
}

// QuerySelector implements dom.Element.
func (e *Element) QuerySelector(selector string) dom.Element {
	if el := e.doc.wrap(e.v.Call("querySelector", selector)); el != nil {
		return el
	}
	return nil
}

// QuerySelectorAll implements dom.Element.
func (e *Element) QuerySelectorAll(selector string) []dom.Element {
	return e.doc.wrapList(e.v.Call("querySelectorAll", selector))
}

// Attr implements dom.Element.
func (e *Element) Attr(name string) (string, bool) {
	v := e.v.Call("getAttribute", name)
	if v.IsNull() {
		return "", false
	}
	return v.String(), true
}

// SetAttr implements dom.Element.
func (e *Element) SetAttr(name, value string) {
	e.v.Call("setAttribute", name, value)
}

// Rect implements dom.Element in page coordinates.
func (e *Element) Rect() dom.Rect {
	r := e.v.Call("getBoundingClientRect")
	win := e.doc.win
	return dom.Rect{
		Top:    r.Get("top").Float() + win.Get("scrollY").Float(),
		Left:   r.Get("left").Float() + win.Get("scrollX").Float(),
		Width:  r.Get("width").Float(),
		Height: r.Get("height").Float(),
	}
}

// Connected implements dom.Element.
func (e *Element) Connected() bool {
	return e.v.Get("isConnected").Bool()
}

// Rendered implements dom.Element. An element under display:none has no
// client rects.
func (e *Element) Rendered() bool {
	if !e.Connected() || e.v.Call("getClientRects").Length() == 0 {
		return false
	}
	if e.Rect().Empty() {
		return false
	}
	style := e.doc.win.Call("getComputedStyle", e.v)
	return style.Get("visibility").String() != "hidden"
}

// Listen implements dom.Element. The event target is always e.
func (e *Element) Listen(event string, fn func(dom.Event)) func() {
	return listen(e.v, event, func(ev js.Value) {
		fn(dom.NewEvent(event, e, func() { ev.Call("preventDefault") }))
	})
}
