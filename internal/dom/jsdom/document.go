//go:build js && wasm

// Package jsdom is the live browser dom.Host, built on syscall/js.
//
// Wrapped elements are cached by a key stored on the JS object, so the same
// node always yields the same *Element and identity comparison holds.
package jsdom

import (
	"sync"
	"syscall/js"

	"github.com/google/uuid"

	"github.com/saltyorg/vidprev/internal/dom"
)

// keyProp is the JS property holding an element's cache key.
const keyProp = "__vidprevKey"

// Document wraps window and document.
type Document struct {
	win js.Value
	doc js.Value

	mu    sync.Mutex
	elems map[string]*Element
}

// New wraps the global window.
func New() *Document {
	win := js.Global()
	return &Document{
		win:   win,
		doc:   win.Get("document"),
		elems: make(map[string]*Element),
	}
}

// Ready reports whether the document has finished parsing.
func (d *Document) Ready() bool {
	return d.doc.Get("readyState").String() != "loading"
}

// WaitReady blocks until DOMContentLoaded has fired.
func (d *Document) WaitReady() {
	if d.Ready() {
		return
	}
	done := make(chan struct{})
	var once sync.Once
	fn := js.FuncOf(func(js.Value, []js.Value) any {
		once.Do(func() { close(done) })
		return nil
	})
	d.doc.Call("addEventListener", "DOMContentLoaded", fn)
	<-done
	d.doc.Call("removeEventListener", "DOMContentLoaded", fn)
	fn.Release()
}

func isElement(v js.Value) bool {
	if v.Type() != js.TypeObject {
		return false
	}
	nt := v.Get("nodeType")
	return nt.Type() == js.TypeNumber && nt.Int() == 1
}

// wrap returns the cached wrapper for v, or nil for null and non-elements.
func (d *Document) wrap(v js.Value) *Element {
	if !isElement(v) {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if k := v.Get(keyProp); k.Type() == js.TypeString {
		if el, ok := d.elems[k.String()]; ok {
			return el
		}
	}
	key := uuid.NewString()
	v.Set(keyProp, key)
	el := &Element{doc: d, v: v, key: key}
	d.elems[key] = el
	return el
}

// forget drops cached wrappers for a removed subtree.
func (d *Document) forget(v js.Value) {
	d.mu.Lock()
	defer d.mu.Unlock()

	drop := func(n js.Value) {
		if k := n.Get(keyProp); k.Type() == js.TypeString {
			delete(d.elems, k.String())
		}
	}
	drop(v)
	all := v.Call("getElementsByTagName", "*")
	for i := range all.Length() {
		drop(all.Index(i))
	}
}

func (d *Document) wrapList(list js.Value) []dom.Element {
	out := make([]dom.Element, 0, list.Length())
	for i := range list.Length() {
		if el := d.wrap(list.Index(i)); el != nil {
			out = append(out, el)
		}
	}
	return out
}

// QuerySelectorAll implements dom.Host.
func (d *Document) QuerySelectorAll(selector string) []dom.Element {
	return d.wrapList(d.doc.Call("querySelectorAll", selector))
}

// ElementCount implements dom.Host.
func (d *Document) ElementCount() int {
	body := d.doc.Get("body")
	if body.IsNull() {
		return 0
	}
	return body.Call("getElementsByTagName", "*").Length()
}

// Location implements dom.Host.
func (d *Document) Location() string {
	return d.win.Get("location").Get("href").String()
}

// UserAgent implements dom.Host.
func (d *Document) UserAgent() string {
	return d.win.Get("navigator").Get("userAgent").String()
}

// Listen implements dom.Host for window events.
func (d *Document) Listen(event string, fn func(dom.Event)) func() {
	return listen(d.win, event, func(ev js.Value) {
		fn(d.event(event, ev))
	})
}

func (d *Document) event(typ string, ev js.Value) dom.Event {
	var target dom.Element
	if el := d.wrap(ev.Get("target")); el != nil {
		target = el
	}
	return dom.NewEvent(typ, target, func() { ev.Call("preventDefault") })
}

// listen adds a JS listener and returns a function removing it and
// releasing the callback.
func listen(target js.Value, event string, fn func(js.Value)) func() {
	cb := js.FuncOf(func(_ js.Value, args []js.Value) any {
		if len(args) > 0 {
			fn(args[0])
		}
		return nil
	})
	// Touch handlers call preventDefault, so they cannot be passive.
	opts := map[string]any{"passive": false}
	target.Call("addEventListener", event, cb, opts)

	var once sync.Once
	return func() {
		once.Do(func() {
			target.Call("removeEventListener", event, cb, opts)
			cb.Release()
		})
	}
}

// Observe implements dom.Host with a MutationObserver on body.
func (d *Document) Observe(fn func([]dom.Mutation)) func() {
	cb := js.FuncOf(func(_ js.Value, args []js.Value) any {
		if len(args) == 0 {
			return nil
		}
		fn(d.mutations(args[0]))
		return nil
	})

	observer := d.win.Get("MutationObserver").New(cb)
	observer.Call("observe", d.doc.Get("body"), map[string]any{
		"childList":       true,
		"subtree":         true,
		"attributes":      true,
		"attributeFilter": []any{"style", "class", "hidden"},
	})

	var once sync.Once
	return func() {
		once.Do(func() {
			observer.Call("disconnect")
			cb.Release()
		})
	}
}

func (d *Document) mutations(records js.Value) []dom.Mutation {
	batch := make([]dom.Mutation, 0, records.Length())
	var detached []js.Value
	for i := range records.Length() {
		r := records.Index(i)
		var m dom.Mutation
		if el := d.wrap(r.Get("target")); el != nil {
			m.Target = el
		}

		switch r.Get("type").String() {
		case "attributes":
			m.Type = dom.Attributes
			m.Attribute = r.Get("attributeName").String()
		default:
			m.Type = dom.ChildList
			added, removed := r.Get("addedNodes"), r.Get("removedNodes")
			m.AddedNodes, m.RemovedNodes = added.Length(), removed.Length()
			m.Added = d.wrapList(added)
			for j := range removed.Length() {
				n := removed.Index(j)
				if !isElement(n) {
					continue
				}
				if el := d.wrap(n); el != nil {
					m.Removed = append(m.Removed, el)
				}
				if !n.Get("isConnected").Bool() {
					detached = append(detached, n)
				}
			}
		}
		batch = append(batch, m)
	}
	for _, n := range detached {
		d.forget(n)
	}
	return batch
}
