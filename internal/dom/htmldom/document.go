// Package htmldom is a headless dom.Host built on goquery. Layout is explicit:
// callers assign page rects with SetRect, and visibility follows the inline
// style, the hidden attribute and Jellyfin's "hide" class.
package htmldom

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/saltyorg/vidprev/internal/dom"
)

// bubbling lists the events that propagate from the target to the window.
var bubbling = map[string]bool{
	dom.EventClick:      true,
	dom.EventTouchStart: true,
	dom.EventTouchEnd:   true,
}

// Option configures a Document.
type Option func(*Document)

// WithLocation sets the initial location.
func WithLocation(url string) Option {
	return func(d *Document) { d.location = url }
}

// WithUserAgent sets the user agent reported to the engine.
func WithUserAgent(ua string) Option {
	return func(d *Document) { d.userAgent = ua }
}

type listener struct {
	fn func(dom.Event)
}

// Document is a parsed HTML document that satisfies dom.Host.
type Document struct {
	mu sync.RWMutex

	doc       *goquery.Document
	elems     map[*html.Node]*Element
	rects     map[*html.Node]dom.Rect
	listeners map[*html.Node]map[string][]*listener
	window    map[string][]*listener
	observers map[int]func([]dom.Mutation)
	nextObs   int

	location  string
	userAgent string
}

// Parse reads an HTML document.
func Parse(r io.Reader, opts ...Option) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	d := &Document{
		doc:       doc,
		elems:     make(map[*html.Node]*Element),
		rects:     make(map[*html.Node]dom.Rect),
		listeners: make(map[*html.Node]map[string][]*listener),
		window:    make(map[string][]*listener),
		observers: make(map[int]func([]dom.Mutation)),
		location:  "about:blank",
		userAgent: "Mozilla/5.0 (X11; Linux x86_64) vidprev",
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// ParseString is Parse over a string.
func ParseString(s string, opts ...Option) (*Document, error) {
	return Parse(strings.NewReader(s), opts...)
}

// element returns the cached wrapper for n. Caller must hold d.mu.
func (d *Document) element(n *html.Node) *Element {
	if n == nil {
		return nil
	}
	if el, ok := d.elems[n]; ok {
		return el
	}
	el := &Element{doc: d, node: n}
	d.elems[n] = el
	return el
}

func (d *Document) wrap(sel *goquery.Selection) []dom.Element {
	out := make([]dom.Element, 0, len(sel.Nodes))
	for _, n := range sel.Nodes {
		if n.Type == html.ElementNode {
			out = append(out, d.element(n))
		}
	}
	return out
}

// Body returns the body element.
func (d *Document) Body() *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	nodes := d.doc.Find("body").Nodes
	if len(nodes) == 0 {
		return nil
	}
	return d.element(nodes[0])
}

// Find returns the first element matching selector, or nil.
func (d *Document) Find(selector string) *Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	nodes := d.doc.Find(selector).Nodes
	if len(nodes) == 0 {
		return nil
	}
	return d.element(nodes[0])
}

// QuerySelectorAll implements dom.Host.
func (d *Document) QuerySelectorAll(selector string) []dom.Element {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.wrap(d.doc.Find(selector))
}

// ElementCount implements dom.Host.
func (d *Document) ElementCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.doc.Find("body *").Length()
}

// Location implements dom.Host.
func (d *Document) Location() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.location
}

// UserAgent implements dom.Host.
func (d *Document) UserAgent() string {
	return d.userAgent
}

// Observe implements dom.Host.
func (d *Document) Observe(fn func([]dom.Mutation)) func() {
	d.mu.Lock()
	id := d.nextObs
	d.nextObs++
	d.observers[id] = fn
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.observers, id)
		d.mu.Unlock()
	}
}

// Listen implements dom.Host for window level events.
func (d *Document) Listen(event string, fn func(dom.Event)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := &listener{fn: fn}
	d.window[event] = append(d.window[event], l)
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.window[event] = removeListener(d.window[event], l)
	}
}

func removeListener(list []*listener, l *listener) []*listener {
	for i, x := range list {
		if x == l {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

func (d *Document) notify(batch []dom.Mutation) {
	if len(batch) == 0 {
		return
	}
	d.mu.RLock()
	fns := make([]func([]dom.Mutation), 0, len(d.observers))
	for _, fn := range d.observers {
		fns = append(fns, fn)
	}
	d.mu.RUnlock()

	for _, fn := range fns {
		fn(batch)
	}
}

// AppendHTML parses fragment in the context of parent, appends the resulting
// nodes and delivers a single child list mutation.
func (d *Document) AppendHTML(parent dom.Element, fragment string) ([]dom.Element, error) {
	p, ok := parent.(*Element)
	if !ok || p.doc != d {
		return nil, fmt.Errorf("parent does not belong to this document")
	}

	nodes, err := html.ParseFragment(strings.NewReader(fragment), p.node)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fragment: %w", err)
	}

	d.mu.Lock()
	var added []dom.Element
	for _, n := range nodes {
		p.node.AppendChild(n)
		if n.Type == html.ElementNode {
			added = append(added, d.element(n))
		}
	}
	d.mu.Unlock()

	d.notify([]dom.Mutation{{
		Type:       dom.ChildList,
		Target:     p,
		Added:      added,
		AddedNodes: len(nodes),
	}})
	return added, nil
}

// Remove detaches el from its parent and delivers a child list mutation.
func (d *Document) Remove(el dom.Element) {
	e, ok := el.(*Element)
	if !ok || e.doc != d {
		return
	}

	d.mu.Lock()
	parent := e.node.Parent
	if parent == nil {
		d.mu.Unlock()
		return
	}
	parent.RemoveChild(e.node)
	target := d.element(parent)
	d.mu.Unlock()

	d.notify([]dom.Mutation{{
		Type:         dom.ChildList,
		Target:       target,
		Removed:      []dom.Element{e},
		RemovedNodes: 1,
	}})
}

// SetRect assigns the page rect of el.
func (d *Document) SetRect(el dom.Element, r dom.Rect) {
	e, ok := el.(*Element)
	if !ok || e.doc != d {
		return
	}
	d.mu.Lock()
	d.rects[e.node] = r
	d.mu.Unlock()
}

// Navigate changes the location without firing any event, the way a client
// side router calling history.pushState does.
func (d *Document) Navigate(url string) {
	d.mu.Lock()
	d.location = url
	d.mu.Unlock()
}

// PopState changes the location and fires popstate on the window.
func (d *Document) PopState(url string) {
	d.Navigate(url)
	d.DispatchWindow(dom.EventPopState)
}

// SetHash replaces the fragment of the location and fires hashchange.
func (d *Document) SetHash(hash string) {
	d.mu.Lock()
	base, _, _ := strings.Cut(d.location, "#")
	d.location = base + "#" + strings.TrimPrefix(hash, "#")
	d.mu.Unlock()
	d.DispatchWindow(dom.EventHashChange)
}

// Dispatch fires event at el. Click and touch events bubble through the
// ancestors to the window. It reports whether a listener called PreventDefault.
func (d *Document) Dispatch(el dom.Element, event string) bool {
	e, ok := el.(*Element)
	if !ok || e.doc != d {
		return false
	}

	prevented := false
	ev := dom.NewEvent(event, e, func() { prevented = true })

	d.mu.RLock()
	var fns []func(dom.Event)
	for n := e.node; n != nil; n = n.Parent {
		for _, l := range d.listeners[n][event] {
			fns = append(fns, l.fn)
		}
		if !bubbling[event] {
			break
		}
	}
	if bubbling[event] {
		for _, l := range d.window[event] {
			fns = append(fns, l.fn)
		}
	}
	d.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
	return prevented
}

// DispatchWindow fires event on the window only.
func (d *Document) DispatchWindow(event string) {
	ev := dom.NewEvent(event, nil, nil)

	d.mu.RLock()
	fns := make([]func(dom.Event), 0, len(d.window[event]))
	for _, l := range d.window[event] {
		fns = append(fns, l.fn)
	}
	d.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// HTML renders the current document.
func (d *Document) HTML() (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return goquery.OuterHtml(d.doc.Selection)
}
