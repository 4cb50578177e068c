package htmldom

import (
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/saltyorg/vidprev/internal/dom"
)

// Element wraps an element node of a Document.
type Element struct {
	doc  *Document
	node *html.Node
}

var _ dom.Element = (*Element)(nil)

func selection(n *html.Node) *goquery.Selection {
	return goquery.NewDocumentFromNode(n).Selection
}

// Matches implements dom.Element.
func (e *Element) Matches(selector string) bool {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return selection(e.node).Is(selector)
}

// Closest implements dom.Element.
func (e *Element) Closest(selector string) dom.Element {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	nodes := selection(e.node).Closest(selector).Nodes
	if len(nodes) == 0 {
		return nil
	}
	return e.doc.element(nodes[0])
}

// QuerySelector implements dom.Element.
func (e *Element) QuerySelector(selector string) dom.Element {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	nodes := selection(e.node).Find(selector).Nodes
	if len(nodes) == 0 {
		return nil
	}
	return e.doc.element(nodes[0])
}

// QuerySelectorAll implements dom.Element.
func (e *Element) QuerySelectorAll(selector string) []dom.Element {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()
	return e.doc.wrap(selection(e.node).Find(selector))
}

// Attr implements dom.Element.
func (e *Element) Attr(name string) (string, bool) {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return attr(e.node, name)
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr implements dom.Element and delivers an attribute mutation.
func (e *Element) SetAttr(name, value string) {
	e.doc.mu.Lock()
	i := slices.IndexFunc(e.node.Attr, func(a html.Attribute) bool { return a.Key == name })
	if i >= 0 {
		e.node.Attr[i].Val = value
	} else {
		e.node.Attr = append(e.node.Attr, html.Attribute{Key: name, Val: value})
	}
	e.doc.mu.Unlock()

	e.doc.notify([]dom.Mutation{{Type: dom.Attributes, Target: e, Attribute: name}})
}

// RemoveAttr deletes an attribute and delivers an attribute mutation.
func (e *Element) RemoveAttr(name string) {
	e.doc.mu.Lock()
	e.node.Attr = slices.DeleteFunc(e.node.Attr, func(a html.Attribute) bool { return a.Key == name })
	e.doc.mu.Unlock()

	e.doc.notify([]dom.Mutation{{Type: dom.Attributes, Target: e, Attribute: name}})
}

// Rect implements dom.Element.
func (e *Element) Rect() dom.Rect {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return e.doc.rects[e.node]
}

// Connected implements dom.Element.
func (e *Element) Connected() bool {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return connected(e.node)
}

func connected(n *html.Node) bool {
	for ; n != nil; n = n.Parent {
		if n.Type == html.DocumentNode {
			return true
		}
	}
	return false
}

// Rendered implements dom.Element.
func (e *Element) Rendered() bool {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()

	if !connected(e.node) || e.doc.rects[e.node].Empty() {
		return false
	}
	for n := e.node; n != nil && n.Type == html.ElementNode; n = n.Parent {
		if hiddenNode(n) {
			return false
		}
	}
	return true
}

func hiddenNode(n *html.Node) bool {
	if _, ok := attr(n, "hidden"); ok {
		return true
	}
	if class, ok := attr(n, "class"); ok && slices.Contains(strings.Fields(class), "hide") {
		return true
	}
	style, _ := attr(n, "style")
	decl := parseStyle(style)
	return decl["display"] == "none" || decl["visibility"] == "hidden"
}

// Listen implements dom.Element.
func (e *Element) Listen(event string, fn func(dom.Event)) func() {
	e.doc.mu.Lock()
	defer e.doc.mu.Unlock()

	l := &listener{fn: fn}
	byEvent, ok := e.doc.listeners[e.node]
	if !ok {
		byEvent = make(map[string][]*listener)
		e.doc.listeners[e.node] = byEvent
	}
	byEvent[event] = append(byEvent[event], l)

	return func() {
		e.doc.mu.Lock()
		defer e.doc.mu.Unlock()
		byEvent[event] = removeListener(byEvent[event], l)
	}
}

// ListenerCount returns how many listeners are registered for event on e.
func (e *Element) ListenerCount(event string) int {
	e.doc.mu.RLock()
	defer e.doc.mu.RUnlock()
	return len(e.doc.listeners[e.node][event])
}

// Tag returns the element's tag name.
func (e *Element) Tag() string {
	return e.node.Data
}

// parseStyle splits an inline style attribute into lower-cased declarations.
func parseStyle(style string) map[string]string {
	decl := make(map[string]string)
	for part := range strings.SplitSeq(style, ";") {
		key, val, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		val = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(val), "!important"))
		decl[strings.ToLower(strings.TrimSpace(key))] = strings.ToLower(val)
	}
	return decl
}
