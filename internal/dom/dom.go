// Package dom describes the slice of a browser document the preview engine
// relies on. The engine never touches a concrete DOM; it talks to a Host and
// its Elements, which are implemented by the headless htmldom package and by
// the js/wasm jsdom package.
//
// Element values are compared by identity (==), so implementations must hand
// out the same Element value for the same underlying node.
package dom

// Event names used by the engine.
const (
	EventMouseEnter   = "mouseenter"
	EventMouseLeave   = "mouseleave"
	EventTouchStart   = "touchstart"
	EventTouchEnd     = "touchend"
	EventClick        = "click"
	EventPopState     = "popstate"
	EventHashChange   = "hashchange"
	EventPageHide     = "pagehide"
	EventBeforeUnload = "beforeunload"
)

// Rect is a bounding box in page coordinates (viewport rect plus scroll offset).
type Rect struct {
	Top    float64
	Left   float64
	Width  float64
	Height float64
}

// Empty reports whether the rect has no renderable area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Event is delivered to listeners registered with Listen.
type Event struct {
	Type   string
	Target Element

	prevent func()
}

// NewEvent builds an event. prevent is invoked by PreventDefault and may be nil.
func NewEvent(typ string, target Element, prevent func()) Event {
	return Event{Type: typ, Target: target, prevent: prevent}
}

// PreventDefault cancels the host's default action for the event, if any.
func (e Event) PreventDefault() {
	if e.prevent != nil {
		e.prevent()
	}
}

// MutationType distinguishes child list changes from attribute changes.
type MutationType int

const (
	ChildList MutationType = iota
	Attributes
)

// Mutation is one record of a mutation batch.
type Mutation struct {
	Type      MutationType
	Target    Element
	Added     []Element
	Removed   []Element
	Attribute string

	// AddedNodes and RemovedNodes count every node (text nodes included),
	// Added and Removed only carry the element nodes.
	AddedNodes   int
	RemovedNodes int
}

// Element is a node in the host document.
type Element interface {
	// Matches reports whether the element matches a CSS selector.
	Matches(selector string) bool
	// Closest returns the nearest inclusive ancestor matching selector, or nil.
	Closest(selector string) Element
	// QuerySelector returns the first matching descendant, or nil.
	QuerySelector(selector string) Element
	// QuerySelectorAll returns every matching descendant in document order.
	QuerySelectorAll(selector string) []Element

	Attr(name string) (string, bool)
	SetAttr(name, value string)

	// Rect returns the element's bounding box in page coordinates.
	Rect() Rect
	// Connected reports whether the element is attached to the document.
	Connected() bool
	// Rendered reports whether the element is visible: not display:none,
	// not hidden, and with a rendered box.
	Rendered() bool

	// Listen registers fn for event and returns a function removing it.
	Listen(event string, fn func(Event)) (cancel func())
}

// Host is the window/document pair the engine runs against.
type Host interface {
	QuerySelectorAll(selector string) []Element
	// Observe subscribes fn to mutation batches for the whole body subtree,
	// attribute changes included.
	Observe(fn func([]Mutation)) (cancel func())
	// Listen registers a window level listener.
	Listen(event string, fn func(Event)) (cancel func())
	// Location returns the current URL.
	Location() string
	UserAgent() string
	// ElementCount returns the number of elements under body.
	ElementCount() int
}

// ChangedNodes sums added and removed nodes across a mutation batch.
func ChangedNodes(batch []Mutation) int {
	n := 0
	for _, m := range batch {
		n += m.AddedNodes + m.RemovedNodes
	}
	return n
}
