// Package binder attaches hover or touch intent listeners to Jellyfin cards,
// including cards the web client renders after startup.
package binder

import (
	"errors"
	"regexp"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/vidprev/internal/config"
	"github.com/saltyorg/vidprev/internal/dom"
	"github.com/saltyorg/vidprev/internal/eventloop"
)

const (
	// CardSelector matches poster cards and large list item images.
	CardSelector = ".cardOverlayContainer, .listItemImage.listItemImage-large.itemAction"

	listImageSelector = ".listItemImage"
	listItemSelector  = ".listItem.listItem-largeImage.listItem-withContentWrapper"
	itemButtonSelect  = "button[data-id]"

	// AttachedAttr marks cards and targets that already carry listeners.
	AttachedAttr = "data-listener-attached"
)

var (
	ErrNoListItem = errors.New("list image has no parent list item")
	ErrNoItemID   = errors.New("card carries no item id")
)

var mobileUA = regexp.MustCompile(`(?i)Android|webOS|iPhone|iPad|iPod|BlackBerry|IEMobile|Opera Mini`)

// DetectInputMode picks touch for mobile user agents and pointer otherwise.
func DetectInputMode(userAgent string) config.InputMode {
	if mobileUA.MatchString(userAgent) {
		return config.InputTouch
	}
	return config.InputPointer
}

// Binding maps a card to the element that owns its listeners, the element
// whose box the overlay covers and the item it previews.
type Binding struct {
	Card      dom.Element
	Target    dom.Element
	Container dom.Element
	ItemID    string
}

// Resolve computes the binding for card. List images hand their listeners
// and item id to the enclosing list item, which gives a reliable leave
// event; the image stays the container.
func Resolve(card dom.Element) (Binding, error) {
	b := Binding{Card: card, Target: card, Container: card}

	if card.Matches(listImageSelector) {
		parent := card.Closest(listItemSelector)
		if parent == nil {
			return b, ErrNoListItem
		}
		b.Target = parent
		b.ItemID, _ = parent.Attr("data-id")
	} else {
		b.ItemID, _ = card.Attr("data-id")
		if b.ItemID == "" {
			if btn := card.QuerySelector(itemButtonSelect); btn != nil {
				b.ItemID, _ = btn.Attr("data-id")
			}
		}
	}

	if b.ItemID == "" {
		return b, ErrNoItemID
	}
	return b, nil
}

// Controller receives intent from bound cards.
type Controller interface {
	Intent(target, container dom.Element, itemID string)
	Leave(target dom.Element)
}

// Binder owns the discovery watcher and the per-card listeners. Start, Stop
// and Bind run on the loop.
type Binder struct {
	host  dom.Host
	loop  *eventloop.Loop
	ctrl  Controller
	touch bool

	observer func()
	cancels  []func()
	bound    int
}

// New creates a binder. InputAuto is resolved from the host user agent once,
// here.
func New(host dom.Host, loop *eventloop.Loop, ctrl Controller, mode config.InputMode) *Binder {
	if mode == config.InputAuto || mode == "" {
		mode = DetectInputMode(host.UserAgent())
	}
	return &Binder{
		host:  host,
		loop:  loop,
		ctrl:  ctrl,
		touch: mode == config.InputTouch,
	}
}

// Touch reports whether touch listeners are attached instead of pointer ones.
func (b *Binder) Touch() bool {
	return b.touch
}

// Bound returns how many cards carry listeners.
func (b *Binder) Bound() int {
	return b.bound
}

// Start binds the cards already in the document and watches for new ones.
func (b *Binder) Start() {
	if b.observer != nil {
		return
	}
	b.observer = b.host.Observe(func(batch []dom.Mutation) {
		b.loop.Post(func() { b.onMutations(batch) })
	})

	for _, card := range b.host.QuerySelectorAll(CardSelector) {
		b.Bind(card)
	}
	log.Info().Bool("touch", b.touch).Int("cards", b.bound).Msg("Preview listeners attached")
}

// Stop detaches the discovery watcher and every card listener. Cards keep
// their marker attribute.
func (b *Binder) Stop() {
	if b.observer != nil {
		b.observer()
		b.observer = nil
	}
	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
}

func (b *Binder) onMutations(batch []dom.Mutation) {
	if b.observer == nil {
		return
	}
	for _, m := range batch {
		for _, el := range m.Added {
			if el.Matches(CardSelector) {
				b.Bind(el)
				continue
			}
			for _, card := range el.QuerySelectorAll(CardSelector) {
				b.Bind(card)
			}
		}
	}
}

// Bind attaches listeners to card unless it is already bound. It reports
// whether listeners were attached.
func (b *Binder) Bind(card dom.Element) bool {
	if _, ok := card.Attr(AttachedAttr); ok {
		return false
	}

	binding, err := Resolve(card)
	if err != nil {
		log.Warn().Err(err).Msg("Skipping card")
		return false
	}
	if _, ok := binding.Target.Attr(AttachedAttr); ok && binding.Target != card {
		card.SetAttr(AttachedAttr, "true")
		return false
	}

	enter, leave := dom.EventMouseEnter, dom.EventMouseLeave
	if b.touch {
		enter, leave = dom.EventTouchStart, dom.EventTouchEnd
	}

	target, container, itemID := binding.Target, binding.Container, binding.ItemID
	b.cancels = append(b.cancels,
		target.Listen(enter, func(ev dom.Event) {
			if b.touch {
				ev.PreventDefault()
			}
			b.loop.Post(func() { b.ctrl.Intent(target, container, itemID) })
		}),
		target.Listen(leave, func(ev dom.Event) {
			if b.touch {
				ev.PreventDefault()
			}
			b.loop.Post(func() { b.ctrl.Leave(target) })
		}),
	)

	card.SetAttr(AttachedAttr, "true")
	if target != card {
		target.SetAttr(AttachedAttr, "true")
	}
	b.bound++

	log.Debug().Str("item_id", itemID).Bool("touch", b.touch).Msg("Attached preview listeners")
	return true
}
