// Package overlay owns the single preview surface drawn over the active card.
// The surface is created once and reused for every session; only the session
// controller mutates it.
package overlay

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/saltyorg/vidprev/internal/dom"
)

// Media is the playback element hosted by the overlay.
type Media interface {
	SetSource(url string)
	Source() string
	SetPlaybackRate(rate float64)
	// Play starts playback and blocks until it has begun or failed.
	Play(ctx context.Context) error
	Pause()
	SetCurrentTime(seconds float64)
}

// Box is the positioned container around the media element.
type Box interface {
	SetRect(r dom.Rect)
	SetVisible(v bool)
	Visible() bool
	// Element returns the container for visibility checks, or nil when the
	// box does not live in a document.
	Element() dom.Element
}

// Surface pairs a Box with its Media.
type Surface struct {
	mu    sync.Mutex
	box   Box
	media Media
}

// New creates the surface in its hidden state.
func New(box Box, media Media) *Surface {
	s := &Surface{box: box, media: media}
	box.SetVisible(false)
	return s
}

// Position moves the surface over r.
func (s *Surface) Position(r dom.Rect) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.box.SetRect(r)
}

// Load sets the source and playback rate and makes the surface visible.
// It does not start playback.
func (s *Surface) Load(url string, speed float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.media.SetSource(url)
	s.media.SetPlaybackRate(speed)
	s.box.SetVisible(true)
}

// Play starts playback of the loaded source. It must not be called with the
// surface lock held since it blocks until the media element reports.
func (s *Surface) Play(ctx context.Context) error {
	if s.Source() == "" {
		return fmt.Errorf("play: no source loaded")
	}
	return s.media.Play(ctx)
}

// Seek moves playback to seconds. A seek issued before playback began is
// unreliable, so callers seek only after Play returned nil.
func (s *Surface) Seek(seconds float64) {
	if seconds <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.media.SetCurrentTime(seconds)
}

// Show loads url, plays it and seeks to seek once playback has begun.
func (s *Surface) Show(ctx context.Context, url string, speed, seek float64) error {
	s.Load(url, speed)
	if err := s.Play(ctx); err != nil {
		return err
	}
	s.Seek(seek)
	return nil
}

// Hide stops playback, resets the source to empty and hides the surface.
// An empty source stops the element from buffering in the background.
func (s *Surface) Hide() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.media.Source() != "" {
		s.media.Pause()
		s.media.SetCurrentTime(0)
		s.media.SetSource("")
		log.Debug().Msg("Preview video stopped and cleared")
	}
	s.box.SetVisible(false)
}

// Visible reports whether the surface is displayed.
func (s *Surface) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.box.Visible()
}

// Source returns the loaded source, empty when idle.
func (s *Surface) Source() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.media.Source()
}

// Element returns the overlay container element, if any.
func (s *Surface) Element() dom.Element {
	return s.box.Element()
}
