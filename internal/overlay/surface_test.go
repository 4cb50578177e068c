package overlay

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltyorg/vidprev/internal/dom"
)

type fakeBox struct {
	rect    dom.Rect
	visible bool
}

func (b *fakeBox) SetRect(r dom.Rect)   { b.rect = r }
func (b *fakeBox) SetVisible(v bool)    { b.visible = v }
func (b *fakeBox) Visible() bool        { return b.visible }
func (b *fakeBox) Element() dom.Element { return nil }

type fakeMedia struct {
	src     string
	rate    float64
	current float64
	paused  bool
	playErr error
}

func (m *fakeMedia) SetSource(url string)           { m.src = url }
func (m *fakeMedia) Source() string                 { return m.src }
func (m *fakeMedia) SetPlaybackRate(rate float64)   { m.rate = rate }
func (m *fakeMedia) Pause()                         { m.paused = true }
func (m *fakeMedia) SetCurrentTime(seconds float64) { m.current = seconds }
func (m *fakeMedia) Play(context.Context) error {
	if m.playErr != nil {
		return m.playErr
	}
	m.paused = false
	return nil
}

func TestNewStartsHidden(t *testing.T) {
	box := &fakeBox{visible: true}
	s := New(box, &fakeMedia{})
	assert.False(t, s.Visible())
	assert.Nil(t, s.Element())
}

func TestShowSeeksAfterPlay(t *testing.T) {
	box := &fakeBox{}
	media := &fakeMedia{}
	s := New(box, media)

	s.Position(dom.Rect{Top: 10, Left: 20, Width: 300, Height: 170})
	require.NoError(t, s.Show(context.Background(), "http://jf/Videos/1/stream", 1.5, 300))

	assert.Equal(t, dom.Rect{Top: 10, Left: 20, Width: 300, Height: 170}, box.rect)
	assert.True(t, s.Visible())
	assert.Equal(t, "http://jf/Videos/1/stream", s.Source())
	assert.Equal(t, 1.5, media.rate)
	assert.Equal(t, 300.0, media.current)
	assert.False(t, media.paused)
}

func TestShowFailureSkipsSeek(t *testing.T) {
	media := &fakeMedia{playErr: errors.New("unsupported codec")}
	s := New(&fakeBox{}, media)

	err := s.Show(context.Background(), "http://jf/Videos/1/stream", 1, 300)
	require.Error(t, err)
	assert.Zero(t, media.current)
}

func TestPlayWithoutSource(t *testing.T) {
	s := New(&fakeBox{}, &fakeMedia{})
	assert.Error(t, s.Play(context.Background()))
}

func TestHideClearsSource(t *testing.T) {
	media := &fakeMedia{}
	s := New(&fakeBox{}, media)
	require.NoError(t, s.Show(context.Background(), "http://jf/a", 1, 60))

	s.Hide()
	assert.Empty(t, s.Source())
	assert.False(t, s.Visible())
	assert.True(t, media.paused)
	assert.Zero(t, media.current)

	s.Hide()
	assert.False(t, s.Visible())
}
