package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapSettings map[string]string

func (m mapSettings) GetSetting(key string) (string, error) {
	return m[key], nil
}

type failingSettings struct{}

func (failingSettings) GetSetting(string) (string, error) {
	return "", errors.New("database is locked")
}

func TestLoadPreview_Defaults(t *testing.T) {
	p, err := LoadPreview(NewLoader(nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultPreview(), p)
	assert.Equal(t, 300, p.StartTime)
	assert.Equal(t, 100*time.Millisecond, p.HoverDelay)
	assert.Equal(t, 320, p.TranscodeWidth)
}

func TestLoadPreview_StoredValuesOverrideDefaults(t *testing.T) {
	loader := NewLoader(mapSettings{
		KeyStartTime:         "1800",
		KeyPlaybackSpeed:     "2.0",
		KeyHoverDelay:        "250",
		KeyTranscodeWidth:    "480",
		KeyMutationThreshold: "0.1",
		KeyInputMode:         "touch",
		KeyNavigationPoll:    "1s",
		KeyVisibilityPoll:    "750ms",
	})

	p, err := LoadPreview(loader)
	require.NoError(t, err)
	assert.Equal(t, 1800, p.StartTime)
	assert.Equal(t, 2.0, p.PlaybackSpeed)
	assert.Equal(t, 250*time.Millisecond, p.HoverDelay)
	assert.Equal(t, 480, p.TranscodeWidth)
	assert.Equal(t, 0.1, p.MutationThreshold)
	assert.Equal(t, InputTouch, p.InputMode)
	assert.Equal(t, time.Second, p.NavigationPoll)
	assert.Equal(t, 750*time.Millisecond, p.VisibilityPoll)
}

func TestLoadPreview_InvalidStoredValuesFallBack(t *testing.T) {
	p, err := LoadPreview(NewLoader(mapSettings{
		KeyStartTime:     "soon",
		KeyPlaybackSpeed: "fast",
	}))
	require.NoError(t, err)
	assert.Equal(t, 300, p.StartTime)
	assert.Equal(t, 1.0, p.PlaybackSpeed)
}

func TestLoadPreview_StoreErrorsUseDefaults(t *testing.T) {
	p, err := LoadPreview(NewLoader(failingSettings{}))
	require.NoError(t, err)
	assert.Equal(t, DefaultPreview(), p)
}

func TestPreviewValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Preview)
		ok     bool
	}{
		{name: "defaults", mutate: func(*Preview) {}, ok: true},
		{name: "zero start is allowed", mutate: func(p *Preview) { p.StartTime = 0 }, ok: true},
		{name: "negative start", mutate: func(p *Preview) { p.StartTime = -1 }},
		{name: "zero speed", mutate: func(p *Preview) { p.PlaybackSpeed = 0 }},
		{name: "narrow transcode", mutate: func(p *Preview) { p.TranscodeWidth = 8 }},
		{name: "threshold above one", mutate: func(p *Preview) { p.MutationThreshold = 1.5 }},
		{name: "zero threshold", mutate: func(p *Preview) { p.MutationThreshold = 0 }},
		{name: "unknown input mode", mutate: func(p *Preview) { p.InputMode = "stylus" }},
		{name: "zero navigation poll", mutate: func(p *Preview) { p.NavigationPoll = 0 }},
		{name: "negative hover delay", mutate: func(p *Preview) { p.HoverDelay = -time.Millisecond }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPreview()
			tt.mutate(&p)
			err := p.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
