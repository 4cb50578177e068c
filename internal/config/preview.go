package config

import (
	"fmt"
	"time"
)

// InputMode selects which listener pair the binder attaches to cards.
type InputMode string

const (
	// InputAuto picks pointer or touch from the user agent at startup.
	InputAuto    InputMode = "auto"
	InputPointer InputMode = "pointer"
	InputTouch   InputMode = "touch"
)

// Setting keys read by LoadPreview.
const (
	KeyStartTime         = "preview.start_time_seconds"
	KeyPlaybackSpeed     = "preview.playback_speed"
	KeyHoverDelay        = "preview.hover_delay_ms"
	KeyTranscodeWidth    = "preview.transcode_width"
	KeyMutationThreshold = "preview.mutation_threshold"
	KeyInputMode         = "preview.input_mode"
	KeyNavigationPoll    = "preview.navigation_poll"
	KeyVisibilityPoll    = "preview.visibility_poll"
)

// Preview is the process-wide preview configuration. It is fixed at startup
// and passed by value.
type Preview struct {
	// StartTime is where previews begin, in seconds.
	StartTime int
	// PlaybackSpeed is the playback rate multiplier.
	PlaybackSpeed float64
	// HoverDelay is how long intent must persist before a preview starts.
	HoverDelay time.Duration
	// TranscodeWidth is the fallback stream width in pixels; the height is
	// derived at 16:9.
	TranscodeWidth int

	// MutationThreshold is the fraction of document elements a single
	// mutation batch may change before an active preview is torn down.
	MutationThreshold float64
	InputMode         InputMode
	NavigationPoll    time.Duration
	VisibilityPoll    time.Duration
}

// DefaultPreview returns the default preview configuration.
func DefaultPreview() Preview {
	return Preview{
		StartTime:         300,
		PlaybackSpeed:     1.0,
		HoverDelay:        100 * time.Millisecond,
		TranscodeWidth:    320,
		MutationThreshold: 0.006,
		InputMode:         InputAuto,
		NavigationPoll:    250 * time.Millisecond,
		VisibilityPoll:    500 * time.Millisecond,
	}
}

// LoadPreview reads the preview settings over the defaults and validates them.
func LoadPreview(loader *Loader) (Preview, error) {
	def := DefaultPreview()
	p := Preview{
		StartTime:         loader.Int(KeyStartTime, def.StartTime),
		PlaybackSpeed:     loader.Float64(KeyPlaybackSpeed, def.PlaybackSpeed),
		HoverDelay:        loader.DurationMillis(KeyHoverDelay, def.HoverDelay),
		TranscodeWidth:    loader.Int(KeyTranscodeWidth, def.TranscodeWidth),
		MutationThreshold: loader.Float64(KeyMutationThreshold, def.MutationThreshold),
		InputMode:         InputMode(loader.String(KeyInputMode, string(def.InputMode))),
		NavigationPoll:    loader.Duration(KeyNavigationPoll, def.NavigationPoll),
		VisibilityPoll:    loader.Duration(KeyVisibilityPoll, def.VisibilityPoll),
	}
	if err := p.Validate(); err != nil {
		return Preview{}, err
	}
	return p, nil
}

// Validate checks values are within acceptable bounds.
func (p Preview) Validate() error {
	if p.StartTime < 0 {
		return fmt.Errorf("start time must not be negative, got %d", p.StartTime)
	}
	if p.PlaybackSpeed <= 0 || p.PlaybackSpeed > 16 {
		return fmt.Errorf("playback speed must be in (0, 16], got %g", p.PlaybackSpeed)
	}
	if p.HoverDelay < 0 {
		return fmt.Errorf("hover delay must not be negative, got %s", p.HoverDelay)
	}
	if p.TranscodeWidth < 16 {
		return fmt.Errorf("transcode width must be at least 16, got %d", p.TranscodeWidth)
	}
	if p.MutationThreshold <= 0 || p.MutationThreshold > 1 {
		return fmt.Errorf("mutation threshold must be in (0, 1], got %g", p.MutationThreshold)
	}
	switch p.InputMode {
	case InputAuto, InputPointer, InputTouch:
	default:
		return fmt.Errorf("unsupported input mode %q (valid: auto, pointer, touch)", p.InputMode)
	}
	if p.NavigationPoll <= 0 {
		return fmt.Errorf("navigation poll interval must be positive, got %s", p.NavigationPoll)
	}
	if p.VisibilityPoll <= 0 {
		return fmt.Errorf("visibility poll interval must be positive, got %s", p.VisibilityPoll)
	}
	return nil
}

// StartSeconds returns the start offset as seconds for seeking.
func (p Preview) StartSeconds() float64 {
	return float64(p.StartTime)
}
