package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Override keys as they appear in the loader script's dataset, e.g.
// data-start-time becomes startTime.
const (
	OverrideStartTime         = "startTime"
	OverridePlaybackSpeed     = "playbackSpeed"
	OverrideHoverDelay        = "hoverDelay"
	OverrideTranscodeWidth    = "transcodeWidth"
	OverrideMutationThreshold = "mutationThreshold"
	OverrideInputMode         = "inputMode"
	OverrideNavigationPoll    = "navigationPoll"
	OverrideVisibilityPoll    = "visibilityPoll"

	// OverrideServerURL pins the Jellyfin address.
	OverrideServerURL = "serverUrl"
	OverrideLogLevel  = "logLevel"
)

// LoaderGlobal is the window property the loader script stores the merged
// configuration in before the engine starts.
const LoaderGlobal = "vidprevConfig"

// Values renders p as override values. Durations are milliseconds.
func (p Preview) Values() map[string]string {
	return map[string]string{
		OverrideStartTime:         strconv.Itoa(p.StartTime),
		OverridePlaybackSpeed:     strconv.FormatFloat(p.PlaybackSpeed, 'f', -1, 64),
		OverrideHoverDelay:        strconv.FormatInt(p.HoverDelay.Milliseconds(), 10),
		OverrideTranscodeWidth:    strconv.Itoa(p.TranscodeWidth),
		OverrideMutationThreshold: strconv.FormatFloat(p.MutationThreshold, 'f', -1, 64),
		OverrideInputMode:         string(p.InputMode),
		OverrideNavigationPoll:    strconv.FormatInt(p.NavigationPoll.Milliseconds(), 10),
		OverrideVisibilityPoll:    strconv.FormatInt(p.VisibilityPoll.Milliseconds(), 10),
	}
}

// ApplyOverrides returns p with every recognised key in values applied.
// Unknown keys are ignored; a malformed value is an error.
func ApplyOverrides(p Preview, values map[string]string) (Preview, error) {
	for key, raw := range values {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		var err error
		switch key {
		case OverrideStartTime:
			p.StartTime, err = strconv.Atoi(raw)
		case OverridePlaybackSpeed:
			p.PlaybackSpeed, err = strconv.ParseFloat(raw, 64)
		case OverrideHoverDelay:
			p.HoverDelay, err = parseMillis(raw)
		case OverrideTranscodeWidth:
			p.TranscodeWidth, err = strconv.Atoi(raw)
		case OverrideMutationThreshold:
			p.MutationThreshold, err = strconv.ParseFloat(raw, 64)
		case OverrideInputMode:
			p.InputMode = InputMode(strings.ToLower(raw))
		case OverrideNavigationPoll:
			p.NavigationPoll, err = parseMillis(raw)
		case OverrideVisibilityPoll:
			p.VisibilityPoll, err = parseMillis(raw)
		default:
			continue
		}
		if err != nil {
			return p, fmt.Errorf("invalid %s %q: %w", key, raw, err)
		}
	}
	return p, p.Validate()
}

func parseMillis(raw string) (time.Duration, error) {
	ms, err := strconv.Atoi(raw)
	return time.Duration(ms) * time.Millisecond, err
}
