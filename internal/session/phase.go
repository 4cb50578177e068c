package session

import (
	"fmt"

	"github.com/saltyorg/vidprev/internal/source"
)

// Phase is the lifecycle stage of the preview session.
type Phase int

const (
	// Idle has no bound target and a hidden overlay.
	Idle Phase = iota
	// Pending has a bound target and an armed hover delay timer.
	Pending
	// Resolving is looking up the media and negotiating a stream.
	Resolving
	// Playing shows the overlay over the captured rect.
	Playing
	// TearingDown is transient and only observable from transition callbacks.
	TearingDown
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Resolving:
		return "resolving"
	case Playing:
		return "playing"
	case TearingDown:
		return "tearing_down"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Live reports whether a session is bound.
func (p Phase) Live() bool {
	return p != Idle
}

// Reason explains why a session was torn down.
type Reason string

const (
	ReasonRetarget         Reason = "retarget"
	ReasonPointerLeave     Reason = "pointer_leave"
	ReasonClick            Reason = "click"
	ReasonNavigation       Reason = "navigation"
	ReasonMutation         Reason = "mutation"
	ReasonVisibility       Reason = "visibility"
	ReasonZeroSize         Reason = "zero_size"
	ReasonResolutionFailed Reason = "resolution_failed"
	ReasonPlaybackFailed   Reason = "playback_failed"
	ReasonUnload           Reason = "unload"
	ReasonShutdown         Reason = "shutdown"
)

// Transition is delivered to OnTransition observers.
type Transition struct {
	From   Phase
	To     Phase
	ItemID string
	// Reason is set on the two steps of a teardown.
	Reason Reason
	// Mode is set when entering Playing.
	Mode source.Mode
}
