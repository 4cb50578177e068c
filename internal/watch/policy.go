// Package watch detects ambient changes that invalidate a live preview:
// heavy DOM churn, navigation, lost visibility, clicks and page unload.
// Every observation is reduced to a Signal and judged by one Policy.
package watch

import (
	"fmt"

	"github.com/saltyorg/vidprev/internal/session"
)

// SignalKind identifies the source of a Signal.
type SignalKind int

const (
	// SignalMutation is a DOM mutation batch.
	SignalMutation SignalKind = iota
	// SignalVisibility is a visibility check of the target and overlay.
	SignalVisibility
	// SignalLocation is a location change seen by polling.
	SignalLocation
	// SignalHistory is a popstate or hashchange event.
	SignalHistory
	// SignalClick is a click or tap anywhere in the window.
	SignalClick
	// SignalUnload is pagehide or beforeunload.
	SignalUnload
)

func (k SignalKind) String() string {
	switch k {
	case SignalMutation:
		return "mutation"
	case SignalVisibility:
		return "visibility"
	case SignalLocation:
		return "location"
	case SignalHistory:
		return "history"
	case SignalClick:
		return "click"
	case SignalUnload:
		return "unload"
	default:
		return fmt.Sprintf("SignalKind(%d)", int(k))
	}
}

// Signal is one observation.
type Signal struct {
	Kind SignalKind
	// Changed and Total are the nodes touched by a mutation batch and the
	// element count of the document when it was handled.
	Changed int
	Total   int
	// Visible is the result of a visibility check.
	Visible bool
}

// MutationSignal builds a SignalMutation.
func MutationSignal(changed, total int) Signal {
	return Signal{Kind: SignalMutation, Changed: changed, Total: total}
}

// Policy decides whether a signal ends the live session.
type Policy struct {
	// Threshold is the changed/total ratio a mutation batch must exceed.
	Threshold float64
}

// ShouldTeardown returns the teardown reason for s in phase, if any.
func (p Policy) ShouldTeardown(phase session.Phase, s Signal) (session.Reason, bool) {
	if s.Kind == SignalUnload {
		return session.ReasonUnload, true
	}
	if !phase.Live() || phase == session.TearingDown {
		return "", false
	}

	switch s.Kind {
	case SignalMutation:
		if phase != session.Resolving && phase != session.Playing {
			return "", false
		}
		if s.Total <= 0 || s.Changed <= 0 {
			return "", false
		}
		if float64(s.Changed)/float64(s.Total) > p.Threshold {
			return session.ReasonMutation, true
		}
	case SignalVisibility:
		if !s.Visible {
			return session.ReasonVisibility, true
		}
	case SignalLocation, SignalHistory:
		return session.ReasonNavigation, true
	case SignalClick:
		if phase == session.Playing {
			return session.ReasonClick, true
		}
	}
	return "", false
}
