package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltyorg/vidprev/internal/session"
	"github.com/saltyorg/vidprev/internal/source"
)

type fakeSource struct {
	transitions []func(session.Transition)
	discards    []func(string)
}

func (f *fakeSource) OnTransition(fn func(session.Transition)) {
	f.transitions = append(f.transitions, fn)
}

func (f *fakeSource) OnDiscard(fn func(string)) {
	f.discards = append(f.discards, fn)
}

func (f *fakeSource) emit(t session.Transition) {
	for _, fn := range f.transitions {
		fn(t)
	}
}

func (f *fakeSource) discard(itemID string) {
	for _, fn := range f.discards {
		fn(itemID)
	}
}

func playFallbackThenLeave(src *fakeSource) {
	src.emit(session.Transition{From: session.Idle, To: session.Pending})
	src.emit(session.Transition{From: session.Pending, To: session.Resolving})
	src.emit(session.Transition{From: session.Resolving, To: session.Playing, Mode: source.TranscodedFallback})
	src.emit(session.Transition{From: session.Playing, To: session.TearingDown, Reason: session.ReasonPointerLeave})
	src.emit(session.Transition{From: session.TearingDown, To: session.Idle, Reason: session.ReasonPointerLeave})
	src.discard("item")
}

func TestSessionsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewSessions(reg)
	src := &fakeSource{}
	s.Observe(src)

	playFallbackThenLeave(src)

	assert.Equal(t, 1.0, testutil.ToFloat64(s.Started))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Playing.WithLabelValues("transcode")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Teardowns.WithLabelValues("pointer_leave")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.Discarded))
	assert.Equal(t, 1, testutil.CollectAndCount(s.TimeToPlay))
}

func TestSessionsStayOffDefaultRegistry(t *testing.T) {
	NewSessions(prometheus.NewRegistry()).Observe(&fakeSource{})

	samples, err := Snapshot(prometheus.DefaultGatherer)
	require.NoError(t, err)
	for _, s := range samples {
		assert.NotEqual(t, "vidprev_sessions_started_total", s.Name)
	}
}

func TestSnapshot(t *testing.T) {
	reg := prometheus.NewRegistry()
	src := &fakeSource{}
	NewSessions(reg).Observe(src)

	playFallbackThenLeave(src)

	samples, err := Snapshot(reg)
	require.NoError(t, err)
	assert.Equal(t, []Sample{
		{Name: "vidprev_discarded_results_total", Value: 1},
		{Name: "vidprev_previews_playing_total", Labels: "mode=transcode", Value: 1},
		{Name: "vidprev_sessions_started_total", Value: 1},
		{Name: "vidprev_teardowns_total", Labels: "reason=pointer_leave", Value: 1},
		{Name: "vidprev_time_to_play_seconds_count", Labels: "mode=transcode", Value: 1},
	}, samples)
}

func TestIncHTTPRequest(t *testing.T) {
	before := testutil.ToFloat64(HTTPRequests.WithLabelValues("unmatched", "404"))
	IncHTTPRequest("", 404)
	assert.Equal(t, before+1, testutil.ToFloat64(HTTPRequests.WithLabelValues("unmatched", "404")))
}
