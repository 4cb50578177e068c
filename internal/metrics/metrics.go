// Package metrics exposes Prometheus collectors for preview sessions and the
// asset server.
package metrics

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/saltyorg/vidprev/internal/session"
)

// HTTPRequests counts asset server requests by route and status code.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "vidprev_http_requests_total",
	Help: "Asset server requests by route and status code",
}, []string{"route", "code"})

// IncHTTPRequest records one asset server response.
func IncHTTPRequest(route string, code int) {
	if route == "" {
		route = "unmatched"
	}
	HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// Sessions holds the lifecycle collectors of one engine.
type Sessions struct {
	Started    prometheus.Counter
	Playing    *prometheus.CounterVec
	Teardowns  *prometheus.CounterVec
	Discarded  prometheus.Counter
	TimeToPlay *prometheus.HistogramVec
}

// NewSessions registers the session collectors with reg.
func NewSessions(reg prometheus.Registerer) *Sessions {
	f := promauto.With(reg)
	return &Sessions{
		Started: f.NewCounter(prometheus.CounterOpts{
			Name: "vidprev_sessions_started_total",
			Help: "Preview sessions started by hover or touch intent",
		}),
		Playing: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vidprev_previews_playing_total",
			Help: "Previews that started playing by stream mode",
		}, []string{"mode"}),
		Teardowns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vidprev_teardowns_total",
			Help: "Preview session teardowns by reason",
		}, []string{"reason"}),
		Discarded: f.NewCounter(prometheus.CounterOpts{
			Name: "vidprev_discarded_results_total",
			Help: "Resolution or playback results discarded because the session moved on",
		}),
		TimeToPlay: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vidprev_time_to_play_seconds",
			Help:    "Time from resolution start to preview playback",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"mode"}),
	}
}

// Source is a session controller that reports its transitions.
type Source interface {
	OnTransition(fn func(session.Transition))
	OnDiscard(fn func(itemID string))
}

// Observe records the controller's lifecycle. The callbacks run on the
// controller's loop, so resolving is never touched concurrently.
func (s *Sessions) Observe(src Source) {
	var resolving time.Time

	src.OnTransition(func(t session.Transition) {
		switch t.To {
		case session.Pending:
			s.Started.Inc()
		case session.Resolving:
			resolving = time.Now()
		case session.Playing:
			mode := t.Mode.String()
			s.Playing.WithLabelValues(mode).Inc()
			if !resolving.IsZero() {
				s.TimeToPlay.WithLabelValues(mode).Observe(time.Since(resolving).Seconds())
			}
		case session.TearingDown:
			s.Teardowns.WithLabelValues(string(t.Reason)).Inc()
			resolving = time.Time{}
		}
	})
	src.OnDiscard(func(string) {
		s.Discarded.Inc()
	})
}

// Sample is one gathered series. Histograms report their observation count
// under the _count suffix.
type Sample struct {
	Name   string  `json:"name"`
	Labels string  `json:"labels,omitempty"`
	Value  float64 `json:"value"`
}

// Snapshot gathers every counter and histogram from g, sorted by name and
// labels.
func Snapshot(g prometheus.Gatherer) ([]Sample, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}

	var out []Sample
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			sample := Sample{Name: mf.GetName(), Labels: labelString(m.GetLabel())}
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				sample.Value = m.GetCounter().GetValue()
			case dto.MetricType_HISTOGRAM:
				sample.Name += "_count"
				sample.Value = float64(m.GetHistogram().GetSampleCount())
			default:
				continue
			}
			out = append(out, sample)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Labels < out[j].Labels
	})
	return out, nil
}

func labelString(pairs []*dto.LabelPair) string {
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		parts = append(parts, p.GetName()+"="+p.GetValue())
	}
	return strings.Join(parts, ",")
}
