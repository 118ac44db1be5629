// Package types contains the evaluation summaries shared by the service and
// the status API.
package types

import (
	"time"

	"github.com/okian/hydropool/internal/domain/timewindow"
)

// Window is the JSON form of a pool time window. Unbounded sides are omitted.
type Window struct {
	EarliestReferenceTime *time.Time `json:"earliest_reference_time,omitempty"`
	LatestReferenceTime   *time.Time `json:"latest_reference_time,omitempty"`
	EarliestValidTime     *time.Time `json:"earliest_valid_time,omitempty"`
	LatestValidTime       *time.Time `json:"latest_valid_time,omitempty"`
	EarliestLeadDuration  string     `json:"earliest_lead_duration,omitempty"`
	LatestLeadDuration    string     `json:"latest_lead_duration,omitempty"`
}

// WindowOf converts a time window.
func WindowOf(w timewindow.TimeWindow) Window {
	return Window{
		EarliestReferenceTime: instant(w.EarliestReferenceTime),
		LatestReferenceTime:   instant(w.LatestReferenceTime),
		EarliestValidTime:     instant(w.EarliestValidTime),
		LatestValidTime:       instant(w.LatestValidTime),
		EarliestLeadDuration:  duration(w.EarliestLeadDuration),
		LatestLeadDuration:    duration(w.LatestLeadDuration),
	}
}

func instant(t time.Time) *time.Time {
	if t.Equal(timewindow.MinInstant) || t.Equal(timewindow.MaxInstant) {
		return nil
	}
	u := t.UTC()
	return &u
}

func duration(d time.Duration) string {
	if d == timewindow.MinDuration || d == timewindow.MaxDuration {
		return ""
	}
	return d.String()
}

// PoolSummary describes one pool of the last evaluation.
type PoolSummary struct {
	ID            uint64 `json:"id"`
	Group         string `json:"group"`
	Window        Window `json:"window"`
	Series        int    `json:"series"`
	Pairs         int    `json:"pairs"`
	BaselinePairs int    `json:"baseline_pairs,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Failed reports whether the pool failed to build.
func (p PoolSummary) Failed() bool { return p.Error != "" }

// Summary describes one evaluation.
type Summary struct {
	EvaluationID string        `json:"evaluation_id"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Events       int           `json:"events,omitempty"`
	Pools        []PoolSummary `json:"pools"`
}

// Failures counts the failed pools.
func (s Summary) Failures() int {
	n := 0
	for _, p := range s.Pools {
		if p.Failed() {
			n++
		}
	}
	return n
}

// Pool returns the pool with the given id.
func (s Summary) Pool(id uint64) (PoolSummary, bool) {
	for _, p := range s.Pools {
		if p.ID == id {
			return p, true
		}
	}
	return PoolSummary{}, false
}
