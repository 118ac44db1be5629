// Package pool holds the paired-data model: pairs, pool metadata, pool
// requests, climatology and the immutable Pool itself.
package pool

import (
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"github.com/okian/hydropool/internal/domain/feature"
	"github.com/okian/hydropool/internal/domain/timescale"
	"github.com/okian/hydropool/internal/domain/timeseries"
	"github.com/okian/hydropool/internal/domain/timewindow"
)

// Pair is a left value aligned with a right value at one valid time.
type Pair[L, R any] struct {
	Left  L
	Right R
}

// PairOf returns a pair.
func PairOf[L, R any](l L, r R) Pair[L, R] { return Pair[L, R]{Left: l, Right: r} }

// Evaluation describes the evaluation a pool belongs to.
type Evaluation struct {
	ID                string
	LeftVariable      string
	RightVariable     string
	BaselineVariable  string
	MeasurementUnit   string
	BaselineGenerated bool
}

// Metadata describes one pool.
type Metadata struct {
	Evaluation Evaluation
	Group      feature.Group
	Window     timewindow.TimeWindow
	TimeScale  *timescale.TimeScale
	IsBaseline bool
	PoolID     uint64
}

func (m Metadata) String() string {
	role := "main"
	if m.IsBaseline {
		role = "baseline"
	}
	return fmt.Sprintf("pool %d (%s) group=%s window=%s", m.PoolID, role, m.Group, m.Window)
}

// Request identifies one unit of pooling work.
type Request struct {
	ID               uint64
	Metadata         Metadata
	BaselineMetadata *Metadata
}

var requestSeq atomic.Uint64

// NewRequest stamps the metadata with a process-unique, increasing pool id.
func NewRequest(meta Metadata, baseline *Metadata) Request {
	id := requestSeq.Add(1)
	meta.PoolID = id
	r := Request{ID: id, Metadata: meta}
	if baseline != nil {
		b := *baseline
		b.PoolID = id
		b.IsBaseline = true
		r.BaselineMetadata = &b
	}
	return r
}

// HasBaseline reports whether the request carries baseline metadata.
func (r Request) HasBaseline() bool { return r.BaselineMetadata != nil }

func (r Request) String() string { return r.Metadata.String() }

// Climatology holds the reference distribution of values per feature.
type Climatology struct {
	values map[string][]float64
}

// NewClimatology copies the values and requires at least one finite value
// per feature.
func NewClimatology(values map[string][]float64) (*Climatology, error) {
	c := &Climatology{values: make(map[string][]float64, len(values))}
	for name, v := range values {
		if !hasFinite(v) {
			return nil, fmt.Errorf("%w: climatology for feature %q has no finite values", ErrInvalidPool, name)
		}
		cp := make([]float64, len(v))
		copy(cp, v)
		c.values[name] = cp
	}
	return c, nil
}

// Get returns the values for a feature.
func (c *Climatology) Get(name string) []float64 {
	if c == nil {
		return nil
	}
	v := c.values[name]
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

// Features returns the feature names in order.
func (c *Climatology) Features() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.values))
	for k := range c.values {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// IsEmpty reports whether no feature has values.
func (c *Climatology) IsEmpty() bool { return c == nil || len(c.values) == 0 }

func hasFinite(v []float64) bool {
	for _, x := range v {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			return true
		}
	}
	return false
}

// Pool is an immutable collection of paired series with optional baseline
// series and climatology.
type Pool[T any] struct {
	data         []timeseries.TimeSeries[T]
	baselineData []timeseries.TimeSeries[T]
	meta         Metadata
	baselineMeta *Metadata
	climatology  *Climatology
}

// Data returns the main series.
func (p Pool[T]) Data() []timeseries.TimeSeries[T] { return clone(p.data) }

// BaselineData returns the baseline series.
func (p Pool[T]) BaselineData() []timeseries.TimeSeries[T] { return clone(p.baselineData) }

// Metadata returns the main metadata.
func (p Pool[T]) Metadata() Metadata { return p.meta }

// BaselineMetadata returns the baseline metadata when present.
func (p Pool[T]) BaselineMetadata() (Metadata, bool) {
	if p.baselineMeta == nil {
		return Metadata{}, false
	}
	return *p.baselineMeta, true
}

// HasBaseline reports whether baseline metadata is present.
func (p Pool[T]) HasBaseline() bool { return p.baselineMeta != nil }

// Climatology returns the climatology, nil when absent.
func (p Pool[T]) Climatology() *Climatology { return p.climatology }

// PairCount returns the number of main pairs.
func (p Pool[T]) PairCount() int { return timeseries.CountEvents(p.data) }

// BaselinePairCount returns the number of baseline pairs.
func (p Pool[T]) BaselinePairCount() int { return timeseries.CountEvents(p.baselineData) }

// IsEmpty reports whether the pool has no main pairs.
func (p Pool[T]) IsEmpty() bool { return p.PairCount() == 0 }

// Baseline returns the baseline as a pool of its own, without a baseline.
func (p Pool[T]) Baseline() (Pool[T], bool) {
	if p.baselineMeta == nil {
		return Pool[T]{}, false
	}
	return Pool[T]{data: clone(p.baselineData), meta: *p.baselineMeta, climatology: p.climatology}, true
}

func clone[T any](in []timeseries.TimeSeries[T]) []timeseries.TimeSeries[T] {
	out := make([]timeseries.TimeSeries[T], len(in))
	copy(out, in)
	return out
}
