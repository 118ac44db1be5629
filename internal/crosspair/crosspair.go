// Package crosspair restricts lists of paired series to a mutually consistent
// set of reference and valid times.
package crosspair

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/okian/hydropool/internal/domain/timeseries"
	"github.com/okian/hydropool/pkg/logger"
	"github.com/okian/hydropool/pkg/metrics"
)

// Method selects how reference times are matched.
type Method int

// Matching methods.
const (
	// Fuzzy matches the nearest reference times.
	Fuzzy Method = iota
	// Exact matches only identical reference times.
	Exact
)

func (m Method) String() string {
	if m == Exact {
		return "EXACT"
	}
	return "FUZZY"
}

// ParseMethod maps a declared name onto a Method; empty means Fuzzy.
func ParseMethod(s string) (Method, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "FUZZY":
		return Fuzzy, nil
	case "EXACT":
		return Exact, nil
	}
	return Fuzzy, fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

// Scope selects which lists are cross-paired against each other.
type Scope int

// Scopes.
const (
	// WithinFeatures pairs main and baseline series of the same feature tuple.
	WithinFeatures Scope = iota
	// AcrossFeatures pairs every list against every other.
	AcrossFeatures
)

func (s Scope) String() string {
	if s == AcrossFeatures {
		return "ACROSS_FEATURES"
	}
	return "WITHIN_FEATURES"
}

// ParseScope maps a declared name onto a Scope; empty means WithinFeatures.
func ParseScope(s string) (Scope, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "WITHIN_FEATURES":
		return WithinFeatures, nil
	case "ACROSS_FEATURES":
		return AcrossFeatures, nil
	}
	return WithinFeatures, fmt.Errorf("%w: %q", ErrUnknownScope, s)
}

// Result holds the cross-paired lists. First[i] was matched with Second[i].
type Result[T any] struct {
	First  []timeseries.TimeSeries[T]
	Second []timeseries.TimeSeries[T]
}

// CrossPairer matches series one-to-one by reference time and intersects the
// valid times of each match.
type CrossPairer[T any] struct {
	opts options
}

// New returns a cross-pairer; the default method is Fuzzy.
func New[T any](opts ...Option) *CrossPairer[T] {
	o := options{method: Fuzzy, logger: logger.Named("crosspair")}
	for _, opt := range opts {
		opt(&o)
	}
	return &CrossPairer[T]{opts: o}
}

// Method returns the configured method.
func (c *CrossPairer[T]) Method() Method { return c.opts.method }

// CrossPair matches each first series with at most one unused second series.
// Matches whose valid times do not intersect are dropped from both sides, as
// are unmatched series.
func (c *CrossPairer[T]) CrossPair(first, second []timeseries.TimeSeries[T]) (Result[T], error) {
	a := sorted(first)
	b := sorted(second)
	used := make([]bool, len(b))

	var res Result[T]
	for _, s := range a {
		best := -1
		var bestDist time.Duration
		for j, o := range b {
			if used[j] {
				continue
			}
			d, ok, err := distance(s.Metadata(), o.Metadata())
			if err != nil {
				return Result[T]{}, err
			}
			if !ok || (c.opts.method == Exact && d != 0) {
				continue
			}
			if best < 0 || d < bestDist {
				best, bestDist = j, d
			}
		}
		if best < 0 {
			continue
		}
		used[best] = true
		x, y := intersect(s, b[best])
		if x.IsEmpty() {
			continue
		}
		res.First = append(res.First, x)
		res.Second = append(res.Second, y)
	}

	if dropped := len(first) + len(second) - 2*len(res.First); dropped > 0 {
		metrics.RecordCrossPairSeriesDropped(dropped)
		c.opts.logger.Debug(context.Background(), "cross-pairing dropped series",
			logger.Int("dropped", dropped),
			logger.Int("kept", len(res.First)),
			logger.String("method", c.opts.method.String()))
	}
	return res, nil
}

// Apply cross-pairs lists keyed by feature tuple. A nil baseline leaves the
// main lists untouched under WithinFeatures. Under WithinFeatures, main lists
// without a baseline counterpart are dropped.
func (c *CrossPairer[T]) Apply(scope Scope, main, baseline map[string][]timeseries.TimeSeries[T],
) (map[string][]timeseries.TimeSeries[T], map[string][]timeseries.TimeSeries[T], error) {
	switch scope {
	case WithinFeatures:
		return c.within(main, baseline)
	case AcrossFeatures:
		return c.across(main, baseline)
	}
	return nil, nil, fmt.Errorf("%w: %d", ErrUnknownScope, scope)
}

func (c *CrossPairer[T]) within(main, baseline map[string][]timeseries.TimeSeries[T],
) (map[string][]timeseries.TimeSeries[T], map[string][]timeseries.TimeSeries[T], error) {
	if baseline == nil {
		return main, nil, nil
	}
	mainOut := make(map[string][]timeseries.TimeSeries[T], len(main))
	baseOut := make(map[string][]timeseries.TimeSeries[T], len(main))
	for _, key := range keys(main) {
		base, ok := baseline[key]
		if !ok {
			c.opts.logger.Debug(context.Background(), "no baseline pairs to cross-pair with",
				logger.String("feature", key))
			continue
		}
		res, err := c.CrossPair(main[key], base)
		if err != nil {
			return nil, nil, fmt.Errorf("feature %s: %w", key, err)
		}
		mainOut[key] = res.First
		baseOut[key] = res.Second
	}
	return mainOut, baseOut, nil
}

func (c *CrossPairer[T]) across(main, baseline map[string][]timeseries.TimeSeries[T],
) (map[string][]timeseries.TimeSeries[T], map[string][]timeseries.TimeSeries[T], error) {
	var combined [][]timeseries.TimeSeries[T]
	for _, k := range keys(main) {
		combined = append(combined, main[k])
	}
	for _, k := range keys(baseline) {
		combined = append(combined, baseline[k])
	}
	if len(combined) == 0 {
		return main, baseline, nil
	}

	reference := combined[0]
	for _, next := range combined[1:] {
		res, err := c.CrossPair(reference, next)
		if err != nil {
			return nil, nil, err
		}
		reference = res.First
	}

	restrict := func(in map[string][]timeseries.TimeSeries[T]) (map[string][]timeseries.TimeSeries[T], error) {
		if in == nil {
			return nil, nil
		}
		out := make(map[string][]timeseries.TimeSeries[T], len(in))
		for _, k := range keys(in) {
			res, err := c.CrossPair(in[k], reference)
			if err != nil {
				return nil, fmt.Errorf("feature %s: %w", k, err)
			}
			out[k] = res.First
		}
		return out, nil
	}
	mainOut, err := restrict(main)
	if err != nil {
		return nil, nil, err
	}
	baseOut, err := restrict(baseline)
	if err != nil {
		return nil, nil, err
	}
	return mainOut, baseOut, nil
}

// distance sums the absolute differences between commonly typed reference
// times. ok is false when exactly one side has reference times.
func distance(a, b timeseries.Metadata) (time.Duration, bool, error) {
	if !a.HasReferenceTimes() && !b.HasReferenceTimes() {
		return 0, true, nil
	}
	if !a.HasReferenceTimes() || !b.HasReferenceTimes() {
		return 0, false, nil
	}
	var total time.Duration
	common := 0
	for typ, at := range a.ReferenceTimes {
		bt, ok := b.ReferenceTimes[typ]
		if !ok {
			continue
		}
		common++
		d := at.Sub(bt)
		if d < 0 {
			d = -d
		}
		total += d
	}
	if common == 0 {
		return 0, false, fmt.Errorf("%w: no commonly typed reference times between %v and %v",
			ErrCrossPairing, a.ReferenceTimeTypes(), b.ReferenceTimeTypes())
	}
	return total, true, nil
}

// intersect keeps the events of a and b at valid times present in both.
func intersect[T any](a, b timeseries.TimeSeries[T]) (timeseries.TimeSeries[T], timeseries.TimeSeries[T]) {
	inA := make(map[time.Time]struct{}, a.Len())
	for _, t := range a.ValidTimes() {
		inA[t.UTC()] = struct{}{}
	}
	both := make(map[time.Time]struct{}, b.Len())
	for _, t := range b.ValidTimes() {
		if _, ok := inA[t.UTC()]; ok {
			both[t.UTC()] = struct{}{}
		}
	}
	keep := func(e timeseries.Event[T]) bool {
		_, ok := both[e.Time.UTC()]
		return ok
	}
	return timeseries.Filter(a, keep), timeseries.Filter(b, keep)
}

func sorted[T any](in []timeseries.TimeSeries[T]) []timeseries.TimeSeries[T] {
	out := make([]timeseries.TimeSeries[T], len(in))
	copy(out, in)
	timeseries.SortByTime(out)
	return out
}

func keys[T any](m map[string][]timeseries.TimeSeries[T]) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
