// Package source adapts row-oriented time-series stores to the retrieval
// interfaces of the pooling engine.
package source

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/okian/hydropool/internal/domain/timewindow"
	"github.com/okian/hydropool/internal/retrieval"
)

// Row is one stored value. Observations have no reference time; ensemble
// members carry a label.
type Row struct {
	Orientation   retrieval.Orientation
	Dataset       string
	Variable      string
	Feature       string
	ReferenceTime *time.Time
	ValidTime     time.Time
	Member        string
	Value         float64
	Unit          string
	ScalePeriod   time.Duration
	ScaleFunction string
}

// Query selects rows. Empty Features selects every feature; a nil Window
// admits every time. Stores may push the valid-time bounds of the window down
// to the backend; the factory applies the full window afterwards.
type Query struct {
	Orientation retrieval.Orientation
	Dataset     string
	Variable    string
	Features    []string
	Window      *timewindow.TimeWindow
}

// EarliestValidTime returns the lower valid-time bound; ok is false when the
// query is unbounded below.
func (q Query) EarliestValidTime() (t time.Time, ok bool) {
	if q.Window == nil || q.Window.EarliestValidTime.Equal(timewindow.MinInstant) {
		return time.Time{}, false
	}
	return q.Window.EarliestValidTime, true
}

// LatestValidTime returns the upper valid-time bound; ok is false when the
// query is unbounded above.
func (q Query) LatestValidTime() (t time.Time, ok bool) {
	if q.Window == nil || q.Window.LatestValidTime.Equal(timewindow.MaxInstant) {
		return time.Time{}, false
	}
	return q.Window.LatestValidTime, true
}

// Matches reports whether a row satisfies the query.
func (q Query) Matches(r Row) bool {
	if r.Orientation != q.Orientation {
		return false
	}
	if q.Dataset != "" && r.Dataset != q.Dataset {
		return false
	}
	if q.Variable != "" && !strings.EqualFold(r.Variable, q.Variable) {
		return false
	}
	if len(q.Features) > 0 && !slices.Contains(q.Features, r.Feature) {
		return false
	}
	if from, ok := q.EarliestValidTime(); ok && r.ValidTime.Before(from) {
		return false
	}
	if to, ok := q.LatestValidTime(); ok && r.ValidTime.After(to) {
		return false
	}
	return true
}

// Where renders the query as a SQL condition over the series_values columns.
// placeholder formats the i-th bind parameter, counting from one, and instant
// converts a time bound to its stored representation.
func (q Query) Where(placeholder func(i int) string, instant func(time.Time) any) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, strings.ReplaceAll(cond, "?", placeholder(len(args))))
	}
	add("orientation = ?", string(q.Orientation))
	if q.Dataset != "" {
		add("dataset = ?", q.Dataset)
	}
	if q.Variable != "" {
		add("lower(variable) = lower(?)", q.Variable)
	}
	if len(q.Features) > 0 {
		in := make([]string, len(q.Features))
		for i, f := range q.Features {
			args = append(args, f)
			in[i] = placeholder(len(args))
		}
		conds = append(conds, "feature IN ("+strings.Join(in, ", ")+")")
	}
	if from, ok := q.EarliestValidTime(); ok {
		add("valid_time >= ?", instant(from))
	}
	if to, ok := q.LatestValidTime(); ok {
		add("valid_time <= ?", instant(to))
	}
	return strings.Join(conds, " AND "), args
}

// Store reads rows.
type Store interface {
	Fetch(ctx context.Context, q Query) ([]Row, error)
	Close() error
}

// Writer loads rows into a store.
type Writer interface {
	Insert(ctx context.Context, rows ...Row) error
}

// Memory is a Store over rows held in memory.
type Memory struct {
	rows []Row
}

var (
	_ Store  = (*Memory)(nil)
	_ Writer = (*Memory)(nil)
)

// NewMemory returns a store over rows.
func NewMemory(rows ...Row) *Memory {
	return &Memory{rows: slices.Clone(rows)}
}

// Fetch implements Store.
func (m *Memory) Fetch(ctx context.Context, q Query) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Row
	for _, r := range m.rows {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Insert implements Writer. It is not safe for use concurrently with Fetch.
func (m *Memory) Insert(_ context.Context, rows ...Row) error {
	m.rows = append(m.rows, rows...)
	return nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }
