// Package postgres stores time-series values in PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/hydropool/internal/adapters/source"
	"github.com/okian/hydropool/internal/retrieval"
)

const schema = `
CREATE TABLE IF NOT EXISTS series_values (
	orientation    TEXT             NOT NULL,
	dataset        TEXT             NOT NULL DEFAULT '',
	variable       TEXT             NOT NULL,
	feature        TEXT             NOT NULL,
	reference_time TIMESTAMPTZ,
	valid_time     TIMESTAMPTZ      NOT NULL,
	member         TEXT             NOT NULL DEFAULT '',
	value          DOUBLE PRECISION NOT NULL,
	unit           TEXT             NOT NULL DEFAULT '',
	scale_period   BIGINT           NOT NULL DEFAULT 0,
	scale_function TEXT             NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_series_lookup ON series_values(orientation, variable, feature, valid_time);
`

var columns = []string{
	"orientation", "dataset", "variable", "feature", "reference_time", "valid_time", "member", "value", "unit",
	"scale_period", "scale_function",
}

// Store reads and writes rows through a pgx pool. Scale periods are stored
// in milliseconds.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ source.Store  = (*Store)(nil)
	_ source.Writer = (*Store)(nil)
)

// Open connects to dsn, verifies the connection and bootstraps the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: parse postgres dsn: %w", source.ErrOpenSource, err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%w: connect to postgres: %w", source.ErrOpenSource, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping postgres: %w", source.ErrOpenSource, err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: postgres schema: %w", source.ErrOpenSource, err)
	}
	return &Store{pool: pool}, nil
}

// Insert implements source.Writer with a COPY.
func (s *Store) Insert(ctx context.Context, rows ...source.Row) error {
	_, err := s.pool.CopyFrom(ctx, pgx.Identifier{"series_values"}, columns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{
				string(r.Orientation), r.Dataset, r.Variable, r.Feature, r.ReferenceTime, r.ValidTime, r.Member,
				r.Value, r.Unit, r.ScalePeriod.Milliseconds(), r.ScaleFunction,
			}, nil
		}))
	if err != nil {
		return fmt.Errorf("copy series values: %w", err)
	}
	return nil
}

// Fetch implements source.Store.
func (s *Store) Fetch(ctx context.Context, q source.Query) ([]source.Row, error) {
	where, args := q.Where(
		func(i int) string { return "$" + strconv.Itoa(i) },
		func(t time.Time) any { return t },
	)
	sql := "SELECT orientation, dataset, variable, feature, reference_time, valid_time, member, value, unit, " +
		"scale_period, scale_function FROM series_values WHERE " + where +
		" ORDER BY feature, reference_time NULLS FIRST, valid_time, member"
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query series values: %w", err)
	}
	defer rows.Close()

	var out []source.Row
	for rows.Next() {
		var (
			r           source.Row
			orientation string
			ref         *time.Time
			period      int64
		)
		if err := rows.Scan(&orientation, &r.Dataset, &r.Variable, &r.Feature, &ref, &r.ValidTime, &r.Member,
			&r.Value, &r.Unit, &period, &r.ScaleFunction); err != nil {
			return nil, fmt.Errorf("scan series value: %w", err)
		}
		r.Orientation = retrieval.Orientation(orientation)
		if ref != nil {
			t := ref.UTC()
			r.ReferenceTime = &t
		}
		r.ValidTime = r.ValidTime.UTC()
		r.ScalePeriod = time.Duration(period) * time.Millisecond
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate series values: %w", err)
	}
	return out, nil
}

// Close implements source.Store.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
