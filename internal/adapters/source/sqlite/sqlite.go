// Package sqlite stores time-series values in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/okian/hydropool/internal/adapters/source"
	"github.com/okian/hydropool/internal/retrieval"
)

const schema = `
CREATE TABLE IF NOT EXISTS series_values (
	orientation    TEXT    NOT NULL,
	dataset        TEXT    NOT NULL DEFAULT '',
	variable       TEXT    NOT NULL,
	feature        TEXT    NOT NULL,
	reference_time INTEGER,
	valid_time     INTEGER NOT NULL,
	member         TEXT    NOT NULL DEFAULT '',
	value          REAL,
	unit           TEXT    NOT NULL DEFAULT '',
	scale_period   INTEGER NOT NULL DEFAULT 0,
	scale_function TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_series_lookup ON series_values(orientation, variable, feature, valid_time);
`

const insertQuery = `INSERT INTO series_values
	(orientation, dataset, variable, feature, reference_time, valid_time, member, value, unit, scale_period, scale_function)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectColumns = `SELECT orientation, dataset, variable, feature, reference_time, valid_time, member, value, unit,
	scale_period, scale_function FROM series_values`

// Store reads and writes rows in SQLite. Instants are stored as Unix
// milliseconds and scale periods as milliseconds.
type Store struct {
	db     *sql.DB
	insert *sql.Stmt
}

var (
	_ source.Store  = (*Store)(nil)
	_ source.Writer = (*Store)(nil)
)

// Open opens or creates the database at path and bootstraps the schema. Use
// ":memory:" for a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_journal=WAL&_sync=NORMAL"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: sqlite %s: %w", source.ErrOpenSource, path, err)
	}
	// A private in-memory database lives on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: sqlite schema: %w", source.ErrOpenSource, err)
	}
	insert, err := db.PrepareContext(ctx, insertQuery)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: prepare insert: %w", source.ErrOpenSource, err)
	}
	return &Store{db: db, insert: insert}, nil
}

// Insert implements source.Writer in one transaction.
func (s *Store) Insert(ctx context.Context, rows ...source.Row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	stmt := tx.StmtContext(ctx, s.insert)
	for _, r := range rows {
		var ref any
		if r.ReferenceTime != nil {
			ref = r.ReferenceTime.UnixMilli()
		}
		if _, err := stmt.ExecContext(ctx, string(r.Orientation), r.Dataset, r.Variable, r.Feature, ref,
			r.ValidTime.UnixMilli(), r.Member, storable(r.Value), r.Unit, r.ScalePeriod.Milliseconds(), r.ScaleFunction,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert row for %s at %s: %w", r.Feature, r.ValidTime.Format(time.RFC3339), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}
	return nil
}

// Fetch implements source.Store.
func (s *Store) Fetch(ctx context.Context, q source.Query) ([]source.Row, error) {
	where, args := q.Where(func(int) string { return "?" }, func(t time.Time) any { return t.UnixMilli() })
	rows, err := s.db.QueryContext(ctx, selectColumns+" WHERE "+where+" ORDER BY feature, reference_time, valid_time, member", args...)
	if err != nil {
		return nil, fmt.Errorf("query series values: %w", err)
	}
	defer rows.Close()

	var out []source.Row
	for rows.Next() {
		var (
			r           source.Row
			orientation string
			ref         sql.NullInt64
			valid       int64
			value       sql.NullFloat64
			period      int64
		)
		if err := rows.Scan(&orientation, &r.Dataset, &r.Variable, &r.Feature, &ref, &valid, &r.Member, &value,
			&r.Unit, &period, &r.ScaleFunction); err != nil {
			return nil, fmt.Errorf("scan series value: %w", err)
		}
		r.Orientation = retrieval.Orientation(orientation)
		if ref.Valid {
			t := time.UnixMilli(ref.Int64).UTC()
			r.ReferenceTime = &t
		}
		r.ValidTime = time.UnixMilli(valid).UTC()
		r.Value = nullable(value)
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
	_ = s.insert.Close()
	return s.db.Close()
}

// storable maps NaN to NULL.
func storable(v float64) any {
	if math.IsNaN(v) {
		return nil
	}
	return v
}

func nullable(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
