// Package archive reads time-series values from a zstd-compressed CSV file.
// The archive is loaded into memory once and filtered per query.
package archive

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/okian/hydropool/internal/adapters/source"
	"github.com/okian/hydropool/internal/retrieval"
)

// Header is the first record of every archive.
var Header = []string{
	"orientation", "dataset", "variable", "feature", "reference_time", "valid_time", "member", "value", "unit",
	"scale_period", "scale_function",
}

// Store is an in-memory store loaded from an archive.
type Store struct {
	*source.Memory
}

var _ source.Store = (*Store)(nil)

// Open loads the archive at path.
func Open(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: archive %s: %w", source.ErrOpenSource, path, err)
	}
	defer f.Close()

	rows, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%w: archive %s: %w", source.ErrOpenSource, path, err)
	}
	return &Store{Memory: source.NewMemory(rows...)}, nil
}

// Read decodes a compressed archive.
func Read(r io.Reader) ([]source.Row, error) {
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	cr := csv.NewReader(dec)
	cr.FieldsPerRecord = len(Header)
	cr.ReuseRecord = true

	if _, err := cr.Read(); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	var out []source.Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		row, err := parse(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", source.ErrMalformedRow, line, err)
		}
		out = append(out, row)
	}
}

func parse(rec []string) (source.Row, error) {
	r := source.Row{
		Orientation:   retrieval.Orientation(rec[0]),
		Dataset:       rec[1],
		Variable:      rec[2],
		Feature:       rec[3],
		Member:        rec[6],
		Unit:          rec[8],
		ScaleFunction: rec[10],
	}
	if rec[4] != "" {
		t, err := time.Parse(time.RFC3339Nano, rec[4])
		if err != nil {
			return source.Row{}, fmt.Errorf("reference time: %w", err)
		}
		t = t.UTC()
		r.ReferenceTime = &t
	}
	t, err := time.Parse(time.RFC3339Nano, rec[5])
	if err != nil {
		return source.Row{}, fmt.Errorf("valid time: %w", err)
	}
	r.ValidTime = t.UTC()
	if r.Value, err = strconv.ParseFloat(rec[7], 64); err != nil {
		return source.Row{}, fmt.Errorf("value: %w", err)
	}
	if rec[9] != "" {
		if r.ScalePeriod, err = time.ParseDuration(rec[9]); err != nil {
			return source.Row{}, fmt.Errorf("scale period: %w", err)
		}
	}
	return r, nil
}

// Write encodes rows as a compressed archive.
func Write(w io.Writer, rows []source.Row) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	cw := csv.NewWriter(enc)
	if err := cw.Write(Header); err != nil {
		_ = enc.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range rows {
		ref := ""
		if r.ReferenceTime != nil {
			ref = r.ReferenceTime.UTC().Format(time.RFC3339Nano)
		}
		period := ""
		if r.ScalePeriod != 0 {
			period = r.ScalePeriod.String()
		}
		rec := []string{
			string(r.Orientation), r.Dataset, r.Variable, r.Feature, ref, r.ValidTime.UTC().Format(time.RFC3339Nano),
			r.Member, strconv.FormatFloat(r.Value, 'g', -1, 64), r.Unit, period, r.ScaleFunction,
		}
		if err := cw.Write(rec); err != nil {
			_ = enc.Close()
			return fmt.Errorf("write record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		_ = enc.Close()
		return fmt.Errorf("flush records: %w", err)
	}
	return enc.Close()
}
