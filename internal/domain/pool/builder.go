package pool

import (
	"fmt"

	"github.com/okian/hydropool/internal/domain/timeseries"
)

// Builder accumulates the parts of a Pool.
type Builder[T any] struct {
	data         []timeseries.TimeSeries[T]
	baselineData []timeseries.TimeSeries[T]
	meta         *Metadata
	baselineMeta *Metadata
	climatology  *Climatology
}

// NewBuilder returns an empty builder.
func NewBuilder[T any]() *Builder[T] {
	return &Builder[T]{}
}

// AddData appends main series.
func (b *Builder[T]) AddData(series ...timeseries.TimeSeries[T]) *Builder[T] {
	b.data = append(b.data, series...)
	return b
}

// AddDataForBaseline appends baseline series.
func (b *Builder[T]) AddDataForBaseline(series ...timeseries.TimeSeries[T]) *Builder[T] {
	b.baselineData = append(b.baselineData, series...)
	return b
}

// SetMetadata sets the main metadata.
func (b *Builder[T]) SetMetadata(meta Metadata) *Builder[T] {
	b.meta = &meta
	return b
}

// SetMetadataForBaseline sets the baseline metadata.
func (b *Builder[T]) SetMetadataForBaseline(meta *Metadata) *Builder[T] {
	if meta == nil {
		b.baselineMeta = nil
		return b
	}
	m := *meta
	m.IsBaseline = true
	b.baselineMeta = &m
	return b
}

// SetClimatology sets the climatology.
func (b *Builder[T]) SetClimatology(c *Climatology) *Builder[T] {
	b.climatology = c
	return b
}

// Build validates and returns the pool. Baseline series require baseline
// metadata; baseline metadata without series describes an empty baseline.
func (b *Builder[T]) Build() (Pool[T], error) {
	if b.meta == nil {
		return Pool[T]{}, fmt.Errorf("%w: missing metadata", ErrInvalidPool)
	}
	if len(b.baselineData) > 0 && b.baselineMeta == nil {
		return Pool[T]{}, fmt.Errorf("%w: baseline data without baseline metadata for %s", ErrInvalidPool, b.meta)
	}
	return Pool[T]{
		data:         clone(b.data),
		baselineData: clone(b.baselineData),
		meta:         *b.meta,
		baselineMeta: b.baselineMeta,
		climatology:  b.climatology,
	}, nil
}
