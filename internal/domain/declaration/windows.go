package declaration

import (
	"time"

	"github.com/okian/hydropool/internal/domain/timewindow"
)

// InstantBounds is one slice of a date axis.
type InstantBounds struct{ Earliest, Latest time.Time }

// DurationBounds is one slice of the lead axis.
type DurationBounds struct{ Earliest, Latest time.Duration }

// ReferenceDateBounds slices the reference date interval into pools.
func (e Evaluation) ReferenceDateBounds() []InstantBounds {
	return dateBounds(e.ReferenceDates, e.ReferenceDatePools)
}

// ValidDateBounds slices the valid date interval into pools.
func (e Evaluation) ValidDateBounds() []InstantBounds {
	return dateBounds(e.ValidDates, e.ValidDatePools)
}

// LeadTimeBounds slices the lead time interval into pools.
func (e Evaluation) LeadTimeBounds() []DurationBounds {
	iv, pools := e.LeadTimes, e.LeadTimePools
	if iv == nil {
		return []DurationBounds{{timewindow.MinDuration, timewindow.MaxDuration}}
	}
	if pools == nil {
		return []DurationBounds{{iv.Minimum, iv.Maximum}}
	}
	step := pools.Increment()
	lo, hi := iv.Minimum, iv.Minimum+pools.Period
	if step <= 0 {
		return []DurationBounds{{lo, hi}}
	}
	var out []DurationBounds
	for hi <= iv.Maximum {
		out = append(out, DurationBounds{lo, hi})
		lo, hi = lo+step, hi+step
	}
	return out
}

// dateBounds slides a window of the pool period across the interval, one
// step of the pool frequency at a time, stopping before the upper edge would
// pass the interval maximum.
func dateBounds(iv *TimeInterval, pools *PoolSize) []InstantBounds {
	if iv == nil {
		return []InstantBounds{{timewindow.MinInstant, timewindow.MaxInstant}}
	}
	if pools == nil {
		return []InstantBounds{{iv.Minimum.UTC(), iv.Maximum.UTC()}}
	}
	step := pools.Increment()
	lo, hi := iv.Minimum.UTC(), iv.Minimum.UTC().Add(pools.Period)
	if step <= 0 {
		return []InstantBounds{{lo, hi}}
	}
	var out []InstantBounds
	for !hi.After(iv.Maximum) {
		out = append(out, InstantBounds{lo, hi})
		lo, hi = lo.Add(step), hi.Add(step)
	}
	return out
}

// Increment is the frequency, or the period when no frequency is declared.
func (p PoolSize) Increment() time.Duration {
	if p.Frequency > 0 {
		return p.Frequency
	}
	return p.Period
}

// TimeWindows crosses the reference, valid and lead axes in that order.
func (e Evaluation) TimeWindows() []timewindow.TimeWindow {
	refs := e.ReferenceDateBounds()
	valids := e.ValidDateBounds()
	leads := e.LeadTimeBounds()

	out := make([]timewindow.TimeWindow, 0, len(refs)*len(valids)*len(leads))
	for _, r := range refs {
		for _, v := range valids {
			for _, l := range leads {
				out = append(out, timewindow.TimeWindow{
					EarliestReferenceTime: r.Earliest,
					LatestReferenceTime:   r.Latest,
					EarliestValidTime:     v.Earliest,
					LatestValidTime:       v.Latest,
					EarliestLeadDuration:  l.Earliest,
					LatestLeadDuration:    l.Latest,
				})
			}
		}
	}
	return out
}
