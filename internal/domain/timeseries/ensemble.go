package timeseries

import "math"

// Ensemble is a set of member values valid at one time.
type Ensemble struct {
	Members []float64
	Labels  []string
}

// EnsembleOf builds an ensemble; labels may be nil.
func EnsembleOf(members []float64, labels []string) Ensemble {
	m := make([]float64, len(members))
	copy(m, members)
	var l []string
	if len(labels) == len(members) {
		l = make([]string, len(labels))
		copy(l, labels)
	}
	return Ensemble{Members: m, Labels: l}
}

// Size returns the number of members.
func (e Ensemble) Size() int { return len(e.Members) }

// Label returns the label of member i, or an empty string.
func (e Ensemble) Label(i int) string {
	if i < len(e.Labels) {
		return e.Labels[i]
	}
	return ""
}

// Finite returns the ensemble without non-finite members.
func (e Ensemble) Finite() Ensemble {
	var out Ensemble
	for i, v := range e.Members {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		out.Members = append(out.Members, v)
		if i < len(e.Labels) {
			out.Labels = append(out.Labels, e.Labels[i])
		}
	}
	return out
}
