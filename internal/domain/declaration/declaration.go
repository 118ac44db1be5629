// Package declaration holds the read-only evaluation declaration consumed by
// the pooling engine. It is populated from configuration and validated once.
package declaration

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/okian/hydropool/internal/domain/feature"
	"github.com/okian/hydropool/internal/domain/timescale"
)

// Dataset orientations and detection datasets.
const (
	Observed   = "OBSERVED"
	Predicted  = "PREDICTED"
	Baseline   = "BASELINE"
	Covariates = "COVARIATES"
)

// Cross-pair methods and scopes.
const (
	CrossPairFuzzy          = "FUZZY"
	CrossPairExact          = "EXACT"
	CrossPairWithinFeatures = "WITHIN_FEATURES"
	CrossPairAcrossFeatures = "ACROSS_FEATURES"
)

// Event combinations.
const (
	CombinationUnion        = "UNION"
	CombinationIntersection = "INTERSECTION"
)

// Covariate purposes.
const (
	PurposeDetect = "DETECT"
	PurposeFilter = "FILTER"
)

// Evaluation is the declaration of one evaluation.
type Evaluation struct {
	LeftVariable     string `koanf:"left_variable" validate:"required"`
	RightVariable    string `koanf:"right_variable" validate:"required"`
	BaselineVariable string `koanf:"baseline_variable"`
	Unit             string `koanf:"unit"`

	// Ensemble selects ensemble right data instead of single values.
	Ensemble bool `koanf:"ensemble"`

	LeadTimes          *LeadTimeInterval `koanf:"lead_times"`
	LeadTimePools      *PoolSize         `koanf:"lead_time_pools"`
	ReferenceDates     *TimeInterval     `koanf:"reference_dates"`
	ReferenceDatePools *PoolSize         `koanf:"reference_date_pools"`
	ValidDates         *TimeInterval     `koanf:"valid_dates"`
	ValidDatePools     *PoolSize         `koanf:"valid_date_pools"`

	TimeScale *TimeScale `koanf:"time_scale"`

	Left  Dataset `koanf:"left"`
	Right Dataset `koanf:"right"`

	Features      []feature.Tuple `koanf:"features"`
	FeatureGroups []FeatureGroup  `koanf:"feature_groups" validate:"dive"`

	CrossPair      *CrossPair      `koanf:"cross_pair"`
	Baseline       *BaselineSource `koanf:"baseline"`
	EventDetection *EventDetection `koanf:"event_detection"`
	Covariates     []Covariate     `koanf:"covariates" validate:"dive"`

	// Climatology requests a climatology per pool.
	Climatology bool `koanf:"climatology"`
}

// Dataset carries per-dataset adjustments.
type Dataset struct {
	TimeShift time.Duration `koanf:"time_shift"`
	TimeScale *TimeScale    `koanf:"time_scale"`
}

// Scale returns the declared scale of the dataset, nil when absent.
func (d Dataset) Scale() (*timescale.TimeScale, error) {
	return d.TimeScale.Scale()
}

// LeadTimeInterval bounds lead durations.
type LeadTimeInterval struct {
	Minimum time.Duration `koanf:"minimum"`
	Maximum time.Duration `koanf:"maximum"`
}

// TimeInterval bounds instants.
type TimeInterval struct {
	Minimum time.Time `koanf:"minimum"`
	Maximum time.Time `koanf:"maximum"`
}

// PoolSize is a sliding window of Period advanced by Frequency. A zero
// frequency defaults to the period.
type PoolSize struct {
	Period    time.Duration `koanf:"period" validate:"gte=0"`
	Frequency time.Duration `koanf:"frequency" validate:"gte=0"`
}

// TimeScale is a declared time scale.
type TimeScale struct {
	Period   time.Duration `koanf:"period" validate:"gte=0"`
	Function string        `koanf:"function" validate:"omitempty,oneof=MEAN TOTAL MAXIMUM MINIMUM UNKNOWN mean total maximum minimum unknown"`
}

// FeatureGroup is a named group of tuples pooled together.
type FeatureGroup struct {
	Name     string          `koanf:"name"`
	Features []feature.Tuple `koanf:"features" validate:"min=1"`
}

// CrossPair declares cross-pairing.
type CrossPair struct {
	Method string `koanf:"method" validate:"omitempty,oneof=FUZZY EXACT"`
	Scope  string `koanf:"scope" validate:"omitempty,oneof=WITHIN_FEATURES ACROSS_FEATURES"`
}

// BaselineSource declares a baseline that is either retrieved or generated.
type BaselineSource struct {
	Dataset   `koanf:",squash"`
	Generated *GeneratedBaseline `koanf:"generated"`
}

// GeneratedBaseline declares a synthetic baseline.
type GeneratedBaseline struct {
	Method string `koanf:"method" validate:"oneof=PERSISTENCE"`
	Order  int    `koanf:"order" validate:"gte=0"`
}

// EventDetection declares event-based pooling.
type EventDetection struct {
	Datasets   []string        `koanf:"datasets" validate:"min=1,dive,oneof=OBSERVED PREDICTED BASELINE COVARIATES"`
	Method     string          `koanf:"method" validate:"omitempty,oneof=REGINA_OGDEN DEFAULT"`
	Parameters EventParameters `koanf:"parameters"`
}

// EventParameters tune detection and combination. Nil durations take the
// detector defaults.
type EventParameters struct {
	WindowSize           *time.Duration `koanf:"window_size"`
	HalfLife             *time.Duration `koanf:"half_life"`
	MinimumEventDuration *time.Duration `koanf:"minimum_event_duration"`
	StartRadius          *time.Duration `koanf:"start_radius"`
	Combination          string         `koanf:"combination" validate:"omitempty,oneof=UNION INTERSECTION"`
	Aggregation          string         `koanf:"aggregation" validate:"omitempty,oneof=MAXIMUM MINIMUM AVERAGE"`
}

// Covariate declares an auxiliary dataset.
type Covariate struct {
	Name            string        `koanf:"name" validate:"required"`
	Variable        string        `koanf:"variable"`
	Minimum         *float64      `koanf:"minimum"`
	Maximum         *float64      `koanf:"maximum"`
	RescaleFunction string        `koanf:"rescale_function" validate:"omitempty,oneof=MEAN TOTAL MAXIMUM MINIMUM"`
	TimeShift       time.Duration `koanf:"time_shift"`
	TimeScale       *TimeScale    `koanf:"time_scale"`
	Purposes        []string      `koanf:"purposes" validate:"dive,oneof=DETECT FILTER"`
}

// HasPurpose reports whether the covariate is declared for a purpose. A
// covariate without purposes is used for filtering.
func (c Covariate) HasPurpose(p string) bool {
	if len(c.Purposes) == 0 {
		return p == PurposeFilter
	}
	for _, x := range c.Purposes {
		if strings.EqualFold(x, p) {
			return true
		}
	}
	return false
}

// Scale converts a declared time scale; nil stays nil.
func (t *TimeScale) Scale() (*timescale.TimeScale, error) {
	if t == nil {
		return nil, nil
	}
	fn, err := timescale.ParseFunction(t.Function)
	if err != nil {
		return nil, err
	}
	ts, err := timescale.New(t.Period, fn)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

// DesiredTimeScale returns the declared evaluation scale, nil when absent.
func (e Evaluation) DesiredTimeScale() (*timescale.TimeScale, error) {
	return e.TimeScale.Scale()
}

// BaselineDataset returns the adjustments of the baseline dataset. Without a
// declared baseline the right dataset's adjustments apply.
func (e Evaluation) BaselineDataset() Dataset {
	if e.Baseline != nil {
		return e.Baseline.Dataset
	}
	return e.Right
}

// HasBaseline reports whether any baseline is declared.
func (e Evaluation) HasBaseline() bool { return e.Baseline != nil }

// HasGeneratedBaseline reports whether the baseline is generated.
func (e Evaluation) HasGeneratedBaseline() bool {
	return e.Baseline != nil && e.Baseline.Generated != nil
}

// Groups returns one singleton group per declared tuple followed by every
// declared feature group.
func (e Evaluation) Groups() ([]feature.Group, error) {
	groups, err := feature.Singletons(e.Features...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDeclaration, err)
	}
	for _, fg := range e.FeatureGroups {
		g, err := feature.NewGroup(fg.Name, fg.Features...)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidDeclaration, err)
		}
		groups = append(groups, g)
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: no features declared", ErrInvalidDeclaration)
	}
	return groups, nil
}

// Covariate returns the covariates declared for a purpose.
func (e Evaluation) CovariatesFor(purpose string) []Covariate {
	var out []Covariate
	for _, c := range e.Covariates {
		if c.HasPurpose(purpose) {
			out = append(out, c)
		}
	}
	return out
}

var validate = validator.New()

// Validate checks struct tags and the cross-field rules that tags cannot
// express.
func (e Evaluation) Validate() error {
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDeclaration, err)
	}
	if e.LeadTimes != nil && e.LeadTimes.Minimum > e.LeadTimes.Maximum {
		return fmt.Errorf("%w: lead time minimum %s exceeds maximum %s", ErrInvalidDeclaration,
			e.LeadTimes.Minimum, e.LeadTimes.Maximum)
	}
	for name, iv := range map[string]*TimeInterval{"reference dates": e.ReferenceDates, "valid dates": e.ValidDates} {
		if iv != nil && iv.Minimum.After(iv.Maximum) {
			return fmt.Errorf("%w: %s minimum %s is after maximum %s", ErrInvalidDeclaration, name,
				iv.Minimum, iv.Maximum)
		}
	}
	for name, ps := range map[string]*PoolSize{"lead time": e.LeadTimePools, "reference date": e.ReferenceDatePools,
		"valid date": e.ValidDatePools} {
		if ps != nil && ps.Period == 0 && ps.Frequency == 0 {
			return fmt.Errorf("%w: %s pools need a period or a frequency", ErrInvalidDeclaration, name)
		}
	}
	if e.LeadTimePools != nil && e.LeadTimes == nil {
		return fmt.Errorf("%w: lead time pools without lead times", ErrInvalidDeclaration)
	}
	if e.ReferenceDatePools != nil && e.ReferenceDates == nil {
		return fmt.Errorf("%w: reference date pools without reference dates", ErrInvalidDeclaration)
	}
	if e.ValidDatePools != nil && e.ValidDates == nil {
		return fmt.Errorf("%w: valid date pools without valid dates", ErrInvalidDeclaration)
	}
	for _, t := range e.Features {
		if t.Left.IsZero() || t.Right.IsZero() {
			return fmt.Errorf("%w: feature tuple %q lacks a left or right name", ErrInvalidDeclaration, t)
		}
	}
	for _, ts := range []*TimeScale{e.TimeScale, e.Left.TimeScale, e.Right.TimeScale, e.BaselineDataset().TimeScale} {
		if _, err := ts.Scale(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidDeclaration, err)
		}
	}
	if e.EventDetection != nil {
		for _, d := range e.EventDetection.Datasets {
			if d == Baseline && !e.HasBaseline() {
				return fmt.Errorf("%w: event detection on a baseline that is not declared", ErrInvalidDeclaration)
			}
			if d == Covariates && len(e.CovariatesFor(PurposeDetect)) == 0 {
				return fmt.Errorf("%w: event detection on covariates without a DETECT covariate", ErrInvalidDeclaration)
			}
		}
	}
	for _, c := range e.Covariates {
		if c.Minimum != nil && c.Maximum != nil && *c.Minimum > *c.Maximum {
			return fmt.Errorf("%w: covariate %s minimum exceeds maximum", ErrInvalidDeclaration, c.Name)
		}
	}
	return nil
}
