package crowding

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"crowdcast.transitpulse.org/internal/arrivals"
)

type Level string

const (
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// Factors are the four normalized score inputs, each in [0, 1].
type Factors struct {
	Headway float64 `json:"headway"`
	Demand  float64 `json:"demand"`
	Delay   float64 `json:"delay"`
	Alerts  float64 `json:"alerts"`
}

func (f Factors) clamped() Factors {
	return Factors{
		Headway: clamp01(f.Headway),
		Demand:  clamp01(f.Demand),
		Delay:   clamp01(f.Delay),
		Alerts:  clamp01(f.Alerts),
	}
}

// Factor names, as reported by DominantFactor.
const (
	FactorHeadway = "headway"
	FactorDemand  = "demand"
	FactorDelay   = "delay"
	FactorAlerts  = "alerts"
)

// DominantFactor names the largest factor. Ties go to headway, then demand,
// delay and alerts in that order.
func DominantFactor(f Factors) string {
	name, best := FactorHeadway, f.Headway
	for _, c := range []struct {
		name  string
		value float64
	}{{FactorDemand, f.Demand}, {FactorDelay, f.Delay}, {FactorAlerts, f.Alerts}} {
		if c.value > best {
			name, best = c.name, c.value
		}
	}
	return name
}

type Weights struct {
	Headway float64 `json:"headway" validate:"gte=0,lte=1"`
	Demand  float64 `json:"demand" validate:"gte=0,lte=1"`
	Delay   float64 `json:"delay" validate:"gte=0,lte=1"`
	Alerts  float64 `json:"alerts" validate:"gte=0,lte=1"`
}

// Thresholds are the first scores of the MEDIUM and HIGH bands. LOW is
// [0, Medium), MEDIUM is [Medium, High) and HIGH is [High, 100].
type Thresholds struct {
	Medium int `json:"medium" validate:"gt=0,lte=100"`
	High   int `json:"high" validate:"gtfield=Medium,lte=100"`
}

type ScorerConfig struct {
	Weights        Weights    `json:"weights"`
	Thresholds     Thresholds `json:"thresholds"`
	PeakMultiplier float64    `json:"peakMultiplier" validate:"gte=1,lte=2"`
}

func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{
		Weights:        Weights{Headway: 0.35, Demand: 0.35, Delay: 0.20, Alerts: 0.10},
		Thresholds:     Thresholds{Medium: 34, High: 67},
		PeakMultiplier: 1.2,
	}
}

// Scorer turns factors into a 0-100 score. It holds no mutable state.
type Scorer struct {
	cfg ScorerConfig
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

func NewScorer(cfg ScorerConfig) (*Scorer, error) {
	if err := configValidator.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid scorer config: %w", err)
	}
	w := cfg.Weights
	if sum := w.Headway + w.Demand + w.Delay + w.Alerts; math.Abs(sum-1) > 1e-9 {
		return nil, fmt.Errorf("invalid scorer config: weights sum to %.3f, want 1", sum)
	}
	return &Scorer{cfg: cfg}, nil
}

var defaultScorer = &Scorer{cfg: DefaultScorerConfig()}

// DefaultScorer uses the built-in weights and thresholds.
func DefaultScorer() *Scorer { return defaultScorer }

func (s *Scorer) Config() ScorerConfig { return s.cfg }

// Score combines the factors. In the peak direction the weighted sum is
// multiplied by the peak multiplier and capped at 1 before scaling.
func (s *Scorer) Score(f Factors, peak bool) int {
	f = f.clamped()
	w := s.cfg.Weights
	sum := w.Headway*f.Headway + w.Demand*f.Demand + w.Delay*f.Delay + w.Alerts*f.Alerts
	if peak {
		sum = math.Min(1, sum*s.cfg.PeakMultiplier)
	}
	return clampScore(int(math.Round(sum * 100)))
}

// Level maps a score to its band.
func (s *Scorer) Level(score int) Level {
	switch t := s.cfg.Thresholds; {
	case score >= t.High:
		return LevelHigh
	case score >= t.Medium:
		return LevelMedium
	}
	return LevelLow
}

// ScoreToLevel maps a score using the default thresholds.
func ScoreToLevel(score int) Level {
	return defaultScorer.Level(score)
}

// Headway normalization bounds in minutes: at or under the first bound the
// factor is 0, at or over the second it is 1.
var headwayBounds = map[arrivals.Mode][2]float64{
	arrivals.ModeSubway: {2, 20},
	arrivals.ModeLIRR:   {2, 20},
	arrivals.ModeMNR:    {2, 20},
	arrivals.ModeBus:    {5, 30},
}

// NormalizeHeadway maps an average headway to [0, 1]. Longer gaps mean more
// riders per train. A non-positive headway (no signal) is 0.
func NormalizeHeadway(mode arrivals.Mode, minutes float64) float64 {
	if minutes <= 0 {
		return 0
	}
	b, ok := headwayBounds[mode]
	if !ok {
		b = headwayBounds[arrivals.ModeSubway]
	}
	return clamp01((minutes - b[0]) / (b[1] - b[0]))
}

// NormalizeDelay maps an average delay in seconds onto four linear bands:
// 0-60s to [0, 0.2), 60-180s to [0.2, 0.5), 180-300s to [0.5, 0.8) and
// 300-600s to [0.8, 1], capped at 1.
func NormalizeDelay(seconds float64) float64 {
	switch {
	case seconds <= 0:
		return 0
	case seconds < 60:
		return seconds / 60 * 0.2
	case seconds < 180:
		return 0.2 + (seconds-60)/120*0.3
	case seconds < 300:
		return 0.5 + (seconds-180)/120*0.3
	}
	return math.Min(1, 0.8+(seconds-300)/300*0.2)
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	return math.Min(v, 1)
}

func clampScore(v int) int {
	return max(0, min(v, 100))
}
