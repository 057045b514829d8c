// Package ranking scores comparables against the target property and sorts
// them by descending similarity.
package ranking

import (
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/comps-engine/internal/record"
)

// Weights is the fixed weighted combination of attribute similarities.
// Each weight multiplies a sub-score in [0,100]; weights sum to 1.
type Weights struct {
	FloorArea float64 `mapstructure:"floor_area"`
	Proximity float64 `mapstructure:"proximity"`
	Bedrooms  float64 `mapstructure:"bedrooms"`
	Recency   float64 `mapstructure:"recency"`
}

// DefaultWeights returns the standard scoring weights.
func DefaultWeights() Weights {
	return Weights{
		FloorArea: 0.40,
		Proximity: 0.30,
		Bedrooms:  0.20,
		Recency:   0.10,
	}
}

// Engine computes 0-100 similarity rankings.
type Engine struct {
	weights Weights
	logger  *zap.Logger
}

// NewEngine creates an Engine, filling a zero Weights with defaults.
func NewEngine(weights Weights, logger *zap.Logger) *Engine {
	if weights == (Weights{}) {
		weights = DefaultWeights()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{weights: weights, logger: logger}
}

// Rank writes an integer Ranking in [0,100] onto every comparable and
// returns the slice sorted by descending Ranking. asOf anchors the recency
// sub-score; given identical inputs (including asOf) the output is
// identical across calls. Distance and sale-date sub-scores normalize
// against the maximum observed across the batch, so a comparable's score
// depends on which other comparables are present - an accepted design
// property, not a bug. Missing attributes degrade the relevant sub-score
// to 0; ranking never fails.
func (e *Engine) Rank(comparables []record.PropertyRecord, target record.PropertyRecord, asOf time.Time) []record.PropertyRecord {
	maxDistance := 0.0
	maxDays := 0.0
	for _, c := range comparables {
		if d, ok := c.Float(record.FieldDistanceMiles); ok && d > maxDistance {
			maxDistance = d
		}
		if days, ok := daysSinceSale(c, asOf); ok && days > maxDays {
			maxDays = days
		}
	}

	for _, c := range comparables {
		score := e.weights.FloorArea*floorAreaScore(c, target) +
			e.weights.Proximity*proximityScore(c, maxDistance) +
			e.weights.Bedrooms*bedroomScore(c, target) +
			e.weights.Recency*recencyScore(c, maxDays, asOf)
		c.Set(record.FieldRanking, int(math.Round(score)))
	}

	sort.SliceStable(comparables, func(i, j int) bool {
		ri, _ := comparables[i].Int(record.FieldRanking)
		rj, _ := comparables[j].Int(record.FieldRanking)
		if ri != rj {
			return ri > rj
		}
		return comparables[i].String(record.FieldAddress) < comparables[j].String(record.FieldAddress)
	})

	e.logger.Debug("ranked comparables", zap.Int("count", len(comparables)),
		zap.Float64("max_distance_miles", maxDistance), zap.Float64("max_days", maxDays))
	return comparables
}

func floorAreaScore(c, target record.PropertyRecord) float64 {
	targetArea, ok := target.FloorAreaSqFt()
	if !ok || targetArea == 0 {
		return 0
	}
	area, ok := c.FloorAreaSqFt()
	if !ok {
		return 0
	}
	return clamp(100 - 100*math.Abs(area-targetArea)/targetArea)
}

func proximityScore(c record.PropertyRecord, maxDistance float64) float64 {
	d, ok := c.Float(record.FieldDistanceMiles)
	if !ok {
		return 0
	}
	if maxDistance == 0 {
		return 100
	}
	return clamp(100 - 100*d/maxDistance)
}

func bedroomScore(c, target record.PropertyRecord) float64 {
	cb, cok := c.Int(record.FieldBedrooms)
	tb, tok := target.Int(record.FieldBedrooms)
	if !cok || !tok {
		return 0
	}
	switch diff := cb - tb; {
	case diff == 0:
		return 100
	case diff == 1 || diff == -1:
		return 50
	default:
		return 0
	}
}

func recencyScore(c record.PropertyRecord, maxDays float64, asOf time.Time) float64 {
	days, ok := daysSinceSale(c, asOf)
	if !ok {
		return 0
	}
	if maxDays == 0 {
		return 100
	}
	return clamp(100 - 100*days/maxDays)
}

func daysSinceSale(c record.PropertyRecord, asOf time.Time) (float64, bool) {
	sold, ok := c.Date(record.FieldSaleDate)
	if !ok {
		return 0, false
	}
	days := asOf.Sub(sold).Hours() / 24
	if days < 0 {
		days = 0
	}
	return days, true
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
