package domain

import "math"

// DefaultGapMax caps a single level's fractional gap so the cumulative
// multiplier never reaches zero.
const DefaultGapMax = 0.95

// LadderConfig is the typed strategy configuration. It is validated once by
// BuildPlan; nothing downstream re-checks it.
type LadderConfig struct {
	BaseGap        float64   // fractional gap per weight unit, > 0
	GapMax         float64   // cap on a single level's gap, (0, 1]; 0 means DefaultGapMax
	LadderCount    int       // number of levels, > 0
	WeightSequence []float64 // conventionally Fibonacci, len >= LadderCount
	UnitSize       float64   // base-asset quantity at the shallowest level, > 0
	FeeRate        float64   // per-leg fee fraction, [0, 1)
}

// Validate reports the first field that violates its constraint. Comparisons
// are written so NaN fails them.
func (c LadderConfig) Validate() error {
	switch {
	case c.LadderCount <= 0:
		return &ConfigError{Field: "ladder_count", Constraint: "> 0"}
	case !(c.BaseGap > 0) || math.IsInf(c.BaseGap, 0):
		return &ConfigError{Field: "base_gap", Constraint: "> 0"}
	case len(c.WeightSequence) < c.LadderCount:
		return &ConfigError{Field: "weight_sequence", Constraint: "at least ladder_count long"}
	case !(c.GapMax >= 0 && c.GapMax <= 1):
		return &ConfigError{Field: "gap_max", Constraint: "in (0, 1]"}
	case !(c.UnitSize > 0) || math.IsInf(c.UnitSize, 0):
		return &ConfigError{Field: "unit_size", Constraint: "> 0"}
	case !(c.FeeRate >= 0 && c.FeeRate < 1):
		return &ConfigError{Field: "fee_rate", Constraint: "in [0, 1)"}
	}
	for i := 0; i < c.LadderCount; i++ {
		if w := c.WeightSequence[i]; !(w > 0) || math.IsInf(w, 0) {
			return &ConfigError{Field: "weight_sequence", Constraint: "all positive"}
		}
	}
	return nil
}

// Level is one derived ladder tier. Index 0 is the shallowest.
type Level struct {
	Index      int
	ID         int // -(Index+1)
	Weight     float64
	RawGap     float64 // BaseGap × Weight, unclamped
	Gap        float64 // min(RawGap, GapMax)
	Multiplier float64 // Π (1 - Gap_j) for j <= Index
	Units      float64 // 2^Index
}

// Clamped reports whether GapMax cut this level's gap.
func (l Level) Clamped() bool { return l.RawGap > l.Gap }

// Plan is the immutable ladder derived from a LadderConfig. It may be shared
// read-only between goroutines.
type Plan struct {
	Levels   []Level
	GapMax   float64
	UnitSize float64
	FeeRate  float64
}

// BuildPlan turns a configuration into its ordered ladder levels.
//
// Every configured level is produced: gaps are clamped to GapMax instead of
// truncating the ladder once the cumulative drop approaches 100%.
func BuildPlan(cfg LadderConfig) (Plan, error) {
	if cfg.GapMax == 0 {
		cfg.GapMax = DefaultGapMax
	}
	if err := cfg.Validate(); err != nil {
		return Plan{}, err
	}

	levels := make([]Level, cfg.LadderCount)
	multiplier := 1.0
	for i := 0; i < cfg.LadderCount; i++ {
		weight := cfg.WeightSequence[i]
		raw := cfg.BaseGap * weight
		gap := min(raw, cfg.GapMax)
		multiplier *= 1 - gap

		levels[i] = Level{
			Index:      i,
			ID:         -(i + 1),
			Weight:     weight,
			RawGap:     raw,
			Gap:        gap,
			Multiplier: multiplier,
			Units:      ComputeUnits(i),
		}
	}

	return Plan{
		Levels:   levels,
		GapMax:   cfg.GapMax,
		UnitSize: cfg.UnitSize,
		FeeRate:  cfg.FeeRate,
	}, nil
}

// TotalSwing is the cumulative drop from the reference price to the deepest level.
func (p Plan) TotalSwing() float64 {
	if len(p.Levels) == 0 {
		return 0
	}
	return 1 - p.Levels[len(p.Levels)-1].Multiplier
}

// TotalUnits sums the Martingale weights over every level.
func (p Plan) TotalUnits() float64 {
	total := 0.0
	for _, l := range p.Levels {
		total += l.Units
	}
	return total
}

// LevelByID returns the level with the given id.
func (p Plan) LevelByID(id int) (Level, bool) {
	idx := -id - 1
	if idx < 0 || idx >= len(p.Levels) {
		return Level{}, false
	}
	return p.Levels[idx], true
}
