package dice

import (
	"math"

	"go.uber.org/zap"
)

// chanceResolution is the number of buckets a probability roll is drawn from.
const chanceResolution = 10_000

// Roller wraps a Source and logs every roll at debug level with a label
// naming what the roll decided.
type Roller struct {
	src    Source
	logger *zap.Logger
}

// NewLoggedRoller creates a Roller.
//
// Precondition: src and logger must be non-nil.
func NewLoggedRoller(src Source, logger *zap.Logger) *Roller {
	return &Roller{src: src, logger: logger}
}

// RollExpr parses and rolls a dice expression.
//
// Postcondition: Returns a RollResult or a parse error.
func (r *Roller) RollExpr(expr string) (RollResult, error) {
	e, err := Parse(expr)
	if err != nil {
		return RollResult{}, err
	}
	result := Roll(e, r.src)
	r.logger.Debug("dice roll",
		zap.String("expression", result.Expression),
		zap.Ints("dice", result.Dice),
		zap.Int("modifier", result.Modifier),
		zap.Int("total", result.Total()),
	)
	return result, nil
}

// Chance reports whether an event with probability p happens.
// p <= 0 never succeeds and p >= 1 always succeeds without consuming randomness.
func (r *Roller) Chance(label string, p float64) bool {
	if p <= 0 {
		return false
	}
	if p >= 1 {
		return true
	}
	threshold := int(math.Round(p * chanceResolution))
	roll := r.src.Intn(chanceResolution)
	ok := roll < threshold
	r.logger.Debug("chance roll",
		zap.String("label", label),
		zap.Float64("p", p),
		zap.Int("roll", roll),
		zap.Bool("success", ok),
	)
	return ok
}

// Between returns a uniform int in [lo, hi].
//
// Precondition: lo <= hi.
func (r *Roller) Between(label string, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	v := lo + r.src.Intn(hi-lo+1)
	r.logger.Debug("range roll",
		zap.String("label", label),
		zap.Int("lo", lo),
		zap.Int("hi", hi),
		zap.Int("value", v),
	)
	return v
}
