package backtest

import (
	"fmt"

	"alphaloop/internal/domain"
	"alphaloop/internal/indicator"
)

// Operator compares the two operands of a rule. Crossing operators look at
// the previous bar as well as the current one.
type Operator string

const (
	OpGT           Operator = "gt"
	OpGTE          Operator = "gte"
	OpLT           Operator = "lt"
	OpLTE          Operator = "lte"
	OpCrossesAbove Operator = "crosses_above"
	OpCrossesBelow Operator = "crosses_below"
)

// Operand is one side of a rule: a bar field ("open", "high", "low",
// "close", "volume", "prev_close"), an indicator reference, or a literal.
type Operand struct {
	Field          string   `json:"field,omitempty" yaml:"field,omitempty"`
	Indicator      string   `json:"indicator,omitempty" yaml:"indicator,omitempty"`
	IndicatorField string   `json:"indicator_field,omitempty" yaml:"indicator_field,omitempty"`
	Value          *float64 `json:"value,omitempty" yaml:"value,omitempty"`
}

// Rule is one declarative condition. All rules in a list must hold for the
// list to fire.
type Rule struct {
	Left  Operand  `json:"left" yaml:"left"`
	Op    Operator `json:"op" yaml:"op"`
	Right Operand  `json:"right" yaml:"right"`
}

// RuleSet is the declarative strategy variant: entry conditions, exit
// conditions, and the side entered when the entry conditions fire.
type RuleSet struct {
	Side  domain.Side `json:"side" yaml:"side"`
	Entry []Rule      `json:"entry" yaml:"entry"`
	Exit  []Rule      `json:"exit" yaml:"exit"`
}

// ruleEvaluator resolves operands against the precomputed series. It holds
// the full arrays but only ever reads indices <= the index under
// evaluation.
type ruleEvaluator struct {
	bars       []domain.Bar
	indicators map[string][]*indicator.Value
}

// resolve returns the operand's numeric value at index i, or false when the
// value is not yet available (indicator warming up, prev_close at index 0).
func (e *ruleEvaluator) resolve(op Operand, i int) (float64, bool) {
	if op.Value != nil {
		return *op.Value, true
	}
	if op.Indicator != "" {
		series, ok := e.indicators[op.Indicator]
		if !ok || i >= len(series) || series[i] == nil {
			return 0, false
		}
		field := op.IndicatorField
		if field == "" {
			return series[i].Scalar, true
		}
		return series[i].Field(field)
	}
	bar := e.bars[i]
	switch op.Field {
	case "open":
		return bar.Open, true
	case "high":
		return bar.High, true
	case "low":
		return bar.Low, true
	case "close":
		return bar.Close, true
	case "volume":
		return float64(bar.Volume), true
	case "prev_close":
		if i == 0 {
			return 0, false
		}
		return e.bars[i-1].Close, true
	default:
		return 0, false
	}
}

// eval evaluates a single rule at index i. Unresolvable operands make the
// rule false rather than erroring, so warming-up indicators simply hold the
// strategy out of the market.
func (e *ruleEvaluator) eval(r Rule, i int) bool {
	left, ok := e.resolve(r.Left, i)
	if !ok {
		return false
	}
	right, ok := e.resolve(r.Right, i)
	if !ok {
		return false
	}

	switch r.Op {
	case OpGT:
		return left > right
	case OpGTE:
		return left >= right
	case OpLT:
		return left < right
	case OpLTE:
		return left <= right
	case OpCrossesAbove, OpCrossesBelow:
		if i == 0 {
			return false
		}
		prevLeft, ok := e.resolve(r.Left, i-1)
		if !ok {
			return false
		}
		prevRight, ok := e.resolve(r.Right, i-1)
		if !ok {
			return false
		}
		if r.Op == OpCrossesAbove {
			return prevLeft <= prevRight && left > right
		}
		return prevLeft >= prevRight && left < right
	default:
		return false
	}
}

// evalAll reports whether every rule in the list holds at index i. An empty
// list never fires.
func (e *ruleEvaluator) evalAll(rules []Rule, i int) bool {
	if len(rules) == 0 {
		return false
	}
	for _, r := range rules {
		if !e.eval(r, i) {
			return false
		}
	}
	return true
}

// validateRules rejects rules whose operands reference nothing, so a
// malformed generated script fails the run up front instead of silently
// never trading.
func validateRules(rules []Rule) error {
	for idx, r := range rules {
		for _, op := range []Operand{r.Left, r.Right} {
			if op.Value == nil && op.Indicator == "" && op.Field == "" {
				return fmt.Errorf("rule %d: operand references no field, indicator, or literal", idx)
			}
		}
		switch r.Op {
		case OpGT, OpGTE, OpLT, OpLTE, OpCrossesAbove, OpCrossesBelow:
		default:
			return fmt.Errorf("rule %d: unknown operator %q", idx, r.Op)
		}
	}
	return nil
}
