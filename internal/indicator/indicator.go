// Package indicator precomputes technical indicator series aligned
// index-for-index with a bar series. Values are nil until enough history
// exists at an index, never a sentinel number, so warmup bars cannot leak
// into strategy arithmetic.
package indicator

import (
	"fmt"

	"alphaloop/internal/domain"
)

// Type identifies an indicator family.
type Type string

const (
	TypeSMA       Type = "sma"
	TypeEMA       Type = "ema"
	TypeVWAP      Type = "vwap"
	TypeRSI       Type = "rsi"
	TypeATR       Type = "atr"
	TypeBollinger Type = "bollinger"
	TypeMACD      Type = "macd"
)

// Spec is one indicator request: a type plus its parameters.
type Spec struct {
	Type   Type    `json:"type" yaml:"type"`
	Period int     `json:"period,omitempty" yaml:"period,omitempty"`
	Fast   int     `json:"fast,omitempty" yaml:"fast,omitempty"`     // MACD fast EMA
	Slow   int     `json:"slow,omitempty" yaml:"slow,omitempty"`     // MACD slow EMA
	Signal int     `json:"signal,omitempty" yaml:"signal,omitempty"` // MACD signal EMA
	StdDev float64 `json:"std_dev,omitempty" yaml:"std_dev,omitempty"`
}

// ID returns the stable identifier strategies use to reference this
// indicator in an evaluation context, e.g. "sma_20" or "macd_12_26_9".
func (s Spec) ID() string {
	switch s.Type {
	case TypeVWAP:
		return "vwap"
	case TypeMACD:
		return fmt.Sprintf("macd_%d_%d_%d", s.Fast, s.Slow, s.Signal)
	default:
		return fmt.Sprintf("%s_%d", s.Type, s.Period)
	}
}

// Value is one indicator sample. Scalar indicators populate Scalar; multi
// field indicators (Bollinger, MACD) populate Fields instead.
type Value struct {
	Scalar float64
	Fields map[string]float64
}

// Field returns the named field of a multi-field value. For scalar values it
// returns the scalar regardless of name, so rule evaluation can treat both
// shapes uniformly.
func (v *Value) Field(name string) (float64, bool) {
	if v.Fields == nil {
		return v.Scalar, true
	}
	f, ok := v.Fields[name]
	return f, ok
}

func scalar(f float64) *Value { return &Value{Scalar: f} }

// Compute produces the value series for one spec, aligned with bars. The
// returned slice always has len(bars) entries; entries are nil while the
// indicator is warming up.
func Compute(bars []domain.Bar, spec Spec) ([]*Value, error) {
	switch spec.Type {
	case TypeSMA:
		if spec.Period <= 0 {
			return nil, fmt.Errorf("sma: period must be positive, got %d", spec.Period)
		}
		return computeSMA(bars, spec.Period), nil
	case TypeEMA:
		if spec.Period <= 0 {
			return nil, fmt.Errorf("ema: period must be positive, got %d", spec.Period)
		}
		return computeEMA(bars, spec.Period), nil
	case TypeVWAP:
		return computeVWAP(bars), nil
	case TypeRSI:
		if spec.Period <= 0 {
			return nil, fmt.Errorf("rsi: period must be positive, got %d", spec.Period)
		}
		return computeRSI(bars, spec.Period), nil
	case TypeATR:
		if spec.Period <= 0 {
			return nil, fmt.Errorf("atr: period must be positive, got %d", spec.Period)
		}
		return computeATR(bars, spec.Period), nil
	case TypeBollinger:
		if spec.Period <= 0 {
			return nil, fmt.Errorf("bollinger: period must be positive, got %d", spec.Period)
		}
		sd := spec.StdDev
		if sd == 0 {
			sd = 2.0
		}
		return computeBollinger(bars, spec.Period, sd), nil
	case TypeMACD:
		fast, slow, sig := spec.Fast, spec.Slow, spec.Signal
		if fast == 0 {
			fast = 12
		}
		if slow == 0 {
			slow = 26
		}
		if sig == 0 {
			sig = 9
		}
		if fast >= slow {
			return nil, fmt.Errorf("macd: fast period %d must be below slow period %d", fast, slow)
		}
		return computeMACD(bars, fast, slow, sig), nil
	default:
		return nil, fmt.Errorf("unknown indicator type %q", spec.Type)
	}
}

// ComputeAll precomputes every requested indicator once for the whole series,
// keyed by Spec.ID(). The simulation loop reads per-bar snapshots from this
// map rather than recomputing per bar.
func ComputeAll(bars []domain.Bar, specs []Spec) (map[string][]*Value, error) {
	out := make(map[string][]*Value, len(specs))
	for _, spec := range specs {
		values, err := Compute(bars, spec)
		if err != nil {
			return nil, err
		}
		out[spec.ID()] = values
	}
	return out, nil
}
