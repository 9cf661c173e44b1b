package indicator

import (
	"math"

	"alphaloop/internal/domain"
	"alphaloop/internal/util"
)

func computeSMA(bars []domain.Bar, period int) []*Value {
	out := make([]*Value, len(bars))
	var sum float64
	for i := range bars {
		sum += bars[i].Close
		if i >= period {
			sum -= bars[i-period].Close
		}
		if i >= period-1 {
			out[i] = scalar(sum / float64(period))
		}
	}
	return out
}

// computeEMA seeds the recurrence with the first close and applies the
// standard 2/(period+1) multiplier. Values are emitted from index 0; the
// seed simply carries less smoothing weight early on.
func computeEMA(bars []domain.Bar, period int) []*Value {
	out := make([]*Value, len(bars))
	if len(bars) == 0 {
		return out
	}
	k := 2.0 / float64(period+1)
	ema := bars[0].Close
	out[0] = scalar(ema)
	for i := 1; i < len(bars); i++ {
		ema = (bars[i].Close-ema)*k + ema
		out[i] = scalar(ema)
	}
	return out
}

// computeVWAP accumulates typical-price × volume over volume, resetting the
// accumulators at each session boundary (calendar date in the exchange
// timezone). Entries with zero cumulative volume are nil.
func computeVWAP(bars []domain.Bar) []*Value {
	out := make([]*Value, len(bars))
	var sumPV, sumV float64
	for i := range bars {
		if i > 0 && !util.SameSession(bars[i-1].Timestamp, bars[i].Timestamp) {
			sumPV, sumV = 0, 0
		}
		tp := (bars[i].High + bars[i].Low + bars[i].Close) / 3.0
		v := float64(bars[i].Volume)
		sumPV += tp * v
		sumV += v
		if sumV > 0 {
			out[i] = scalar(sumPV / sumV)
		}
	}
	return out
}

// computeRSI uses the plain trailing-window average gain / average loss form
// of RSI. Until a full window of price changes exists the neutral value 50
// is emitted rather than nil, matching the scanner's expectations.
func computeRSI(bars []domain.Bar, period int) []*Value {
	out := make([]*Value, len(bars))
	for i := range bars {
		if i < period {
			out[i] = scalar(50)
			continue
		}
		var gain, loss float64
		for j := i - period + 1; j <= i; j++ {
			change := bars[j].Close - bars[j-1].Close
			if change > 0 {
				gain += change
			} else {
				loss -= change
			}
		}
		avgGain := gain / float64(period)
		avgLoss := loss / float64(period)
		switch {
		case avgLoss == 0 && avgGain == 0:
			out[i] = scalar(50)
		case avgLoss == 0:
			out[i] = scalar(100)
		default:
			rs := avgGain / avgLoss
			out[i] = scalar(100 - 100/(1+rs))
		}
	}
	return out
}

func computeATR(bars []domain.Bar, period int) []*Value {
	out := make([]*Value, len(bars))
	if len(bars) == 0 {
		return out
	}

	// True range needs the previous close, so TR starts at index 1 and the
	// first ATR lands at index period.
	tr := make([]float64, len(bars))
	for i := 1; i < len(bars); i++ {
		hl := bars[i].High - bars[i].Low
		hc := math.Abs(bars[i].High - bars[i-1].Close)
		lc := math.Abs(bars[i].Low - bars[i-1].Close)
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}

	var sum float64
	for i := 1; i < len(bars); i++ {
		sum += tr[i]
		if i > period {
			sum -= tr[i-period]
		}
		if i >= period {
			out[i] = scalar(sum / float64(period))
		}
	}
	return out
}

func computeBollinger(bars []domain.Bar, period int, stdDev float64) []*Value {
	out := make([]*Value, len(bars))
	var sum, sum2 float64
	for i := range bars {
		c := bars[i].Close
		sum += c
		sum2 += c * c
		if i >= period {
			old := bars[i-period].Close
			sum -= old
			sum2 -= old * old
		}
		if i < period-1 {
			continue
		}
		mean := sum / float64(period)
		variance := sum2/float64(period) - mean*mean
		if variance < 0 {
			variance = 0
		}
		sd := math.Sqrt(variance)
		out[i] = &Value{Fields: map[string]float64{
			"upper": mean + stdDev*sd,
			"mid":   mean,
			"lower": mean - stdDev*sd,
		}}
	}
	return out
}

func computeMACD(bars []domain.Bar, fast, slow, signalPeriod int) []*Value {
	out := make([]*Value, len(bars))
	if len(bars) == 0 {
		return out
	}

	fastEMA := computeEMA(bars, fast)
	slowEMA := computeEMA(bars, slow)

	macdLine := make([]float64, len(bars))
	for i := range bars {
		macdLine[i] = fastEMA[i].Scalar - slowEMA[i].Scalar
	}

	// Signal line: EMA of the MACD line, seeded where the slow EMA has a
	// full window behind it.
	warm := slow - 1
	if warm >= len(bars) {
		return out
	}
	k := 2.0 / float64(signalPeriod+1)
	sig := macdLine[warm]
	for i := warm; i < len(bars); i++ {
		if i > warm {
			sig = (macdLine[i]-sig)*k + sig
		}
		if i < warm+signalPeriod-1 {
			continue
		}
		out[i] = &Value{Fields: map[string]float64{
			"macd":   macdLine[i],
			"signal": sig,
			"hist":   macdLine[i] - sig,
		}}
	}
	return out
}
