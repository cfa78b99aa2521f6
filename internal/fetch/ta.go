package fetch

import "math"

func sma(closes []float64, n int) float64 {
	if len(closes) < n || n <= 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(closes) - n; i < len(closes); i++ {
		sum += closes[i]
	}
	return sum / float64(n)
}

func rsi(closes []float64, period int) float64 {
	if len(closes) < period+1 || period <= 0 {
		return math.NaN()
	}
	gain, loss := 0.0, 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		d := closes[i] - closes[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	if loss == 0 {
		return 100.0
	}
	rs := (gain / float64(period)) / (loss / float64(period))
	return 100.0 - (100.0 / (1.0 + rs))
}

func stdDev(vals []float64, n int) float64 {
	if len(vals) < n || n <= 0 {
		return math.NaN()
	}
	m := sma(vals, n)
	s := 0.0
	for i := len(vals) - n; i < len(vals); i++ {
		d := vals[i] - m
		s += d * d
	}
	return math.Sqrt(s / float64(n))
}

func bollinger(closes []float64, n int, k float64) (mid, up, low float64) {
	mid = sma(closes, n)
	sd := stdDev(closes, n)
	up = mid + k*sd
	low = mid - k*sd
	return
}

func atr(highs, lows, closes []float64, period int) float64 {
	if len(highs) != len(lows) || len(lows) != len(closes) {
		return math.NaN()
	}
	n := period
	if len(closes) < n+1 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(closes) - n; i < len(closes); i++ {
		tr1 := highs[i] - lows[i]
		tr2 := math.Abs(highs[i] - closes[i-1])
		tr3 := math.Abs(lows[i] - closes[i-1])
		sum += math.Max(tr1, math.Max(tr2, tr3))
	}
	return sum / float64(n)
}

// ema over the whole series, last value.
func ema(closes []float64, n int) float64 {
	if len(closes) < n || n <= 0 {
		return math.NaN()
	}
	k := 2.0 / (float64(n) + 1.0)
	e := sma(closes[:n], n)
	for i := n; i < len(closes); i++ {
		e = closes[i]*k + e*(1.0-k)
	}
	return e
}

// macd returns the MACD line (EMA12-EMA26) and its EMA9 signal.
func macd(closes []float64) (line, signal float64) {
	if len(closes) < 35 {
		return math.NaN(), math.NaN()
	}
	series := make([]float64, 0, len(closes)-25)
	for i := 26; i <= len(closes); i++ {
		series = append(series, ema(closes[:i], 12)-ema(closes[:i], 26))
	}
	return series[len(series)-1], ema(series, 9)
}
