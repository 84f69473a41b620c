package indicator

import (
	"math"
	"time"

	"golang-rotation/internal/dto"
)

const (
	RSIWindow  = 14
	ATRWindow  = 14
	EMAShort   = 20
	EMALong    = 60
	MAWindow   = 30
	BollWindow = 20
	BollStdDev = 2.0
	MACDFast   = 12
	MACDSlow   = 26
	MACDSignal = 9
)

// Series holds one symbol's full OHLCV history and its derived indicators,
// indexed by trading date. Every value at index i is computed from bars at
// indices <= i only; warm-up positions are NaN and must be checked with
// Valid before use.
type Series struct {
	Symbol string
	Dates  []time.Time
	Open   []float64
	High   []float64
	Low    []float64
	Close  []float64
	Volume []float64

	RSI        []float64
	ATR        []float64
	EMA20      []float64
	EMA60      []float64
	MA30       []float64
	MA30Slope  []float64
	MACD       []float64
	MACDSig    []float64
	BollMid    []float64
	BollUpper  []float64
	BollLower  []float64
	PriceDelta []float64

	dateIndex map[int64]int
}

// Build computes the full indicator frame for a symbol from its bar history.
// Bars must be in chronological order.
func Build(symbol string, bars []dto.StockOHLCV, loc *time.Location) *Series {
	n := len(bars)
	s := &Series{
		Symbol:    symbol,
		Dates:     make([]time.Time, n),
		Open:      make([]float64, n),
		High:      make([]float64, n),
		Low:       make([]float64, n),
		Close:     make([]float64, n),
		Volume:    make([]float64, n),
		dateIndex: make(map[int64]int, n),
	}

	for i, b := range bars {
		d := b.Date(loc)
		s.Dates[i] = d
		s.Open[i] = b.Open
		s.High[i] = b.High
		s.Low[i] = b.Low
		s.Close[i] = b.Close
		s.Volume[i] = float64(b.Volume)
		s.dateIndex[d.Unix()] = i
	}

	s.RSI = rsi(s.Close, RSIWindow)
	s.ATR = atr(s.High, s.Low, s.Close, ATRWindow)
	s.EMA20 = ema(s.Close, EMAShort)
	s.EMA60 = ema(s.Close, EMALong)
	s.MA30 = sma(s.Close, MAWindow)
	s.MA30Slope = diff(s.MA30)
	s.MACD, s.MACDSig = macd(s.Close)
	s.BollMid, s.BollUpper, s.BollLower = bollinger(s.Close, BollWindow, BollStdDev)
	s.PriceDelta = diff(s.Close)

	return s
}

func (s *Series) Len() int {
	return len(s.Dates)
}

// IndexOf returns the bar index for an exact trading date. The second return
// is false when the symbol did not trade that date.
func (s *Series) IndexOf(date time.Time) (int, bool) {
	i, ok := s.dateIndex[date.Unix()]
	return i, ok
}

// LastIndexBefore returns the largest index whose date is strictly before
// the given date, or -1 when no such bar exists. This is the inference
// boundary that keeps model inputs causal.
func (s *Series) LastIndexBefore(date time.Time) int {
	lo, hi := 0, len(s.Dates)
	for lo < hi {
		mid := (lo + hi) / 2
		if s.Dates[mid].Before(date) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo - 1
}

// Valid reports whether every given indicator value at index i is usable
// (not NaN, index in range).
func Valid(i int, series ...[]float64) bool {
	for _, v := range series {
		if i < 0 || i >= len(v) || math.IsNaN(v[i]) {
			return false
		}
	}
	return true
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func sma(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	if len(values) < window {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		}
	}
	return out
}

// ema seeds with the SMA of the first window values, then applies the
// standard 2/(window+1) smoothing.
func ema(values []float64, window int) []float64 {
	out := nanSlice(len(values))
	if len(values) < window {
		return out
	}
	var seed float64
	for i := 0; i < window; i++ {
		seed += values[i]
	}
	seed /= float64(window)
	out[window-1] = seed

	alpha := 2.0 / (float64(window) + 1.0)
	for i := window; i < len(values); i++ {
		out[i] = values[i]*alpha + out[i-1]*(1-alpha)
	}
	return out
}

// rsi uses Wilder smoothing: the first average gain/loss is a simple mean,
// subsequent ones decay with 1/window.
func rsi(closes []float64, window int) []float64 {
	out := nanSlice(len(closes))
	if len(closes) <= window {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= window; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(window)
	avgLoss /= float64(window)
	out[window] = rsiValue(avgGain, avgLoss)

	for i := window + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(window-1) + gain) / float64(window)
		avgLoss = (avgLoss*float64(window-1) + loss) / float64(window)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// atr applies Wilder smoothing to the true range.
func atr(highs, lows, closes []float64, window int) []float64 {
	out := nanSlice(len(closes))
	if len(closes) <= window {
		return out
	}

	tr := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}

	var seed float64
	for i := 1; i <= window; i++ {
		seed += tr[i]
	}
	seed /= float64(window)
	out[window] = seed

	for i := window + 1; i < len(closes); i++ {
		out[i] = (out[i-1]*float64(window-1) + tr[i]) / float64(window)
	}
	return out
}

func macd(closes []float64) ([]float64, []float64) {
	fast := ema(closes, MACDFast)
	slow := ema(closes, MACDSlow)

	line := nanSlice(len(closes))
	for i := range closes {
		if !math.IsNaN(fast[i]) && !math.IsNaN(slow[i]) {
			line[i] = fast[i] - slow[i]
		}
	}

	// Signal line is an EMA over the defined portion of the MACD line.
	signal := nanSlice(len(closes))
	start := MACDSlow - 1
	if len(closes) >= start+MACDSignal {
		defined := line[start:]
		sig := ema(defined, MACDSignal)
		for i, v := range sig {
			signal[start+i] = v
		}
	}
	return line, signal
}

func bollinger(closes []float64, window int, k float64) (mid, upper, lower []float64) {
	mid = sma(closes, window)
	upper = nanSlice(len(closes))
	lower = nanSlice(len(closes))

	for i := window - 1; i < len(closes); i++ {
		var sumSq float64
		for j := i - window + 1; j <= i; j++ {
			d := closes[j] - mid[i]
			sumSq += d * d
		}
		std := math.Sqrt(sumSq / float64(window-1))
		upper[i] = mid[i] + k*std
		lower[i] = mid[i] - k*std
	}
	return mid, upper, lower
}

func diff(values []float64) []float64 {
	out := nanSlice(len(values))
	for i := 1; i < len(values); i++ {
		if !math.IsNaN(values[i]) && !math.IsNaN(values[i-1]) {
			out[i] = values[i] - values[i-1]
		}
	}
	return out
}
