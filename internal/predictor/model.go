package predictor

import (
	"fmt"
	"math"
)

const (
	// VariantProb scores the probability that the symbol reaches the
	// target ROI within the forecast horizon.
	VariantProb = "prob"
	// VariantROI scores the maximum predicted ROI percentage over an
	// autoregressive forecast of the horizon.
	VariantROI = "roi"
)

// Model scores a window of scaled feature rows. Higher is better; the
// engine compares scores of the same variant only.
type Model interface {
	Score(window [][]float64) float64
}

// probModel is a logistic classifier over pooled window features: the mean
// and the final value of each feature column.
type probModel struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

func poolWindow(window [][]float64) []float64 {
	if len(window) == 0 {
		return nil
	}
	dim := len(window[0])
	pooled := make([]float64, 2*dim)
	for _, row := range window {
		for j, v := range row {
			pooled[j] += v
		}
	}
	for j := 0; j < dim; j++ {
		pooled[j] /= float64(len(window))
	}
	copy(pooled[dim:], window[len(window)-1])
	return pooled
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}

func (m *probModel) forward(pooled []float64) float64 {
	z := m.Bias
	for j, w := range m.Weights {
		z += w * pooled[j]
	}
	return sigmoid(z)
}

func (m *probModel) Score(window [][]float64) float64 {
	pooled := poolWindow(window)
	if len(pooled) != len(m.Weights) {
		return 0
	}
	return m.forward(pooled)
}

// trainProbModel fits the classifier with full-batch gradient descent on
// binary labels. Training is deterministic: zero-initialized weights, fixed
// epoch count.
func trainProbModel(windows [][][]float64, labels []float64, epochs int, lr float64) (*probModel, error) {
	if len(windows) == 0 || len(windows) != len(labels) {
		return nil, fmt.Errorf("invalid training set: %d windows, %d labels", len(windows), len(labels))
	}

	pooled := make([][]float64, len(windows))
	for i, w := range windows {
		pooled[i] = poolWindow(w)
	}
	dim := len(pooled[0])

	m := &probModel{Weights: make([]float64, dim)}
	n := float64(len(pooled))

	for epoch := 0; epoch < epochs; epoch++ {
		gradW := make([]float64, dim)
		gradB := 0.0
		for i, x := range pooled {
			err := m.forward(x) - labels[i]
			for j, v := range x {
				gradW[j] += err * v
			}
			gradB += err
		}
		for j := range m.Weights {
			m.Weights[j] -= lr * gradW[j] / n
		}
		m.Bias -= lr * gradB / n
	}
	return m, nil
}

// roiModel is an autoregressive linear forecaster over the scaled close
// column. Forecast produces a finite, non-restartable sequence of N points
// where point i+1's input depends deterministically on point i's output.
type roiModel struct {
	Weights      []float64 `json:"weights"`
	Bias         float64   `json:"bias"`
	CloseCol     int       `json:"close_col"`
	ForecastDays int       `json:"forecast_days"`
	scaler       *MinMaxScaler
}

func (m *roiModel) next(lags []float64) float64 {
	z := m.Bias
	for j, w := range m.Weights {
		z += w * lags[j]
	}
	// Scaled closes live in [0,1]; keep the rollout from running away.
	return math.Max(0, math.Min(z, 2))
}

// Score runs the bounded autoregressive rollout and returns the maximum
// forecast ROI in percent relative to the last observed close.
func (m *roiModel) Score(window [][]float64) float64 {
	if len(window) != len(m.Weights) {
		return 0
	}

	lags := make([]float64, len(window))
	for i, row := range window {
		lags[i] = row[m.CloseCol]
	}
	current := m.scaler.InverseColumn(m.CloseCol, lags[len(lags)-1])
	if current <= 0 {
		return 0
	}

	maxFuture := math.Inf(-1)
	for step := 0; step < m.ForecastDays; step++ {
		pred := m.next(lags)
		if v := m.scaler.InverseColumn(m.CloseCol, pred); v > maxFuture {
			maxFuture = v
		}
		copy(lags, lags[1:])
		lags[len(lags)-1] = pred
	}
	return (maxFuture - current) / current * 100
}

// trainROIModel fits the one-step-ahead forecaster by least squares
// gradient descent over (lag window -> next close) pairs.
func trainROIModel(scaled [][]float64, closeCol, lookBack, forecastDays, epochs int, lr float64, scaler *MinMaxScaler) (*roiModel, error) {
	if len(scaled) <= lookBack {
		return nil, fmt.Errorf("insufficient samples for AR training: have %d, need > %d", len(scaled), lookBack)
	}

	closes := make([]float64, len(scaled))
	for i, row := range scaled {
		closes[i] = row[closeCol]
	}

	m := &roiModel{
		Weights:      make([]float64, lookBack),
		CloseCol:     closeCol,
		ForecastDays: forecastDays,
		scaler:       scaler,
	}
	// Start from a persistence forecast (last lag carries full weight) so
	// early epochs already produce sane rollouts.
	m.Weights[lookBack-1] = 1.0

	n := float64(len(closes) - lookBack)
	for epoch := 0; epoch < epochs; epoch++ {
		gradW := make([]float64, lookBack)
		gradB := 0.0
		for i := lookBack; i < len(closes); i++ {
			lags := closes[i-lookBack : i]
			err := m.next(lags) - closes[i]
			for j, v := range lags {
				gradW[j] += err * v
			}
			gradB += err
		}
		for j := range m.Weights {
			m.Weights[j] -= lr * gradW[j] / n
		}
		m.Bias -= lr * gradB / n
	}
	return m, nil
}
