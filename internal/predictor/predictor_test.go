package predictor

import (
	"context"
	"math"
	"testing"
	"time"

	"golang-rotation/config"
	"golang-rotation/internal/dto"
	"golang-rotation/internal/indicator"
	"golang-rotation/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPredictorConfig(variant string) config.Predictor {
	return config.Predictor{
		Variant:             variant,
		LookBack:            10,
		ForecastDays:        5,
		TargetROI:           0.03,
		ConfidenceThreshold: 0.55,
		RetrainIntervalDays: 20,
		MaxTrainSamples:     100,
		Epochs:              5,
		LearningRate:        0.05,
	}
}

func buildTestSeries(t *testing.T, symbol string, n int) *indicator.Series {
	t.Helper()
	base := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]dto.StockOHLCV, n)
	for i := range bars {
		c := 100 + 15*math.Sin(float64(i)/7) + float64(i)*0.2
		bars[i] = dto.StockOHLCV{
			Open:      c * 0.995,
			High:      c * 1.01,
			Low:       c * 0.99,
			Close:     c,
			Volume:    int64(1_000_000 + 1000*i),
			Timestamp: base.AddDate(0, 0, i).Unix(),
		}
	}
	return indicator.Build(symbol, bars, time.UTC)
}

func TestMinMaxScaler(t *testing.T) {
	s := &MinMaxScaler{}
	require.Error(t, s.Fit(nil))

	rows := [][]float64{{1, 10}, {3, 10}, {5, 10}}
	require.NoError(t, s.Fit(rows))

	got := s.Transform([]float64{3, 10})
	assert.InDelta(t, 0.5, got[0], 1e-9)
	assert.InDelta(t, 0.0, got[1], 1e-9) // zero-range column collapses

	assert.InDelta(t, 3.0, s.InverseColumn(0, 0.5), 1e-9)
}

func TestPredictReturnsNoSignalOnShortHistory(t *testing.T) {
	p := New(logger.Nop(), testPredictorConfig(VariantProb))
	series := buildTestSeries(t, "SHRT", 40)

	score := p.Predict(context.Background(), series, series.Dates[39].AddDate(0, 0, 1))

	assert.Equal(t, NoSignal, score)
	require.Len(t, p.Diagnostics(), 1)
	assert.Equal(t, "SHRT", p.Diagnostics()[0].Symbol)
	assert.Equal(t, "train", p.Diagnostics()[0].Stage)
}

// The eligibility check must agree exactly with Predict's training floor:
// look-back plus the training margin in usable rows past the indicator
// warm-up, which ends at bar index 29 (MA30).
func TestSufficientHistoryMatchesTrainingFloor(t *testing.T) {
	cfg := testPredictorConfig(VariantProb)

	short := buildTestSeries(t, "SHRT", 58)
	assert.False(t, SufficientHistory(short, short.Dates[57].AddDate(0, 0, 1), cfg))

	enough := buildTestSeries(t, "ENGH", 59)
	assert.True(t, SufficientHistory(enough, enough.Dates[58].AddDate(0, 0, 1), cfg))

	// Only bars strictly before asOf count.
	assert.False(t, SufficientHistory(enough, enough.Dates[57], cfg))
}

func TestPredictTrainsLazilyAndRetrainsOnSchedule(t *testing.T) {
	p := New(logger.Nop(), testPredictorConfig(VariantProb))
	series := buildTestSeries(t, "LAZY", 250)
	asOf := series.Dates[200]

	p.Predict(context.Background(), series, asOf)
	assert.Equal(t, 1, p.trainings)

	// Within the interval the cached model is reused.
	p.Predict(context.Background(), series, asOf.AddDate(0, 0, 5))
	p.Predict(context.Background(), series, asOf.AddDate(0, 0, 19))
	assert.Equal(t, 1, p.trainings)

	// At the interval boundary the model retrains in place.
	p.Predict(context.Background(), series, asOf.AddDate(0, 0, 20))
	assert.Equal(t, 2, p.trainings)

	entry := p.models["LAZY"]
	require.NotNil(t, entry)
	assert.Equal(t, asOf.AddDate(0, 0, 20), entry.lastTrainDate)
}

func TestPredictCachesPerSymbol(t *testing.T) {
	p := New(logger.Nop(), testPredictorConfig(VariantProb))
	a := buildTestSeries(t, "AAA", 250)
	b := buildTestSeries(t, "BBB", 250)
	asOf := a.Dates[200]

	p.Predict(context.Background(), a, asOf)
	p.Predict(context.Background(), b, asOf)

	assert.Equal(t, 2, p.trainings)
	assert.Len(t, p.models, 2)
}

func TestPredictIsDeterministic(t *testing.T) {
	for _, variant := range []string{VariantProb, VariantROI} {
		t.Run(variant, func(t *testing.T) {
			series := buildTestSeries(t, "DET", 250)
			asOf := series.Dates[200]

			p1 := New(logger.Nop(), testPredictorConfig(variant))
			p2 := New(logger.Nop(), testPredictorConfig(variant))

			s1 := p1.Predict(context.Background(), series, asOf)
			s2 := p2.Predict(context.Background(), series, asOf)

			assert.NotEqual(t, NoSignal, s1)
			assert.Equal(t, s1, s2)
		})
	}
}

func TestProbScoreIsAProbability(t *testing.T) {
	p := New(logger.Nop(), testPredictorConfig(VariantProb))
	series := buildTestSeries(t, "PROB", 250)

	score := p.Predict(context.Background(), series, series.Dates[200])

	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestPredictIgnoresFutureBars(t *testing.T) {
	series := buildTestSeries(t, "CAUS", 250)
	asOf := series.Dates[200]

	p1 := New(logger.Nop(), testPredictorConfig(VariantProb))
	full := p1.Predict(context.Background(), series, asOf)

	// Truncating history after the as-of date must not change the score.
	truncated := buildTestSeries(t, "CAUS", 200)
	p2 := New(logger.Nop(), testPredictorConfig(VariantProb))
	trunc := p2.Predict(context.Background(), truncated, asOf)

	assert.Equal(t, full, trunc)
}

func TestSaveAndLoadModels(t *testing.T) {
	dir := t.TempDir()
	cfg := testPredictorConfig(VariantProb)
	series := buildTestSeries(t, "PERS", 250)
	asOf := series.Dates[200]

	p1 := New(logger.Nop(), cfg)
	want := p1.Predict(context.Background(), series, asOf)
	require.NoError(t, p1.SaveModels(dir))

	p2 := New(logger.Nop(), cfg)
	require.NoError(t, p2.LoadModels(dir))
	assert.Equal(t, 0, p2.trainings)

	got := p2.Predict(context.Background(), series, asOf)
	assert.Equal(t, 0, p2.trainings) // restored model is fresh enough
	assert.Equal(t, want, got)
}

func TestLoadModelsSkipsOtherVariant(t *testing.T) {
	dir := t.TempDir()
	series := buildTestSeries(t, "MIX", 250)

	p1 := New(logger.Nop(), testPredictorConfig(VariantROI))
	p1.Predict(context.Background(), series, series.Dates[200])
	require.NoError(t, p1.SaveModels(dir))

	p2 := New(logger.Nop(), testPredictorConfig(VariantProb))
	require.NoError(t, p2.LoadModels(dir))
	assert.Empty(t, p2.models)
}
