package predictor

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"golang-rotation/config"
	"golang-rotation/internal/dto"
	"golang-rotation/internal/indicator"
	"golang-rotation/pkg/logger"
	"golang-rotation/pkg/utils"
)

// NoSignal is the sentinel score returned when a symbol cannot be trained
// or scored. It ranks below every real score so the candidate is naturally
// excluded.
const NoSignal = -999.0

// minTrainMargin is the number of usable feature rows required beyond the
// look-back window before training is attempted.
const minTrainMargin = 20

const closeColumn = 0

type cacheEntry struct {
	model         Model
	scaler        *MinMaxScaler
	lastTrainDate time.Time
}

// Predictor owns the per-symbol model cache for one simulation run. Models
// are trained lazily on the first prediction request and retrained in place
// once the retrain interval has elapsed in simulated time. The cache is not
// safe for concurrent use; the engine is single-threaded by design.
type Predictor struct {
	log       *logger.Logger
	cfg       config.Predictor
	models    map[string]*cacheEntry
	trainings int
	diags     []dto.Diagnostic
}

func New(log *logger.Logger, cfg config.Predictor) *Predictor {
	return &Predictor{
		log:    log,
		cfg:    cfg,
		models: make(map[string]*cacheEntry),
	}
}

// Predict scores a symbol as of the given simulated date, using bars
// strictly before asOf only. Failures are recorded as diagnostics and
// mapped to NoSignal; Predict never aborts the simulation.
func (p *Predictor) Predict(ctx context.Context, series *indicator.Series, asOf time.Time) float64 {
	end := series.LastIndexBefore(asOf)
	rows, closes := featureRows(series, end)
	if len(rows) < p.cfg.LookBack+minTrainMargin {
		p.addDiag(series.Symbol, "train", fmt.Sprintf("insufficient history: %d usable rows, need %d", len(rows), p.cfg.LookBack+minTrainMargin))
		return NoSignal
	}

	entry, ok := p.models[series.Symbol]
	if !ok || utils.DaysBetween(entry.lastTrainDate, asOf) >= p.cfg.RetrainIntervalDays {
		trained, err := p.train(rows, closes)
		if err != nil {
			p.log.WarnContext(ctx, "Predictor training failed",
				logger.StringField("symbol", series.Symbol),
				logger.DateField("as_of", asOf),
				logger.ErrorField(err),
			)
			p.addDiag(series.Symbol, "train", err.Error())
			return NoSignal
		}
		trained.lastTrainDate = asOf
		p.models[series.Symbol] = trained
		p.trainings++
		entry = trained

		p.log.DebugContext(ctx, "Predictor model trained",
			logger.StringField("symbol", series.Symbol),
			logger.DateField("as_of", asOf),
			logger.IntField("samples", len(rows)),
		)
	}

	window := make([][]float64, p.cfg.LookBack)
	for i := range window {
		window[i] = entry.scaler.Transform(rows[len(rows)-p.cfg.LookBack+i])
	}
	return entry.model.Score(window)
}

// Diagnostics returns the accumulated per-symbol failures of this run.
func (p *Predictor) Diagnostics() []dto.Diagnostic {
	return p.diags
}

func (p *Predictor) addDiag(symbol, stage, msg string) {
	p.diags = append(p.diags, dto.Diagnostic{Symbol: symbol, Stage: stage, Error: msg})
}

// SufficientHistory reports whether the series carries enough usable feature
// rows strictly before asOf to train and score a model. The engine checks it
// during candidate selection so short-history symbols are excluded up front
// instead of consuming a prediction that can only return NoSignal.
func SufficientHistory(series *indicator.Series, asOf time.Time, cfg config.Predictor) bool {
	end := series.LastIndexBefore(asOf)
	usable := 0
	for i := 0; i <= end && i < series.Len(); i++ {
		if indicator.Valid(i, series.RSI, series.MACD, series.ATR, series.MA30) {
			usable++
		}
	}
	return usable >= cfg.LookBack+minTrainMargin
}

// featureRows extracts the model feature matrix [Close, Volume, RSI, MACD,
// ATR, MA30] for bar indices <= end, dropping the indicator warm-up prefix.
func featureRows(series *indicator.Series, end int) (rows [][]float64, closes []float64) {
	for i := 0; i <= end && i < series.Len(); i++ {
		if !indicator.Valid(i, series.RSI, series.MACD, series.ATR, series.MA30) {
			continue
		}
		rows = append(rows, []float64{
			series.Close[i],
			series.Volume[i],
			series.RSI[i],
			series.MACD[i],
			series.ATR[i],
			series.MA30[i],
		})
		closes = append(closes, series.Close[i])
	}
	return rows, closes
}

func (p *Predictor) train(rows [][]float64, closes []float64) (*cacheEntry, error) {
	scaler := &MinMaxScaler{}
	if err := scaler.Fit(rows); err != nil {
		return nil, err
	}
	scaled := scaler.TransformAll(rows)

	switch p.cfg.Variant {
	case VariantROI:
		bounded := scaled
		if limit := p.cfg.MaxTrainSamples + p.cfg.LookBack; len(bounded) > limit {
			bounded = bounded[len(bounded)-limit:]
		}
		model, err := trainROIModel(bounded, closeColumn, p.cfg.LookBack, p.cfg.ForecastDays, p.cfg.Epochs, p.cfg.LearningRate, scaler)
		if err != nil {
			return nil, err
		}
		return &cacheEntry{model: model, scaler: scaler}, nil

	case VariantProb:
		windows, labels, err := p.buildClassifierSet(scaled, closes)
		if err != nil {
			return nil, err
		}
		model, err := trainProbModel(windows, labels, p.cfg.Epochs, p.cfg.LearningRate)
		if err != nil {
			return nil, err
		}
		return &cacheEntry{model: model, scaler: scaler}, nil

	default:
		return nil, fmt.Errorf("unknown predictor variant %q", p.cfg.Variant)
	}
}

// buildClassifierSet labels each window 1 when the forward max close within
// the horizon beats the target ROI. The training start is bounded to the
// most recent MaxTrainSamples windows.
func (p *Predictor) buildClassifierSet(scaled [][]float64, closes []float64) ([][][]float64, []float64, error) {
	lookBack := p.cfg.LookBack
	horizon := p.cfg.ForecastDays
	n := len(scaled)

	if n < lookBack+horizon+1 {
		return nil, nil, fmt.Errorf("insufficient samples for classifier: have %d, need %d", n, lookBack+horizon+1)
	}

	start := lookBack
	if n-p.cfg.MaxTrainSamples > start {
		start = n - p.cfg.MaxTrainSamples
	}

	var windows [][][]float64
	var labels []float64
	for i := start; i < n-horizon; i++ {
		windows = append(windows, scaled[i-lookBack:i])

		maxFuture := math.Inf(-1)
		for j := i + 1; j <= i+horizon; j++ {
			if closes[j] > maxFuture {
				maxFuture = closes[j]
			}
		}
		label := 0.0
		if closes[i] > 0 && (maxFuture-closes[i])/closes[i] > p.cfg.TargetROI {
			label = 1.0
		}
		labels = append(labels, label)
	}

	if len(windows) == 0 {
		return nil, nil, fmt.Errorf("no training windows after bounding")
	}
	return windows, labels, nil
}

// savedModel is the JSON persistence format of one trained symbol model.
type savedModel struct {
	Symbol        string        `json:"symbol"`
	Variant       string        `json:"variant"`
	LastTrainDate time.Time     `json:"last_train_date"`
	Scaler        *MinMaxScaler `json:"scaler"`
	Prob          *probModel    `json:"prob,omitempty"`
	ROI           *roiModel     `json:"roi,omitempty"`
}

// SaveModels writes every cached model to dir, one JSON file per symbol.
func (p *Predictor) SaveModels(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create model dir: %w", err)
	}

	for symbol, entry := range p.models {
		sm := savedModel{
			Symbol:        symbol,
			Variant:       p.cfg.Variant,
			LastTrainDate: entry.lastTrainDate,
			Scaler:        entry.scaler,
		}
		switch m := entry.model.(type) {
		case *probModel:
			sm.Prob = m
		case *roiModel:
			sm.ROI = m
		}

		data, err := json.MarshalIndent(sm, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal model %s: %w", symbol, err)
		}
		path := filepath.Join(dir, symbol+".json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to write model %s: %w", symbol, err)
		}
	}
	return nil
}

// LoadModels restores previously saved models into the cache. Missing or
// mismatched files are skipped with a warning; they will simply retrain.
func (p *Predictor) LoadModels(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read model dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}

		var sm savedModel
		if err := json.Unmarshal(data, &sm); err != nil || sm.Variant != p.cfg.Variant || sm.Scaler == nil {
			p.log.Warn("Skipping incompatible saved model", logger.StringField("file", e.Name()))
			continue
		}

		entry := &cacheEntry{scaler: sm.Scaler, lastTrainDate: sm.LastTrainDate}
		switch {
		case sm.Prob != nil:
			entry.model = sm.Prob
		case sm.ROI != nil:
			sm.ROI.scaler = sm.Scaler
			entry.model = sm.ROI
		default:
			continue
		}
		p.models[sm.Symbol] = entry
	}
	return nil
}
