// Package trend fits a stacked-LSTM forecaster over an aligned return
// table and predicts the next day's return for every asset.
package trend

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/cryptosage/backend/internal/domain"
	"github.com/cryptosage/backend/internal/modules/series"
	"github.com/rs/zerolog"
)

// TrainerConfig holds the model and training hyperparameters.
type TrainerConfig struct {
	SequenceLength int
	Epochs         int
	BatchSize      int
	HiddenUnits    int
	Dropout        float64
	LearningRate   float64
	Seed           int64 // 0 seeds from the clock
}

// DefaultTrainerConfig returns the service defaults.
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		SequenceLength: 30,
		Epochs:         100,
		BatchSize:      32,
		HiddenUnits:    32,
		Dropout:        0.2,
		LearningRate:   0.001,
	}
}

// FittedModel pairs the scaler with the model trained on its output.
type FittedModel struct {
	Scaler         *MinMaxScaler
	Model          SequenceModel
	SequenceLength int
	// Placeholder is true when history was too short to train and Model
	// only repeats the last observed row.
	Placeholder bool
	Samples     int
	FirstLoss   float64
	FinalLoss   float64
}

type sample struct {
	window [][]float64
	target []float64
}

// Trainer fits sequence models. Each Fit builds a fresh model; nothing
// is cached between calls.
type Trainer struct {
	cfg TrainerConfig
	log zerolog.Logger
}

// NewTrainer creates a new trainer.
func NewTrainer(cfg TrainerConfig, log zerolog.Logger) *Trainer {
	defaults := DefaultTrainerConfig()
	if cfg.SequenceLength <= 0 {
		cfg.SequenceLength = defaults.SequenceLength
	}
	if cfg.Epochs <= 0 {
		cfg.Epochs = defaults.Epochs
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.HiddenUnits <= 0 {
		cfg.HiddenUnits = defaults.HiddenUnits
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = defaults.LearningRate
	}
	if cfg.Dropout < 0 || cfg.Dropout >= 1 {
		cfg.Dropout = defaults.Dropout
	}
	return &Trainer{
		cfg: cfg,
		log: log.With().Str("component", "trend_trainer").Logger(),
	}
}

// Fit scales the table, builds (window, next row) pairs and trains the
// network on them with MSE loss. With too little history it returns a
// placeholder model instead of failing.
func (t *Trainer) Fit(ctx context.Context, table *series.Table) (*FittedModel, error) {
	if table == nil || table.Width() == 0 {
		return nil, fmt.Errorf("fit trend model: %w", domain.ErrNoMarketData)
	}

	W := t.cfg.SequenceLength
	width := table.Width()
	scaler := FitMinMaxScaler(table.Rows, width)
	scaled := scaler.TransformRows(table.Rows)
	samples := buildSamples(scaled, W)

	if len(samples) == 0 {
		t.log.Warn().
			Err(domain.ErrInsufficientHistory).
			Int("rows", table.Len()).
			Int("sequence_length", W).
			Msg("Not enough history to train, using persistence placeholder")
		return &FittedModel{
			Scaler:         scaler,
			Model:          persistenceModel{width: width},
			SequenceLength: W,
			Placeholder:    true,
		}, nil
	}

	seed := t.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	net := newLSTMNetwork(rng, width, t.cfg.HiddenUnits, t.cfg.Dropout)
	opt := newAdam(t.cfg.LearningRate)

	start := time.Now()
	firstLoss, loss := math.NaN(), math.NaN()
	order := make([]int, len(samples))
	for i := range order {
		order[i] = i
	}

	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("fit trend model: %w", err)
		}

		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var total float64
		for b := 0; b < len(order); b += t.cfg.BatchSize {
			end := b + t.cfg.BatchSize
			if end > len(order) {
				end = len(order)
			}
			total += t.trainBatch(net, opt, rng, samples, order[b:end])
		}
		loss = total / float64(len(samples))
		if epoch == 0 {
			firstLoss = loss
		}

		if (epoch+1)%10 == 0 {
			t.log.Debug().Int("epoch", epoch+1).Float64("loss", loss).Msg("Training progress")
		}
	}

	t.log.Info().
		Int("samples", len(samples)).
		Int("assets", width).
		Int("epochs", t.cfg.Epochs).
		Float64("loss", loss).
		Dur("duration", time.Since(start)).
		Msg("Trend model trained")

	return &FittedModel{
		Scaler:         scaler,
		Model:          net,
		SequenceLength: W,
		Samples:        len(samples),
		FirstLoss:      firstLoss,
		FinalLoss:      loss,
	}, nil
}

// trainBatch runs forward/backward over one mini-batch, applies one
// optimizer step and returns the summed per-sample loss.
func (t *Trainer) trainBatch(net *lstmNetwork, opt *adam, rng *rand.Rand, samples []sample, batch []int) float64 {
	net.zeroGrad()

	var total float64
	n := float64(net.width)
	scale := 1 / float64(len(batch))
	for _, idx := range batch {
		s := samples[idx]
		pass := net.forward(s.window, rng)

		dout := make([]float64, len(pass.out))
		var loss float64
		for k, y := range pass.out {
			diff := y - s.target[k]
			loss += diff * diff / n
			dout[k] = 2 * diff / n * scale
		}
		total += loss
		net.backward(pass, dout)
	}

	opt.step(net.params())
	return total
}

// buildSamples forms a pair for every t in [W, len(rows)). Pairs that
// touch a missing value are skipped.
func buildSamples(rows [][]float64, W int) []sample {
	var samples []sample
	for t := W; t < len(rows); t++ {
		window := rows[t-W : t]
		if hasNaN(rows[t]) || anyNaN(window) {
			continue
		}
		samples = append(samples, sample{window: window, target: rows[t]})
	}
	return samples
}

func hasNaN(row []float64) bool {
	for _, v := range row {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

func anyNaN(rows [][]float64) bool {
	for _, row := range rows {
		if hasNaN(row) {
			return true
		}
	}
	return false
}
