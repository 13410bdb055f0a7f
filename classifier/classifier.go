// Package classifier - Single-image classification against a loaded model.
//
// A Classifier is stateless apart from its options: every call resolves the
// model's encodings, encodes the image, runs the engine under the model's
// exclusive slot, decodes, applies softmax and ranks.
package classifier

import (
	"context"
	"image"
	"log/slog"
	"time"

	"github.com/nvr-ai/go-classify/images"
	"github.com/nvr-ai/go-classify/inference"
	"github.com/nvr-ai/go-classify/logging"
	"github.com/nvr-ai/go-classify/models"
	"github.com/nvr-ai/go-classify/models/postprocess"
	"github.com/nvr-ai/go-classify/models/preprocess"
)

const (
	// DefaultTopN is used when ClassifyTopN receives n <= 0.
	DefaultTopN = 3
	// DefaultIterations is used when Benchmark receives iterations <= 0.
	DefaultIterations = 10
)

// Observer receives per-inference measurements.
type Observer interface {
	// ObserveInference records one call; err is nil on success.
	ObserveInference(modelID string, elapsed time.Duration, err error)
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger sets the classifier logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) { c.log = l }
}

// WithResampler replaces the bilinear resampler used to reach the model input size.
func WithResampler(r images.Resampler) Option {
	return func(c *Classifier) { c.resampler = r }
}

// WithObserver reports every inference to o. Repeated options add observers.
func WithObserver(o Observer) Option {
	return func(c *Classifier) { c.observers = append(c.observers, o) }
}

// WithClock replaces time.Now for elapsed measurements.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) { c.now = now }
}

// Classifier runs images through loaded models.
type Classifier struct {
	log       *slog.Logger
	resampler images.Resampler
	observers []Observer
	now       func() time.Time
}

// New returns a Classifier.
func New(opts ...Option) *Classifier {
	c := &Classifier{
		resampler: images.Bilinear,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logging.Module("classifier")
	}
	return c
}

// Prediction is one ranked class.
type Prediction struct {
	Index      int     `json:"index"`
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
}

// Result is the outcome of classifying one image.
type Result struct {
	ModelID string `json:"model"`
	// Index is the position of the winning class.
	Index int `json:"index"`
	// Label is the winning class name.
	Label string `json:"label"`
	// Confidence is the winning probability.
	Confidence float32 `json:"confidence"`
	// InferenceTimeMillis covers encode, run and decode.
	InferenceTimeMillis int64 `json:"inference_time_ms"`
	// Elapsed is the same measurement at full resolution.
	Elapsed time.Duration `json:"-"`
	// AllProbabilities has one entry per label, in label order.
	AllProbabilities []float32 `json:"probabilities,omitempty"`
}

// Ranked is an ordered top-N result.
type Ranked struct {
	ModelID             string        `json:"model"`
	Predictions         []Prediction  `json:"predictions"`
	InferenceTimeMillis int64         `json:"inference_time_ms"`
	Elapsed             time.Duration `json:"-"`
}

// Classify returns the most probable class for img.
//
// Arguments:
//   - ctx: Checked once before waiting for the model; inference itself is not interruptible.
//   - model: A loaded model.
//   - img: The image, already orientation-corrected.
//
// Returns:
//   - *Result: The winning class and the full probability vector.
//   - error: A *models.Error of kind ErrNotInitialized, ErrInference or, for empty
//     probability output, ErrDecodeInconsistency.
func (c *Classifier) Classify(ctx context.Context, model *models.LoadedModel, img image.Image) (*Result, error) {
	probs, elapsed, err := c.probabilities(ctx, model, img)
	if err != nil {
		return nil, err
	}
	best := postprocess.ArgMax(probs)
	res := &Result{
		ModelID:             model.ID,
		Index:               best,
		Label:               model.Labels.Name(best),
		Confidence:          probs[best],
		InferenceTimeMillis: elapsed.Milliseconds(),
		Elapsed:             elapsed,
		AllProbabilities:    probs,
	}
	c.log.Debug("classified", "model", model.ID, "label", res.Label, "confidence", res.Confidence, "elapsed", elapsed)
	return res, nil
}

// ClassifyTopN returns the n most probable classes in descending order.
//
// Equal probabilities keep ascending label order. n <= 0 selects DefaultTopN;
// n larger than the label count returns every class.
func (c *Classifier) ClassifyTopN(ctx context.Context, model *models.LoadedModel, img image.Image, n int) (*Ranked, error) {
	if n <= 0 {
		n = DefaultTopN
	}
	probs, elapsed, err := c.probabilities(ctx, model, img)
	if err != nil {
		return nil, err
	}
	top := postprocess.TopN(probs, n)
	preds := make([]Prediction, len(top))
	for i, idx := range top {
		preds[i] = Prediction{Index: idx, Label: model.Labels.Name(idx), Confidence: probs[idx]}
	}
	return &Ranked{
		ModelID:             model.ID,
		Predictions:         preds,
		InferenceTimeMillis: elapsed.Milliseconds(),
		Elapsed:             elapsed,
	}, nil
}

// Benchmark classifies img iterations times and returns the mean elapsed time in milliseconds.
//
// Every iteration counts, the first call's engine warm-up included.
// iterations <= 0 selects DefaultIterations. The first failure aborts the run.
//
// Returns:
//   - float64: The mean per-call elapsed time in milliseconds.
//   - error: The first classification error.
func (c *Classifier) Benchmark(ctx context.Context, model *models.LoadedModel, img image.Image, iterations int) (float64, error) {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	var total time.Duration
	for i := 0; i < iterations; i++ {
		_, elapsed, err := c.probabilities(ctx, model, img)
		if err != nil {
			return 0, err
		}
		total += elapsed
	}
	mean := float64(total) / float64(iterations) / float64(time.Millisecond)
	c.log.Info("benchmark complete", "model", model.ID, "iterations", iterations, "average_ms", mean)
	return mean, nil
}

// probabilities runs the full pipeline and returns softmax output and elapsed time.
func (c *Classifier) probabilities(ctx context.Context, model *models.LoadedModel, img image.Image) ([]float32, time.Duration, error) {
	if model == nil {
		return nil, 0, models.NewError("", models.PhaseInfer, models.ErrNotInitialized, nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, models.NewError(model.ID, models.PhaseInfer, models.ErrInference, err)
	}

	var (
		probs   []float32
		elapsed time.Duration
	)
	err := model.Exclusive(func(engine inference.Engine) error {
		start := c.now()
		scores, err := c.run(model, engine, img)
		elapsed = c.now().Sub(start)
		if err != nil {
			return err
		}
		probs = postprocess.Softmax(scores)
		return nil
	})
	for _, o := range c.observers {
		o.ObserveInference(model.ID, elapsed, err)
	}
	if err != nil {
		c.log.Debug("classification failed", "model", model.ID, "error", err)
		return nil, 0, err
	}
	return probs, elapsed, nil
}

// run encodes, invokes and decodes while the caller holds the model slot.
func (c *Classifier) run(model *models.LoadedModel, engine inference.Engine, img image.Image) ([]float32, error) {
	enc, err := preprocess.NewEncoder(preprocess.Config{
		Name:      model.ID,
		InputSide: model.InputSide(),
		Encoding:  model.InputEncoding(),
		Resampler: c.resampler,
	})
	if err != nil {
		return nil, models.NewError(model.ID, models.PhaseEncode, models.ErrInference, err)
	}
	input, err := enc.Encode(img)
	if err != nil {
		return nil, models.NewError(model.ID, models.PhaseEncode, models.ErrInference, err)
	}

	output := make([]byte, model.Output.ByteSize())
	if err := engine.Run(input, output); err != nil {
		return nil, models.NewError(model.ID, models.PhaseInfer, models.ErrInference, err)
	}

	scores, err := postprocess.Decode(output, model.OutputSize(), model.OutputEncoding(), model.OutputScale(), model.OutputZeroPoint())
	if err != nil {
		return nil, models.NewError(model.ID, models.PhaseDecode, models.ErrDecodeInconsistency, err)
	}
	return scores, nil
}
