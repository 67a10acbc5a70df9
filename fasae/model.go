// Package fasae implements the factor-analysis supervised autoencoder: a
// nonnegative low-rank factorization of spectral features whose latent codes
// also drive a classifier, fitted end to end.
package fasae

import (
	"math"
	"math/rand"

	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/tsawler/go-lpne/checkpoints"
	"github.com/tsawler/go-lpne/engine"
	"github.com/tsawler/go-lpne/gp"
	"github.com/tsawler/go-lpne/model"
	"github.com/tsawler/go-lpne/tensor"
	"github.com/tsawler/go-lpne/training"
)

// Name identifies FA-SAE state in checkpoints.
const Name = "fa_sae"

const epsilon = 1e-6

func init() {
	model.Register(Name, func(ctx *engine.Context) model.Estimator {
		m, _ := New(DefaultConfig(), ctx)
		return m
	})
}

// params holds every shape-dependent tensor. It exists only for a fitted (or
// restored) model.
type params struct {
	nFreqs, nRois, nClasses, zDim int

	prior *gp.Prior

	model           *tensor.Tensor // [x, z]
	factorReg       *tensor.Tensor // [z]
	factorRegTarget *tensor.Tensor // [z]
	logitWeights    *tensor.Tensor // [1, c]
	logitBiases     *tensor.Tensor // [1, c]

	recognition *training.Linear // linear encoder
	rec1, rec2  *training.Linear // variational mean and log-std
	linear      *training.Linear // projection of variational samples
}

func newParams(config Config, nFreqs, nRois, nClasses int, rng *rand.Rand) (*params, error) {
	if nClasses > config.ZDim {
		return nil, errors.NotValidf("%d classes for z_dim %d", nClasses, config.ZDim)
	}
	prior, err := gp.New(nFreqs, config.GP)
	if err != nil {
		return nil, errors.Trace(err)
	}
	z := config.ZDim
	x := nFreqs * nRois * nRois
	p := &params{nFreqs: nFreqs, nRois: nRois, nClasses: nClasses, zDim: z, prior: prior}

	bound := 1 / math.Sqrt(float64(z))
	if p.model, err = tensor.Uniform([]int{x, z}, -bound, bound, rng); err != nil {
		return nil, errors.Trace(err)
	}
	p.model.SetRequiresGrad(true)
	p.factorReg, _ = tensor.Param([]int{z}, nil)
	p.factorRegTarget, _ = tensor.Param([]int{z}, nil)
	for i := range p.factorRegTarget.Data {
		p.factorRegTarget.Data[i] = 1
	}
	p.logitWeights, _ = tensor.Param([]int{1, nClasses}, nil)
	for i := range p.logitWeights.Data {
		p.logitWeights.Data[i] = -5
	}
	p.logitBiases, _ = tensor.Param([]int{1, nClasses}, nil)

	for _, layer := range []struct {
		dst     **training.Linear
		in, out int
	}{
		{&p.recognition, x, z},
		{&p.rec1, x, z},
		{&p.rec2, x, z},
		{&p.linear, z, z},
	} {
		if *layer.dst, err = training.NewLinear(layer.in, layer.out, rng); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return p, nil
}

// named lists every tensor with its checkpoint name.
func (p *params) named() ([]string, []*tensor.Tensor) {
	names := []string{"model", "factor_reg", "factor_reg_target", "logit_weights", "logit_biases"}
	tensors := []*tensor.Tensor{p.model, p.factorReg, p.factorRegTarget, p.logitWeights, p.logitBiases}
	for _, layer := range []struct {
		name  string
		layer *training.Linear
	}{
		{"recognition_model", p.recognition},
		{"rec_model_1", p.rec1},
		{"rec_model_2", p.rec2},
		{"linear_layer", p.linear},
	} {
		names = append(names, layer.name+".weight", layer.name+".bias")
		tensors = append(tensors, layer.layer.Weight, layer.layer.Bias)
	}
	return names, tensors
}

// trainable lists the tensors the configured encoder actually uses.
func (p *params) trainable(config Config) []*tensor.Tensor {
	out := []*tensor.Tensor{p.model, p.logitWeights, p.logitBiases}
	switch {
	case config.Variational:
		out = append(out, p.rec1.Parameters()...)
		out = append(out, p.rec2.Parameters()...)
		out = append(out, p.linear.Parameters()...)
	case config.EncoderType == EncoderLinear:
		out = append(out, p.recognition.Parameters()...)
	default:
		out = append(out, p.factorReg, p.factorRegTarget)
	}
	return out
}

// Model is an FA-SAE estimator.
type Model struct {
	config  Config
	ctx     *engine.Context
	classes []int
	params  *params

	trainingState  checkpoints.TrainingState
	optimizerState *checkpoints.OptimizerState
}

// New creates an unfitted model. A nil ctx uses engine.Default().
func New(config Config, ctx *engine.Context) (*Model, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	if ctx == nil {
		ctx = engine.Default()
	}
	return &Model{config: config, ctx: ctx}, nil
}

func (m *Model) Name() string {
	return Name
}

func (m *Model) Config() Config {
	return m.config
}

// Classes returns the sorted class labels seen during fit.
func (m *Model) Classes() []int {
	return m.classes
}

// Fitted reports whether the model has learned parameters.
func (m *Model) Fitted() bool {
	return m.params != nil
}

func (m *Model) Params() map[string]any {
	return m.config.Params()
}

// SetParams updates hyper-parameters. Nothing changes if any value is
// invalid. Learned parameters are kept.
func (m *Model) SetParams(params map[string]any) error {
	config, err := m.config.WithParams(params)
	if err != nil {
		return errors.Trace(err)
	}
	if err := config.Validate(); err != nil {
		return errors.Trace(err)
	}
	if m.params != nil && config.ZDim != m.params.zDim {
		return errors.NotValidf("z_dim %d for a model fitted with %d", config.ZDim, m.params.zDim)
	}
	m.config = config
	return nil
}

// Fit learns the factors and the classifier. On failure the model is left
// unfitted.
func (m *Model) Fit(ds *model.Dataset) error {
	m.params, m.classes = nil, nil
	if err := ds.Validate(); err != nil {
		return errors.Trace(err)
	}
	classes, labels, err := training.EncodeLabels(ds.Labels)
	if err != nil {
		return errors.Trace(err)
	}
	weights, err := training.FitWeights(ds.Labels, ds.Groups, classes[0])
	if err != nil {
		return errors.Trace(err)
	}
	nFreqs, nRois := ds.Dims()
	p, err := newParams(m.config, nFreqs, nRois, len(classes), m.ctx.Rng())
	if err != nil {
		return errors.Trace(err)
	}
	logger := m.ctx.Logger()
	logger.Info("initialized FA-SAE",
		zap.Int("n_freqs", nFreqs),
		zap.Int("n_rois", nRois),
		zap.Int("n_classes", len(classes)),
		zap.Int("z_dim", m.config.ZDim),
		zap.String("encoder", m.config.EncoderType))

	flat, err := model.Flatten(ds.Features)
	if err != nil {
		return errors.Trace(err)
	}
	groups := training.EncodeGroups(ds.Groups, training.UniqueGroups(ds.Groups))
	samplerWeights, lossWeights := training.SplitWeights(weights, m.config.Beta)
	loader, err := training.NewWeightedLoader(flat, labels, groups, samplerWeights, lossWeights, m.config.BatchSize, m.ctx.Rng())
	if err != nil {
		return errors.Trace(err)
	}
	trainer, err := training.NewTrainer(&objective{config: m.config, p: p, rng: m.ctx.Rng()}, m.config.TrainingConfig, logger)
	if err != nil {
		return errors.Trace(err)
	}
	if err := trainer.Train(loader); err != nil {
		return errors.Annotate(err, "fit FA-SAE")
	}

	m.params, m.classes = p, classes
	m.trainingState = checkpoints.TrainingState{
		Step:         m.config.NIter,
		TotalSteps:   m.config.NIter,
		LearningRate: trainer.Optimizer().GetLearningRate(),
	}
	if losses := trainer.Losses(); len(losses) > 0 {
		m.trainingState.LastLoss = losses[len(losses)-1]
	}
	m.optimizerState, err = trainer.Optimizer().GetState()
	return errors.Trace(err)
}

func (m *Model) checkFitted() error {
	if m.params == nil {
		return errors.Annotate(model.ErrNotFitted, Name)
	}
	return nil
}
