// Package cpsae implements the CANDECOMP/PARAFAC supervised autoencoder.
// Every group (session or subject) carries a latent embedding that generates
// its own rank-one factor triples along the frequency axis and both region
// axes. Samples are reconstructed from the factors of their group, and the
// latent codes also drive a classifier.
package cpsae

import (
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

// Name identifies CP-SAE state in checkpoints.
const Name = "cp_sae"

const epsilon = 1e-6

func init() {
	model.Register(Name, func(ctx *engine.Context) model.Estimator {
		m, _ := New(DefaultConfig(), ctx)
		return m
	})
}

type params struct {
	nFreqs, nRois, nClasses, nGroups, zDim, embedDim int

	prior *gp.Prior // nil without the smoothness prior

	groupMean   *tensor.Tensor // [g, e]
	groupLogStd *tensor.Tensor // [g, e]

	rec1, rec2 *training.Linear // [x+e] -> z, posterior mean and log-std
	freqNet    *training.Linear // e -> z*f
	roi1Net    *training.Linear // e -> z*r
	roi2Net    *training.Linear // e -> z*r

	logitWeights *tensor.Tensor // [1, c]
	logitBiases  *tensor.Tensor // [1, c]
}

func newParams(config Config, nFreqs, nRois, nClasses, nGroups int, rng *rand.Rand) (*params, error) {
	if nClasses > config.ZDim {
		return nil, errors.NotValidf("%d classes for z_dim %d", nClasses, config.ZDim)
	}
	if nGroups < 2 {
		return nil, errors.NotValidf("%d groups, need at least 2", nGroups)
	}
	z, e := config.ZDim, config.GroupEmbedDim
	x := nFreqs * nRois * nRois
	p := &params{nFreqs: nFreqs, nRois: nRois, nClasses: nClasses, nGroups: nGroups, zDim: z, embedDim: e}

	if config.GPEnabled {
		prior, err := gp.New(nFreqs, config.GP)
		if err != nil {
			return nil, errors.Trace(err)
		}
		p.prior = prior
	}

	for _, param := range []struct {
		dst   **tensor.Tensor
		shape []int
	}{
		{&p.groupMean, []int{nGroups, e}},
		{&p.groupLogStd, []int{nGroups, e}},
		{&p.logitWeights, []int{1, nClasses}},
		{&p.logitBiases, []int{1, nClasses}},
	} {
		t, err := tensor.RandomNormal(param.shape, 0, 1, rng)
		if err != nil {
			return nil, errors.Trace(err)
		}
		t.SetRequiresGrad(true)
		*param.dst = t
	}

	for _, layer := range []struct {
		dst     **training.Linear
		in, out int
	}{
		{&p.rec1, x + e, z},
		{&p.rec2, x + e, z},
		{&p.freqNet, e, z * nFreqs},
		{&p.roi1Net, e, z * nRois},
		{&p.roi2Net, e, z * nRois},
	} {
		var err error
		if *layer.dst, err = training.NewLinear(layer.in, layer.out, rng); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return p, nil
}

// named lists every tensor with its checkpoint name.
func (p *params) named() ([]string, []*tensor.Tensor) {
	names := []string{"group_mean", "group_log_std", "logit_weights", "logit_biases"}
	tensors := []*tensor.Tensor{p.groupMean, p.groupLogStd, p.logitWeights, p.logitBiases}
	for _, layer := range []struct {
		name  string
		layer *training.Linear
	}{
		{"rec_model_1", p.rec1},
		{"rec_model_2", p.rec2},
		{"freq_net", p.freqNet},
		{"roi_1_net", p.roi1Net},
		{"roi_2_net", p.roi2Net},
	} {
		names = append(names, layer.name+".weight", layer.name+".bias")
		tensors = append(tensors, layer.layer.Weight, layer.layer.Bias)
	}
	return names, tensors
}

// Model is a CP-SAE estimator.
type Model struct {
	config  Config
	ctx     *engine.Context
	classes []int
	groups  []int
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

// Groups returns the sorted group ids seen during fit.
func (m *Model) Groups() []int {
	return m.groups
}

func (m *Model) Fitted() bool {
	return m.params != nil
}

func (m *Model) Params() map[string]any {
	return m.config.Params()
}

// SetParams updates hyper-parameters. Nothing changes if any value is
// invalid. The shape-defining z_dim and group_embed_dim are fixed once the
// model is fitted.
func (m *Model) SetParams(params map[string]any) error {
	config, err := m.config.WithParams(params)
	if err != nil {
		return errors.Trace(err)
	}
	if err := config.Validate(); err != nil {
		return errors.Trace(err)
	}
	if p := m.params; p != nil && (config.ZDim != p.zDim || config.GroupEmbedDim != p.embedDim) {
		return errors.NotValidf("z_dim %d and group_embed_dim %d for a model fitted with %d and %d",
			config.ZDim, config.GroupEmbedDim, p.zDim, p.embedDim)
	}
	m.config = config
	return nil
}

// Fit learns group embeddings, factor networks, encoder and classifier. At
// least two classes and two groups are required. On failure the model is
// left unfitted.
func (m *Model) Fit(ds *model.Dataset) error {
	m.params, m.classes, m.groups = nil, nil, nil
	if err := ds.Validate(); err != nil {
		return errors.Trace(err)
	}
	classes, labels, err := training.EncodeLabels(ds.Labels)
	if err != nil {
		return errors.Trace(err)
	}
	groupIDs := training.UniqueGroups(ds.Groups)
	weights, err := training.FitWeights(ds.Labels, ds.Groups, classes[0])
	if err != nil {
		return errors.Trace(err)
	}
	nFreqs, nRois := ds.Dims()
	p, err := newParams(m.config, nFreqs, nRois, len(classes), len(groupIDs), m.ctx.Rng())
	if err != nil {
		return errors.Trace(err)
	}
	logger := m.ctx.Logger()
	logger.Info("initialized CP-SAE",
		zap.Int("n_freqs", nFreqs),
		zap.Int("n_rois", nRois),
		zap.Int("n_classes", len(classes)),
		zap.Int("n_groups", len(groupIDs)),
		zap.Int("z_dim", m.config.ZDim),
		zap.Int("group_embed_dim", m.config.GroupEmbedDim))

	flat, err := model.Flatten(ds.Features)
	if err != nil {
		return errors.Trace(err)
	}
	groups := training.EncodeGroups(ds.Groups, groupIDs)
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
		return errors.Annotate(err, "fit CP-SAE")
	}

	m.params, m.classes, m.groups = p, classes, groupIDs
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
