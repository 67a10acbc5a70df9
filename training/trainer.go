package training

import (
	"math"
	"strings"
	"time"

	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/tsawler/go-lpne/optimizer"
	"github.com/tsawler/go-lpne/tensor"
)

// TrainingConfig holds configuration for training
type TrainingConfig struct {
	NIter       int     `json:"n_iter"`
	LR          float64 `json:"lr"`
	BatchSize   int     `json:"batch_size"`
	Beta        float64 `json:"beta"` // Share of the imbalance correction applied to the loss rather than the sampler
	WeightDecay float64 `json:"weight_reg"`
	Optimizer   string  `json:"optimizer"`
	Schedule    string  `json:"schedule"`
	PrintFreq   int     `json:"print_freq"` // Log training stats every N iterations (0 = never)
}

// DefaultTrainingConfig returns the defaults shared by both model variants.
func DefaultTrainingConfig() TrainingConfig {
	return TrainingConfig{
		NIter:     10000,
		LR:        1e-3,
		BatchSize: 256,
		Beta:      0.5,
		Optimizer: optimizer.NameAdam,
		Schedule:  ScheduleNone,
		PrintFreq: 100,
	}
}

// Validate checks the ranges of the training hyper-parameters.
func (c TrainingConfig) Validate() error {
	if c.NIter < 0 {
		return errors.NotValidf("n_iter %d", c.NIter)
	}
	if c.LR <= 0 {
		return errors.NotValidf("learning rate %v", c.LR)
	}
	if c.BatchSize < 1 {
		return errors.NotValidf("batch size %d", c.BatchSize)
	}
	if c.Beta < 0 || c.Beta > 1 {
		return errors.NotValidf("beta %v outside [0, 1]", c.Beta)
	}
	if c.WeightDecay < 0 {
		return errors.NotValidf("weight_reg %v", c.WeightDecay)
	}
	if c.PrintFreq < 0 {
		return errors.NotValidf("print_freq %d", c.PrintFreq)
	}
	switch strings.ToLower(c.Optimizer) {
	case optimizer.NameAdam, "adamw", optimizer.NameSGD:
	default:
		return errors.NotSupportedf("optimizer %q", c.Optimizer)
	}
	if _, err := NewScheduler(c.Schedule, c.NIter); err != nil {
		return err
	}
	return nil
}

// Objective is a model whose parameters are fitted by minimizing a loss over
// sampled batches.
type Objective interface {
	Parameters() []*tensor.Tensor
	Loss(batch *Batch) (*tensor.Tensor, error)
}

// Trainer manages the training process
type Trainer struct {
	objective Objective
	optimizer optimizer.Optimizer
	scheduler LRScheduler
	config    TrainingConfig
	logger    *zap.Logger
	losses    []float64
}

// NewTrainer creates a Trainer with a fresh optimizer over the objective's
// parameters.
func NewTrainer(objective Objective, config TrainingConfig, logger *zap.Logger) (*Trainer, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	opt, err := optimizer.New(config.Optimizer, objective.Parameters(), config.LR, config.WeightDecay)
	if err != nil {
		return nil, errors.Trace(err)
	}
	scheduler, err := NewScheduler(config.Schedule, config.NIter)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trainer{
		objective: objective,
		optimizer: opt,
		scheduler: scheduler,
		config:    config,
		logger:    logger,
		losses:    make([]float64, 0, config.NIter),
	}, nil
}

// Train runs NIter optimization steps, each on one batch from loader.
func (t *Trainer) Train(loader *WeightedLoader) error {
	t.logger.Info("start training",
		zap.Any("config", t.config),
		zap.String("scheduler", t.scheduler.GetName()),
		zap.Int("batch_size", loader.BatchSize()))
	start := time.Now()
	params := t.objective.Parameters()

	for iter := 0; iter < t.config.NIter; iter++ {
		lr := t.scheduler.GetLR(iter, t.config.LR)
		t.optimizer.UpdateLearningRate(lr)
		tensor.ZeroGrad(params)

		loss, err := t.objective.Loss(loader.Next())
		if err != nil {
			return errors.Annotatef(err, "iteration %d", iter+1)
		}
		lossValue, err := loss.Item()
		if err != nil {
			return errors.Annotatef(err, "iteration %d", iter+1)
		}
		if math.IsNaN(lossValue) || math.IsInf(lossValue, 0) {
			return errors.NotValidf("loss %v at iteration %d", lossValue, iter+1)
		}
		if err := loss.Backward(); err != nil {
			return errors.Annotatef(err, "backward pass at iteration %d", iter+1)
		}
		if err := t.optimizer.Step(); err != nil {
			return errors.Annotatef(err, "optimizer step at iteration %d", iter+1)
		}
		t.losses = append(t.losses, lossValue)

		if t.config.PrintFreq > 0 && (iter+1)%t.config.PrintFreq == 0 {
			t.logger.Info("fit",
				zap.Int("iter", iter+1),
				zap.Float64("loss", lossValue),
				zap.Float64("lr", lr))
		}
	}

	t.logger.Info("finish training", zap.Duration("fit_time", time.Since(start)))
	return nil
}

// Losses returns the loss of every completed iteration.
func (t *Trainer) Losses() []float64 {
	return t.losses
}

// Optimizer exposes the optimizer so its state can be checkpointed.
func (t *Trainer) Optimizer() optimizer.Optimizer {
	return t.optimizer
}
