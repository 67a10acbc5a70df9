package optimizer

import (
	"fmt"
	"strings"

	"github.com/juju/errors"

	"github.com/tsawler/go-lpne/checkpoints"
	"github.com/tsawler/go-lpne/tensor"
)

// Optimizer defines the common interface for all optimizers
// This interface enables state save/restore for checkpoint functionality
type Optimizer interface {
	// Step updates every parameter that holds a gradient. Parameters without
	// a gradient are left untouched.
	Step() error

	// GetState extracts optimizer state for checkpointing
	GetState() (*OptimizerState, error)

	// LoadState restores optimizer state from checkpoint
	LoadState(state *OptimizerState) error

	// GetStepCount returns the current optimization step number
	GetStepCount() uint64

	// UpdateLearningRate updates the learning rate
	UpdateLearningRate(lr float64)

	GetLearningRate() float64
}

// OptimizerState represents the complete state of an optimizer
type OptimizerState = checkpoints.OptimizerState

const (
	NameAdam = "adam"
	NameSGD  = "sgd"
)

// New builds the optimizer named by name ("adam" or "sgd") over params.
// weightDecay is decoupled for Adam (AdamW) and coupled L2 for SGD.
func New(name string, params []*tensor.Tensor, lr, weightDecay float64) (Optimizer, error) {
	switch strings.ToLower(name) {
	case NameAdam, "adamw":
		config := DefaultAdamConfig()
		config.LearningRate = lr
		config.WeightDecay = weightDecay
		return NewAdamOptimizer(config, params)
	case NameSGD:
		config := DefaultSGDConfig()
		config.LearningRate = lr
		config.WeightDecay = weightDecay
		return NewSGDOptimizer(config, params)
	default:
		return nil, errors.NotSupportedf("optimizer %q", name)
	}
}

// extractBufferIndex extracts the buffer index from state tensor names like "momentum_0", "variance_1"
func extractBufferIndex(name string) int {
	lastUnderscoreIdx := strings.LastIndex(name, "_")
	if lastUnderscoreIdx == -1 {
		return -1
	}
	var idx int
	if n, err := fmt.Sscanf(name[lastUnderscoreIdx+1:], "%d", &idx); n == 1 && err == nil {
		return idx
	}
	return -1
}

// validateStateType ensures the state type matches the optimizer
func validateStateType(optimizerType string, state *OptimizerState) error {
	if state == nil {
		return fmt.Errorf("optimizer state is nil")
	}
	if state.Type != optimizerType {
		return fmt.Errorf("state type mismatch: expected %s, got %s", optimizerType, state.Type)
	}
	return nil
}

func validateParams(params []*tensor.Tensor) error {
	if len(params) == 0 {
		return fmt.Errorf("no parameters provided")
	}
	for i, p := range params {
		if p == nil {
			return fmt.Errorf("parameter %d is nil", i)
		}
		if !p.RequiresGrad() {
			return fmt.Errorf("parameter %d does not require gradients", i)
		}
	}
	return nil
}
