package optimizer

import (
	"fmt"

	"github.com/tsawler/go-lpne/checkpoints"
	"github.com/tsawler/go-lpne/tensor"
)

// SGDOptimizerState is stochastic gradient descent with optional momentum
// and coupled L2 weight decay
type SGDOptimizerState struct {
	LearningRate float64
	Momentum     float64
	WeightDecay  float64
	Nesterov     bool

	MomentumBuffers [][]float64 // nil until the first step when momentum is used

	StepCount uint64

	params []*tensor.Tensor
}

// SGDConfig holds configuration for SGD optimizer
type SGDConfig struct {
	LearningRate float64
	Momentum     float64
	WeightDecay  float64
	Nesterov     bool
}

// DefaultSGDConfig returns default SGD optimizer configuration
func DefaultSGDConfig() SGDConfig {
	return SGDConfig{
		LearningRate: 0.01,
		Momentum:     0.9,
		WeightDecay:  0.0,
		Nesterov:     false,
	}
}

// NewSGDOptimizer creates an SGD optimizer over params
func NewSGDOptimizer(config SGDConfig, params []*tensor.Tensor) (*SGDOptimizerState, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if config.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %v", config.LearningRate)
	}
	if config.Momentum < 0 {
		return nil, fmt.Errorf("momentum must be non-negative, got %v", config.Momentum)
	}
	if config.Nesterov && config.Momentum == 0 {
		return nil, fmt.Errorf("nesterov momentum requires a positive momentum")
	}

	sgd := &SGDOptimizerState{
		LearningRate: config.LearningRate,
		Momentum:     config.Momentum,
		WeightDecay:  config.WeightDecay,
		Nesterov:     config.Nesterov,
		params:       params,
	}
	if sgd.Momentum > 0 {
		sgd.MomentumBuffers = make([][]float64, len(params))
		for i, p := range params {
			sgd.MomentumBuffers[i] = make([]float64, p.NumElems)
		}
	}
	return sgd, nil
}

// Step performs a single SGD update
func (sgd *SGDOptimizerState) Step() error {
	sgd.StepCount++
	first := sgd.StepCount == 1

	for i, p := range sgd.params {
		grad := p.Grad()
		if grad == nil {
			continue
		}
		if grad.NumElems != p.NumElems {
			return fmt.Errorf("gradient size mismatch for parameter %d: %d vs %d", i, grad.NumElems, p.NumElems)
		}
		for j, g := range grad.Data {
			g += sgd.WeightDecay * p.Data[j]
			if sgd.Momentum > 0 {
				buf := sgd.MomentumBuffers[i]
				if first {
					buf[j] = g
				} else {
					buf[j] = sgd.Momentum*buf[j] + g
				}
				if sgd.Nesterov {
					g += sgd.Momentum * buf[j]
				} else {
					g = buf[j]
				}
			}
			p.Data[j] -= sgd.LearningRate * g
		}
	}
	return nil
}

// UpdateLearningRate updates the learning rate
func (sgd *SGDOptimizerState) UpdateLearningRate(newLR float64) {
	sgd.LearningRate = newLR
}

func (sgd *SGDOptimizerState) GetLearningRate() float64 {
	return sgd.LearningRate
}

// GetStepCount returns the current optimization step number
func (sgd *SGDOptimizerState) GetStepCount() uint64 {
	return sgd.StepCount
}

// GetState extracts optimizer state for checkpointing
func (sgd *SGDOptimizerState) GetState() (*OptimizerState, error) {
	stateData := make([]checkpoints.OptimizerTensor, 0)

	// Extract momentum buffers if momentum is used
	if sgd.Momentum > 0 && sgd.MomentumBuffers != nil {
		for i, buffer := range sgd.MomentumBuffers {
			t := extractBufferState(buffer, sgd.params[i].Shape, fmt.Sprintf("momentum_%d", i), "momentum")
			if t != nil {
				stateData = append(stateData, *t)
			}
		}
	}

	return &OptimizerState{
		Type: "SGD",
		Parameters: map[string]any{
			"learning_rate": sgd.LearningRate,
			"momentum":      sgd.Momentum,
			"weight_decay":  sgd.WeightDecay,
			"nesterov":      sgd.Nesterov,
			"step_count":    sgd.StepCount,
		},
		StateData: stateData,
	}, nil
}

// LoadState restores optimizer state from checkpoint
func (sgd *SGDOptimizerState) LoadState(state *OptimizerState) error {
	if err := validateStateType("SGD", state); err != nil {
		return err
	}

	sgd.LearningRate = extractFloatParam(state.Parameters, "learning_rate", sgd.LearningRate)
	sgd.Momentum = extractFloatParam(state.Parameters, "momentum", sgd.Momentum)
	sgd.WeightDecay = extractFloatParam(state.Parameters, "weight_decay", sgd.WeightDecay)
	sgd.Nesterov = extractBoolParam(state.Parameters, "nesterov", sgd.Nesterov)
	sgd.StepCount = extractUint64Param(state.Parameters, "step_count", sgd.StepCount)

	for _, t := range state.StateData {
		if t.StateType != "momentum" {
			continue
		}
		idx := extractBufferIndex(t.Name)
		if idx < 0 || idx >= len(sgd.params) {
			return fmt.Errorf("invalid buffer index in tensor name: %s", t.Name)
		}
		if sgd.MomentumBuffers == nil || sgd.MomentumBuffers[idx] == nil {
			return fmt.Errorf("momentum buffer %d not allocated", idx)
		}
		if err := restoreBufferState(sgd.MomentumBuffers[idx], t.Data, t.Name); err != nil {
			return err
		}
	}
	return nil
}
