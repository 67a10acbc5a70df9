package training

import (
	"math"

	"github.com/juju/errors"
)

// Hyper-parameters travel as map[string]any. Values decoded from JSON or
// protobuf arrive as float64, so the converters accept both representations.

// ParamFloat converts a parameter value to float64.
func ParamFloat(key string, v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	}
	return 0, errors.NotValidf("parameter %s = %v (%T), expected a number", key, v, v)
}

// ParamInt converts a parameter value to int. Floats must be integral.
func ParamInt(key string, v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		if x == math.Trunc(x) {
			return int(x), nil
		}
	}
	return 0, errors.NotValidf("parameter %s = %v (%T), expected an integer", key, v, v)
}

func ParamBool(key string, v any) (bool, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return false, errors.NotValidf("parameter %s = %v (%T), expected a bool", key, v, v)
}

func ParamString(key string, v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return "", errors.NotValidf("parameter %s = %v (%T), expected a string", key, v, v)
}

// Params returns the training hyper-parameters keyed by their JSON names.
func (c TrainingConfig) Params() map[string]any {
	return map[string]any{
		"n_iter":     c.NIter,
		"lr":         c.LR,
		"batch_size": c.BatchSize,
		"beta":       c.Beta,
		"weight_reg": c.WeightDecay,
		"optimizer":  c.Optimizer,
		"schedule":   c.Schedule,
		"print_freq": c.PrintFreq,
	}
}

// SetParam assigns one training hyper-parameter. It reports false when key
// is not a training parameter.
func (c *TrainingConfig) SetParam(key string, v any) (bool, error) {
	var err error
	switch key {
	case "n_iter":
		c.NIter, err = ParamInt(key, v)
	case "lr":
		c.LR, err = ParamFloat(key, v)
	case "batch_size":
		c.BatchSize, err = ParamInt(key, v)
	case "beta":
		c.Beta, err = ParamFloat(key, v)
	case "weight_reg":
		c.WeightDecay, err = ParamFloat(key, v)
	case "optimizer":
		c.Optimizer, err = ParamString(key, v)
	case "schedule":
		c.Schedule, err = ParamString(key, v)
	case "print_freq":
		c.PrintFreq, err = ParamInt(key, v)
	default:
		return false, nil
	}
	return true, err
}
