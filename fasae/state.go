package fasae

import (
	"io"

	"github.com/juju/errors"

	"github.com/tsawler/go-lpne/checkpoints"
	"github.com/tsawler/go-lpne/training"
)

// State exports the fitted model as a checkpoint record.
func (m *Model) State() (*checkpoints.Checkpoint, error) {
	if err := m.checkFitted(); err != nil {
		return nil, err
	}
	p := m.params
	names, tensors := p.named()
	weights, err := checkpoints.ExtractWeights(names, tensors)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &checkpoints.Checkpoint{
		Model:   Name,
		Params:  m.Params(),
		Classes: append([]int(nil), m.classes...),
		Dims: map[string]int{
			"n_freqs":   p.nFreqs,
			"n_rois":    p.nRois,
			"n_classes": p.nClasses,
			"z_dim":     p.zDim,
		},
		Weights:        weights,
		TrainingState:  m.trainingState,
		OptimizerState: m.optimizerState,
	}, nil
}

// SetState replaces the model with the one described by cp. The model is
// unchanged if cp is inconsistent.
func (m *Model) SetState(cp *checkpoints.Checkpoint) error {
	if cp == nil || cp.Model != Name {
		return errors.NotValidf("checkpoint for model %q", modelName(cp))
	}
	config, err := DefaultConfig().WithParams(cp.Params)
	if err != nil {
		return errors.Trace(err)
	}
	if err := config.Validate(); err != nil {
		return errors.Trace(err)
	}

	dims := make(map[string]int, 4)
	for _, key := range []string{"n_freqs", "n_rois", "n_classes", "z_dim"} {
		v, ok := cp.Dims[key]
		if !ok || v < 1 {
			return errors.NotValidf("checkpoint dimension %s = %d", key, v)
		}
		dims[key] = v
	}
	if dims["z_dim"] != config.ZDim {
		return errors.NotValidf("checkpoint z_dim %d with parameter z_dim %d", dims["z_dim"], config.ZDim)
	}
	if len(cp.Classes) != dims["n_classes"] || len(cp.Classes) < 2 || !training.StrictlyIncreasing(cp.Classes) {
		return errors.NotValidf("checkpoint with %d classes and n_classes %d", len(cp.Classes), dims["n_classes"])
	}

	p, err := newParams(config, dims["n_freqs"], dims["n_rois"], dims["n_classes"], m.ctx.Rng())
	if err != nil {
		return errors.Trace(err)
	}
	names, tensors := p.named()
	if err := checkpoints.LoadWeightsIntoTensors(cp.Weights, names, tensors); err != nil {
		return errors.NewNotValid(err, "checkpoint weights")
	}

	m.config = config
	m.params = p
	m.classes = append([]int(nil), cp.Classes...)
	m.trainingState = cp.TrainingState
	m.optimizerState = cp.OptimizerState
	return nil
}

// Marshal writes the fitted model to w as JSON.
func (m *Model) Marshal(w io.Writer) error {
	cp, err := m.State()
	if err != nil {
		return err
	}
	return errors.Trace(checkpoints.NewCheckpointSaver(checkpoints.FormatJSON).Encode(cp, w))
}

// Unmarshal restores a model written by Marshal.
func (m *Model) Unmarshal(r io.Reader) error {
	cp, err := checkpoints.NewCheckpointSaver(checkpoints.FormatJSON).Decode(r)
	if err != nil {
		return errors.Trace(err)
	}
	return m.SetState(cp)
}

func modelName(cp *checkpoints.Checkpoint) string {
	if cp == nil {
		return ""
	}
	return cp.Model
}
