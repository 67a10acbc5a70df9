package cpsae

import (
	"io"

	"github.com/juju/errors"

	"github.com/tsawler/go-lpne/checkpoints"
	"github.com/tsawler/go-lpne/training"
)

var stateDims = []string{"n_freqs", "n_rois", "n_classes", "n_groups", "z_dim", "group_embed_dim"}

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
		Groups:  append([]int(nil), m.groups...),
		Dims: map[string]int{
			"n_freqs":         p.nFreqs,
			"n_rois":          p.nRois,
			"n_classes":       p.nClasses,
			"n_groups":        p.nGroups,
			"z_dim":           p.zDim,
			"group_embed_dim": p.embedDim,
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
		name := ""
		if cp != nil {
			name = cp.Model
		}
		return errors.NotValidf("checkpoint for model %q", name)
	}
	config, err := DefaultConfig().WithParams(cp.Params)
	if err != nil {
		return errors.Trace(err)
	}
	if err := config.Validate(); err != nil {
		return errors.Trace(err)
	}

	dims := make(map[string]int, len(stateDims))
	for _, key := range stateDims {
		v, ok := cp.Dims[key]
		if !ok || v < 1 {
			return errors.NotValidf("checkpoint dimension %s = %d", key, v)
		}
		dims[key] = v
	}
	if dims["z_dim"] != config.ZDim || dims["group_embed_dim"] != config.GroupEmbedDim {
		return errors.NotValidf("checkpoint dimensions %v with parameters z_dim %d and group_embed_dim %d",
			dims, config.ZDim, config.GroupEmbedDim)
	}
	if len(cp.Classes) != dims["n_classes"] || len(cp.Classes) < 2 || !training.StrictlyIncreasing(cp.Classes) {
		return errors.NotValidf("checkpoint with %d classes and n_classes %d", len(cp.Classes), dims["n_classes"])
	}
	if len(cp.Groups) != dims["n_groups"] || !training.StrictlyIncreasing(cp.Groups) {
		return errors.NotValidf("checkpoint groups %v with n_groups %d", cp.Groups, dims["n_groups"])
	}

	p, err := newParams(config, dims["n_freqs"], dims["n_rois"], dims["n_classes"], dims["n_groups"], m.ctx.Rng())
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
	m.groups = append([]int(nil), cp.Groups...)
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
