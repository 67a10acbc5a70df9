package checkpoints

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/tsawler/go-lpne/tensor"
)

func testCheckpoint() *Checkpoint {
	return &Checkpoint{
		Model:   "FaSae",
		Params:  map[string]any{"z_dim": 8.0, "encoder_type": "pinv", "nonnegative": true},
		Classes: []int{0, 1},
		Groups:  []int{3, 7},
		Dims:    map[string]int{"n_freqs": 4, "n_rois": 3},
		Weights: []WeightTensor{
			{Name: "model", Shape: []int{2, 3}, Data: []float64{0.1, -0.2, 1.0 / 3, 4e-12, 5, 6}, Layer: "model", Type: "model"},
			{Name: "linear_layer.bias", Shape: []int{1, 2}, Data: []float64{0.5, -0.25}, Layer: "linear_layer", Type: "bias"},
		},
		TrainingState: TrainingState{Step: 100, TotalSteps: 100, LearningRate: 1e-3, LastLoss: 0.125},
		OptimizerState: &OptimizerState{
			Type:       "Adam",
			Parameters: map[string]any{"step_count": 100.0},
			StateData:  []OptimizerTensor{{Name: "momentum_0", Shape: []int{6}, Data: make([]float64, 6), StateType: "momentum"}},
		},
		Metadata: CheckpointMetadata{Description: "test"},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, format := range []CheckpointFormat{FormatJSON, FormatProto} {
		t.Run(format.String(), func(t *testing.T) {
			saver := NewCheckpointSaver(format)
			original := testCheckpoint()

			var buf bytes.Buffer
			if err := saver.Encode(original, &buf); err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			loaded, err := saver.Decode(&buf)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if loaded.Model != original.Model {
				t.Errorf("Model = %s, expected %s", loaded.Model, original.Model)
			}
			if !reflect.DeepEqual(loaded.Classes, original.Classes) || !reflect.DeepEqual(loaded.Groups, original.Groups) {
				t.Errorf("vocabularies changed: %v %v", loaded.Classes, loaded.Groups)
			}
			if !reflect.DeepEqual(loaded.Dims, original.Dims) {
				t.Errorf("Dims = %v", loaded.Dims)
			}
			if !reflect.DeepEqual(loaded.Weights, original.Weights) {
				t.Errorf("weights changed:\n%v\n%v", loaded.Weights, original.Weights)
			}
			if !reflect.DeepEqual(loaded.Params, original.Params) {
				t.Errorf("Params = %v", loaded.Params)
			}
			if loaded.TrainingState != original.TrainingState {
				t.Errorf("TrainingState = %+v", loaded.TrainingState)
			}
			if loaded.OptimizerState == nil || loaded.OptimizerState.Type != "Adam" {
				t.Errorf("OptimizerState = %+v", loaded.OptimizerState)
			}
			if loaded.Metadata.Framework != "go-lpne" || !loaded.Metadata.CreatedAt.Equal(original.Metadata.CreatedAt) {
				t.Errorf("Metadata = %+v", loaded.Metadata)
			}
		})
	}
}

func TestSaveLoadFile(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"model.json", "model.pb"} {
		path := filepath.Join(dir, name)
		saver := NewCheckpointSaver(FormatFromPath(path))
		if err := saver.SaveCheckpoint(testCheckpoint(), path); err != nil {
			t.Fatalf("SaveCheckpoint(%s) failed: %v", name, err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("checkpoint file missing: %v", err)
		}
		loaded, err := saver.LoadCheckpoint(path)
		if err != nil {
			t.Fatalf("LoadCheckpoint(%s) failed: %v", name, err)
		}
		if loaded.Weights[0].Data[2] != 1.0/3 {
			t.Errorf("%s: float64 precision lost: %v", name, loaded.Weights[0].Data[2])
		}
	}

	if _, err := NewCheckpointSaver(FormatJSON).LoadCheckpoint(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := NewCheckpointSaver(FormatJSON).Decode(strings.NewReader("{not json")); err == nil {
		t.Error("expected JSON decode error")
	}
	if _, err := NewCheckpointSaver(FormatProto).Decode(strings.NewReader("\xff\xff\xff")); err == nil {
		t.Error("expected protobuf decode error")
	}
}

func TestWeightExtraction(t *testing.T) {
	a, _ := tensor.NewTensor([]int{2, 2}, []float64{1, 2, 3, 4})
	b, _ := tensor.NewTensor([]int{1, 2}, []float64{5, 6})
	names := []string{"rec_model_1.weight", "logit_biases"}

	weights, err := ExtractWeights(names, []*tensor.Tensor{a, b})
	if err != nil {
		t.Fatalf("ExtractWeights failed: %v", err)
	}
	if weights[0].Layer != "rec_model_1" || weights[0].Type != "weight" || weights[1].Type != "logit_biases" {
		t.Errorf("naming = %+v", weights)
	}
	a.Data[0] = 100
	if weights[0].Data[0] != 1 {
		t.Error("ExtractWeights should copy data")
	}

	t.Run("load", func(t *testing.T) {
		dstA, _ := tensor.Zeros([]int{2, 2})
		dstB, _ := tensor.Zeros([]int{1, 2})
		if err := LoadWeightsIntoTensors(weights, names, []*tensor.Tensor{dstA, dstB}); err != nil {
			t.Fatalf("LoadWeightsIntoTensors failed: %v", err)
		}
		if !reflect.DeepEqual(dstA.Data, []float64{1, 2, 3, 4}) || !reflect.DeepEqual(dstB.Data, []float64{5, 6}) {
			t.Errorf("loaded %v %v", dstA.Data, dstB.Data)
		}
	})

	t.Run("shape mismatch leaves tensors untouched", func(t *testing.T) {
		dstA, _ := tensor.Zeros([]int{2, 2})
		wrong, _ := tensor.Zeros([]int{2, 1})
		err := LoadWeightsIntoTensors(weights, names, []*tensor.Tensor{dstA, wrong})
		if err == nil {
			t.Fatal("expected shape mismatch error")
		}
		if dstA.Data[0] != 0 {
			t.Error("no tensor should be written when validation fails")
		}
	})

	t.Run("missing weight", func(t *testing.T) {
		dst, _ := tensor.Zeros([]int{1})
		if err := LoadWeightsIntoTensors(weights, []string{"group_mean"}, []*tensor.Tensor{dst}); err == nil {
			t.Error("expected missing weight error")
		}
	})
}
