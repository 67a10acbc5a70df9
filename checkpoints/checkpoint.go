package checkpoints

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/tsawler/go-lpne/tensor"
)

// CheckpointFormat defines the serialization format
type CheckpointFormat int

const (
	FormatJSON CheckpointFormat = iota
	FormatProto
)

func (cf CheckpointFormat) String() string {
	switch cf {
	case FormatJSON:
		return "JSON"
	case FormatProto:
		return "Proto"
	default:
		return "Unknown"
	}
}

// FormatFromPath picks the format from a file extension: ".pb" selects
// protobuf, anything else JSON.
func FormatFromPath(path string) CheckpointFormat {
	if strings.HasSuffix(strings.ToLower(path), ".pb") {
		return FormatProto
	}
	return FormatJSON
}

// Checkpoint is the persisted state of a fitted model: its hyper-parameters,
// the label and group vocabularies, the shape-derived dimensions and every
// learned tensor.
type Checkpoint struct {
	Model   string         `json:"model"`
	Params  map[string]any `json:"params"`
	Classes []int          `json:"classes"`
	Groups  []int          `json:"groups,omitempty"`
	Dims    map[string]int `json:"dims"`
	Weights []WeightTensor `json:"weights"`

	TrainingState  TrainingState   `json:"training_state"`
	OptimizerState *OptimizerState `json:"optimizer_state,omitempty"`

	Metadata CheckpointMetadata `json:"metadata"`
}

// WeightTensor represents a model parameter tensor with its data
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
	Layer string    `json:"layer"`
	Type  string    `json:"type"` // "weight", "bias", or the parameter name
}

// TrainingState captures training progress at the time of saving
type TrainingState struct {
	Step         int     `json:"step"`
	TotalSteps   int     `json:"total_steps"`
	LearningRate float64 `json:"learning_rate"`
	LastLoss     float64 `json:"last_loss"`
}

// OptimizerState captures optimizer-specific state (momentum, variance, etc.)
type OptimizerState struct {
	Type       string            `json:"type"` // "SGD", "Adam"
	Parameters map[string]any    `json:"parameters"`
	StateData  []OptimizerTensor `json:"state_data"`
}

// OptimizerTensor represents optimizer state tensors (momentum, variance, etc.)
type OptimizerTensor struct {
	Name      string    `json:"name"`
	Shape     []int     `json:"shape"`
	Data      []float64 `json:"data"`
	StateType string    `json:"state_type"` // "momentum", "variance"
}

// CheckpointMetadata contains checkpoint metadata
type CheckpointMetadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

// CheckpointSaver handles saving model checkpoints in various formats
type CheckpointSaver struct {
	format CheckpointFormat
}

// NewCheckpointSaver creates a new checkpoint saver for the specified format
func NewCheckpointSaver(format CheckpointFormat) *CheckpointSaver {
	return &CheckpointSaver{
		format: format,
	}
}

func (cs *CheckpointSaver) Format() CheckpointFormat {
	return cs.format
}

// Encode writes the checkpoint to w.
func (cs *CheckpointSaver) Encode(checkpoint *Checkpoint, w io.Writer) error {
	if checkpoint.Metadata.Framework == "" {
		checkpoint.Metadata.Framework = "go-lpne"
		checkpoint.Metadata.Version = "1.0.0"
		checkpoint.Metadata.CreatedAt = time.Now().UTC()
	}
	switch cs.format {
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(checkpoint); err != nil {
			return fmt.Errorf("failed to encode checkpoint: %v", err)
		}
		return nil
	case FormatProto:
		return encodeProto(checkpoint, w)
	default:
		return fmt.Errorf("unsupported checkpoint format: %s", cs.format.String())
	}
}

// Decode reads a checkpoint from r.
func (cs *CheckpointSaver) Decode(r io.Reader) (*Checkpoint, error) {
	switch cs.format {
	case FormatJSON:
		var checkpoint Checkpoint
		if err := json.NewDecoder(r).Decode(&checkpoint); err != nil {
			return nil, fmt.Errorf("failed to decode checkpoint: %v", err)
		}
		return &checkpoint, nil
	case FormatProto:
		return decodeProto(r)
	default:
		return nil, fmt.Errorf("unsupported checkpoint format: %s", cs.format.String())
	}
}

// SaveCheckpoint saves a complete model checkpoint
func (cs *CheckpointSaver) SaveCheckpoint(checkpoint *Checkpoint, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %v", err)
	}
	if err := cs.Encode(checkpoint, file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// LoadCheckpoint loads a model checkpoint
func (cs *CheckpointSaver) LoadCheckpoint(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %v", err)
	}
	defer file.Close()
	return cs.Decode(file)
}

// ExtractWeights copies named parameter tensors into weight records. Names
// follow "layer.type"; a name without a dot is its own layer and type.
func ExtractWeights(names []string, tensors []*tensor.Tensor) ([]WeightTensor, error) {
	if len(names) != len(tensors) {
		return nil, fmt.Errorf("name count mismatch: %d names, %d tensors", len(names), len(tensors))
	}
	weights := make([]WeightTensor, len(tensors))
	for i, t := range tensors {
		layer, typ := splitName(names[i])
		data := make([]float64, len(t.Data))
		copy(data, t.Data)
		weights[i] = WeightTensor{
			Name:  names[i],
			Shape: append([]int(nil), t.Shape...),
			Data:  data,
			Layer: layer,
			Type:  typ,
		}
	}
	return weights, nil
}

func splitName(name string) (string, string) {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[:i], name[i+1:]
	}
	return name, name
}

// LoadWeightsIntoTensors copies weight data into the tensors with matching
// names. Every tensor must be present with exactly its shape; nothing is
// written unless all of them match.
func LoadWeightsIntoTensors(weights []WeightTensor, names []string, tensors []*tensor.Tensor) error {
	if len(names) != len(tensors) {
		return fmt.Errorf("name count mismatch: %d names, %d tensors", len(names), len(tensors))
	}
	weightMap := make(map[string]WeightTensor, len(weights))
	for _, weight := range weights {
		weightMap[weight.Name] = weight
	}

	for i, t := range tensors {
		weight, ok := weightMap[names[i]]
		if !ok {
			return fmt.Errorf("missing weight %s", names[i])
		}
		if len(t.Shape) != len(weight.Shape) {
			return fmt.Errorf("shape mismatch for weight %s: tensor %v vs weight %v", weight.Name, t.Shape, weight.Shape)
		}
		for j, dim := range t.Shape {
			if dim != weight.Shape[j] {
				return fmt.Errorf("dimension mismatch for weight %s at index %d: tensor %d vs weight %d",
					weight.Name, j, dim, weight.Shape[j])
			}
		}
		if len(weight.Data) != t.NumElems {
			return fmt.Errorf("data size mismatch for weight %s: expected %d elements, got %d", weight.Name, t.NumElems, len(weight.Data))
		}
	}

	for i, t := range tensors {
		copy(t.Data, weightMap[names[i]].Data)
	}
	return nil
}
