package training

import (
	"fmt"
	"strings"

	"github.com/juju/errors"
	"gonum.org/v1/gonum/floats"
)

// MetricType represents different evaluation metrics
type MetricType int

const (
	Accuracy MetricType = iota
	BalancedAccuracy

	// Multi-class Metrics
	MacroPrecision
	MacroRecall
	MacroF1
)

func (mt MetricType) String() string {
	switch mt {
	case Accuracy:
		return "Accuracy"
	case BalancedAccuracy:
		return "BalancedAccuracy"
	case MacroPrecision:
		return "MacroPrecision"
	case MacroRecall:
		return "MacroRecall"
	case MacroF1:
		return "MacroF1"
	default:
		return fmt.Sprintf("Unknown(%d)", int(mt))
	}
}

// ConfusionMatrix counts predictions per true class.
type ConfusionMatrix struct {
	NumClasses   int
	Matrix       [][]int // [true_class][predicted_class]
	TotalSamples int
}

// NewConfusionMatrix creates a new confusion matrix
func NewConfusionMatrix(numClasses int) *ConfusionMatrix {
	matrix := make([][]int, numClasses)
	for i := range matrix {
		matrix[i] = make([]int, numClasses)
	}
	return &ConfusionMatrix{
		NumClasses: numClasses,
		Matrix:     matrix,
	}
}

// Reset clears the confusion matrix
func (cm *ConfusionMatrix) Reset() {
	for i := range cm.Matrix {
		for j := range cm.Matrix[i] {
			cm.Matrix[i][j] = 0
		}
	}
	cm.TotalSamples = 0
}

// Update adds class-index pairs. Pairs with an index outside [0, NumClasses)
// are skipped, which drops unlabelled samples.
func (cm *ConfusionMatrix) Update(trueClasses, predClasses []int) error {
	if len(trueClasses) != len(predClasses) {
		return errors.NotValidf("%d labels for %d predictions", len(trueClasses), len(predClasses))
	}
	for i, trueClass := range trueClasses {
		predClass := predClasses[i]
		if trueClass < 0 || trueClass >= cm.NumClasses || predClass < 0 || predClass >= cm.NumClasses {
			continue
		}
		cm.Matrix[trueClass][predClass]++
		cm.TotalSamples++
	}
	return nil
}

// GetMetric computes a summary metric from the counts.
func (cm *ConfusionMatrix) GetMetric(metric MetricType) float64 {
	switch metric {
	case Accuracy:
		if cm.TotalSamples == 0 {
			return 0
		}
		correct := 0
		for c := 0; c < cm.NumClasses; c++ {
			correct += cm.Matrix[c][c]
		}
		return float64(correct) / float64(cm.TotalSamples)
	case BalancedAccuracy, MacroRecall:
		return cm.macro(cm.recall)
	case MacroPrecision:
		return cm.macro(cm.precision)
	case MacroF1:
		return cm.macro(func(c int) (float64, bool) {
			p, okP := cm.precision(c)
			r, okR := cm.recall(c)
			if !okP || !okR {
				return 0, false
			}
			if p+r == 0 {
				return 0, true
			}
			return 2 * p * r / (p + r), true
		})
	default:
		return 0
	}
}

// macro averages a per-class metric over the classes where it is defined.
func (cm *ConfusionMatrix) macro(perClass func(int) (float64, bool)) float64 {
	values := make([]float64, 0, cm.NumClasses)
	for c := 0; c < cm.NumClasses; c++ {
		if v, ok := perClass(c); ok {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return 0
	}
	return floats.Sum(values) / float64(len(values))
}

func (cm *ConfusionMatrix) precision(class int) (float64, bool) {
	predicted := 0
	for t := 0; t < cm.NumClasses; t++ {
		predicted += cm.Matrix[t][class]
	}
	if predicted == 0 {
		return 0, false
	}
	return float64(cm.Matrix[class][class]) / float64(predicted), true
}

func (cm *ConfusionMatrix) recall(class int) (float64, bool) {
	actual := 0
	for _, n := range cm.Matrix[class] {
		actual += n
	}
	if actual == 0 {
		return 0, false
	}
	return float64(cm.Matrix[class][class]) / float64(actual), true
}

// String renders the matrix with class indices as row and column headers.
func (cm *ConfusionMatrix) String() string {
	var sb strings.Builder
	sb.WriteString("true\\pred")
	for p := 0; p < cm.NumClasses; p++ {
		fmt.Fprintf(&sb, "\t%d", p)
	}
	sb.WriteString("\n")
	for t, row := range cm.Matrix {
		fmt.Fprintf(&sb, "%d", t)
		for _, n := range row {
			fmt.Fprintf(&sb, "\t%d", n)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// WeightedAccuracy returns the weighted fraction of correct predictions over
// samples whose label is not InvalidLabel.
func WeightedAccuracy(labels, predictions []int, weights []float64) (float64, error) {
	if len(labels) != len(predictions) || len(labels) != len(weights) {
		return 0, errors.NotValidf("%d labels, %d predictions and %d weights", len(labels), len(predictions), len(weights))
	}
	correct, total := 0.0, 0.0
	for i, l := range labels {
		if l == InvalidLabel {
			continue
		}
		total += weights[i]
		if predictions[i] == l {
			correct += weights[i]
		}
	}
	if total == 0 {
		return 0, errors.NotValidf("no labelled samples")
	}
	return correct / total, nil
}
