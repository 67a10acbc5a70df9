package training

import (
	"math"
	"strings"

	"github.com/juju/errors"
)

// LRScheduler defines the interface for learning rate scheduling strategies.
// Schedulers are stateless: the rate depends only on the iteration.
type LRScheduler interface {
	// GetLR returns the learning rate for iteration iter (0-based)
	GetLR(iter int, baseLR float64) float64

	// GetName returns the scheduler name for logging
	GetName() string
}

// Scheduler names accepted by NewScheduler.
const (
	ScheduleNone        = "none"
	ScheduleStep        = "step"
	ScheduleExponential = "exponential"
	ScheduleCosine      = "cosine"
)

// NewScheduler builds a scheduler by name for a run of nIter iterations.
func NewScheduler(name string, nIter int) (LRScheduler, error) {
	switch strings.ToLower(name) {
	case "", ScheduleNone:
		return &NoOpScheduler{}, nil
	case ScheduleStep:
		return NewStepLRScheduler(max(1, nIter/4), 0.5), nil
	case ScheduleExponential:
		// Decays to 1% of the base rate over the run.
		return NewExponentialLRScheduler(math.Pow(0.01, 1/float64(max(1, nIter)))), nil
	case ScheduleCosine:
		return NewCosineAnnealingLRScheduler(max(1, nIter), 0), nil
	default:
		return nil, errors.NotSupportedf("learning rate schedule %q", name)
	}
}

// StepLRScheduler reduces learning rate by a factor every StepSize iterations
type StepLRScheduler struct {
	StepSize int     // Iterations between LR reductions
	Gamma    float64 // Multiplicative factor of LR decay
}

// NewStepLRScheduler creates a step learning rate scheduler
func NewStepLRScheduler(stepSize int, gamma float64) *StepLRScheduler {
	if stepSize <= 0 {
		stepSize = 30
	}
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.1
	}
	return &StepLRScheduler{
		StepSize: stepSize,
		Gamma:    gamma,
	}
}

func (s *StepLRScheduler) GetLR(iter int, baseLR float64) float64 {
	times := iter / s.StepSize
	return baseLR * math.Pow(s.Gamma, float64(times))
}

func (s *StepLRScheduler) GetName() string {
	return "StepLR"
}

// ExponentialLRScheduler decays learning rate exponentially
type ExponentialLRScheduler struct {
	Gamma float64 // Multiplicative factor of LR decay per iteration
}

// NewExponentialLRScheduler creates an exponential learning rate scheduler
func NewExponentialLRScheduler(gamma float64) *ExponentialLRScheduler {
	if gamma <= 0 || gamma >= 1 {
		gamma = 0.95
	}
	return &ExponentialLRScheduler{
		Gamma: gamma,
	}
}

func (s *ExponentialLRScheduler) GetLR(iter int, baseLR float64) float64 {
	return baseLR * math.Pow(s.Gamma, float64(iter))
}

func (s *ExponentialLRScheduler) GetName() string {
	return "ExponentialLR"
}

// CosineAnnealingLRScheduler implements cosine annealing schedule
type CosineAnnealingLRScheduler struct {
	TMax   int     // Iterations until EtaMin is reached
	EtaMin float64 // Minimum learning rate
}

// NewCosineAnnealingLRScheduler creates a cosine annealing scheduler
func NewCosineAnnealingLRScheduler(tMax int, etaMin float64) *CosineAnnealingLRScheduler {
	if tMax <= 0 {
		tMax = 100
	}
	if etaMin < 0 {
		etaMin = 0
	}
	return &CosineAnnealingLRScheduler{
		TMax:   tMax,
		EtaMin: etaMin,
	}
}

func (s *CosineAnnealingLRScheduler) GetLR(iter int, baseLR float64) float64 {
	if iter >= s.TMax {
		return s.EtaMin
	}

	return s.EtaMin + (baseLR-s.EtaMin)*(1+math.Cos(math.Pi*float64(iter)/float64(s.TMax)))/2
}

func (s *CosineAnnealingLRScheduler) GetName() string {
	return "CosineAnnealingLR"
}

// NoOpScheduler maintains constant learning rate (default behavior)
type NoOpScheduler struct{}

func (s *NoOpScheduler) GetLR(iter int, baseLR float64) float64 {
	return baseLR
}

func (s *NoOpScheduler) GetName() string {
	return "ConstantLR"
}
