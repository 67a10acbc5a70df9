package training

import (
	"math"
	"testing"

	"github.com/juju/errors"
)

func TestStepLRScheduler(t *testing.T) {
	scheduler := NewStepLRScheduler(2, 0.1)
	baseLR := 0.1

	tests := []struct {
		iter       int
		expectedLR float64
	}{
		{0, 0.1},
		{1, 0.1},
		{2, 0.01},
		{3, 0.01},
		{4, 0.001},
		{6, 0.0001},
	}

	for _, tt := range tests {
		lr := scheduler.GetLR(tt.iter, baseLR)
		if math.Abs(lr-tt.expectedLR) > 1e-8 {
			t.Errorf("Iteration %d: expected LR %f, got %f", tt.iter, tt.expectedLR, lr)
		}
	}
}

func TestExponentialLRScheduler(t *testing.T) {
	scheduler := NewExponentialLRScheduler(0.9)
	baseLR := 0.1

	tests := []struct {
		iter       int
		expectedLR float64
	}{
		{0, 0.1},
		{1, 0.09},
		{2, 0.081},
		{3, 0.0729},
		{5, 0.059049},
	}

	for _, tt := range tests {
		lr := scheduler.GetLR(tt.iter, baseLR)
		if math.Abs(lr-tt.expectedLR) > 1e-8 {
			t.Errorf("Iteration %d: expected LR %f, got %f", tt.iter, tt.expectedLR, lr)
		}
	}
}

func TestCosineAnnealingLRScheduler(t *testing.T) {
	scheduler := NewCosineAnnealingLRScheduler(5, 0.0001)
	baseLR := 0.01

	tests := []struct {
		iter       int
		expectedLR float64
		tolerance  float64
	}{
		{0, 0.01, 1e-6},
		{5, 0.0001, 1e-6},
		{2, 0.006580, 1e-6},
	}

	for _, tt := range tests {
		lr := scheduler.GetLR(tt.iter, baseLR)
		if math.Abs(lr-tt.expectedLR) > tt.tolerance {
			t.Errorf("Iteration %d: expected LR %f, got %f", tt.iter, tt.expectedLR, lr)
		}
	}

	if lr := scheduler.GetLR(10, baseLR); lr != 0.0001 {
		t.Errorf("Beyond TMax: expected LR %f, got %f", 0.0001, lr)
	}
}

func TestNewScheduler(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{"", "ConstantLR"},
		{ScheduleNone, "ConstantLR"},
		{ScheduleStep, "StepLR"},
		{"Exponential", "ExponentialLR"},
		{ScheduleCosine, "CosineAnnealingLR"},
	}

	for _, tt := range tests {
		scheduler, err := NewScheduler(tt.name, 100)
		if err != nil {
			t.Fatalf("NewScheduler(%q) failed: %v", tt.name, err)
		}
		if name := scheduler.GetName(); name != tt.expected {
			t.Errorf("Expected name %s, got %s", tt.expected, name)
		}
		if lr := scheduler.GetLR(0, 0.5); lr != 0.5 {
			t.Errorf("%s: first iteration LR %f, expected the base rate", tt.expected, lr)
		}
	}

	exp, _ := NewScheduler(ScheduleExponential, 100)
	if lr := exp.GetLR(100, 1); math.Abs(lr-0.01) > 1e-9 {
		t.Errorf("exponential schedule ends at %v, expected 0.01", lr)
	}

	if _, err := NewScheduler("plateau", 100); !errors.Is(err, errors.NotSupported) {
		t.Errorf("error = %v, expected NotSupported", err)
	}
}
