package training

import (
	"reflect"
	"testing"

	"github.com/juju/errors"
)

func TestEncodeLabels(t *testing.T) {
	labels := []int{5, 2, InvalidLabel, 5, 9}
	classes, encoded, err := EncodeLabels(labels)
	if err != nil {
		t.Fatalf("EncodeLabels failed: %v", err)
	}
	if !reflect.DeepEqual(classes, []int{2, 5, 9}) {
		t.Errorf("classes = %v", classes)
	}
	if !reflect.DeepEqual(encoded, []int{1, 0, InvalidLabel, 1, 2}) {
		t.Errorf("encoded = %v", encoded)
	}
	if labels[2] != InvalidLabel || labels[0] != 5 {
		t.Errorf("input labels were modified: %v", labels)
	}
}

func TestEncodeLabelsErrors(t *testing.T) {
	tests := []struct {
		name   string
		labels []int
	}{
		{"single class", []int{1, 1, InvalidLabel}},
		{"only sentinel", []int{InvalidLabel, InvalidLabel}},
		{"negative label", []int{-3, 0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := EncodeLabels(tt.labels); !errors.Is(err, errors.NotValid) {
				t.Errorf("error = %v, expected NotValid", err)
			}
		})
	}
}

func TestEncodeGroups(t *testing.T) {
	known := UniqueGroups([]int{7, 3, 3, 7, 11})
	if !reflect.DeepEqual(known, []int{3, 7, 11}) {
		t.Fatalf("UniqueGroups = %v", known)
	}
	got := EncodeGroups([]int{11, 3, 4, 7, 100}, known)
	if !reflect.DeepEqual(got, []int{2, 0, -1, 1, -1}) {
		t.Errorf("EncodeGroups = %v", got)
	}
}

func TestStrictlyIncreasing(t *testing.T) {
	tests := []struct {
		ids  []int
		want bool
	}{
		{nil, true},
		{[]int{3}, true},
		{[]int{0, 2, 7}, true},
		{[]int{3, 3}, false},
		{[]int{2, 1}, false},
	}
	for _, tt := range tests {
		if got := StrictlyIncreasing(tt.ids); got != tt.want {
			t.Errorf("StrictlyIncreasing(%v) = %v, expected %v", tt.ids, got, tt.want)
		}
	}
}
