package dataset

import (
	"bytes"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/juju/errors"

	"github.com/tsawler/go-lpne/model"
)

func smallConfig() SyntheticConfig {
	return SyntheticConfig{
		NSamples:       20,
		NFreqs:         3,
		NRois:          3,
		NClasses:       2,
		NGroups:        2,
		Noise:          0.05,
		UnlabelledFrac: 0.1,
	}
}

func TestSynthetic(t *testing.T) {
	cfg := smallConfig()
	ds, err := Synthetic(cfg, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("Synthetic: %v", err)
	}
	if err := ds.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	want := []int{20, 3, 3, 3}
	for i, d := range want {
		if ds.Features.Shape[i] != d {
			t.Fatalf("shape %v, want %v", ds.Features.Shape, want)
		}
	}

	unlabelled := 0
	for i, label := range ds.Labels {
		switch {
		case label == model.InvalidLabel:
			unlabelled++
		case label < 0 || label >= cfg.NClasses:
			t.Errorf("label %d at %d", label, i)
		}
		if ds.Groups[i] < 0 || ds.Groups[i] >= cfg.NGroups {
			t.Errorf("group %d at %d", ds.Groups[i], i)
		}
	}
	if unlabelled != 2 {
		t.Errorf("%d unlabelled samples, want 2", unlabelled)
	}

	r := cfg.NRois
	for n := 0; n < cfg.NSamples; n++ {
		for f := 0; f < cfg.NFreqs; f++ {
			for i := 0; i < r; i++ {
				for j := 0; j < r; j++ {
					v := ds.Features.Data[((n*cfg.NFreqs+f)*r+i)*r+j]
					if v < 0 {
						t.Fatalf("negative feature %v", v)
					}
					if v != ds.Features.Data[((n*cfg.NFreqs+f)*r+j)*r+i] {
						t.Fatalf("sample %d frequency %d is not symmetric", n, f)
					}
				}
			}
		}
	}
}

func TestSyntheticValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*SyntheticConfig)
	}{
		{"one class", func(c *SyntheticConfig) { c.NClasses = 1 }},
		{"too few samples", func(c *SyntheticConfig) { c.NSamples = 1 }},
		{"no groups", func(c *SyntheticConfig) { c.NGroups = 0 }},
		{"negative noise", func(c *SyntheticConfig) { c.Noise = -1 }},
		{"mostly unlabelled", func(c *SyntheticConfig) { c.UnlabelledFrac = 0.9 }},
		{"no regions", func(c *SyntheticConfig) { c.NRois = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := smallConfig()
			tt.modify(&cfg)
			if _, err := Synthetic(cfg, rand.New(rand.NewSource(1))); !errors.Is(err, errors.NotValid) {
				t.Errorf("expected NotValid, got %v", err)
			}
		})
	}
}

func TestReadWriteRoundTrip(t *testing.T) {
	ds, err := Synthetic(smallConfig(), rand.New(rand.NewSource(2)))
	if err != nil {
		t.Fatalf("Synthetic: %v", err)
	}

	var buf bytes.Buffer
	if err := Write(ds, &buf); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	assertSameDataset(t, ds, got)

	path := filepath.Join(t.TempDir(), "data.json")
	if err := Save(ds, path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertSameDataset(t, ds, loaded)
}

func TestRecordCondensedWidth(t *testing.T) {
	ds, err := Synthetic(smallConfig(), rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("Synthetic: %v", err)
	}
	record, err := FromDataset(ds)
	if err != nil {
		t.Fatalf("FromDataset: %v", err)
	}
	// 3 frequencies times 6 region pairs.
	if len(record.Features[0]) != 18 {
		t.Errorf("condensed width %d, want 18", len(record.Features[0]))
	}
}

func TestReadErrors(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"no samples", `{"n_freqs":1,"n_rois":2,"features":[],"labels":[],"groups":[]}`},
		{"wrong width", `{"n_freqs":1,"n_rois":2,"features":[[1,2]],"labels":[0],"groups":[0]}`},
		{"label count", `{"n_freqs":1,"n_rois":2,"features":[[1,2,3]],"labels":[0,1],"groups":[0]}`},
		{"bad dims", `{"n_freqs":0,"n_rois":2,"features":[[1,2,3]],"labels":[0],"groups":[0]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Read(strings.NewReader(tt.json)); !errors.Is(err, errors.NotValid) {
				t.Errorf("expected NotValid, got %v", err)
			}
		})
	}

	if _, err := Read(strings.NewReader("{")); err == nil {
		t.Error("expected decode error")
	}
}

func TestReadDefaultsGroups(t *testing.T) {
	ds, err := Read(strings.NewReader(`{"n_freqs":1,"n_rois":2,"features":[[1,2,3],[4,5,6]],"labels":[0,1]}`))
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(ds.Groups) != 2 || ds.Groups[0] != 0 || ds.Groups[1] != 0 {
		t.Errorf("groups %v, want [0 0]", ds.Groups)
	}
	// Condensed [1 2 3] is the lower triangle [[1 .] [2 3]].
	want := []float64{1, 2, 2, 3}
	for i, v := range want {
		if ds.Features.Data[i] != v {
			t.Fatalf("first sample %v, want %v", ds.Features.Data[:4], want)
		}
	}
}

func TestTrainTestSplit(t *testing.T) {
	ds, err := Synthetic(smallConfig(), rand.New(rand.NewSource(4)))
	if err != nil {
		t.Fatalf("Synthetic: %v", err)
	}
	train, test, err := TrainTestSplit(ds, 0.25, rand.New(rand.NewSource(5)))
	if err != nil {
		t.Fatalf("TrainTestSplit: %v", err)
	}
	if train.Len() != 15 || test.Len() != 5 {
		t.Errorf("split sizes %d/%d, want 15/5", train.Len(), test.Len())
	}

	for _, frac := range []float64{0, 1, -0.5, 0.01} {
		if _, _, err := TrainTestSplit(ds, frac, rand.New(rand.NewSource(5))); !errors.Is(err, errors.NotValid) {
			t.Errorf("fraction %v: expected NotValid, got %v", frac, err)
		}
	}
}

func assertSameDataset(t *testing.T, want, got *model.Dataset) {
	t.Helper()
	if !want.Features.AllClose(got.Features, 1e-12) {
		t.Error("features differ")
	}
	for i := range want.Labels {
		if want.Labels[i] != got.Labels[i] || want.Groups[i] != got.Groups[i] {
			t.Fatalf("sample %d: label/group %d/%d, want %d/%d",
				i, got.Labels[i], got.Groups[i], want.Labels[i], want.Groups[i])
		}
	}
}
