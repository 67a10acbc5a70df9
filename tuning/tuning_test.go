package tuning

import (
	"math/rand"
	"testing"

	"github.com/juju/errors"

	"github.com/tsawler/go-lpne/dataset"
	"github.com/tsawler/go-lpne/engine"
	"github.com/tsawler/go-lpne/model"

	_ "github.com/tsawler/go-lpne/cpsae"
	_ "github.com/tsawler/go-lpne/fasae"
)

func testData(t *testing.T) (*model.Dataset, *engine.Context) {
	t.Helper()
	ds, err := dataset.Synthetic(dataset.SyntheticConfig{
		NSamples:       48,
		NFreqs:         3,
		NRois:          2,
		NClasses:       2,
		NGroups:        2,
		Noise:          0.05,
		UnlabelledFrac: 0,
	}, rand.New(rand.NewSource(21)))
	if err != nil {
		t.Fatalf("Synthetic: %v", err)
	}
	ctx, err := engine.New(engine.Options{Seed: 5})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return ds, ctx
}

func smallSearch() Config {
	cfg := DefaultConfig()
	cfg.NTrials = 3
	cfg.StartupTrials = 2
	cfg.Fixed = map[string]any{"z_dim": 4, "n_iter": 20, "batch_size": 16, "print_freq": 0}
	return cfg
}

func TestSearch(t *testing.T) {
	ds, ctx := testData(t)
	tests := []struct {
		model string
		space []Param
	}{
		{"fa_sae", []Param{
			{Name: "lr", Kind: KindLogFloat, Low: 1e-3, High: 1e-2},
			{Name: "encoder_type", Kind: KindCategorical, Choices: []string{"pinv", "lstsq"}},
		}},
		{"cp_sae", []Param{
			{Name: "factor_reg", Kind: KindFloat, Low: 0, High: 0.1},
			{Name: "group_embed_dim", Kind: KindInt, Low: 1, High: 3},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			cfg := smallSearch()
			cfg.Space = tt.space
			result, err := Search(tt.model, ds, cfg, ctx)
			if err != nil {
				t.Fatalf("Search: %v", err)
			}
			if len(result.Trials) != 3 {
				t.Errorf("%d trials, want 3", len(result.Trials))
			}
			if result.BestScore < 0 || result.BestScore > 1 {
				t.Errorf("best score %v", result.BestScore)
			}
			for _, trial := range result.Trials {
				if trial.Score > result.BestScore {
					t.Errorf("trial %d scored %v above the best %v", trial.Number, trial.Score, result.BestScore)
				}
			}
			for _, p := range tt.space {
				if _, ok := result.BestParams[p.Name]; !ok {
					t.Errorf("best params %v miss %s", result.BestParams, p.Name)
				}
			}
			if result.BestParams["z_dim"] != 4 {
				t.Errorf("fixed z_dim lost: %v", result.BestParams["z_dim"])
			}
			if result.Best == nil {
				t.Fatal("no refitted estimator")
			}
			if _, err := result.Best.Predict(ds.Features, ds.Groups); err != nil {
				t.Errorf("refitted estimator: %v", err)
			}
		})
	}
}

func TestSearchErrors(t *testing.T) {
	ds, ctx := testData(t)
	tests := []struct {
		name    string
		model   string
		modify  func(*Config)
		wantErr errors.ConstError
	}{
		{"no trials", "fa_sae", func(c *Config) { c.NTrials = 0 }, errors.NotValid},
		{"unknown model", "pca", func(c *Config) {}, errors.NotFound},
		{"bad log range", "fa_sae", func(c *Config) {
			c.Space = []Param{{Name: "lr", Kind: KindLogFloat, Low: 0, High: 1}}
		}, errors.NotValid},
		{"no choices", "fa_sae", func(c *Config) {
			c.Space = []Param{{Name: "encoder_type", Kind: KindCategorical}}
		}, errors.NotValid},
		{"unknown kind", "fa_sae", func(c *Config) {
			c.Space = []Param{{Name: "lr", Kind: "grid"}}
		}, errors.NotSupported},
		{"bad fixed parameter", "fa_sae", func(c *Config) { c.Fixed["depth"] = 2 }, errors.NotValid},
		{"bad split", "fa_sae", func(c *Config) { c.TestFrac = 1 }, errors.NotValid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := smallSearch()
			tt.modify(&cfg)
			if _, err := Search(tt.model, ds, cfg, ctx); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultSpace(t *testing.T) {
	for _, name := range []string{"fa_sae", "cp_sae"} {
		for _, p := range DefaultSpace(name) {
			if err := p.validate(); err != nil {
				t.Errorf("%s: %v", name, err)
			}
		}
	}
	if len(DefaultSpace("cp_sae")) <= len(DefaultSpace("other")) {
		t.Error("cp_sae space has no model specific parameters")
	}
}
