package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"

	"github.com/juju/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/tsawler/go-lpne/dataset"
	"github.com/tsawler/go-lpne/model"
	"github.com/tsawler/go-lpne/training"
	"github.com/tsawler/go-lpne/tuning"
)

func runSynth(args []string) error {
	fs := flag.NewFlagSet("synth", flag.ExitOnError)
	def := dataset.DefaultSyntheticConfig()
	out := fs.String("out", "", "output dataset file (stdout when empty)")
	n := fs.Int("n", def.NSamples, "number of samples")
	freqs := fs.Int("freqs", def.NFreqs, "number of frequencies")
	rois := fs.Int("rois", def.NRois, "number of regions")
	classes := fs.Int("classes", def.NClasses, "number of classes")
	groups := fs.Int("groups", def.NGroups, "number of groups")
	noise := fs.Float64("noise", def.Noise, "noise standard deviation")
	unlabelled := fs.Float64("unlabelled", def.UnlabelledFrac, "fraction of unlabelled samples")
	seed := fs.Int64("seed", 0, "random seed")
	fs.Parse(args)

	ds, err := dataset.Synthetic(dataset.SyntheticConfig{
		NSamples:       *n,
		NFreqs:         *freqs,
		NRois:          *rois,
		NClasses:       *classes,
		NGroups:        *groups,
		Noise:          *noise,
		UnlabelledFrac: *unlabelled,
	}, rand.New(rand.NewSource(*seed)))
	if err != nil {
		return err
	}
	if *out == "" {
		return dataset.Write(ds, os.Stdout)
	}
	return dataset.Save(ds, *out)
}

func runFit(args []string) error {
	fs := flag.NewFlagSet("fit", flag.ExitOnError)
	name := fs.String("model", "fa_sae", "model name")
	data := fs.String("data", "", "training dataset file")
	out := fs.String("out", "", "model file (.json or .pb)")
	config := fs.String("config", "", "JSON file of hyper-parameters")
	rt := addRuntimeFlags(fs)
	fs.Parse(args)
	if err := requireFlags(fs, "data", "out"); err != nil {
		return err
	}

	ctx, err := rt.context()
	if err != nil {
		return err
	}
	defer ctx.Logger().Sync()
	est, err := model.New(*name, ctx)
	if err != nil {
		return err
	}
	params, err := readParams(*config)
	if err != nil {
		return err
	}
	if params != nil {
		if err := est.SetParams(params); err != nil {
			return err
		}
	}
	ds, err := dataset.Load(*data)
	if err != nil {
		return err
	}
	if err := est.Fit(ds); err != nil {
		return err
	}
	if err := model.Save(est, *out); err != nil {
		return err
	}
	score, err := est.Score(ds)
	if err != nil {
		return err
	}
	return writeJSON("", map[string]any{"model": est.Name(), "classes": est.Classes(), "train_score": score})
}

// loadPair restores a model and reads a dataset for the commands that apply
// fitted models.
func loadPair(fs *flag.FlagSet, rt runtimeFlags, modelFile, data string) (model.Estimator, *model.Dataset, error) {
	if err := requireFlags(fs, "model-file", "data"); err != nil {
		return nil, nil, err
	}
	ctx, err := rt.context()
	if err != nil {
		return nil, nil, err
	}
	est, err := model.Load(modelFile, ctx)
	if err != nil {
		return nil, nil, err
	}
	ds, err := dataset.Load(data)
	if err != nil {
		return nil, nil, err
	}
	return est, ds, nil
}

func runPredict(args []string) error {
	fs := flag.NewFlagSet("predict", flag.ExitOnError)
	modelFile := fs.String("model-file", "", "fitted model file")
	data := fs.String("data", "", "dataset file")
	proba := fs.Bool("proba", false, "print class probabilities instead of labels")
	rt := addRuntimeFlags(fs)
	fs.Parse(args)

	est, ds, err := loadPair(fs, rt, *modelFile, *data)
	if err != nil {
		return err
	}
	if *proba {
		probs, err := est.PredictProba(ds.Features, ds.Groups)
		if err != nil {
			return err
		}
		return writeJSON("", map[string]any{"classes": est.Classes(), "probabilities": rows(probs)})
	}
	predictions, err := est.Predict(ds.Features, ds.Groups)
	if err != nil {
		return err
	}
	return writeJSON("", predictions)
}

func runScore(args []string) error {
	fs := flag.NewFlagSet("score", flag.ExitOnError)
	modelFile := fs.String("model-file", "", "fitted model file")
	data := fs.String("data", "", "labelled dataset file")
	rt := addRuntimeFlags(fs)
	fs.Parse(args)

	est, ds, err := loadPair(fs, rt, *modelFile, *data)
	if err != nil {
		return err
	}
	score, err := est.Score(ds)
	if err != nil {
		return err
	}
	predictions, err := est.Predict(ds.Features, ds.Groups)
	if err != nil {
		return err
	}

	classes := est.Classes()
	cm := training.NewConfusionMatrix(len(classes))
	var truth, predicted []int
	for i, label := range ds.Labels {
		t, ok := classIndex(classes, label)
		p, _ := classIndex(classes, predictions[i])
		if ok {
			truth = append(truth, t)
			predicted = append(predicted, p)
		}
	}
	if err := cm.Update(truth, predicted); err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, cm.String())

	rec, err := est.Reconstruct(ds.Features, ds.Groups)
	if err != nil {
		return err
	}
	summary, err := model.ReconstructionStats(ds.Features, rec)
	if err != nil {
		return err
	}
	summary.R2 = nil

	return writeJSON("", map[string]any{
		"weighted_accuracy": score,
		"accuracy":          cm.GetMetric(training.Accuracy),
		"balanced_accuracy": cm.GetMetric(training.BalancedAccuracy),
		"macro_f1":          cm.GetMetric(training.MacroF1),
		"reconstruction":    summary,
	})
}

func classIndex(classes []int, label int) (int, bool) {
	i := sort.SearchInts(classes, label)
	return i, i < len(classes) && classes[i] == label
}

func runFactor(args []string) error {
	fs := flag.NewFlagSet("factor", flag.ExitOnError)
	modelFile := fs.String("model-file", "", "fitted model file")
	k := fs.Int("k", 0, "factor index")
	rt := addRuntimeFlags(fs)
	fs.Parse(args)
	if err := requireFlags(fs, "model-file"); err != nil {
		return err
	}

	ctx, err := rt.context()
	if err != nil {
		return err
	}
	est, err := model.Load(*modelFile, ctx)
	if err != nil {
		return err
	}
	factor, err := est.GetFactor(*k)
	if err != nil {
		return err
	}
	return writeJSON("", rows(factor))
}

func runTune(args []string) error {
	fs := flag.NewFlagSet("tune", flag.ExitOnError)
	def := tuning.DefaultConfig()
	name := fs.String("model", "fa_sae", "model name")
	data := fs.String("data", "", "dataset file")
	trials := fs.Int("trials", def.NTrials, "number of trials")
	testFrac := fs.Float64("test-frac", def.TestFrac, "held-out fraction")
	space := fs.String("space", "", "JSON file with the search space (default per model)")
	config := fs.String("config", "", "JSON file of fixed hyper-parameters")
	out := fs.String("out", "", "file for the search result (stdout when empty)")
	save := fs.String("save", "", "model file for the refitted best model")
	rt := addRuntimeFlags(fs)
	fs.Parse(args)
	if err := requireFlags(fs, "data"); err != nil {
		return err
	}

	ctx, err := rt.context()
	if err != nil {
		return err
	}
	defer ctx.Logger().Sync()
	ds, err := dataset.Load(*data)
	if err != nil {
		return err
	}

	cfg := def
	cfg.NTrials = *trials
	cfg.TestFrac = *testFrac
	cfg.Seed = *rt.seed
	cfg.Refit = *save != ""
	if cfg.Fixed, err = readParams(*config); err != nil {
		return err
	}
	if *space != "" {
		raw, err := os.ReadFile(*space)
		if err != nil {
			return errors.Trace(err)
		}
		if err := json.Unmarshal(raw, &cfg.Space); err != nil {
			return errors.Annotatef(err, "parse %s", *space)
		}
	}

	result, err := tuning.Search(*name, ds, cfg, ctx)
	if err != nil {
		return err
	}
	if result.Best != nil {
		if err := model.Save(result.Best, *save); err != nil {
			return err
		}
	}
	return writeJSON(*out, result)
}

func rows(m *mat.Dense) [][]float64 {
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}
