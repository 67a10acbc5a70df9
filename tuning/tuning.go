// Package tuning searches model hyper-parameters with a TPE sampler,
// scoring every trial by weighted accuracy on a held-out split.
package tuning

import (
	"github.com/c-bata/goptuna"
	"github.com/c-bata/goptuna/tpe"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/tsawler/go-lpne/dataset"
	"github.com/tsawler/go-lpne/engine"
	"github.com/tsawler/go-lpne/model"
)

// Kind selects how a parameter is suggested.
type Kind string

const (
	KindFloat       Kind = "float"
	KindLogFloat    Kind = "log_float"
	KindInt         Kind = "int"
	KindCategorical Kind = "categorical"
)

// Param is one dimension of the search space.
type Param struct {
	Name    string   `json:"name"`
	Kind    Kind     `json:"kind"`
	Low     float64  `json:"low,omitempty"`
	High    float64  `json:"high,omitempty"`
	Choices []string `json:"choices,omitempty"`
}

func (p Param) validate() error {
	switch p.Kind {
	case KindFloat, KindInt:
		if p.Low > p.High {
			return errors.NotValidf("range [%v, %v] of %s", p.Low, p.High, p.Name)
		}
	case KindLogFloat:
		if p.Low <= 0 || p.Low > p.High {
			return errors.NotValidf("log range [%v, %v] of %s", p.Low, p.High, p.Name)
		}
	case KindCategorical:
		if len(p.Choices) == 0 {
			return errors.NotValidf("no choices for %s", p.Name)
		}
	default:
		return errors.NotSupportedf("parameter kind %q", p.Kind)
	}
	return nil
}

func (p Param) suggest(trial goptuna.Trial) any {
	switch p.Kind {
	case KindFloat:
		return lo.Must(trial.SuggestFloat(p.Name, p.Low, p.High))
	case KindLogFloat:
		return lo.Must(trial.SuggestLogFloat(p.Name, p.Low, p.High))
	case KindInt:
		return lo.Must(trial.SuggestInt(p.Name, int(p.Low), int(p.High)))
	default:
		return lo.Must(trial.SuggestCategorical(p.Name, p.Choices))
	}
}

// DefaultSpace returns the search space used for a registered model.
func DefaultSpace(name string) []Param {
	space := []Param{
		{Name: "lr", Kind: KindLogFloat, Low: 1e-4, High: 1e-2},
		{Name: "reg_strength", Kind: KindLogFloat, Low: 0.1, High: 10},
		{Name: "weight_reg", Kind: KindLogFloat, Low: 1e-6, High: 1e-2},
	}
	switch name {
	case "fa_sae":
		space = append(space, Param{Name: "encoder_type", Kind: KindCategorical, Choices: []string{"pinv", "linear"}})
	case "cp_sae":
		space = append(space,
			Param{Name: "factor_reg", Kind: KindLogFloat, Low: 1e-3, High: 1},
			Param{Name: "group_kl_factor", Kind: KindLogFloat, Low: 1e-3, High: 1},
		)
	}
	return space
}

// Config controls a search.
type Config struct {
	NTrials       int            `json:"n_trials"`
	TestFrac      float64        `json:"test_frac"`
	Seed          int64          `json:"seed"`
	StartupTrials int            `json:"startup_trials"` // random trials before TPE kicks in
	Space         []Param        `json:"space"`
	Fixed         map[string]any `json:"fixed"` // applied to every trial
	Refit         bool           `json:"refit"` // refit the best parameters on all samples
}

func DefaultConfig() Config {
	return Config{
		NTrials:       20,
		TestFrac:      0.2,
		Seed:          0,
		StartupTrials: 5,
		Refit:         true,
	}
}

// Trial records one evaluated parameter set.
type Trial struct {
	Number int            `json:"number"`
	Params map[string]any `json:"params"`
	Score  float64        `json:"score"`
}

// Result is the outcome of a search.
type Result struct {
	BestScore  float64        `json:"best_score"`
	BestParams map[string]any `json:"best_params"`
	Trials     []Trial        `json:"trials"`
	// Best is the estimator refitted on every sample, or nil without Refit.
	Best model.Estimator `json:"-"`
}

// Search tunes the registered model name on ds. Fixed parameters are applied
// to every trial, and the suggested ones override them.
func Search(name string, ds *model.Dataset, cfg Config, ctx *engine.Context) (*Result, error) {
	if cfg.NTrials < 1 {
		return nil, errors.NotValidf("n_trials %d", cfg.NTrials)
	}
	if len(cfg.Space) == 0 {
		cfg.Space = DefaultSpace(name)
	}
	for _, p := range cfg.Space {
		if err := p.validate(); err != nil {
			return nil, errors.Trace(err)
		}
	}
	if ctx == nil {
		ctx = engine.Default()
	}
	if _, err := newEstimator(name, cfg.Fixed, ctx); err != nil {
		return nil, errors.Trace(err)
	}
	train, valid, err := dataset.TrainTestSplit(ds, cfg.TestFrac, ctx.Rng())
	if err != nil {
		return nil, errors.Trace(err)
	}

	logger := ctx.Logger()
	sampler := tpe.NewSampler(
		tpe.SamplerOptionSeed(cfg.Seed),
		tpe.SamplerOptionNumberOfStartupTrials(cfg.StartupTrials),
	)
	study, err := goptuna.CreateStudy("lpne-"+name,
		goptuna.StudyOptionDirection(goptuna.StudyDirectionMaximize),
		goptuna.StudyOptionSampler(sampler),
		goptuna.StudyOptionLogger(studyLogger{logger.Sugar()}),
	)
	if err != nil {
		return nil, errors.Annotate(err, "create study")
	}

	result := &Result{}
	objective := func(trial goptuna.Trial) (float64, error) {
		suggested := make(map[string]any, len(cfg.Space))
		for _, p := range cfg.Space {
			suggested[p.Name] = p.suggest(trial)
		}
		params := lo.Assign(cfg.Fixed, suggested)
		est, err := newEstimator(name, params, ctx)
		if err != nil {
			return 0, err
		}
		if err := est.Fit(train); err != nil {
			return 0, err
		}
		score, err := est.Score(valid)
		if err != nil {
			return 0, err
		}
		number := len(result.Trials)
		result.Trials = append(result.Trials, Trial{Number: number, Params: params, Score: score})
		logger.Info("trial", zap.Int("number", number), zap.Any("params", suggested), zap.Float64("score", score))
		return score, nil
	}
	if err := study.Optimize(objective, cfg.NTrials); err != nil {
		return nil, errors.Annotate(err, "optimize")
	}

	if result.BestScore, err = study.GetBestValue(); err != nil {
		return nil, errors.Annotate(err, "no successful trial")
	}
	best, err := study.GetBestParams()
	if err != nil {
		return nil, errors.Trace(err)
	}
	result.BestParams = lo.Assign(cfg.Fixed, best)
	logger.Info("search finished", zap.Float64("best_score", result.BestScore), zap.Any("best_params", result.BestParams))

	if cfg.Refit {
		if result.Best, err = newEstimator(name, result.BestParams, ctx); err != nil {
			return nil, errors.Trace(err)
		}
		if err := result.Best.Fit(ds); err != nil {
			return nil, errors.Annotate(err, "refit")
		}
	}
	return result, nil
}

func newEstimator(name string, params map[string]any, ctx *engine.Context) (model.Estimator, error) {
	est, err := model.New(name, ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(params) > 0 {
		if err := est.SetParams(params); err != nil {
			return nil, errors.Trace(err)
		}
	}
	return est, nil
}

// studyLogger routes goptuna messages to zap.
type studyLogger struct {
	s *zap.SugaredLogger
}

func (l studyLogger) Debug(msg string, fields ...interface{}) { l.s.Debugw(msg, fields...) }
func (l studyLogger) Info(msg string, fields ...interface{})  { l.s.Debugw(msg, fields...) }
func (l studyLogger) Warn(msg string, fields ...interface{})  { l.s.Warnw(msg, fields...) }
func (l studyLogger) Error(msg string, fields ...interface{}) { l.s.Errorw(msg, fields...) }
