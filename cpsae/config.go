package cpsae

import (
	"github.com/juju/errors"

	"github.com/tsawler/go-lpne/gp"
	"github.com/tsawler/go-lpne/training"
)

// Config holds the hyper-parameters of a CP-SAE.
type Config struct {
	RegStrength   float64 `json:"reg_strength"`
	ZDim          int     `json:"z_dim"`
	GroupEmbedDim int     `json:"group_embed_dim"`
	DataKLFactor  float64 `json:"data_kl_factor"`
	GroupKLFactor float64 `json:"group_kl_factor"`
	FactorReg     float64 `json:"factor_reg"` // pull of group factors toward their mean

	// GPEnabled adds the smoothness prior on the mean frequency factors.
	GPEnabled bool      `json:"gp_enabled"`
	GP        gp.Params `json:"gp_params"`

	training.TrainingConfig
}

func DefaultConfig() Config {
	return Config{
		RegStrength:    1.0,
		ZDim:           32,
		GroupEmbedDim:  2,
		DataKLFactor:   1.0,
		GroupKLFactor:  1e-2,
		FactorReg:      1e-2,
		GP:             gp.DefaultParams(),
		TrainingConfig: training.DefaultTrainingConfig(),
	}
}

func (c Config) Validate() error {
	switch {
	case c.RegStrength < 0:
		return errors.NotValidf("reg_strength %v", c.RegStrength)
	case c.ZDim < 1:
		return errors.NotValidf("z_dim %d", c.ZDim)
	case c.GroupEmbedDim < 1:
		return errors.NotValidf("group_embed_dim %d", c.GroupEmbedDim)
	case c.DataKLFactor < 0:
		return errors.NotValidf("data_kl_factor %v", c.DataKLFactor)
	case c.GroupKLFactor < 0:
		return errors.NotValidf("group_kl_factor %v", c.GroupKLFactor)
	case c.FactorReg < 0:
		return errors.NotValidf("factor_reg %v", c.FactorReg)
	}
	if err := c.GP.Validate(); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(c.TrainingConfig.Validate())
}

// Params returns the hyper-parameters as a flat map.
func (c Config) Params() map[string]any {
	params := c.TrainingConfig.Params()
	params["reg_strength"] = c.RegStrength
	params["z_dim"] = c.ZDim
	params["group_embed_dim"] = c.GroupEmbedDim
	params["data_kl_factor"] = c.DataKLFactor
	params["group_kl_factor"] = c.GroupKLFactor
	params["factor_reg"] = c.FactorReg
	params["gp_enabled"] = c.GPEnabled
	params["gp_mean"] = c.GP.Mean
	params["gp_ls"] = c.GP.LS
	params["gp_obs_noise_var"] = c.GP.ObsNoiseVar
	params["gp_reg"] = c.GP.Reg
	params["gp_mode"] = c.GP.Mode
	return params
}

// WithParams returns a copy of c with params applied. Unknown keys are
// rejected; the result is not validated.
func (c Config) WithParams(params map[string]any) (Config, error) {
	for key, v := range params {
		var err error
		switch key {
		case "reg_strength":
			c.RegStrength, err = training.ParamFloat(key, v)
		case "z_dim":
			c.ZDim, err = training.ParamInt(key, v)
		case "group_embed_dim":
			c.GroupEmbedDim, err = training.ParamInt(key, v)
		case "data_kl_factor":
			c.DataKLFactor, err = training.ParamFloat(key, v)
		case "group_kl_factor":
			c.GroupKLFactor, err = training.ParamFloat(key, v)
		case "factor_reg":
			c.FactorReg, err = training.ParamFloat(key, v)
		case "gp_enabled":
			c.GPEnabled, err = training.ParamBool(key, v)
		case "gp_mean":
			c.GP.Mean, err = training.ParamFloat(key, v)
		case "gp_ls":
			c.GP.LS, err = training.ParamFloat(key, v)
		case "gp_obs_noise_var":
			c.GP.ObsNoiseVar, err = training.ParamFloat(key, v)
		case "gp_reg":
			c.GP.Reg, err = training.ParamFloat(key, v)
		case "gp_mode":
			c.GP.Mode, err = training.ParamString(key, v)
		default:
			var known bool
			known, err = c.TrainingConfig.SetParam(key, v)
			if err == nil && !known {
				err = errors.NotValidf("parameter %q", key)
			}
		}
		if err != nil {
			return c, err
		}
	}
	return c, nil
}
