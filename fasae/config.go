package fasae

import (
	"github.com/juju/errors"

	"github.com/tsawler/go-lpne/gp"
	"github.com/tsawler/go-lpne/training"
)

// Encoder types.
const (
	EncoderLinear = "linear"
	EncoderLstsq  = "lstsq"
	EncoderPinv   = "pinv"
	// EncoderSolve is reserved for an exact square solve and is rejected.
	EncoderSolve = "solve"
)

// Config holds the hyper-parameters of an FA-SAE.
type Config struct {
	RegStrength float64   `json:"reg_strength"` // weight of the reconstruction loss
	ZDim        int       `json:"z_dim"`
	Nonnegative bool      `json:"nonnegative"`
	Variational bool      `json:"variational"`
	KLFactor    float64   `json:"kl_factor"`
	EncoderType string    `json:"encoder_type"`
	GP          gp.Params `json:"gp_params"`

	training.TrainingConfig
}

// DefaultConfig returns the default FA-SAE configuration
func DefaultConfig() Config {
	return Config{
		RegStrength:    1.0,
		ZDim:           32,
		Nonnegative:    true,
		Variational:    false,
		KLFactor:       1.0,
		EncoderType:    EncoderPinv,
		GP:             gp.DefaultParams(),
		TrainingConfig: training.DefaultTrainingConfig(),
	}
}

// Validate checks ranges and option combinations.
func (c Config) Validate() error {
	if c.RegStrength < 0 {
		return errors.NotValidf("reg_strength %v", c.RegStrength)
	}
	if c.ZDim < 1 {
		return errors.NotValidf("z_dim %d", c.ZDim)
	}
	if c.KLFactor < 0 {
		return errors.NotValidf("kl_factor %v", c.KLFactor)
	}
	switch c.EncoderType {
	case EncoderLinear:
	case EncoderLstsq, EncoderPinv:
		if c.Variational || !c.Nonnegative {
			return errors.NotSupportedf("%s encoder with variational=%v, nonnegative=%v", c.EncoderType, c.Variational, c.Nonnegative)
		}
	case EncoderSolve:
		return errors.NotSupportedf("%s encoder", c.EncoderType)
	default:
		return errors.NotValidf("encoder_type %q", c.EncoderType)
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
	params["nonnegative"] = c.Nonnegative
	params["variational"] = c.Variational
	params["kl_factor"] = c.KLFactor
	params["encoder_type"] = c.EncoderType
	params["gp_mean"] = c.GP.Mean
	params["gp_ls"] = c.GP.LS
	params["gp_obs_noise_var"] = c.GP.ObsNoiseVar
	params["gp_reg"] = c.GP.Reg
	params["gp_mode"] = c.GP.Mode
	return params
}

// WithParams returns a copy of c with the given parameters applied. Unknown
// keys are rejected. The result is not validated.
func (c Config) WithParams(params map[string]any) (Config, error) {
	for key, v := range params {
		var err error
		switch key {
		case "reg_strength":
			c.RegStrength, err = training.ParamFloat(key, v)
		case "z_dim":
			c.ZDim, err = training.ParamInt(key, v)
		case "nonnegative":
			c.Nonnegative, err = training.ParamBool(key, v)
		case "variational":
			c.Variational, err = training.ParamBool(key, v)
		case "kl_factor":
			c.KLFactor, err = training.ParamFloat(key, v)
		case "encoder_type":
			c.EncoderType, err = training.ParamString(key, v)
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
