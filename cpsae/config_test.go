package cpsae

import (
	"reflect"
	"testing"

	"github.com/juju/errors"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr errors.ConstError
	}{
		{"default", func(c *Config) {}, ""},
		{"gp enabled", func(c *Config) { c.GPEnabled = true }, ""},
		{"negative reg", func(c *Config) { c.RegStrength = -1 }, errors.NotValid},
		{"zero z_dim", func(c *Config) { c.ZDim = 0 }, errors.NotValid},
		{"zero embedding", func(c *Config) { c.GroupEmbedDim = 0 }, errors.NotValid},
		{"negative data kl", func(c *Config) { c.DataKLFactor = -1 }, errors.NotValid},
		{"negative group kl", func(c *Config) { c.GroupKLFactor = -1 }, errors.NotValid},
		{"negative factor reg", func(c *Config) { c.FactorReg = -1 }, errors.NotValid},
		{"gp mode", func(c *Config) { c.GP.Mode = "rbf" }, errors.NotSupported},
		{"learning rate", func(c *Config) { c.LR = 0 }, errors.NotValid},
		{"schedule", func(c *Config) { c.Schedule = "warmup" }, errors.NotSupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.modify(&c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestConfigParamsRoundTrip(t *testing.T) {
	c := DefaultConfig()
	c.ZDim = 6
	c.GroupEmbedDim = 3
	c.GPEnabled = true
	c.FactorReg = 0.5
	c.WeightDecay = 1e-4
	c.Schedule = "cosine"

	got, err := DefaultConfig().WithParams(c.Params())
	if err != nil {
		t.Fatalf("WithParams: %v", err)
	}
	if !reflect.DeepEqual(got, c) {
		t.Errorf("round trip:\n got %+v\nwant %+v", got, c)
	}

	if _, err := DefaultConfig().WithParams(map[string]any{"encoder_type": "pinv"}); !errors.Is(err, errors.NotValid) {
		t.Errorf("FA-SAE parameter: expected NotValid, got %v", err)
	}
	if _, err := DefaultConfig().WithParams(map[string]any{"gp_enabled": "yes"}); !errors.Is(err, errors.NotValid) {
		t.Errorf("string bool: expected NotValid, got %v", err)
	}
}
