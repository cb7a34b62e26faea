package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseArchitecture(t *testing.T) {
	arch, err := ParseArchitecture(" 4  8 3 ")
	require.NoError(t, err)
	assert.Equal(t, []int{4, 8, 3}, arch)

	_, err = ParseArchitecture("4 x 3")
	assert.Error(t, err)
}

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.yaml")
	doc := `
architecture: "3 5 2"
activation: ReLU
output_activation: Softmax
batch_norm: true
optimizer: SGD
epochs: 50
batch_size: 8
learning_rate:
  strategy: StepDecay
  base: 0.05
seed: 7
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "3 5 2", cfg.Architecture)
	assert.Equal(t, "ReLU", cfg.Activation)
	assert.True(t, cfg.BatchNorm)
	assert.Equal(t, "SGD", cfg.Optimizer)
	assert.Equal(t, 8, cfg.BatchSize)
	assert.Equal(t, "StepDecay", cfg.LearningRate.Strategy)
	assert.Equal(t, 0.05, cfg.LearningRate.Base)
	// unset keys keep their defaults
	assert.Equal(t, "CrossEntropy", cfg.Loss)
	assert.Equal(t, 0.9, cfg.LearningRate.Momentum)
	assert.Equal(t, 10000, cfg.LearningRate.TotalStep)
	assert.Equal(t, uint64(7), cfg.Seed)
}

func TestLoadConfigRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train.yaml")
	require.NoError(t, os.WriteFile(path, []byte("epochz: 3\n"), 0644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"single layer":   func(c *Config) { c.Architecture = "3" },
		"zero size":      func(c *Config) { c.Architecture = "3 0 1" },
		"bad batch":      func(c *Config) { c.BatchSize = 0 },
		"negative epoch": func(c *Config) { c.Epochs = -1 },
		"zero decay":     func(c *Config) { c.LearningRate.DecayStep = 0 },
		"zero log every": func(c *Config) { c.LogEvery = 0 },
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(cfg)
		assert.Error(t, cfg.Validate(), name)
	}

	cfg := DefaultConfig()
	cfg.LogEvery = -5
	require.Error(t, cfg.Validate())
	assert.Equal(t, -5, cfg.LogEvery)

	var nilCfg *Config
	assert.Error(t, nilCfg.Validate())
}

func TestApplyOverrides(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ApplyOverrides(Overrides{Epochs: 12, BaseRate: 0.3, Output: "model.json"})
	assert.Equal(t, 12, cfg.Epochs)
	assert.Equal(t, 0.3, cfg.LearningRate.Base)
	assert.Equal(t, "model.json", cfg.Output)
	assert.Equal(t, "2 2 1", cfg.Architecture)
	assert.Equal(t, 4, cfg.BatchSize)
}
