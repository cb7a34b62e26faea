package utils

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds training configuration.
type Config struct {
	Architecture     string     `yaml:"architecture"`
	Activation       string     `yaml:"activation"`
	OutputActivation string     `yaml:"output_activation"`
	BatchNorm        bool       `yaml:"batch_norm"`
	Loss             string     `yaml:"loss"`
	Optimizer        string     `yaml:"optimizer"`
	Epochs           int        `yaml:"epochs"`
	BatchSize        int        `yaml:"batch_size"`
	LearningRate     RateConfig `yaml:"learning_rate"`
	Seed             uint64     `yaml:"seed"`
	Workers          int        `yaml:"workers"`
	LogEvery         int        `yaml:"log_every"`
	Data             string     `yaml:"data"`
	Output           string     `yaml:"output"`
}

// RateConfig describes the learning rate schedule.
type RateConfig struct {
	Strategy  string  `yaml:"strategy"`
	Base      float64 `yaml:"base"`
	Momentum  float64 `yaml:"momentum"`
	DecayRate float64 `yaml:"decay_rate"`
	DecayStep int     `yaml:"decay_step"`
	TotalStep int     `yaml:"total_step"`
}

// Overrides captures CLI supplied values. Zero values leave the config untouched.
type Overrides struct {
	Architecture string
	Optimizer    string
	Epochs       int
	BatchSize    int
	BaseRate     float64
	Seed         uint64
	Workers      int
	LogEvery     int
	Data         string
	Output       string
}

// DefaultConfig is the XOR setup: 2-2-1 sigmoid network, cross-entropy loss,
// cosine annealing from 0.1.
func DefaultConfig() *Config {
	return &Config{
		Architecture:     "2 2 1",
		Activation:       "Sigmoid",
		OutputActivation: "Sigmoid",
		Loss:             "CrossEntropy",
		Optimizer:        "None",
		Epochs:           10000,
		BatchSize:        4,
		LearningRate: RateConfig{
			Strategy:  "CosineAnnealing",
			Base:      0.1,
			Momentum:  0.9,
			DecayRate: 0.7,
			DecayStep: 1000,
			TotalStep: 10000,
		},
		Seed:     42,
		LogEvery: 1000,
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig and validates it.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg := DefaultConfig()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates c using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.Architecture != "" {
		c.Architecture = o.Architecture
	}
	if o.Optimizer != "" {
		c.Optimizer = o.Optimizer
	}
	if o.Epochs > 0 {
		c.Epochs = o.Epochs
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.BaseRate > 0 {
		c.LearningRate.Base = o.BaseRate
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.Workers > 0 {
		c.Workers = o.Workers
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
	if o.Data != "" {
		c.Data = o.Data
	}
	if o.Output != "" {
		c.Output = o.Output
	}
}

// Validate verifies the config is runnable. Layer, loss and strategy names
// are checked when the network is built.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	arch, err := ParseArchitecture(c.Architecture)
	if err != nil {
		return err
	}
	if len(arch) < 2 {
		return fmt.Errorf("architecture must have at least 2 layers (input and output), got %q", c.Architecture)
	}
	for _, size := range arch {
		if size <= 0 {
			return fmt.Errorf("layer sizes must be > 0 (got %v)", arch)
		}
	}
	if c.Epochs < 0 {
		return fmt.Errorf("epochs must be >= 0 (got %d)", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.LearningRate.DecayStep <= 0 || c.LearningRate.TotalStep <= 0 {
		return fmt.Errorf("learning_rate decay_step and total_step must be > 0 (got %d, %d)",
			c.LearningRate.DecayStep, c.LearningRate.TotalStep)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be >= 0 (got %d)", c.Workers)
	}
	if c.LogEvery <= 0 {
		return fmt.Errorf("log_every must be > 0 (got %d)", c.LogEvery)
	}
	return nil
}

// ParseArchitecture parses a whitespace separated list of layer sizes.
func ParseArchitecture(archStr string) ([]int, error) {
	archParts := strings.Fields(archStr)
	arch := make([]int, len(archParts))
	for i, s := range archParts {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("architecture: %w", err)
		}
		arch[i] = n
	}
	return arch, nil
}
