package session

import (
	"errors"
	"fmt"

	"github.com/samcharles93/charnet/internal/corpus"
	"github.com/samcharles93/charnet/internal/model"
)

// ErrInvalidConfig marks settings or corpora a session cannot be built from.
var ErrInvalidConfig = errors.New("invalid session config")

// Config describes a training session.
type Config struct {
	Arch         model.Arch `json:"arch"`
	HiddenSize   int        `json:"hidden_size"`
	LearningRate float64    `json:"learning_rate"`
	Dropout      float64    `json:"dropout"`
	// Window is the BPTT length for recurrent models and the batch size for
	// FFNN.
	Window int    `json:"window"`
	Seed   uint64 `json:"seed"`
	// SampleEvery generates a sample every N steps. Zero disables sampling.
	SampleEvery  int     `json:"sample_every"`
	SampleLength int     `json:"sample_length"`
	Temperature  float64 `json:"temperature"`
	// LogEvery emits a progress line every N steps. Zero disables it.
	LogEvery int            `json:"log_every"`
	Corpus   corpus.Options `json:"-"`
}

// DefaultConfig returns the settings used when a field is left unset.
func DefaultConfig() Config {
	return Config{
		Arch:         model.ArchLSTM,
		HiddenSize:   32,
		LearningRate: 0.05,
		Window:       16,
		SampleEvery:  100,
		SampleLength: 20,
		Temperature:  0.8,
		LogEvery:     100,
		Corpus:       corpus.Options{CollapseSpace: true},
	}
}

func (c Config) validate() error {
	if err := c.check(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

func (c Config) check() error {
	if _, err := model.ParseArch(string(c.Arch)); err != nil {
		return err
	}
	switch {
	case c.HiddenSize <= 0:
		return fmt.Errorf("hidden size must be positive, got %d", c.HiddenSize)
	case c.Window <= 0:
		return fmt.Errorf("window must be positive, got %d", c.Window)
	case c.LearningRate < 0:
		return fmt.Errorf("learning rate must not be negative, got %g", c.LearningRate)
	case c.Dropout < 0 || c.Dropout >= 1:
		return fmt.Errorf("dropout must be in [0,1), got %g", c.Dropout)
	case c.SampleEvery < 0 || c.LogEvery < 0:
		return fmt.Errorf("sample and log intervals must not be negative")
	}
	return nil
}
