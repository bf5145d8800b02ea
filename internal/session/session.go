// Package session drives a model through a corpus one window at a time and
// keeps the bookkeeping a trainer needs around the engine: the cursor, epoch
// count, running accuracy and loss, and periodic samples.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/charnet/internal/checkpoint"
	"github.com/samcharles93/charnet/internal/corpus"
	"github.com/samcharles93/charnet/internal/inference"
	"github.com/samcharles93/charnet/internal/logger"
	"github.com/samcharles93/charnet/internal/logits"
	"github.com/samcharles93/charnet/internal/model"
)

// ErrModelMismatch is returned when a corpus cannot be encoded with a
// restored model's vocabulary.
var ErrModelMismatch = errors.New("corpus does not match model vocabulary")

// lossDecay weights the previous moving average of the loss.
const lossDecay = 0.9

// Session owns a model and a corpus. All methods are safe for concurrent
// use; training steps are serialized.
type Session struct {
	mu sync.Mutex

	id      string
	created time.Time
	cfg     Config
	corpus  *corpus.Corpus
	model   model.Model
	rng     *rand.Rand
	log     logger.Logger

	step    int
	cursor  int
	epoch   int
	seen    int
	correct int
	avgLoss float64
	sample  string
}

// Report summarizes one training step.
type Report struct {
	Step           int                `json:"step"`
	Epoch          int                `json:"epoch"`
	Cursor         int                `json:"cursor"`
	Loss           float64            `json:"loss"`
	AvgLoss        float64            `json:"avg_loss"`
	Accuracy       float64            `json:"accuracy"`
	InputToken     string             `json:"input_token"`
	TargetToken    string             `json:"target_token"`
	PredictedToken string             `json:"predicted_token"`
	Predictions    []model.Prediction `json:"predictions"`
	Sample         string             `json:"sample,omitempty"`
	Duration       time.Duration      `json:"duration_ns"`
}

// Summary is a point-in-time view of a session.
type Summary struct {
	ID         string     `json:"id"`
	Created    time.Time  `json:"created"`
	Arch       model.Arch `json:"arch"`
	HiddenSize int        `json:"hidden_size"`
	Vocab      []string   `json:"vocab"`
	CorpusLen  int        `json:"corpus_length"`
	Step       int        `json:"step"`
	Epoch      int        `json:"epoch"`
	Cursor     int        `json:"cursor"`
	AvgLoss    float64    `json:"avg_loss"`
	Accuracy   float64    `json:"accuracy"`
	LastSample string     `json:"last_sample,omitempty"`
}

// New builds a corpus from text and a freshly initialised model.
func New(text string, cfg Config, log logger.Logger) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c, err := corpus.New(text, cfg.Corpus)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	m, err := model.New(cfg.Arch, c.Vocab, cfg.HiddenSize, rand.NewPCG(cfg.Seed, cfg.Seed+1))
	if err != nil {
		return nil, err
	}
	return newSession(m, c, cfg, log), nil
}

// Resume continues training m on text. The text must only use tokens from
// m's vocabulary; the architecture and hidden size of cfg are replaced by
// the model's.
func Resume(m model.Model, text string, cfg Config, log logger.Logger) (*Session, error) {
	cfg.Arch, cfg.HiddenSize = m.Arch(), m.HiddenSize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	text = corpus.Normalize(text, cfg.Corpus)
	ids, err := m.Vocab().Encode(corpus.Tokenize(text))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelMismatch, err)
	}
	if len(ids) < 2 {
		return nil, fmt.Errorf("%w: corpus needs at least two characters, got %d", ErrInvalidConfig, len(ids))
	}
	c := &corpus.Corpus{Text: text, Vocab: m.Vocab(), IDs: ids}
	return newSession(m, c, cfg, log), nil
}

func newSession(m model.Model, c *corpus.Corpus, cfg Config, log logger.Logger) *Session {
	if log == nil {
		log = logger.Discard()
	}
	id := uuid.NewString()
	return &Session{
		id:      id,
		created: time.Now().UTC(),
		cfg:     cfg,
		corpus:  c,
		model:   m,
		rng:     rand.New(rand.NewPCG(cfg.Seed^0xda3e39cb94b95bdb, cfg.Seed)),
		log:     log.With("session", id, "arch", m.Arch().String()),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Created returns the creation time in UTC.
func (s *Session) Created() time.Time { return s.created }

// Config returns the settings the session was created with.
func (s *Session) Config() Config { return s.cfg }

// Model returns the current model. The value is immutable and remains valid
// after further training.
func (s *Session) Model() model.Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// Step trains on the next window of the corpus.
func (s *Session) Step(ctx context.Context) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stepLocked(ctx)
}

// Run performs steps training steps and returns the report of the last one.
// It stops early when ctx is cancelled.
func (s *Session) Run(ctx context.Context, steps int) (*Report, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("steps must be positive, got %d", steps)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var last *Report
	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return last, err
		}
		r, err := s.stepLocked(ctx)
		if err != nil {
			return last, err
		}
		last = r
	}
	return last, nil
}

func (s *Session) stepLocked(ctx context.Context) (*Report, error) {
	start := time.Now()
	res, err := model.Train(s.model, s.corpus.IDs, s.cursor, s.cfg.Window, model.TrainOptions{
		LearningRate: s.cfg.LearningRate,
		DropoutRate:  s.cfg.Dropout,
		Rand:         s.rng,
	})
	if err != nil {
		return nil, fmt.Errorf("step %d: %w", s.step+1, err)
	}

	s.model = res.Model
	s.step++
	s.seen += len(res.Predictions)
	s.correct += res.Correct()
	if s.step == 1 {
		s.avgLoss = res.Loss
	} else {
		s.avgLoss = lossDecay*s.avgLoss + (1-lossDecay)*res.Loss
	}

	r := &Report{
		Step:           s.step,
		Epoch:          s.epoch,
		Cursor:         s.cursor,
		Loss:           res.Loss,
		AvgLoss:        s.avgLoss,
		Accuracy:       s.accuracy(),
		InputToken:     res.InputToken,
		TargetToken:    res.TargetToken,
		PredictedToken: res.PredictedToken,
		Predictions:    res.Predictions,
	}

	s.cursor += s.cfg.Window
	if s.cursor >= s.corpus.Pairs() {
		s.wrap()
	}

	if s.cfg.SampleEvery > 0 && s.step%s.cfg.SampleEvery == 0 {
		g, err := s.generateLocked(ctx, GenerateRequest{
			Seed:        r.TargetToken,
			MaxLength:   s.cfg.SampleLength,
			Temperature: s.cfg.Temperature,
		})
		// The step is committed at this point; a failed sample is dropped.
		if err != nil {
			s.log.Warn("sample failed", "step", s.step, "error", err)
		} else {
			r.Sample = g.Text
			s.sample = g.Text
			s.log.Debug("sample", "step", s.step, "text", g.Text)
		}
	}
	r.Duration = time.Since(start)

	if s.cfg.LogEvery > 0 && s.step%s.cfg.LogEvery == 0 {
		s.log.Info("train",
			"step", r.Step,
			"epoch", r.Epoch,
			"cursor", r.Cursor,
			"loss", r.Loss,
			"avg_loss", r.AvgLoss,
			"accuracy", r.Accuracy,
		)
	}
	return r, nil
}

// wrap starts a new pass over the corpus with a cleared recurrent state.
func (s *Session) wrap() {
	s.cursor = 0
	s.epoch++
	s.model = model.ResetState(s.model)
	s.log.Debug("epoch", "epoch", s.epoch, "step", s.step)
}

func (s *Session) accuracy() float64 {
	if s.seen == 0 {
		return 0
	}
	return float64(s.correct) / float64(s.seen)
}

// GenerateRequest describes one sampling run.
type GenerateRequest struct {
	Seed      string
	MaxLength int
	// Temperature of zero or less samples greedily.
	Temperature float64
	Stream      inference.StreamFunc
}

// Generate samples from the current model, continuing from its carried
// state. Training is blocked while it runs.
func (s *Session) Generate(ctx context.Context, req GenerateRequest) (*inference.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generateLocked(ctx, req)
}

func (s *Session) generateLocked(ctx context.Context, req GenerateRequest) (*inference.Result, error) {
	sampler := logits.NewSampler(logits.SamplerConfig{Temperature: req.Temperature, Rand: s.rng})
	return inference.Generate(ctx, s.model, req.Seed, inference.GenerateOptions{
		MaxLength: req.MaxLength,
		Sampler:   sampler,
		Stream:    req.Stream,
	})
}

// Summary returns the current counters.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		ID:         s.id,
		Created:    s.created,
		Arch:       s.model.Arch(),
		HiddenSize: s.model.HiddenSize(),
		Vocab:      s.corpus.Vocab.Tokens,
		CorpusLen:  s.corpus.Len(),
		Step:       s.step,
		Epoch:      s.epoch,
		Cursor:     s.cursor,
		AvgLoss:    s.avgLoss,
		Accuracy:   s.accuracy(),
		LastSample: s.sample,
	}
}

// Save writes the current model to path.
func (s *Session) Save(path string) error {
	if err := checkpoint.Save(path, s.Model()); err != nil {
		return err
	}
	s.log.Info("checkpoint saved", "path", path)
	return nil
}
