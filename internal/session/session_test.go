package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/samcharles93/charnet/internal/checkpoint"
	"github.com/samcharles93/charnet/internal/logger"
	"github.com/samcharles93/charnet/internal/model"
	"github.com/samcharles93/charnet/internal/tensor"
)

func testConfig(arch model.Arch) Config {
	cfg := DefaultConfig()
	cfg.Arch = arch
	cfg.HiddenSize = 4
	cfg.Window = 2
	cfg.Seed = 7
	cfg.SampleEvery = 0
	cfg.LogEvery = 0
	return cfg
}

func newTestSession(t *testing.T, text string, cfg Config) *Session {
	t.Helper()
	s, err := New(text, cfg, logger.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestCursorAndEpochWrap(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, "abcabc", testConfig(model.ArchRNN))
	ctx := context.Background()

	wantCursor := []int{0, 2, 4, 0}
	wantPreds := []int{2, 2, 1, 2}
	for i := range wantCursor {
		r, err := s.Step(ctx)
		if err != nil {
			t.Fatalf("step %d: %v", i+1, err)
		}
		if r.Cursor != wantCursor[i] || len(r.Predictions) != wantPreds[i] {
			t.Fatalf("step %d: cursor %d with %d predictions, want %d with %d",
				i+1, r.Cursor, len(r.Predictions), wantCursor[i], wantPreds[i])
		}
		if i == 2 {
			sum := s.Summary()
			if sum.Epoch != 1 || sum.Cursor != 0 {
				t.Fatalf("expected a wrap after the last window, got epoch %d cursor %d", sum.Epoch, sum.Cursor)
			}
			h := s.Model().State().H
			if !tensor.Equal(h, tensor.New(1, 4), 0) {
				t.Fatalf("recurrent state not reset on wrap: %v", h.Data)
			}
		}
	}
	sum := s.Summary()
	if sum.Step != 4 || sum.CorpusLen != 6 || len(sum.Vocab) != 3 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if sum.Accuracy < 0 || sum.Accuracy > 1 {
		t.Fatalf("accuracy %v out of range", sum.Accuracy)
	}
}

func TestRunReducesLoss(t *testing.T) {
	t.Parallel()
	for _, arch := range model.Archs {
		cfg := testConfig(arch)
		cfg.HiddenSize = 12
		cfg.Window = 6
		cfg.LearningRate = 0.1
		if arch == model.ArchFFNN {
			// FFNN averages its gradients over the batch.
			cfg.LearningRate = 0.5
		}
		s := newTestSession(t, strings.Repeat("abcd ", 12), cfg)

		first, err := s.Step(context.Background())
		if err != nil {
			t.Fatalf("%s: %v", arch, err)
		}
		last, err := s.Run(context.Background(), 300)
		if err != nil {
			t.Fatalf("%s: %v", arch, err)
		}
		if last.AvgLoss >= first.Loss {
			t.Fatalf("%s: average loss %v did not fall below the initial %v", arch, last.AvgLoss, first.Loss)
		}
		if last.Step != 301 {
			t.Fatalf("%s: step %d, want 301", arch, last.Step)
		}
	}
}

func TestPeriodicSample(t *testing.T) {
	t.Parallel()
	cfg := testConfig(model.ArchGRU)
	cfg.SampleEvery = 2
	cfg.SampleLength = 5
	s := newTestSession(t, "abcabcabc", cfg)

	r, err := s.Step(context.Background())
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if r.Sample != "" {
		t.Fatalf("unexpected sample on step 1: %q", r.Sample)
	}
	r, err = s.Step(context.Background())
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if !strings.HasPrefix(r.Sample, r.TargetToken) || len(r.Sample) > 6 {
		t.Fatalf("sample %q should start with %q", r.Sample, r.TargetToken)
	}
	if s.Summary().LastSample != r.Sample {
		t.Fatalf("summary does not carry the last sample")
	}
}

func TestGenerate(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, "ab ab ab", testConfig(model.ArchLSTM))
	res, err := s.Generate(context.Background(), GenerateRequest{Seed: "a", MaxLength: 4})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(res.Text, "a") {
		t.Fatalf("unexpected text %q", res.Text)
	}
	res, err = s.Generate(context.Background(), GenerateRequest{Seed: "z", MaxLength: 4, Temperature: 1})
	if err != nil || res.Text != "" {
		t.Fatalf("expected empty text for unknown seed, got %q, %v", res.Text, err)
	}
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, "abcabc", testConfig(model.ArchFFNN))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Run(ctx, 10); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := s.Run(context.Background(), 0); err == nil {
		t.Fatalf("expected an error for zero steps")
	}
}

func TestConcurrentSteps(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, "the cat sat on the mat", testConfig(model.ArchLSTM))
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 10 {
				if _, err := s.Step(context.Background()); err != nil {
					t.Errorf("Step: %v", err)
					return
				}
				_ = s.Summary()
			}
		}()
	}
	wg.Wait()
	if got := s.Summary().Step; got != 40 {
		t.Fatalf("expected 40 steps, got %d", got)
	}
}

func TestProgressLogging(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	cfg := testConfig(model.ArchRNN)
	cfg.LogEvery = 2
	s, err := New("abcabc", cfg, logger.JSON(&buf, slog.LevelInfo))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := s.Run(context.Background(), 4); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n := strings.Count(buf.String(), `"msg":"train"`); n != 2 {
		t.Fatalf("expected 2 progress lines, got %d: %s", n, buf.String())
	}
	if !strings.Contains(buf.String(), `"session":"`+s.ID()+`"`) {
		t.Fatalf("progress lines should carry the session id: %s", buf.String())
	}
}

func TestInvalidConfig(t *testing.T) {
	t.Parallel()
	cases := map[string]func(*Config){
		"arch":    func(c *Config) { c.Arch = "cnn" },
		"hidden":  func(c *Config) { c.HiddenSize = 0 },
		"window":  func(c *Config) { c.Window = -1 },
		"lr":      func(c *Config) { c.LearningRate = -0.1 },
		"dropout": func(c *Config) { c.Dropout = 1 },
	}
	for name, mutate := range cases {
		cfg := testConfig(model.ArchRNN)
		mutate(&cfg)
		if _, err := New("abcabc", cfg, nil); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
	if _, err := New("a", testConfig(model.ArchRNN), nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected an error for a one-character corpus")
	}
}

func TestSaveAndResume(t *testing.T) {
	t.Parallel()
	s := newTestSession(t, "abcabc", testConfig(model.ArchGRU))
	if _, err := s.Run(context.Background(), 3); err != nil {
		t.Fatalf("Run: %v", err)
	}
	path := filepath.Join(t.TempDir(), "gru.json")
	if err := s.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	m, err := checkpoint.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	resumed, err := Resume(m, "cabcab", testConfig(model.ArchFFNN), nil)
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.Config().Arch != model.ArchGRU || resumed.Config().HiddenSize != 4 {
		t.Fatalf("resume should adopt the model's architecture, got %+v", resumed.Config())
	}
	if _, err := resumed.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if _, err := Resume(m, "abx", testConfig(model.ArchGRU), nil); !errors.Is(err, ErrModelMismatch) {
		t.Fatalf("expected ErrModelMismatch, got %v", err)
	}
}

// TestSampleFailureKeepsStep cancels the context so the periodic sample
// fails after the weights were updated: the step still counts and its
// report is returned.
func TestSampleFailureKeepsStep(t *testing.T) {
	t.Parallel()
	cfg := testConfig(model.ArchRNN)
	cfg.SampleEvery = 1
	cfg.SampleLength = 5
	s := newTestSession(t, "abcabcabc", cfg)
	before := s.Model()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r, err := s.Step(ctx)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if r == nil || r.Step != 1 || r.Sample != "" {
		t.Fatalf("expected the step 1 report without a sample, got %+v", r)
	}
	sum := s.Summary()
	if sum.Step != 1 || sum.Cursor != cfg.Window || sum.LastSample != "" {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if s.Model() == before {
		t.Fatalf("the trained model was not kept")
	}
}
