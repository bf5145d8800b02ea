package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/charnet/internal/checkpoint"
	"github.com/samcharles93/charnet/internal/corpus"
	"github.com/samcharles93/charnet/internal/logger"
	"github.com/samcharles93/charnet/internal/model"
	"github.com/samcharles93/charnet/internal/session"
)

type trainOptions struct {
	textPath    string
	arch        string
	hidden      int64
	lr          float64
	dropout     float64
	window      int64
	steps       int64
	seed        int64
	sampleEvery int64
	sampleLen   int64
	temperature float64
	logEvery    int64
	lowercase   bool
	keepSpace   bool
	resume      string
	out         string
}

func trainCmd() *cli.Command {
	def := session.DefaultConfig()
	var o trainOptions

	return &cli.Command{
		Name:  "train",
		Usage: "Train a model on a text file and write a checkpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "text",
				Aliases:     []string{"t"},
				Usage:       "path to the training text",
				Required:    true,
				Destination: &o.textPath,
			},
			&cli.StringFlag{
				Name:        "arch",
				Usage:       "architecture (ffnn, rnn, gru, lstm)",
				Value:       def.Arch.String(),
				Destination: &o.arch,
			},
			&cli.Int64Flag{
				Name:        "hidden",
				Usage:       "hidden layer size",
				Value:       int64(def.HiddenSize),
				Destination: &o.hidden,
			},
			&cli.Float64Flag{
				Name:        "lr",
				Usage:       "learning rate",
				Value:       def.LearningRate,
				Destination: &o.lr,
			},
			&cli.Float64Flag{
				Name:        "dropout",
				Usage:       "dropout rate on hidden activations during training",
				Value:       def.Dropout,
				Destination: &o.dropout,
			},
			&cli.Int64Flag{
				Name:        "window",
				Usage:       "BPTT length (batch size for ffnn)",
				Value:       int64(def.Window),
				Destination: &o.window,
			},
			&cli.Int64Flag{
				Name:        "steps",
				Aliases:     []string{"n"},
				Usage:       "number of training steps",
				Value:       1000,
				Destination: &o.steps,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "RNG seed (-1 = random)",
				Value:       -1,
				Destination: &o.seed,
			},
			&cli.Int64Flag{
				Name:        "sample-every",
				Usage:       "print a sample every N steps (0 disables)",
				Value:       int64(def.SampleEvery),
				Destination: &o.sampleEvery,
			},
			&cli.Int64Flag{
				Name:        "sample-length",
				Usage:       "maximum characters per sample",
				Value:       int64(def.SampleLength),
				Destination: &o.sampleLen,
			},
			&cli.Float64Flag{
				Name:        "temperature",
				Usage:       "sampling temperature (<=0 = greedy)",
				Value:       def.Temperature,
				Destination: &o.temperature,
			},
			&cli.Int64Flag{
				Name:        "log-every",
				Usage:       "log progress every N steps (0 disables)",
				Value:       int64(def.LogEvery),
				Destination: &o.logEvery,
			},
			&cli.BoolFlag{
				Name:        "lowercase",
				Usage:       "lowercase the corpus before training",
				Destination: &o.lowercase,
			},
			&cli.BoolFlag{
				Name:        "keep-whitespace",
				Usage:       "keep whitespace runs instead of collapsing them to one space",
				Destination: &o.keepSpace,
			},
			&cli.StringFlag{
				Name:        "resume",
				Usage:       "continue training from a checkpoint",
				Destination: &o.resume,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "checkpoint output path",
				Value:       "model.json",
				Destination: &o.out,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := LoadConfig(configFile)
			if err != nil {
				return err
			}
			applyTrainConfig(cmd, cfg, &o)
			return runTrain(ctx, cmd, o)
		},
	}
}

func (o trainOptions) sessionConfig() (session.Config, error) {
	arch, err := model.ParseArch(o.arch)
	if err != nil {
		return session.Config{}, err
	}
	seed := uint64(o.seed)
	if o.seed < 0 {
		seed = rand.Uint64()
	}
	return session.Config{
		Arch:         arch,
		HiddenSize:   int(o.hidden),
		LearningRate: o.lr,
		Dropout:      o.dropout,
		Window:       int(o.window),
		Seed:         seed,
		SampleEvery:  int(o.sampleEvery),
		SampleLength: int(o.sampleLen),
		Temperature:  o.temperature,
		LogEvery:     int(o.logEvery),
		Corpus: corpus.Options{
			Lowercase:     o.lowercase,
			CollapseSpace: !o.keepSpace,
		},
	}, nil
}

func runTrain(ctx context.Context, cmd *cli.Command, o trainOptions) error {
	log := logger.FromContext(ctx)
	if o.steps <= 0 {
		return fmt.Errorf("--steps must be positive, got %d", o.steps)
	}
	cfg, err := o.sessionConfig()
	if err != nil {
		return err
	}
	text, err := os.ReadFile(o.textPath)
	if err != nil {
		return fmt.Errorf("read corpus: %w", err)
	}

	var s *session.Session
	if o.resume != "" {
		m, err := checkpoint.Load(o.resume)
		if err != nil {
			return err
		}
		s, err = session.Resume(m, string(text), cfg, log)
		if err != nil {
			return err
		}
		log.Info("resuming", "checkpoint", o.resume, "arch", m.Arch().String(), "hidden", m.HiddenSize())
	} else {
		s, err = session.New(string(text), cfg, log)
		if err != nil {
			return err
		}
	}

	sum := s.Summary()
	log.Info("training",
		"session", sum.ID,
		"arch", sum.Arch.String(),
		"hidden", sum.HiddenSize,
		"vocab", len(sum.Vocab),
		"corpus", sum.CorpusLen,
		"steps", o.steps,
		"seed", cfg.Seed,
	)

	out := cmd.Root().Writer
	if out == nil {
		out = os.Stdout
	}
	var runErr error
	for i := int64(0); i < o.steps; i++ {
		r, err := s.Step(ctx)
		if err != nil {
			runErr = err
			break
		}
		if r.Sample != "" {
			_, _ = fmt.Fprintf(out, "[step %d] %s\n", r.Step, r.Sample)
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
	}

	interrupted := errors.Is(runErr, context.Canceled)
	if runErr != nil && !interrupted {
		return runErr
	}
	if interrupted {
		log.Warn("training interrupted, saving progress")
	}

	sum = s.Summary()
	log.Info("done",
		"steps", sum.Step,
		"epochs", sum.Epoch,
		"avg_loss", sum.AvgLoss,
		"accuracy", sum.Accuracy,
	)
	return s.Save(o.out)
}
