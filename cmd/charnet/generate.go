package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/charnet/internal/checkpoint"
	"github.com/samcharles93/charnet/internal/inference"
	"github.com/samcharles93/charnet/internal/logger"
	"github.com/samcharles93/charnet/internal/logits"
	"github.com/samcharles93/charnet/internal/model"
)

func generateCmd() *cli.Command {
	var (
		modelPath   string
		seedToken   string
		length      int64
		temperature float64
		seed        int64
		separator   string
		interactive bool
	)

	return &cli.Command{
		Name:  "generate",
		Usage: "Sample text from a trained checkpoint",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "model",
				Aliases:     []string{"m"},
				Usage:       "checkpoint path",
				Value:       "model.json",
				Destination: &modelPath,
			},
			&cli.StringFlag{
				Name:        "seed-token",
				Aliases:     []string{"s"},
				Usage:       "first character of the generated text",
				Destination: &seedToken,
			},
			&cli.Int64Flag{
				Name:        "length",
				Aliases:     []string{"n"},
				Usage:       "maximum characters to generate",
				Value:       20,
				Destination: &length,
			},
			&cli.Float64Flag{
				Name:        "temperature",
				Usage:       "sampling temperature (<=0 = greedy)",
				Value:       0.8,
				Destination: &temperature,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "RNG seed (-1 = random)",
				Value:       -1,
				Destination: &seed,
			},
			&cli.StringFlag{
				Name:        "separator",
				Usage:       "token that ends a word",
				Value:       inference.DefaultSeparator,
				Destination: &separator,
			},
			&cli.BoolFlag{
				Name:        "interactive",
				Aliases:     []string{"i"},
				Usage:       "read seed characters from stdin",
				Destination: &interactive,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := LoadConfig(configFile)
			if err != nil {
				return err
			}
			applyGenerateConfig(cmd, cfg, &temperature, &seed)

			m, err := checkpoint.Load(modelPath)
			if err != nil {
				return err
			}
			out := cmd.Root().Writer
			if out == nil {
				out = os.Stdout
			}
			g := &generator{
				log:       logger.FromContext(ctx),
				model:     m,
				out:       out,
				length:    int(length),
				temp:      temperature,
				separator: separator,
				rng:       newRand(seed),
			}
			if interactive {
				in := cmd.Root().Reader
				if in == nil {
					in = os.Stdin
				}
				return g.interactive(ctx, newLineEditor(in, out))
			}
			if seedToken == "" {
				return errors.New("--seed-token is required unless --interactive is set")
			}
			_, err = g.generate(ctx, seedToken)
			return err
		},
	}
}

func newRand(seed int64) *rand.Rand {
	s := uint64(seed)
	if seed < 0 {
		s = rand.Uint64()
	}
	return rand.New(rand.NewPCG(s, s^0x2545f4914f6cdd1d))
}

type generator struct {
	log       logger.Logger
	model     model.Model
	out       io.Writer
	length    int
	temp      float64
	separator string
	rng       *rand.Rand
}

func (g *generator) generate(ctx context.Context, seed string) (*inference.Result, error) {
	sampler := logits.NewSampler(logits.SamplerConfig{Temperature: g.temp, Rand: g.rng})
	res, err := inference.Generate(ctx, g.model, seed, inference.GenerateOptions{
		MaxLength: g.length,
		Separator: g.separator,
		Sampler:   sampler,
	})
	if err != nil {
		return res, err
	}
	if res.Text == "" {
		g.log.Warn("seed is not in the vocabulary", "seed", seed)
		return res, nil
	}
	_, err = fmt.Fprintln(g.out, res.Text)
	g.log.Debug("generated",
		"tokens", res.Stats.TokensGenerated,
		"stopped", res.Stopped,
		"tps", res.Stats.TPS,
	)
	return res, err
}

const interactiveHelp = `Enter a seed character to generate a word.
  :temp <t>   set the temperature (<=0 = greedy)
  :len <n>    set the maximum length
  :reset      clear the carried state
  :vocab      list the vocabulary
  :q          quit`

func (g *generator) interactive(ctx context.Context, ed *lineEditor) error {
	_, _ = fmt.Fprintln(g.out, interactiveHelp)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := ed.ReadLine("seed> ")
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ":") {
			quit, err := g.command(line)
			if err != nil {
				_, _ = fmt.Fprintln(g.out, "error:", err)
			}
			if quit {
				return nil
			}
			continue
		}
		r, size := utf8.DecodeRuneInString(line)
		if size < len(line) {
			g.log.Debug("using the first character as seed", "input", line)
		}
		if _, err := g.generate(ctx, string(r)); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
}

func (g *generator) command(line string) (quit bool, err error) {
	fields := strings.Fields(line)
	arg := func() (string, error) {
		if len(fields) != 2 {
			return "", fmt.Errorf("%s takes one argument", fields[0])
		}
		return fields[1], nil
	}
	switch fields[0] {
	case ":q", ":quit", ":exit":
		return true, nil
	case ":temp":
		s, err := arg()
		if err != nil {
			return false, err
		}
		t, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return false, fmt.Errorf("invalid temperature %q", s)
		}
		g.temp = t
	case ":len":
		s, err := arg()
		if err != nil {
			return false, err
		}
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return false, fmt.Errorf("invalid length %q", s)
		}
		g.length = n
	case ":reset":
		g.model = model.ResetState(g.model)
	case ":vocab":
		_, _ = fmt.Fprintf(g.out, "%q\n", g.model.Vocab().Tokens)
	case ":help", ":h":
		_, _ = fmt.Fprintln(g.out, interactiveHelp)
	default:
		return false, fmt.Errorf("unknown command %s", fields[0])
	}
	return false, nil
}
