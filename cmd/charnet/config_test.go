package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/urfave/cli/v3"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeFile(t, dir, "config.yaml", `
arch: gru
hidden_size: 64
learning_rate: 0.01
window: 8
seed: 0
temperature: 0.5
log_format: json
server_address: 0.0.0.0:9000
`)
	cfg, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Arch != "gru" || *cfg.HiddenSize != 64 || *cfg.LearningRate != 0.01 || *cfg.Window != 8 {
		t.Fatalf("unexpected training config %+v", cfg)
	}
	if cfg.Seed == nil || *cfg.Seed != 0 {
		t.Fatalf("an explicit zero seed should be set, got %v", cfg.Seed)
	}
	if cfg.Dropout != nil || cfg.Steps != nil {
		t.Fatalf("unset fields should stay nil: %+v", cfg)
	}
	if cfg.LogFormat != "json" || cfg.ServerAddress != "0.0.0.0:9000" {
		t.Fatalf("unexpected output config %+v", cfg)
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatalf("expected an error for a missing explicit config")
	}
	bad := writeFile(t, dir, "bad.yaml", "hidden_size: [1, 2]\n")
	if _, err := LoadConfig(bad); err == nil {
		t.Fatalf("expected a parse error")
	}
}

func TestApplyTrainConfig(t *testing.T) {
	t.Parallel()
	window, steps := int64(8), int64(3)
	cfg := Config{Arch: "gru", Window: &window, Steps: &steps}

	// --steps is set on the command line, so the config value must not win.
	o := trainOptions{arch: "lstm", window: 16, steps: 50}
	cmd := &cli.Command{
		Name: "train",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "arch"},
			&cli.Int64Flag{Name: "window"},
			&cli.Int64Flag{Name: "steps"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			applyTrainConfig(c, cfg, &o)
			return nil
		},
	}
	if err := cmd.Run(context.Background(), []string{"train", "--steps", "50"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if o.arch != "gru" || o.window != 8 || o.steps != 50 {
		t.Fatalf("unexpected options %+v", o)
	}
}

func TestSessionConfigRejectsUnknownArch(t *testing.T) {
	t.Parallel()
	if _, err := (trainOptions{arch: "transformer"}).sessionConfig(); err == nil {
		t.Fatalf("expected an error for an unknown architecture")
	}
	cfg, err := trainOptions{arch: "rnn", seed: 7, keepSpace: true}.sessionConfig()
	if err != nil {
		t.Fatalf("sessionConfig: %v", err)
	}
	if cfg.Seed != 7 || cfg.Corpus.CollapseSpace {
		t.Fatalf("unexpected session config %+v", cfg)
	}
}
