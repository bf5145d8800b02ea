package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/charnet/internal/version"
)

func versionCmd() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			out := cmd.Root().Writer
			info := version.Resolve()
			_, _ = fmt.Fprintf(out, "version:    %s\n", info.Version)
			if info.Commit != "" {
				_, _ = fmt.Fprintf(out, "commit:     %s\n", info.Commit)
			}
			if info.BuildTime != "" {
				_, _ = fmt.Fprintf(out, "build time: %s\n", info.BuildTime)
			}
			_, _ = fmt.Fprintf(out, "go:         %s\n", info.GoVersion)
			return nil
		},
	}
}
