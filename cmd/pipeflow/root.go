package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/pumped-fn/pipeflow"
	"github.com/pumped-fn/pipeflow/extensions"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pipeflow",
		Short: "pipeflow - evaluate cached modification pipelines",
		Long: `pipeflow loads a pipeline description (a dataset plus an ordered list of
modifier stages) and evaluates it at one or more animation times.

Commands:
  eval        Evaluate a pipeline file
  version     Show version info

Quick Start:
  pipeflow eval pipeline.yaml --time 0 --time 5
  pipeflow eval pipeline.yaml --async --decorated`,
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "pipeflow.yaml", "config file (defaults apply when missing)")

	root.AddCommand(newEvalCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newLogger(w io.Writer, cfg *pipeflow.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	switch cfg.LogFormat {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts))
	case "human":
		return slog.New(extensions.NewHumanHandler(w, cfg.SlogLevel()))
	default:
		return slog.New(slog.NewTextHandler(w, opts))
	}
}
