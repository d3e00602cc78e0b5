package main

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/pumped-fn/pipeflow"
	"github.com/pumped-fn/pipeflow/extensions"
	"github.com/pumped-fn/pipeflow/importer"
	"github.com/pumped-fn/pipeflow/modifiers"
)

type evalOptions struct {
	times     []int
	async     bool
	decorated bool
	timeout   time.Duration
}

func newEvalCmd() *cobra.Command {
	var opts evalOptions
	cmd := &cobra.Command{
		Use:   "eval <pipeline.yaml>",
		Short: "Evaluate a pipeline file",
		Long: `Evaluate a pipeline file at the given animation times and print the
resulting attributes and data objects.

Without --async each time is evaluated immediately and the command then
waits for background computations to finish. With --async all times are
requested at once and served in order.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			return runEval(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), configPath, args[0], opts)
		},
	}
	cmd.Flags().IntSliceVarP(&opts.times, "time", "t", nil, "animation times to evaluate (default: the file's times, or 0)")
	cmd.Flags().BoolVar(&opts.async, "async", false, "request all times asynchronously")
	cmd.Flags().BoolVar(&opts.decorated, "decorated", false, "include decorations in the output")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", time.Minute, "maximum time to wait for background computations")
	return cmd
}

func runEval(ctx context.Context, out, errOut io.Writer, configPath, pipelinePath string, opts evalOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := pipeflow.LoadConfig(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(errOut, cfg)

	pf, err := importer.ReadPipelineFile(pipelinePath)
	if err != nil {
		return err
	}

	scene := pipeflow.NewScene(
		pipeflow.WithConfig(cfg),
		pipeflow.WithLogger(logger),
		pipeflow.WithExtension(extensions.NewLoggingExtension(logger)),
		pipeflow.WithExtension(extensions.NewChainDebugExtension(logger.Handler())),
	)
	defer scene.Dispose()

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	cache := importer.NewFileCache()
	if _, err := cache.LoadAll(ctx, []string{pf.Dataset}, cfg.Workers); err != nil {
		return err
	}

	p, _, err := pf.Build(scene, modifiers.NewRegistry(), cache)
	if err != nil {
		return err
	}
	defer p.Close()
	node := scene.NewNode(pf.Name, p)
	defer node.Close()

	times := opts.times
	if len(times) == 0 {
		times = pf.Times
	}
	if len(times) == 0 {
		times = []int{0}
	}

	results := make([]pipeflow.FlowState, len(times))
	if opts.async {
		futures := make([]*pipeflow.Future, len(times))
		for i, t := range times {
			futures[i] = node.EvaluateAsync(pipeflow.Request{Time: pipeflow.TimePoint(t), Decorated: opts.decorated})
		}
		err := scene.Dispatcher().RunUntil(ctx, func() bool {
			return !slices.ContainsFunc(futures, func(f *pipeflow.Future) bool { return !f.IsDone() })
		})
		if err != nil {
			return fmt.Errorf("waiting for results: %w", err)
		}
		for i, f := range futures {
			if results[i], err = f.Result(); err != nil {
				return err
			}
		}
	} else {
		for i, t := range times {
			tp := pipeflow.TimePoint(t)
			state := node.EvaluateImmediate(tp, opts.decorated)
			err := scene.Dispatcher().RunUntil(ctx, func() bool {
				state = node.EvaluateImmediate(tp, opts.decorated)
				return !state.Status().IsPending()
			})
			if err != nil {
				return fmt.Errorf("waiting for time %d: %w", t, err)
			}
			results[i] = state
		}
	}

	for i, t := range times {
		printState(out, t, results[i])
	}
	return nil
}

func printState(w io.Writer, t int, state pipeflow.FlowState) {
	fmt.Fprintf(w, "time %d: %s validity=%s\n", t, state.Status(), state.Validity())

	attrs := state.Attributes()
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s = %v\n", k, attrs[k])
	}

	for _, obj := range state.Objects() {
		switch o := obj.(type) {
		case *pipeflow.Decoration:
			fmt.Fprintf(w, "  [%s] %v\n", o.Label, o.Data)
		case *modifiers.Points:
			fmt.Fprintf(w, "  %s %v\n", o.Name, o.Values)
		default:
			fmt.Fprintf(w, "  %s\n", obj.Kind())
		}
	}
}
