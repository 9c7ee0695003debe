// Package main provides the born-bench CLI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/born-ml/born-bench/internal/bench"
	"github.com/born-ml/born-bench/internal/config"
	"github.com/born-ml/born-bench/internal/dataset"
	"github.com/born-ml/born-bench/internal/model"
	"github.com/born-ml/born-bench/internal/parallel"
	"github.com/born-ml/born-bench/internal/report"
	"github.com/born-ml/born-bench/internal/store"
	"github.com/born-ml/born-bench/internal/zoo"
)

const version = "v0.1.0-dev"

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1 // A model failed; other reports were still produced
	exitConfig = 2 // Bad flags or configuration; nothing ran
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		usage(stdout)
		return exitOK
	}
	switch args[0] {
	case "run":
		return runBench(ctx, args[1:], stdout, stderr)
	case "list":
		return listModels(stdout)
	case "history":
		return history(ctx, args[1:], stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "born-bench %s\n", version)
		return exitOK
	case "help", "-h", "--help":
		usage(stdout)
		return exitOK
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
		usage(stderr)
		return exitConfig
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "born-bench %s - training benchmarks for Born models\n\n", version)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run        Train and time forward/backward passes")
	fmt.Fprintln(w, "  list       List model variants")
	fmt.Fprintln(w, "  history    Show stored reports")
	fmt.Fprintln(w, "  version    Show version")
}

func runBench(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath = fs.String("config", "", "TOML config file")
		styled     = fs.String("styled", "auto", "styled output: auto, always or never")
		quiet      = fs.Bool("quiet", false, "suppress progress logging")
		o          config.Overrides
	)
	fs.StringVar(&o.Variant, "variant", "", "model variant (GENERIC_CNN, ALEXNET, LENET, VGG16, RNN, ALL)")
	fs.StringVar(&o.Source, "source", "", "dataset source (synthetic, tokens)")
	fs.IntVar(&o.Height, "height", 0, "input height")
	fs.IntVar(&o.Width, "width", 0, "input width")
	fs.IntVar(&o.Channels, "channels", 0, "input channels")
	fs.IntVar(&o.NumLabels, "labels", 0, "number of labels")
	fs.IntVar(&o.BatchSize, "batch", 0, "batch size")
	fs.IntVar(&o.NumBatches, "batches", 0, "synthetic batches per pass")
	fs.StringVar(&o.TextFile, "text", "", "corpus for the tokens source")
	fs.Int64Var(&o.Seed, "seed", 0, "random seed")
	fs.IntVar(&o.Iterations, "iterations", 0, "training iterations per minibatch")
	fs.IntVar(&o.Workers, "workers", 0, "data-parallel training workers")
	fs.StringVar(&o.StorePath, "store", "", "SQLite file to record reports in")
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "config: %v\n", err)
			return exitConfig
		}
		cfg = loaded
	}
	cfg.ApplyOverrides(o)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return exitConfig
	}

	logger := log.New(stderr, "born-bench: ", log.LstdFlags)
	if *quiet {
		logger.SetOutput(io.Discard)
	}

	it, err := openDataset(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "dataset: %v\n", err)
		return exitConfig
	}

	renderer := report.Renderer{Styled: cfg.Bench.Styled}
	switch *styled {
	case "always":
		renderer.Styled = true
	case "never":
		renderer.Styled = false
	default:
		if f, ok := stdout.(*os.File); ok && !cfg.Bench.Styled {
			renderer.Styled = term.IsTerminal(int(f.Fd()))
		}
	}

	opts := []bench.Option{
		bench.WithLogger(logger),
		bench.WithProgressEvery(cfg.Bench.ProgressEvery),
		bench.WithSinks(report.NewWriterSink(stdout, renderer)),
	}
	if cfg.Train.Workers > 1 {
		opts = append(opts, bench.WithTrainer(parallel.NewTrainer(parallel.Config{Workers: cfg.Train.Workers})))
	}
	if cfg.Store.Path != "" {
		st, err := store.Open(cfg.Store.Path)
		if err != nil {
			fmt.Fprintf(stderr, "%v\n", err)
			return exitConfig
		}
		defer st.Close()
		opts = append(opts, bench.WithSinks(st))
	}

	runner := bench.New(zoo.New(), opts...)
	res, err := runner.Run(ctx, bench.Config{
		Variant: cfg.ParsedVariant(),
		Shape:   cfg.Shape(),
		Options: cfg.ModelOptions(logger.Printf),
	}, it)
	if err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		if model.IsConfigurationError(err) {
			return exitConfig
		}
		return exitFailed
	}
	if err := res.Err(); err != nil {
		fmt.Fprintf(stderr, "run %s: %v\n", res.RunID, err)
		return exitFailed
	}
	logger.Printf("run %s: %d reports", res.RunID, len(res.Reports()))
	return exitOK
}

func openDataset(cfg *config.Config) (dataset.Iterator, error) {
	d := cfg.Dataset
	switch d.Source {
	case config.SourceTokens:
		text, err := os.ReadFile(d.TextFile)
		if err != nil {
			return nil, err
		}
		enc, err := dataset.NewTikToken(d.Encoding)
		if err != nil {
			return nil, err
		}
		return dataset.NewTokens(string(text), enc, dataset.TokenConfig{
			Name:       "tokens",
			Frames:     d.Height,
			FrameWidth: d.Channels * d.Width,
			NumLabels:  d.NumLabels,
			BatchSize:  d.BatchSize,
		})
	case config.SourceSynthetic:
		return dataset.NewSynthetic(dataset.SyntheticConfig{
			Height:     d.Height,
			Width:      d.Width,
			Channels:   d.Channels,
			NumLabels:  d.NumLabels,
			BatchSize:  d.BatchSize,
			NumBatches: d.NumBatches,
			Seed:       d.Seed,
		})
	default:
		return nil, fmt.Errorf("unknown source %q", d.Source)
	}
}

func listModels(stdout io.Writer) int {
	c := zoo.New()
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VARIANT\tLAYERS")
	for _, v := range c.Variants() {
		fmt.Fprintf(tw, "%s\t%s\n", v, c.Describe(v))
	}
	fmt.Fprintf(tw, "%s\t%s\n", model.All, "every variant above, in order")
	if err := tw.Flush(); err != nil {
		return exitFailed
	}
	return exitOK
}

func history(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("store", "born-bench.db", "SQLite file with recorded reports")
	runID := fs.String("run", "", "show only this run")
	limit := fs.Int("limit", 20, "maximum reports to show (0 for all)")
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}

	if _, err := os.Stat(*path); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(stderr, "history: %s does not exist\n", *path)
		return exitConfig
	}
	st, err := store.Open(*path)
	if err != nil {
		fmt.Fprintf(stderr, "history: %v\n", err)
		return exitFailed
	}
	defer st.Close()

	var reports []*report.Report
	if *runID != "" {
		reports, err = st.ByRun(ctx, *runID)
	} else {
		reports, err = st.List(ctx, *limit)
	}
	if err != nil {
		fmt.Fprintf(stderr, "history: %v\n", err)
		return exitFailed
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tMODEL\tDATASET\tFORWARD MS\tBACKWARD MS\tITERATIONS\tFINISHED")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.3f\t%.3f\t%d\t%s\n",
			r.RunID, r.Model, r.Dataset, r.AvgForwardMillis, r.AvgBackwardMillis,
			r.ForwardCount, r.FinishedAt.Format("2006-01-02 15:04:05"))
	}
	if err := tw.Flush(); err != nil {
		return exitFailed
	}
	return exitOK
}
