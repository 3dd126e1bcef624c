package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/log"
	_ "github.com/joho/godotenv/autoload"

	"storyboard/pkg/config"
	"storyboard/pkg/export"
	"storyboard/pkg/inference"
	"storyboard/pkg/story"
)

type inferencerFactory func(context.Context, inference.Settings) (inference.Inferencer, error)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, inference.New); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
}

func parseFlags(fs *flag.FlagSet, args []string) (config.Config, string, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, "", err
	}
	cfg.OutputDir = "."

	in := "-"
	fs.SetOutput(os.Stderr)
	fs.StringVar(&in, "in", in, "Story text file (- reads stdin)")
	cfg.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return cfg, "", err
	}
	cfg.OutputDir = filepath.Clean(cfg.OutputDir)
	return cfg, in, nil
}

func readInput(path string, stdin io.Reader) (string, error) {
	if path == "-" || path == "" {
		b, err := io.ReadAll(stdin)
		return string(b), err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read -in: %w", err)
	}
	return string(b), nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer, newInferencer inferencerFactory) error {
	cfg, in, err := parseFlags(flag.NewFlagSet("storyboard", flag.ContinueOnError), args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log.SetLevel(cfg.Level())

	text, err := readInput(in, stdin)
	if err != nil {
		return err
	}

	inf, err := newInferencer(ctx, cfg.Settings())
	if err != nil {
		return err
	}

	board, err := story.New(inf, cfg.Options()).Run(ctx, text, logProgress)
	if err != nil {
		if board != nil && len(board.Failures) > 0 {
			log.Warn("run aborted after recorded failures", "failures", len(board.Failures))
		}
		return err
	}

	paths, err := export.WriteAll(cfg.OutputDir, board)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "storyboard %s: %d scenes, %d characters, %d failures\n",
		board.ID, len(board.Segments), len(board.Profile.Characters), len(board.Failures))
	for _, p := range paths {
		fmt.Fprintln(stdout, p)
	}
	return nil
}

func logProgress(ev story.Event) {
	switch ev.Kind {
	case story.EventChunks:
		log.Info("story chunked", "chunks", ev.Total)
	case story.EventProfile:
		log.Info("characters", "names", ev.Profile.Names())
	case story.EventSplit:
		log.Info("split", "chunk", ev.Index, "of", ev.Total)
	case story.EventScenes:
		log.Info("scenes ready", "count", ev.Total)
	case story.EventPrompt:
		log.Info("prompt", "scene", ev.Scene.ID, "of", ev.Total)
	case story.EventFailure:
		log.Warn("skipped", "stage", ev.Failure.Stage, "unit", ev.Failure.Unit, "error", ev.Failure.Error)
	}
}
