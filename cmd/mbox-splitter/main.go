package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/theimaginaryfoundation/mail-recall/archive"
	"github.com/theimaginaryfoundation/mail-recall/fileutils"
)

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in, err := os.Open(cfg.InputPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	defer in.Close()

	seq := 0
	written, err := archive.SplitMbox(ctx, in, func(raw []byte) error {
		path := filepath.Join(cfg.OutputDir, fmt.Sprintf("msg_%06d.eml", seq))
		seq++
		if !cfg.Overwrite && fileutils.FileExists(path) {
			return nil
		}
		return fileutils.WriteFileAtomic(path, raw, 0o644)
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "messages_written=%d out_dir=%s\n", written, cfg.OutputDir)
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()

	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.InputPath, "in", cfg.InputPath, "Path to the mbox file to split")
	fs.StringVar(&cfg.OutputDir, "out", cfg.OutputDir, "Directory to write one raw message file per record into")
	fs.BoolVar(&cfg.Overwrite, "overwrite", false, "Overwrite existing output files")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/mbox-splitter -in archive.mbox -out data/messages")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.InputPath != "" {
		cfg.InputPath = filepath.Clean(cfg.InputPath)
	}
	if cfg.OutputDir != "" {
		cfg.OutputDir = filepath.Clean(cfg.OutputDir)
	}
	return cfg, nil
}
