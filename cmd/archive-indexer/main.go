// Command archive-indexer runs the batch pipeline end to end: load
// normalized messages, resolve and assemble threads, summarize them, chunk
// every text, embed everything, and upsert into the vector index.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/theimaginaryfoundation/mail-recall/archive"
	"github.com/theimaginaryfoundation/mail-recall/chunk"
	"github.com/theimaginaryfoundation/mail-recall/config"
	"github.com/theimaginaryfoundation/mail-recall/fileutils"
	"github.com/theimaginaryfoundation/mail-recall/pipeline"
	"github.com/theimaginaryfoundation/mail-recall/provider"
	"github.com/theimaginaryfoundation/mail-recall/threads"
	"github.com/theimaginaryfoundation/mail-recall/tokenizer"
	"github.com/theimaginaryfoundation/mail-recall/vecindex"
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

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config) error {
	appCfg, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return err
	}
	if err := appCfg.Validate(); err != nil {
		return err
	}

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})

	client, err := provider.New(provider.Options{
		APIKey:         appCfg.OpenAI.APIKey,
		BaseURL:        appCfg.OpenAI.BaseURL,
		EmbeddingModel: appCfg.OpenAI.EmbeddingModel,
		Dimensions:     appCfg.OpenAI.Dimensions,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	enc, err := tokenizer.Open(tokenizer.DefaultEncoding)
	if err != nil {
		return err
	}
	counter := provider.NewTokenCounter(enc)

	chunker, err := chunk.New(enc, appCfg.Pipeline.ChunkWindow, appCfg.Pipeline.ChunkOverlap)
	if err != nil {
		return err
	}

	msgs, err := archive.LoadMessages(cfg.MessagesDir)
	if err != nil {
		return err
	}
	logger.Info("messages loaded", "count", len(msgs), "dir", cfg.MessagesDir)

	attachments := map[string][]archive.AttachmentText{}
	if cfg.AttachmentsDir != "" {
		attachments, err = archive.LoadAttachmentTexts(cfg.AttachmentsDir)
		if err != nil {
			return err
		}
		logger.Info("attachment texts loaded", "messages", len(attachments))
	}

	tm := threads.BuildThreadMap(msgs)
	ths := threads.AssembleThreads(msgs, tm, attachments)
	logger.Info("threads assembled", "count", len(ths))

	summaries, sumTally, err := pipeline.SummarizeThreads(ctx, client, counter, ths, pipeline.SummarizeOptions{
		Model:           appCfg.OpenAI.SummaryModel,
		MaxConcurrent:   appCfg.Pipeline.MaxConcurrent,
		MaxPromptTokens: appCfg.Pipeline.MaxPromptTokens,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	if cfg.SummariesOut != "" {
		if err := fileutils.WriteJSONFileAtomic(cfg.SummariesOut, summaries, cfg.Pretty); err != nil {
			return err
		}
	}

	var docs []pipeline.Document
	for _, th := range ths {
		docs = append(docs, pipeline.BuildChunkDocuments(th, chunker)...)
		if summary, ok := summaries[th.ThreadID]; ok {
			docs = append(docs, pipeline.BuildThreadDocument(th, summary))
		}
	}
	logger.Info("documents built", "count", len(docs))

	refs := make([]*pipeline.Document, len(docs))
	for i := range docs {
		refs[i] = &docs[i]
	}
	embedTally, err := pipeline.EmbedDocuments(ctx, client, refs, pipeline.EmbedOptions{
		MaxConcurrent: appCfg.Pipeline.MaxConcurrent,
		BatchSize:     appCfg.Pipeline.BatchSize,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	store, err := vecindex.Dial(appCfg.Qdrant.Addr, appCfg.Qdrant.APIKey, appCfg.Qdrant.UseTLS, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if cfg.Wipe {
		if err := store.WipeCollection(ctx, appCfg.Qdrant.Collection); err != nil {
			return err
		}
	}
	if err := store.EnsureCollection(ctx, appCfg.Qdrant.Collection, client.Dimensions()); err != nil {
		return err
	}

	indexTally, err := pipeline.UpsertDocuments(ctx, store, appCfg.Qdrant.Collection, docs, pipeline.IndexOptions{
		Logger: logger,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout,
		"threads=%d summarized=%d embedded=%d embed_failed=%d embed_skipped=%d indexed=%d index_failed=%d\n",
		len(ths), sumTally.Succeeded,
		embedTally.Succeeded, embedTally.Failed, embedTally.Skipped,
		indexTally.Succeeded, indexTally.Failed)
	return nil
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()

	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.MessagesDir, "messages", cfg.MessagesDir, "Directory of normalized message JSON files")
	fs.StringVar(&cfg.AttachmentsDir, "attachments", cfg.AttachmentsDir, "Directory of extracted attachment text files (optional)")
	fs.StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "Path to the YAML config file (optional)")
	fs.StringVar(&cfg.SummariesOut, "summaries-out", cfg.SummariesOut, "Write thread summaries to this JSON file (optional)")
	fs.BoolVar(&cfg.Wipe, "wipe", false, "Drop and recreate the collection before indexing")
	fs.BoolVar(&cfg.Pretty, "pretty", false, "Pretty-print the summaries JSON file")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/archive-indexer -messages data/messages -attachments data/attachments")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/archive-indexer -messages data/messages -wipe")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.MessagesDir != "" {
		cfg.MessagesDir = filepath.Clean(cfg.MessagesDir)
	}
	if cfg.AttachmentsDir != "" {
		cfg.AttachmentsDir = filepath.Clean(cfg.AttachmentsDir)
	}
	return cfg, nil
}
