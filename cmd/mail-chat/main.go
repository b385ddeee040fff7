// Command mail-chat is a line-based REPL over the indexed archive. Each
// session keeps its own tiered memory; retrieved thread ids accumulate so
// follow-up questions surface new material.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/theimaginaryfoundation/mail-recall/config"
	"github.com/theimaginaryfoundation/mail-recall/memory"
	"github.com/theimaginaryfoundation/mail-recall/provider"
	"github.com/theimaginaryfoundation/mail-recall/query"
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

	store, err := vecindex.Dial(appCfg.Qdrant.Addr, appCfg.Qdrant.APIKey, appCfg.Qdrant.UseTLS, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	conversationID := cfg.ConversationID
	if conversationID == "" {
		conversationID = uuid.NewString()
	}

	mem, err := memory.NewManager(client, client, store, counter, memory.Options{
		ConversationID:  conversationID,
		Model:           appCfg.OpenAI.SummaryModel,
		ShortTermBudget: appCfg.Memory.ShortTermBudget,
		RefreshInterval: appCfg.Memory.RefreshInterval,
		Logger:          logger,
	})
	if err != nil {
		return err
	}
	defer mem.Close()

	orch, err := query.New(client, client, store, mem, counter, query.Options{
		Collection:   appCfg.Qdrant.Collection,
		SummaryK:     appCfg.Query.SummaryK,
		FactK:        appCfg.Query.FactK,
		ReplyReserve: appCfg.Query.ReplyReserve,
		RewriteModel: appCfg.OpenAI.RewriteModel,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "conversation %s - ask about the archive, 'exit' to quit\n", conversationID)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(os.Stdout, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		res, err := orch.Answer(ctx, line)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			fmt.Fprintln(os.Stderr, err.Error())
			continue
		}
		if cfg.ShowPrompt {
			fmt.Fprintf(os.Stdout, "--- prompt ---\n%s\n--- end prompt ---\n", res.Prompt)
		}
		fmt.Fprintln(os.Stdout, res.Answer)
	}
	return scanner.Err()
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()

	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "Path to the YAML config file (optional)")
	fs.StringVar(&cfg.ConversationID, "conversation", cfg.ConversationID, "Resume a conversation by id (default: new id)")
	fs.BoolVar(&cfg.ShowPrompt, "show-prompt", false, "Print the assembled prompt before each answer")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/mail-chat")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/mail-chat -conversation 7f0c2d0e -show-prompt")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
