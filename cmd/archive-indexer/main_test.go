package main

import (
	"flag"
	"testing"
)

func newFlagSet() *flag.FlagSet {
	return flag.NewFlagSet("archive-indexer", flag.ContinueOnError)
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	cfg, err := parseFlags(newFlagSet(), []string{
		"-messages", "data/messages",
		"-attachments", "data/attachments",
		"-config", "mail-recall.yaml",
		"-wipe",
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MessagesDir != "data/messages" || cfg.AttachmentsDir != "data/attachments" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.ConfigPath != "mail-recall.yaml" || !cfg.Wipe {
		t.Fatalf("cfg=%+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestValidate_RequiresMessagesDir(t *testing.T) {
	t.Parallel()

	cfg, err := parseFlags(newFlagSet(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing -messages accepted")
	}
}
