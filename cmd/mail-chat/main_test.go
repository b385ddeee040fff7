package main

import (
	"flag"
	"testing"
)

func TestParseFlags(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("mail-chat", flag.ContinueOnError)
	cfg, err := parseFlags(fs, []string{"-conversation", "abc123", "-show-prompt"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ConversationID != "abc123" || !cfg.ShowPrompt {
		t.Fatalf("cfg=%+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
}
