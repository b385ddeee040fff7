package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/theimaginaryfoundation/mail-recall/provider"
	"github.com/theimaginaryfoundation/mail-recall/threads"
)

type fakeCompleter struct {
	mu       sync.Mutex
	calls    int
	failFor  string
	response string
}

func (f *fakeCompleter) Complete(_ context.Context, _ string, msgs []provider.Message, _ float64, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failFor != "" && strings.Contains(msgs[len(msgs)-1].Content, f.failFor) {
		return "", errors.New("completion failed")
	}
	if f.response != "" {
		return f.response, nil
	}
	return "summary of: " + msgs[len(msgs)-1].Content, nil
}

func (f *fakeCompleter) CompleteStructured(_ context.Context, _, _ string, _ map[string]interface{}, _, input string, _ int) (string, error) {
	return `{"narrative":"n","facts":[]}`, nil
}

func TestSummarizeThreads_PerThreadSummaries(t *testing.T) {
	t.Parallel()

	ths := []threads.Thread{
		{ThreadID: "t1", Entries: []threads.Entry{{Text: "alpha body"}}},
		{ThreadID: "t2", Entries: []threads.Entry{{Text: "beta body"}}},
	}

	summaries, tally, err := SummarizeThreads(context.Background(), &fakeCompleter{}, provider.NewTokenCounter(wordEncoding{}), ths, SummarizeOptions{
		Model: "m",
	})
	if err != nil {
		t.Fatal(err)
	}
	if tally.Succeeded != 2 || tally.Failed != 0 {
		t.Fatalf("tally=%+v", tally)
	}
	if len(summaries) != 2 || summaries["t1"] == "" || summaries["t2"] == "" {
		t.Fatalf("summaries=%v", summaries)
	}
}

func TestSummarizeThreads_FailureDoesNotAbortRun(t *testing.T) {
	t.Parallel()

	ths := []threads.Thread{
		{ThreadID: "bad", Entries: []threads.Entry{{Text: "poison pill"}}},
		{ThreadID: "good", Entries: []threads.Entry{{Text: "fine body"}}},
	}

	summaries, tally, err := SummarizeThreads(context.Background(), &fakeCompleter{failFor: "poison"}, provider.NewTokenCounter(wordEncoding{}), ths, SummarizeOptions{
		Model:         "m",
		MaxConcurrent: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if tally.Succeeded != 1 || tally.Failed != 1 {
		t.Fatalf("tally=%+v, want 1 success 1 failure", tally)
	}
	if _, ok := summaries["bad"]; ok {
		t.Fatal("failed thread has a summary")
	}
	if summaries["good"] == "" {
		t.Fatal("sibling thread lost its summary")
	}
}

func TestSummarizeThreads_EmptyThreadSkipped(t *testing.T) {
	t.Parallel()

	ths := []threads.Thread{
		{ThreadID: "empty", Entries: []threads.Entry{{Text: "   "}}},
	}

	summaries, tally, err := SummarizeThreads(context.Background(), &fakeCompleter{}, provider.NewTokenCounter(wordEncoding{}), ths, SummarizeOptions{
		Model: "m",
	})
	if err != nil {
		t.Fatal(err)
	}
	if tally.Skipped != 1 || len(summaries) != 0 {
		t.Fatalf("tally=%+v summaries=%v", tally, summaries)
	}
}

func TestSummarizeThreads_TruncatesLongPrompts(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("word ", 500)
	ths := []threads.Thread{
		{ThreadID: "long", Entries: []threads.Entry{{Text: long}}},
	}
	fc := &fakeCompleter{}

	_, tally, err := SummarizeThreads(context.Background(), fc, provider.NewTokenCounter(wordEncoding{}), ths, SummarizeOptions{
		Model:           "m",
		MaxPromptTokens: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	if tally.Succeeded != 1 {
		t.Fatalf("tally=%+v", tally)
	}
}
