package archive

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const sampleMbox = "From alice@example.com Thu Mar  7 10:00:00 2024\n" +
	"Subject: one\n\nbody one\n" +
	"From bob@example.com Thu Mar  7 11:00:00 2024\n" +
	"Subject: two\n\nbody two\n" +
	"From carol@example.com Thu Mar  7 12:00:00 2024\n" +
	"Subject: three\n\nbody three\n"

func TestSplitMbox_SplitsOnEnvelopeLines(t *testing.T) {
	t.Parallel()

	var msgs []string
	n, err := SplitMbox(context.Background(), strings.NewReader(sampleMbox), func(raw []byte) error {
		msgs = append(msgs, string(raw))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 || len(msgs) != 3 {
		t.Fatalf("count=%d len(msgs)=%d, want 3", n, len(msgs))
	}
	for i, m := range msgs {
		if strings.Contains(m, "From alice") || strings.Contains(m, "From bob") || strings.Contains(m, "From carol") {
			t.Fatalf("msg %d still carries envelope line: %q", i, m)
		}
	}
	if !strings.HasPrefix(msgs[0], "Subject: one") {
		t.Fatalf("msg 0 = %q", msgs[0])
	}
	if !strings.Contains(msgs[2], "body three") {
		t.Fatalf("msg 2 = %q", msgs[2])
	}
}

func TestSplitMbox_PreambleIgnored(t *testing.T) {
	t.Parallel()

	input := "not a message\nstill not\n" + sampleMbox
	n, err := SplitMbox(context.Background(), strings.NewReader(input), func([]byte) error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("count=%d, want 3", n)
	}
}

func TestSplitMbox_HandlerErrorStops(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	n, err := SplitMbox(context.Background(), strings.NewReader(sampleMbox), func([]byte) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v, want boom", err)
	}
	if n != 1 {
		t.Fatalf("count=%d, want 1", n)
	}
}

func TestSplitMbox_Empty(t *testing.T) {
	t.Parallel()

	n, err := SplitMbox(context.Background(), strings.NewReader(""), func([]byte) error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("count=%d, want 0", n)
	}
}

func TestSplitMbox_Canceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := SplitMbox(ctx, strings.NewReader(sampleMbox), func([]byte) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
}
