package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/theimaginaryfoundation/mail-recall/vecindex"
)

type fakeIndex struct {
	batches  [][]vecindex.Point
	failWhen func(batch []vecindex.Point) error
}

func (f *fakeIndex) Upsert(_ context.Context, _ string, pts []vecindex.Point) (vecindex.UpsertOutcome, error) {
	if f.failWhen != nil {
		if err := f.failWhen(pts); err != nil {
			return vecindex.UpsertOutcome{}, err
		}
	}
	f.batches = append(f.batches, pts)
	return vecindex.UpsertOutcome{Succeeded: len(pts)}, nil
}

func vectored(id string) Document {
	return Document{DocID: id, Kind: KindEmail, ChunkText: "t", Vector: []float32{1}}
}

func TestUpsertDocuments_SkipsUnvectored(t *testing.T) {
	t.Parallel()

	idx := &fakeIndex{}
	docs := []Document{
		vectored("a"),
		{DocID: "no-vector", Kind: KindEmail, ChunkText: "t"},
		vectored("b"),
	}

	tally, err := UpsertDocuments(context.Background(), idx, "col", docs, IndexOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if tally.Succeeded != 2 || tally.Skipped != 1 || tally.Failed != 0 {
		t.Fatalf("tally=%+v, want 2/0/1", tally)
	}
}

func TestUpsertDocuments_Batches(t *testing.T) {
	t.Parallel()

	idx := &fakeIndex{}
	docs := make([]Document, 5)
	for i := range docs {
		docs[i] = vectored(string(rune('a' + i)))
	}

	tally, err := UpsertDocuments(context.Background(), idx, "col", docs, IndexOptions{BatchSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	if tally.Succeeded != 5 {
		t.Fatalf("tally=%+v, want 5 succeeded", tally)
	}
	if len(idx.batches) != 3 {
		t.Fatalf("batches=%d, want 3", len(idx.batches))
	}
}

func TestUpsertDocuments_FailedBatchContinues(t *testing.T) {
	t.Parallel()

	idx := &fakeIndex{
		failWhen: func(batch []vecindex.Point) error {
			if batch[0].ID == "a" {
				return errors.New("upsert: broken pipe")
			}
			return nil
		},
	}
	docs := []Document{vectored("a"), vectored("b"), vectored("c"), vectored("d")}

	tally, err := UpsertDocuments(context.Background(), idx, "col", docs, IndexOptions{BatchSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	if tally.Failed != 2 || tally.Succeeded != 2 {
		t.Fatalf("tally=%+v, want 2 failed 2 succeeded", tally)
	}
}

func TestUpsertDocuments_PayloadCarriesDocID(t *testing.T) {
	t.Parallel()

	idx := &fakeIndex{}
	docs := []Document{vectored("doc-1")}
	if _, err := UpsertDocuments(context.Background(), idx, "col", docs, IndexOptions{}); err != nil {
		t.Fatal(err)
	}
	pt := idx.batches[0][0]
	if pt.ID != "doc-1" {
		t.Fatalf("point id=%q", pt.ID)
	}
	if pt.Payload["type"] != "email" {
		t.Fatalf("payload=%v", pt.Payload)
	}
}
