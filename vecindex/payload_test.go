package vecindex

import (
	"errors"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
)

func TestPointID_Deterministic(t *testing.T) {
	t.Parallel()

	a := PointID("m1_chunk_0")
	b := PointID("m1_chunk_0")
	if a != b {
		t.Fatalf("PointID not deterministic: %q vs %q", a, b)
	}
	if a == PointID("m1_chunk_1") {
		t.Fatal("distinct documents share a point id")
	}
	if len(a) != 36 {
		t.Fatalf("not a UUID: %q", a)
	}
}

func TestPointStruct_CarriesDocID(t *testing.T) {
	t.Parallel()

	p := Point{
		ID:      "m1_chunk_0",
		Vector:  []float32{1, 2},
		Payload: map[string]any{"type": "email"},
	}
	ps := pointStruct(p)

	if got := ps.GetId().GetUuid(); got != PointID("m1_chunk_0") {
		t.Fatalf("point id=%q, want derived uuid", got)
	}
	if got := ps.GetPayload()["doc_id"].GetStringValue(); got != "m1_chunk_0" {
		t.Fatalf("doc_id payload=%q", got)
	}
	if got := ps.GetPayload()["type"].GetStringValue(); got != "email" {
		t.Fatalf("type payload=%q", got)
	}
	if got := ps.GetVectors().GetVector().GetData(); len(got) != 2 {
		t.Fatalf("vector=%v", got)
	}
}

func TestSearchFilter_Empty(t *testing.T) {
	t.Parallel()

	if f := searchFilter(SearchFilter{}); f != nil {
		t.Fatalf("empty filter built conditions: %v", f)
	}
}

func TestSearchFilter_KindAndThread(t *testing.T) {
	t.Parallel()

	f := searchFilter(SearchFilter{Kinds: []string{"thread_summary"}, ThreadID: "root"})
	if len(f.GetMust()) != 2 {
		t.Fatalf("must=%v, want 2 conditions", f.GetMust())
	}
	if len(f.GetMustNot()) != 0 {
		t.Fatalf("mustNot=%v, want none", f.GetMustNot())
	}
}

func TestSearchFilter_MultipleKinds(t *testing.T) {
	t.Parallel()

	f := searchFilter(SearchFilter{Kinds: []string{"email", "attachment"}})
	must := f.GetMust()
	if len(must) != 1 {
		t.Fatalf("must=%v, want 1 condition", must)
	}
	keywords := must[0].GetField().GetMatch().GetKeywords().GetStrings()
	if len(keywords) != 2 {
		t.Fatalf("keywords=%v", keywords)
	}
}

func TestSearchFilter_Exclusions(t *testing.T) {
	t.Parallel()

	f := searchFilter(SearchFilter{ExcludeIDs: []string{"t_a", "t_b"}})
	mustNot := f.GetMustNot()
	if len(mustNot) != 1 {
		t.Fatalf("mustNot=%v, want 1 condition", mustNot)
	}
	ids := mustNot[0].GetHasId().GetHasId()
	if len(ids) != 2 {
		t.Fatalf("ids=%v, want 2", ids)
	}
	if ids[0].GetUuid() != PointID("t_a") {
		t.Fatalf("excluded id=%q, want derived uuid", ids[0].GetUuid())
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	t.Parallel()

	in := map[string]any{
		"type":         "email",
		"chunk_index":  3,
		"score":        0.5,
		"flagged":      true,
		"participants": []string{"a@x", "b@x"},
	}
	out := fromPayload(toPayload(in))

	if out["type"] != "email" || out["flagged"] != true {
		t.Fatalf("out=%v", out)
	}
	if out["chunk_index"] != int64(3) {
		t.Fatalf("chunk_index=%v (%T)", out["chunk_index"], out["chunk_index"])
	}
	if out["score"] != 0.5 {
		t.Fatalf("score=%v", out["score"])
	}
	list, ok := out["participants"].([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("participants=%v", out["participants"])
	}
}

func TestPayloadDocID(t *testing.T) {
	t.Parallel()

	m := map[string]*pb.Value{
		"doc_id": {Kind: &pb.Value_StringValue{StringValue: "m1_chunk_0"}},
	}
	if got := payloadDocID(m); got != "m1_chunk_0" {
		t.Fatalf("payloadDocID=%q", got)
	}
	if got := payloadDocID(map[string]*pb.Value{}); got != "" {
		t.Fatalf("payloadDocID(empty)=%q", got)
	}
}

func TestIsTransient(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  string
		want bool
	}{
		{"rpc error: code = Unavailable desc = connection error", true},
		{"context deadline exceeded", true},
		{"dial tcp: connection refused", true},
		{"resource exhausted", true},
		{"rpc error: code = InvalidArgument desc = bad vector", false},
		{"collection not found", false},
	}
	for _, tc := range cases {
		if got := isTransient(errors.New(tc.err)); got != tc.want {
			t.Fatalf("isTransient(%q)=%v, want %v", tc.err, got, tc.want)
		}
	}
	if isTransient(nil) {
		t.Fatal("nil classified as transient")
	}
}
