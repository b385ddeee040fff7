// Package vecindex is the thin gateway to the vector search engine. It owns
// collection lifecycle, batched upserts with per-point outcomes, and k-NN
// search with scalar filters and id exclusion; everything else stays with the
// engine.
package vecindex

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Point is one embedded document headed for the index. ID is the
// deterministic document id; the engine-side point id is derived from it so
// re-upserting the same document overwrites instead of duplicating.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// Hit is one search result with its payload.
type Hit struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// SearchFilter narrows a k-NN query. Zero values mean "no constraint".
type SearchFilter struct {
	Kinds      []string // match the "type" payload field
	ThreadID   string   // match the "thread_id" payload field
	ExcludeIDs []string // document ids to exclude from results
}

// UpsertOutcome reports per-point success after a batch upsert. Failed maps
// document id to the final error once retries are exhausted.
type UpsertOutcome struct {
	Succeeded int
	Failed    map[string]error
}

const (
	upsertAttempts = 3
	searchAttempts = 3
	baseBackoff    = 2 * time.Second
)

// docNamespace seeds the UUIDv5 derivation of engine point ids from document
// ids. It must never change once data has been indexed.
var docNamespace = uuid.MustParse("8f6f2a44-9a1e-4bd0-9c93-42f1a6a0d6c1")

// PointID derives the engine point id for a document id. The mapping is
// deterministic so pipeline re-runs overwrite rather than duplicate.
func PointID(docID string) string {
	return uuid.NewSHA1(docNamespace, []byte(docID)).String()
}

// Store talks to a Qdrant deployment over gRPC.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	log         *log.Logger
}

// Dial connects to the engine. The connection is lazy; configuration errors
// surface on the first call.
func Dial(addr, apiKey string, useTLS bool, logger *log.Logger) (*Store, error) {
	if addr == "" {
		return nil, errors.New("vecindex.Dial: addr is empty")
	}
	if logger == nil {
		logger = log.Default()
	}

	opts := make([]grpc.DialOption, 0, 2)
	if useTLS {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(nil)))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
	if strings.TrimSpace(apiKey) != "" {
		opts = append(opts, grpc.WithPerRPCCredentials(apiKeyCredentials{apiKey: apiKey, requireTLS: useTLS}))
	}

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("vecindex.Dial: connect: %w", err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		log:         logger.With("component", "vecindex"),
	}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// CollectionExists reports whether a collection is present.
func (s *Store) CollectionExists(ctx context.Context, name string) (bool, error) {
	_, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
	if err == nil {
		return true, nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "not found") ||
		strings.Contains(strings.ToLower(err.Error()), "doesn't exist") {
		return false, nil
	}
	return false, fmt.Errorf("CollectionExists: %w", err)
}

// EnsureCollection creates the collection with a cosine-distance vector field
// of the given dimensionality if it does not already exist. A dimensionality
// mismatch against an existing collection is a configuration error and is
// surfaced immediately.
func (s *Store) EnsureCollection(ctx context.Context, name string, dim int) error {
	if name == "" {
		return errors.New("EnsureCollection: name is empty")
	}
	if dim <= 0 {
		return fmt.Errorf("EnsureCollection: dimension must be > 0, got %d", dim)
	}

	info, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
	if err == nil {
		existing := collectionDimension(info)
		if existing != 0 && existing != uint64(dim) {
			return fmt.Errorf("EnsureCollection: collection %q has dimension %d, want %d", name, existing, dim)
		}
		return nil
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dim),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("EnsureCollection: create %q: %w", name, err)
	}
	s.log.Info("created collection", "name", name, "dimension", dim)
	return nil
}

// WipeCollection deletes a collection; deleting a missing collection is not
// an error.
func (s *Store) WipeCollection(ctx context.Context, name string) error {
	if name == "" {
		return errors.New("WipeCollection: name is empty")
	}
	_, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name})
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "not found") {
		return fmt.Errorf("WipeCollection: %w", err)
	}
	s.log.Info("wiped collection", "name", name)
	return nil
}

// Upsert writes a batch of points. Transient transport errors retry the whole
// batch with exponential backoff; once retries are exhausted the batch falls
// back to per-point writes so one poisoned point cannot sink its siblings.
// The outcome reports per-document success and failure; Upsert itself only
// errors on misuse.
func (s *Store) Upsert(ctx context.Context, collection string, points []Point) (UpsertOutcome, error) {
	outcome := UpsertOutcome{Failed: make(map[string]error)}
	if collection == "" {
		return outcome, errors.New("Upsert: collection is empty")
	}
	if len(points) == 0 {
		return outcome, nil
	}

	structs := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		structs[i] = pointStruct(p)
	}

	err := s.retryTransient(ctx, upsertAttempts, func() error {
		_, callErr := s.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: collection,
			Points:         structs,
		})
		return callErr
	})
	if err == nil {
		outcome.Succeeded = len(points)
		return outcome, nil
	}

	s.log.Warn("batch upsert failed, isolating points", "collection", collection, "size", len(points), "err", err)
	for i, p := range points {
		perr := s.retryTransient(ctx, upsertAttempts, func() error {
			_, callErr := s.points.Upsert(ctx, &pb.UpsertPoints{
				CollectionName: collection,
				Points:         []*pb.PointStruct{structs[i]},
			})
			return callErr
		})
		if perr != nil {
			outcome.Failed[p.ID] = perr
			continue
		}
		outcome.Succeeded++
	}
	return outcome, nil
}

// Search runs a k-NN query and returns ranked hits.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, k int, filter SearchFilter) ([]Hit, error) {
	if collection == "" {
		return nil, errors.New("Search: collection is empty")
	}
	if len(vector) == 0 {
		return nil, errors.New("Search: vector is empty")
	}
	if k <= 0 {
		k = 5
	}

	var resp *pb.SearchResponse
	err := s.retryTransient(ctx, searchAttempts, func() error {
		var callErr error
		resp, callErr = s.points.Search(ctx, &pb.SearchPoints{
			CollectionName: collection,
			Vector:         vector,
			Limit:          uint64(k),
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
			Filter:         searchFilter(filter),
		})
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("Search: %w", err)
	}

	hits := make([]Hit, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		hits = append(hits, Hit{
			ID:      payloadDocID(pt.GetPayload()),
			Score:   pt.GetScore(),
			Payload: fromPayload(pt.GetPayload()),
		})
	}
	return hits, nil
}

// FetchByThread scrolls every point of a thread (no vector scoring), used to
// reconstruct primary content after the summary index picked the thread.
func (s *Store) FetchByThread(ctx context.Context, collection, threadID string, limit int) ([]Hit, error) {
	if collection == "" {
		return nil, errors.New("FetchByThread: collection is empty")
	}
	if threadID == "" {
		return nil, errors.New("FetchByThread: threadID is empty")
	}
	if limit <= 0 {
		limit = 1000
	}

	var resp *pb.ScrollResponse
	err := s.retryTransient(ctx, searchAttempts, func() error {
		var callErr error
		resp, callErr = s.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: collection,
			Limit:          ptrUint32(uint32(limit)),
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
			Filter: &pb.Filter{
				Must: []*pb.Condition{
					fieldMatch("thread_id", threadID),
					fieldMatchAny("type", []string{"email", "attachment"}),
				},
			},
		})
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("FetchByThread: %w", err)
	}

	hits := make([]Hit, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		hits = append(hits, Hit{
			ID:      payloadDocID(pt.GetPayload()),
			Payload: fromPayload(pt.GetPayload()),
		})
	}
	return hits, nil
}

// retryTransient retries fn on transient transport failures with exponential
// backoff, capped at attempts. Permanent errors return immediately.
func (s *Store) retryTransient(ctx context.Context, attempts int, fn func() error) error {
	var err error
	backoff := baseBackoff
	for attempt := 0; attempt < attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isTransient(err) || attempt == attempts-1 {
			return err
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return err
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unavailable") ||
		strings.Contains(s, "deadline exceeded") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "resource exhausted") ||
		strings.Contains(s, "too many requests")
}

type apiKeyCredentials struct {
	apiKey     string
	requireTLS bool
}

func (a apiKeyCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"api-key": a.apiKey}, nil
}

func (a apiKeyCredentials) RequireTransportSecurity() bool {
	return a.requireTLS
}

func ptrUint32(v uint32) *uint32 { return &v }

func collectionDimension(info *pb.GetCollectionInfoResponse) uint64 {
	params := info.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return 0
	}
	return params.GetSize()
}
