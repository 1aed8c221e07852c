package vector

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"sync"

	"github.com/hyperjump/menurag/internal/models"
	"github.com/hyperjump/menurag/pkg/utils"
	"github.com/mitchellh/mapstructure"
	pb "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
)

// BatchSize is the number of points sent per upsert request.
const BatchSize = 100

type pointsClient interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
}

type collectionsClient interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// QdrantOptions configures the connection to a Qdrant cluster.
type QdrantOptions struct {
	Address    string
	Collection string
	APIKey     string
	UseTLS     bool
	Logger     *zap.Logger
}

// QdrantIndex keeps restaurant vectors in a Qdrant collection. The full record travels as the
// point payload so search hits need no local lookup.
type QdrantIndex struct {
	conn        *grpc.ClientConn
	points      pointsClient
	collections collectionsClient
	collection  string
	dimensions  int
	logger      *zap.Logger

	mu        sync.RWMutex
	ensured   bool
	positions map[uint64]int // point id -> position in the indexed catalog
	size      int
}

// NewQdrantIndex connects to Qdrant over gRPC. The connection is lazy; the first Build creates
// the collection if it is missing.
func NewQdrantIndex(opts QdrantOptions, dimensions int) (*QdrantIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	creds := insecure.NewCredentials()
	if opts.UseTLS {
		creds = credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	if opts.APIKey != "" {
		dialOpts = append(dialOpts, grpc.WithUnaryInterceptor(apiKeyInterceptor(opts.APIKey)))
	}
	conn, err := grpc.NewClient(opts.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("dial qdrant %s: %w", opts.Address, err)
	}
	q := newQdrantIndex(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), opts.Collection, dimensions, opts.Logger)
	q.conn = conn
	return q, nil
}

func newQdrantIndex(points pointsClient, collections collectionsClient, collection string, dimensions int, logger *zap.Logger) *QdrantIndex {
	return &QdrantIndex{
		points:      points,
		collections: collections,
		collection:  collection,
		dimensions:  dimensions,
		logger:      utils.OrNop(logger),
		positions:   map[uint64]int{},
	}
}

func apiKeyInterceptor(key string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(metadata.AppendToOutgoingContext(ctx, "api-key", key), method, req, reply, cc, opts...)
	}
}

// Type returns the index type identifier.
func (q *QdrantIndex) Type() string {
	return string(IndexTypeQdrant)
}

// EnsureCollection creates the collection with cosine distance when it does not exist.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == q.collection {
			q.logger.Debug("using existing collection", zap.String("collection", q.collection))
			return nil
		}
	}
	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(q.dimensions),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", q.collection, err)
	}
	q.logger.Info("created collection", zap.String("collection", q.collection), zap.Int("dimensions", q.dimensions))
	return nil
}

// PointID is the record id when it parses as a non-negative integer, otherwise the position.
func PointID(recordID string, position int) uint64 {
	if id, err := strconv.ParseUint(recordID, 10, 64); err == nil {
		return id
	}
	return uint64(position)
}

// Build ensures the collection and upserts every record in batches of BatchSize.
func (q *QdrantIndex) Build(ctx context.Context, records []models.Restaurant, vectors [][]float32) error {
	if len(records) != len(vectors) {
		return fmt.Errorf("records and vectors length mismatch: %d != %d", len(records), len(vectors))
	}
	if err := q.EnsureCollection(ctx); err != nil {
		return err
	}
	positions := make(map[uint64]int, len(records))
	sent, err := q.upsert(ctx, 0, records, vectors, positions)
	if err != nil {
		return err
	}
	q.mu.Lock()
	q.ensured = true
	q.positions = positions
	q.size = len(records)
	q.mu.Unlock()
	q.logger.Info("indexed restaurants", zap.String("collection", q.collection), zap.Int("points", sent))
	return nil
}

// Upsert adds records whose positions start at offset, keeping everything indexed so far. It lets
// a caller stream a catalog into the collection one batch at a time. The collection is ensured
// on first use.
func (q *QdrantIndex) Upsert(ctx context.Context, offset int, records []models.Restaurant, vectors [][]float32) error {
	if len(records) != len(vectors) {
		return fmt.Errorf("records and vectors length mismatch: %d != %d", len(records), len(vectors))
	}
	q.mu.RLock()
	ensured := q.ensured
	q.mu.RUnlock()
	if !ensured {
		if err := q.EnsureCollection(ctx); err != nil {
			return err
		}
	}
	positions := make(map[uint64]int, len(records))
	if _, err := q.upsert(ctx, offset, records, vectors, positions); err != nil {
		return err
	}
	q.mu.Lock()
	q.ensured = true
	for id, pos := range positions {
		q.positions[id] = pos
	}
	if end := offset + len(records); end > q.size {
		q.size = end
	}
	q.mu.Unlock()
	return nil
}

// upsert sends records in batches of BatchSize, recording each point's position in positions.
func (q *QdrantIndex) upsert(ctx context.Context, offset int, records []models.Restaurant, vectors [][]float32, positions map[uint64]int) (int, error) {
	batch := make([]*pb.PointStruct, 0, BatchSize)
	sent := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		wait := true
		if _, err := q.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: q.collection,
			Wait:           &wait,
			Points:         batch,
		}); err != nil {
			return fmt.Errorf("upsert %d points: %w", len(batch), err)
		}
		sent += len(batch)
		q.logger.Debug("upserted batch", zap.Int("points", len(batch)), zap.Int("total", offset+sent))
		batch = make([]*pb.PointStruct, 0, BatchSize)
		return nil
	}
	for i, rec := range records {
		if len(vectors[i]) != q.dimensions {
			return sent, fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), q.dimensions)
		}
		pos := offset + i
		id := PointID(rec.ID, pos)
		positions[id] = pos
		batch = append(batch, &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: id}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vectors[i]}},
			},
			Payload: encodePayload(rec),
		})
		if len(batch) == BatchSize {
			if err := flush(); err != nil {
				return sent, err
			}
		}
	}
	if err := flush(); err != nil {
		return sent, err
	}
	return sent, nil
}

// Search queries the collection. A failed request is logged and yields no hits.
func (q *QdrantIndex) Search(ctx context.Context, query []float32, topK int) ([]*Hit, error) {
	if topK <= 0 {
		return nil, nil
	}
	if len(query) != q.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), q.dimensions)
	}
	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         query,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		q.logger.Error("qdrant search failed", zap.String("collection", q.collection), zap.Error(err))
		return []*Hit{}, nil
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	hits := make([]*Hit, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		rec, err := decodePayload(p.GetPayload())
		if err != nil {
			q.logger.Warn("skipping point with unreadable payload", zap.Uint64("id", p.GetId().GetNum()), zap.Error(err))
			continue
		}
		index, ok := q.positions[p.GetId().GetNum()]
		if !ok {
			index = -1
		}
		hits = append(hits, &Hit{Index: index, Restaurant: rec, Score: float64(p.GetScore())})
	}
	return hits, nil
}

// Size returns the number of records indexed by the last Build and any later Upserts.
func (q *QdrantIndex) Size() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.size
}

// Close closes the gRPC connection.
func (q *QdrantIndex) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}

func encodePayload(r models.Restaurant) map[string]*pb.Value {
	items := make([]*pb.Value, len(r.Items))
	for i, it := range r.Items {
		items[i] = &pb.Value{Kind: &pb.Value_StructValue{StructValue: &pb.Struct{Fields: map[string]*pb.Value{
			"name":  stringValue(it.Name),
			"price": {Kind: &pb.Value_DoubleValue{DoubleValue: it.Price}},
		}}}}
	}
	return map[string]*pb.Value{
		"id":      stringValue(r.ID),
		"name":    stringValue(r.Name),
		"address": stringValue(r.Address),
		"items":   {Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: items}}},
	}
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

// decodePayload converts a point payload back into a Restaurant.
func decodePayload(payload map[string]*pb.Value) (models.Restaurant, error) {
	var r models.Restaurant
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &r,
	})
	if err != nil {
		return r, err
	}
	if err := dec.Decode(plainStruct(payload)); err != nil {
		return r, err
	}
	if r.Items == nil {
		r.Items = []models.MenuItem{}
	}
	return r, nil
}

func plainStruct(fields map[string]*pb.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		out[k] = plainValue(v)
	}
	return out
}

func plainValue(v *pb.Value) interface{} {
	switch kind := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return kind.StringValue
	case *pb.Value_IntegerValue:
		return kind.IntegerValue
	case *pb.Value_DoubleValue:
		return kind.DoubleValue
	case *pb.Value_BoolValue:
		return kind.BoolValue
	case *pb.Value_ListValue:
		values := kind.ListValue.GetValues()
		out := make([]interface{}, len(values))
		for i, e := range values {
			out[i] = plainValue(e)
		}
		return out
	case *pb.Value_StructValue:
		return plainStruct(kind.StructValue.GetFields())
	default:
		return nil
	}
}
