package vectorindex

import (
	"context"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/yanqian/health-assistant/internal/domain/healthbot"
)

// Qdrant searches a collection whose numeric point ids are corpus positions.
type Qdrant struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	dim         int
	count       int
}

// NewQdrant connects to Qdrant over gRPC and reads the collection size.
func NewQdrant(ctx context.Context, addr, collection string, dim int) (*Qdrant, error) {
	q, err := DialQdrant(addr, collection, dim)
	if err != nil {
		return nil, err
	}
	if err := q.refreshCount(ctx); err != nil {
		q.conn.Close()
		return nil, err
	}
	return q, nil
}

// DialQdrant connects without touching the collection, which may not exist yet.
func DialQdrant(addr, collection string, dim int) (*Qdrant, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("vectorindex: dial qdrant %s: %w", addr, err)
	}
	return &Qdrant{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		dim:         dim,
	}, nil
}

func (q *Qdrant) refreshCount(ctx context.Context) error {
	exact := true
	resp, err := q.points.Count(ctx, &pb.CountPoints{CollectionName: q.collection, Exact: &exact})
	if err != nil {
		return fmt.Errorf("vectorindex: count %s: %w", q.collection, err)
	}
	q.count = int(resp.GetResult().GetCount())
	return nil
}

// Close closes the underlying gRPC connection.
func (q *Qdrant) Close() error {
	return q.conn.Close()
}

// Search performs k-NN search and maps point ids back to positions.
func (q *Qdrant) Search(ctx context.Context, vector []float32, k int) ([]healthbot.IndexHit, error) {
	if k <= 0 || q.count == 0 {
		return nil, nil
	}
	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         vector,
		Limit:          uint64(k),
	})
	if err != nil {
		return nil, fmt.Errorf("vectorindex: qdrant search: %w", err)
	}
	hits := make([]healthbot.IndexHit, 0, len(resp.GetResult()))
	for _, r := range resp.GetResult() {
		hits = append(hits, healthbot.IndexHit{Position: int(r.GetId().GetNum()), Score: float64(r.GetScore())})
	}
	return hits, nil
}

// Len reports the point count observed at construction.
func (q *Qdrant) Len() int {
	return q.count
}

// Dimension reports the configured embedding size.
func (q *Qdrant) Dimension() int {
	return q.dim
}

// Replace recreates the collection and uploads rows with their positions as ids.
func (q *Qdrant) Replace(ctx context.Context, rows [][]float32) error {
	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("vectorindex: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == q.collection {
			if _, err := q.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: q.collection}); err != nil {
				return fmt.Errorf("vectorindex: delete collection %s: %w", q.collection, err)
			}
		}
	}
	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{Size: uint64(q.dim), Distance: pb.Distance_Dot},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectorindex: create collection %s: %w", q.collection, err)
	}

	const batchSize = 256
	wait := true
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		points := make([]*pb.PointStruct, 0, end-start)
		for pos := start; pos < end; pos++ {
			points = append(points, &pb.PointStruct{
				Id:      &pb.PointId{PointIdOptions: &pb.PointId_Num{Num: uint64(pos)}},
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: rows[pos]}}},
			})
		}
		if _, err := q.points.Upsert(ctx, &pb.UpsertPoints{CollectionName: q.collection, Wait: &wait, Points: points}); err != nil {
			return fmt.Errorf("vectorindex: upsert %d points: %w", len(points), err)
		}
	}
	q.count = len(rows)
	return nil
}

var _ healthbot.VectorIndex = (*Qdrant)(nil)
