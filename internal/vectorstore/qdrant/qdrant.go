package qdrant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"finrag/internal/domain"
	"finrag/internal/vectorstore"
)

const (
	payloadChunkID = "chunk_id"
	payloadText    = "text"
)

// chunk ids such as "0_1_c0" are not valid Qdrant point ids, so each is
// mapped to a name-based UUID in this namespace.
var pointNamespace = uuid.MustParse("123e4567-e89b-12d3-a456-426614174000")

// Storage is a gRPC client to Qdrant using cosine distance.
type Storage struct {
	client *qdrant.Client
	logger *zap.Logger
}

type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

func NewStorage(cfg Config, logger *zap.Logger) (*Storage, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant client: %w", err)
	}
	return &Storage{client: client, logger: logger}, nil
}

func (s *Storage) ResetCollection(ctx context.Context, name string, dimension int) (domain.Collection, error) {
	if dimension <= 0 {
		return nil, errors.New("invalid dimension")
	}
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if exists {
		if err := s.client.DeleteCollection(ctx, name); err != nil {
			return nil, fmt.Errorf("err delete collection %s: %w", name, err)
		}
	} else {
		s.logger.Info("collection not found, creating new one", zap.String("collection", name))
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("err create collection %s: %w", name, err)
	}
	return &Collection{client: s.client, name: name, dimension: dimension}, nil
}

func (s *Storage) Collection(ctx context.Context, name string) (domain.Collection, error) {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, name)
	}
	info, err := s.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return nil, err
	}
	dim := int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
	return &Collection{client: s.client, name: name, dimension: dim}, nil
}

func (s *Storage) Close() error { return s.client.Close() }

type Collection struct {
	client    *qdrant.Client
	name      string
	dimension int
}

func (c *Collection) Name() string { return c.name }

// Add upserts all records in one request and waits for it to be applied.
func (c *Collection) Add(ctx context.Context, records []domain.Record) error {
	if err := vectorstore.ValidateRecords(records, c.dimension); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, len(records))
	for i, r := range records {
		md := map[string]any{
			payloadChunkID: r.ID,
			payloadText:    r.Text,
		}
		for k, v := range r.Metadata {
			md[k] = v
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(PointID(r.ID)),
			Vectors: qdrant.NewVectorsDense(r.Vector),
			Payload: qdrant.NewValueMap(md),
		}
	}
	_, err := c.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: c.name,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	return err
}

func (c *Collection) Query(ctx context.Context, vector []float32, k int) ([]domain.Hit, error) {
	if k <= 0 {
		k = 5
	}
	res, err := c.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: c.name,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, err
	}
	hits := make([]domain.Hit, 0, len(res))
	for _, p := range res {
		hits = append(hits, domain.Hit{
			ID:          p.GetPayload()[payloadChunkID].GetStringValue(),
			ParagraphID: p.GetPayload()[domain.MetaParagraphID].GetStringValue(),
			Text:        p.GetPayload()[payloadText].GetStringValue(),
			Score:       float64(p.GetScore()),
		})
	}
	return hits, nil
}

func (c *Collection) Count(ctx context.Context) (int, error) {
	n, err := c.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: c.name,
		Exact:          qdrant.PtrOf(true),
	})
	return int(n), err
}

// PointID maps a chunk id onto the UUID used as its Qdrant point id.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}
