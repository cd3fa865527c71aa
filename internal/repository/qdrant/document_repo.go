package qdrant

import (
	"context"

	"github.com/DRSN-tech/image-indexer/internal/cfg"
	"github.com/DRSN-tech/image-indexer/internal/domain"
	"github.com/DRSN-tech/image-indexer/internal/usecase"
	"github.com/DRSN-tech/image-indexer/pkg/e"
	"github.com/jimlawless/whereami"
	"github.com/qdrant/go-client/qdrant"
)

// DocumentRepo репозиторий для работы с документами изображений в Qdrant
type DocumentRepo struct {
	client *qdrant.Client
	cfg    *cfg.QdrantCfg
}

func NewDocumentRepo(client *qdrant.Client, cfg *cfg.QdrantCfg) *DocumentRepo {
	return &DocumentRepo{
		client: client,
		cfg:    cfg,
	}
}

// Upsert сохраняет или обновляет документы в указанной коллекции Qdrant.
func (q *DocumentRepo) Upsert(ctx context.Context, docs []domain.Document) error {
	points := make([]*qdrant.PointStruct, 0, len(docs))
	for _, doc := range docs {
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(doc.ID),
			Vectors: qdrant.NewVectors(doc.Features...),
			Payload: qdrant.NewValueMap(doc.Payload),
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.cfg.QdrantCollectionName,
		Points:         points,
	})
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// Search возвращает ближайшие к вектору документы коллекции.
func (q *DocumentRepo) Search(ctx context.Context, vector []float32, limit uint64) ([]usecase.SearchHit, error) {
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.cfg.QdrantCollectionName,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	hits := make([]usecase.SearchHit, 0, len(points))
	for _, point := range points {
		hits = append(hits, usecase.SearchHit{
			ID:      point.GetId().GetNum(),
			Score:   point.GetScore(),
			Payload: payloadToMap(point.GetPayload()),
		})
	}

	return hits, nil
}

// payloadToMap конвертирует qdrant-значения payload в обычную map.
func payloadToMap(payload map[string]*qdrant.Value) map[string]any {
	result := make(map[string]any, len(payload))
	for key, value := range payload {
		switch v := value.GetKind().(type) {
		case *qdrant.Value_StringValue:
			result[key] = v.StringValue
		case *qdrant.Value_IntegerValue:
			result[key] = v.IntegerValue
		case *qdrant.Value_DoubleValue:
			result[key] = v.DoubleValue
		case *qdrant.Value_BoolValue:
			result[key] = v.BoolValue
		default:
			result[key] = value.String()
		}
	}

	return result
}
