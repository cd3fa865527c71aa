package usecase

import (
	"context"

	"github.com/DRSN-tech/image-indexer/internal/domain"
)

type DocumentRepository interface {
	Upsert(ctx context.Context, docs []domain.Document) error
	Search(ctx context.Context, vector []float32, limit uint64) ([]SearchHit, error)
}

type RunRepository interface {
	Create(ctx context.Context, run *domain.IndexRun) error
	Finish(ctx context.Context, run *domain.IndexRun) error
}

type DocumentMetaRepository interface {
	InsertBatch(ctx context.Context, runID string, docs []domain.Document) error
}

type ImageRepository interface {
	Upload(ctx context.Context, image *domain.Image) (string, error)
	Delete(ctx context.Context, key string) error
}

type CacheRepository interface {
	GetFeatures(ctx context.Context, keys []string) (map[string][]float32, error)
	SetFeatures(ctx context.Context, features map[string][]float32) error
}
