package pgdb

import (
	"context"

	"github.com/DRSN-tech/image-indexer/internal/domain"
	"github.com/DRSN-tech/image-indexer/pkg/e"
	"github.com/DRSN-tech/image-indexer/pkg/tr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jimlawless/whereami"
)

// DocumentMetaRepo хранит метаданные проиндексированных документов в PostgreSQL.
// Сами векторы признаков живут только в Qdrant.
type DocumentMetaRepo struct {
	pool *pgxpool.Pool
}

func NewDocumentMetaRepo(pool *pgxpool.Pool) *DocumentMetaRepo {
	return &DocumentMetaRepo{
		pool: pool,
	}
}

// InsertBatch вставляет метаданные документов прогона одним pgx-батчем.
func (d *DocumentMetaRepo) InsertBatch(ctx context.Context, runID string, docs []domain.Document) error {
	tx, err := tr.TxFromCtx(ctx)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	query := `
		INSERT INTO documents (run_id, doc_id, filename, path, label)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id, doc_id) DO NOTHING;
	`

	batch := &pgx.Batch{}
	for _, doc := range docs {
		batch.Queue(query, runID, int64(doc.ID), doc.Filename, doc.Path, doc.Label)
	}

	results := tx.SendBatch(ctx, batch)
	defer results.Close()

	for range docs {
		if _, err := results.Exec(); err != nil {
			return e.Wrap(whereami.WhereAmI(), err)
		}
	}

	return nil
}
