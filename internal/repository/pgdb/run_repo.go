package pgdb

import (
	"context"

	"github.com/DRSN-tech/image-indexer/internal/domain"
	"github.com/DRSN-tech/image-indexer/internal/repository/pgdb/converter"
	"github.com/DRSN-tech/image-indexer/pkg/e"
	"github.com/DRSN-tech/image-indexer/pkg/tr"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jimlawless/whereami"
)

// RunRepo реализует журнал прогонов индексации поверх PostgreSQL.
type RunRepo struct {
	pool *pgxpool.Pool
	conv converter.IndexRunConverter
}

func NewRunRepo(pool *pgxpool.Pool, conv converter.IndexRunConverter) *RunRepo {
	return &RunRepo{
		pool: pool,
		conv: conv,
	}
}

// Create фиксирует начало прогона индексации.
func (r *RunRepo) Create(ctx context.Context, run *domain.IndexRun) error {
	tx, err := tr.TxFromCtx(ctx)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	model := r.conv.ToModel(run)
	query := `
		INSERT INTO index_runs (id, directory, docs_count, num_features, model_version, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`

	_, err = tx.Exec(ctx, query,
		model.ID, model.Directory, model.DocsCount, model.NumFeatures,
		model.ModelVersion, model.Status, model.StartedAt,
	)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}

// Finish фиксирует итоги прогона: количество документов, размер вектора признаков, статус.
func (r *RunRepo) Finish(ctx context.Context, run *domain.IndexRun) error {
	tx, err := tr.TxFromCtx(ctx)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	query := `
		UPDATE index_runs
		SET docs_count = $2,
			num_features = $3,
			status = $4,
			finished_at = NOW()
		WHERE id = $1
		RETURNING finished_at;
	`

	run.Status = domain.RunStatusFinished
	err = tx.QueryRow(ctx, query, run.ID, run.DocsCount, run.NumFeatures, string(run.Status)).
		Scan(&run.FinishedAt)
	if err != nil {
		return e.Wrap(whereami.WhereAmI(), err)
	}

	return nil
}
