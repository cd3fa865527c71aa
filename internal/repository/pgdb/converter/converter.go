package converter

import (
	"github.com/DRSN-tech/image-indexer/internal/domain"
)

// IndexRunConverter преобразует сущности IndexRun между domain и моделью PostgreSQL.
type IndexRunConverter interface {
	ToModel(entity *domain.IndexRun) *IndexRunModel
	ToEntity(model *IndexRunModel) *domain.IndexRun
}

type IndexRunConverterImpl struct{}

func NewIndexRunConverterImpl() *IndexRunConverterImpl {
	return &IndexRunConverterImpl{}
}

func (c *IndexRunConverterImpl) ToModel(entity *domain.IndexRun) *IndexRunModel {
	return &IndexRunModel{
		ID:           entity.ID,
		Directory:    entity.Directory,
		DocsCount:    entity.DocsCount,
		NumFeatures:  entity.NumFeatures,
		ModelVersion: entity.ModelVersion,
		Status:       string(entity.Status),
		StartedAt:    entity.StartedAt,
		FinishedAt:   entity.FinishedAt,
	}
}

func (c *IndexRunConverterImpl) ToEntity(model *IndexRunModel) *domain.IndexRun {
	return &domain.IndexRun{
		ID:           model.ID,
		Directory:    model.Directory,
		DocsCount:    model.DocsCount,
		NumFeatures:  model.NumFeatures,
		ModelVersion: model.ModelVersion,
		Status:       domain.RunStatus(model.Status),
		StartedAt:    model.StartedAt,
		FinishedAt:   model.FinishedAt,
	}
}
