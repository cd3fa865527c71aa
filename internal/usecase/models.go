package usecase

import "github.com/DRSN-tech/image-indexer/internal/domain"

// INDEX USECASE

// CreateDocsReq — запрос на индексацию директории датасета.
type CreateDocsReq struct {
	Directory string
}

// CreateDocsRes — построенные документы и итоговое число признаков на документ.
type CreateDocsRes struct {
	RunID       string
	Documents   []domain.Document
	NumFeatures int
}

// SearchReq — запрос поиска похожих изображений.
// Label может быть пустым: тогда one-hot часть вектора запроса обнуляется.
type SearchReq struct {
	ImageData []byte
	Label     string
	Limit     uint64
}

// SearchRes — ответ поиска по индексу.
type SearchRes struct {
	Hits []SearchHit
}

// SearchHit — один результат поиска.
type SearchHit struct {
	ID      uint64
	Score   float32
	Payload map[string]any
}

// INFRASTRUCTURE

// ImageTensor — нормализованное изображение в формате CHW.
type ImageTensor struct {
	Data     []float32
	Channels int64
	Height   int64
	Width    int64
}

// ImageBatch — батч тензоров в формате NCHW одним непрерывным буфером.
type ImageBatch struct {
	Data  []float32
	Shape []int64 // [N, C, H, W]
}

// DatasetImage — изображение датасета, прочитанное с диска.
type DatasetImage struct {
	Data     []byte
	Name     string // оригинальное имя файла
	Path     string
	MimeType string
}

// UploadImagesReq — запрос на зеркалирование изображений прогона в MinIO.
type UploadImagesReq struct {
	RunID  string
	Images []DatasetImage
}

// UploadImagesRes — результат загрузки изображений (ключи в MinIO).
type UploadImagesRes struct {
	ImagesKeys []string
}

// PublishRunReq — событие о завершённом прогоне индексации.
type PublishRunReq struct {
	RunID        string
	Directory    string
	DocsCount    int
	NumFeatures  int
	ModelVersion string
}

// MAPPERS

func NewCreateDocsReq(directory string) *CreateDocsReq {
	return &CreateDocsReq{Directory: directory}
}

func NewCreateDocsRes(runID string, documents []domain.Document, numFeatures int) *CreateDocsRes {
	return &CreateDocsRes{
		RunID:       runID,
		Documents:   documents,
		NumFeatures: numFeatures,
	}
}

func NewSearchReq(imageData []byte, label string, limit uint64) *SearchReq {
	return &SearchReq{
		ImageData: imageData,
		Label:     label,
		Limit:     limit,
	}
}

func NewSearchRes(hits []SearchHit) *SearchRes {
	return &SearchRes{Hits: hits}
}

func NewDatasetImage(data []byte, name string, path string, mimeType string) *DatasetImage {
	return &DatasetImage{
		Data:     data,
		Name:     name,
		Path:     path,
		MimeType: mimeType,
	}
}

func NewUploadImagesReq(runID string, images []DatasetImage) *UploadImagesReq {
	return &UploadImagesReq{
		RunID:  runID,
		Images: images,
	}
}

func NewUploadImagesRes(imagesKeys []string) *UploadImagesRes {
	return &UploadImagesRes{
		ImagesKeys: imagesKeys,
	}
}

func NewPublishRunReq(run *domain.IndexRun) *PublishRunReq {
	return &PublishRunReq{
		RunID:        run.ID,
		Directory:    run.Directory,
		DocsCount:    run.DocsCount,
		NumFeatures:  run.NumFeatures,
		ModelVersion: run.ModelVersion,
	}
}
