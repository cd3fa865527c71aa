package usecase

import "context"

// ImageTransformer декодирует изображение и приводит его к нормализованному
// CHW-тензору, пригодному для подачи в сеть.
type ImageTransformer interface {
	Transform(data []byte) (*ImageTensor, error)
}

// FeatureExtractor возвращает эмбеддинги промежуточного слоя сети для батча
// изображений. Активация возвращается явным значением на каждый вызов.
type FeatureExtractor interface {
	Extract(ctx context.Context, batch *ImageBatch) ([][]float32, error)
}

// Reducer применяет предобученную линейную проекцию (PCA) к эмбеддингам.
type Reducer interface {
	Transform(vectors [][]float32) ([][]float32, error)
	OutputDim() int
}

type ImagesInfra interface {
	UploadImages(ctx context.Context, req *UploadImagesReq) (*UploadImagesRes, error)
	CleanupImages(keys []string)
}

type EventProducer interface {
	PublishRunFinished(ctx context.Context, req *PublishRunReq) error
}
