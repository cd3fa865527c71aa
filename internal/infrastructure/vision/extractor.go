package vision

import (
	"context"
	"fmt"
	"sync"

	"github.com/DRSN-tech/image-indexer/internal/cfg"
	"github.com/DRSN-tech/image-indexer/internal/usecase"
	"github.com/DRSN-tech/image-indexer/pkg/e"
	"github.com/jimlawless/whereami"
	ort "github.com/yalue/onnxruntime_go"
)

// Extractor извлекает эмбеддинги изображений из ONNX-графа VGG-16, усечённого
// на промежуточном слое классификатора: выход графа и есть активация этого
// слоя, поэтому глобальный hook-буфер не нужен.
type Extractor struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	mu         sync.Mutex
}

// NewExtractor инициализирует ONNX Runtime и открывает сессию модели.
func NewExtractor(cfg *cfg.ModelCfg) (*Extractor, error) {
	if cfg.OnnxLibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.OnnxLibraryPath)
	}

	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, e.Wrap(whereami.WhereAmI(), err)
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, e.Wrap(cfg.ModelPath, e.ErrModelNotLoaded)
	}

	session, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		nil,
	)
	if err != nil {
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return &Extractor{
		session:    session,
		inputName:  inputs[0].Name,
		outputName: outputs[0].Name,
	}, nil
}

// Extract прогоняет батч NCHW через сеть и возвращает вектор эмбеддинга
// на каждое изображение батча.
func (x *Extractor) Extract(ctx context.Context, batch *usecase.ImageBatch) ([][]float32, error) {
	const op = "Extractor.Extract"

	if x == nil || x.session == nil {
		return nil, e.Wrap(op, e.ErrModelNotLoaded)
	}

	select {
	case <-ctx.Done():
		return nil, e.Wrap(op, ctx.Err())
	default:
	}

	input, err := ort.NewTensor(ort.NewShape(batch.Shape...), batch.Data)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	defer input.Destroy()

	outputs := []ort.Value{nil}

	// Сессия ONNX Runtime не рассчитана на параллельные вызовы Run
	x.mu.Lock()
	err = x.session.Run([]ort.Value{input}, outputs)
	x.mu.Unlock()
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, e.Wrap(op, fmt.Errorf("unexpected output tensor type %T", outputs[0]))
	}

	return splitEmbeddings(out, batch.Shape[0])
}

// Close освобождает сессию модели.
func (x *Extractor) Close() error {
	if x.session != nil {
		return x.session.Destroy()
	}
	return nil
}

// splitEmbeddings режет выход [N, D] на N векторов с копированием данных,
// т.к. буфер выходного тензора живёт до Destroy.
func splitEmbeddings(out *ort.Tensor[float32], batchSize int64) ([][]float32, error) {
	shape := out.GetShape()
	if len(shape) != 2 || shape[0] != batchSize {
		return nil, fmt.Errorf("unexpected output shape %v for batch of %d", shape, batchSize)
	}

	data := out.GetData()
	dim := int(shape[1])

	embeddings := make([][]float32, 0, batchSize)
	for i := 0; i < int(batchSize); i++ {
		vec := make([]float32, dim)
		copy(vec, data[i*dim:(i+1)*dim])
		embeddings = append(embeddings, vec)
	}

	return embeddings, nil
}
