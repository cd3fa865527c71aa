package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/DRSN-tech/image-indexer/internal/domain"
	"github.com/DRSN-tech/image-indexer/pkg/e"
	"github.com/DRSN-tech/image-indexer/pkg/logger"
	transaction "github.com/avito-tech/go-transaction-manager/drivers/pgxv5/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// IndexUseCase реализует бизнес-логику извлечения признаков и сборки документов.
type IndexUseCase struct {
	transformer  ImageTransformer
	extractor    FeatureExtractor
	reducer      Reducer
	labels       domain.LabelMapping
	docRepo      DocumentRepository
	runRepo      RunRepository
	docMetaRepo  DocumentMetaRepository
	dbPool       transaction.Transactional
	imagesInfra  ImagesInfra
	cacheRepo    CacheRepository
	producer     EventProducer
	logger       logger.Logger
	modelVersion string
	batchSize    int
}

func NewIndexUC(
	transformer ImageTransformer,
	extractor FeatureExtractor,
	reducer Reducer,
	labels domain.LabelMapping,
	docRepo DocumentRepository,
	runRepo RunRepository,
	docMetaRepo DocumentMetaRepository,
	dbPool transaction.Transactional,
	imagesInfra ImagesInfra,
	cacheRepo CacheRepository,
	producer EventProducer,
	logger logger.Logger,
	modelVersion string,
	batchSize int,
) *IndexUseCase {
	return &IndexUseCase{
		transformer:  transformer,
		extractor:    extractor,
		reducer:      reducer,
		labels:       labels,
		docRepo:      docRepo,
		runRepo:      runRepo,
		docMetaRepo:  docMetaRepo,
		dbPool:       dbPool,
		imagesInfra:  imagesInfra,
		cacheRepo:    cacheRepo,
		producer:     producer,
		logger:       logger,
		modelVersion: modelVersion,
		batchSize:    batchSize,
	}
}

// pendingDoc — промежуточное состояние документа до получения редуцированного вектора.
type pendingDoc struct {
	id      uint64
	label   string
	image   DatasetImage
	hashKey string
	reduced []float32
}

// CreateDocs читает директорию датасета, прогоняет каждое изображение через
// сеть и PCA, дописывает one-hot вектор класса и собирает документы индекса.
// Документы пушатся в Qdrant, изображения зеркалируются в MinIO, метаданные
// прогона фиксируются в PostgreSQL в одной транзакции.
func (p *IndexUseCase) CreateDocs(ctx context.Context, req *CreateDocsReq) (*CreateDocsRes, error) {
	const op = "IndexUseCase.CreateDocs"

	// Проверка предусловий: директория, модель, проекция
	var err error
	err = p.validatePipeline(req.Directory)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	files, err := p.listImageFiles(req.Directory)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	run := domain.NewIndexRun(uuid.NewString(), req.Directory, p.modelVersion)

	var (
		imagesRes *UploadImagesRes
		uploaded  bool
	)

	ctx, tx, err := transaction.NewTransaction(ctx, pgx.TxOptions{}, p.dbPool)
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	// Если произошла ошибка, происходит Rollback транзакции и очистка зеркалированных изображений
	defer func() {
		if err != nil {
			if tx.IsActive() {
				tx.Rollback(ctx)
			}

			if uploaded && imagesRes != nil {
				p.logger.Warnf(
					"Cleaning up mirrored images after run failure. run_id: %s, error: %v",
					run.ID,
					e.Wrap(op, err),
				)

				p.imagesInfra.CleanupImages(imagesRes.ImagesKeys)
			}
		}
	}()
	ctx = context.WithValue(ctx, "tx", tx.Transaction())

	err = p.runRepo.Create(ctx, run)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	// Извлечение признаков батчами и сборка документов
	docs, images, newFeatures, err := p.buildDocuments(ctx, req.Directory, files)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	if len(docs) == 0 {
		err = e.ErrNoDocuments
		return nil, e.Wrap(op, err)
	}

	run.DocsCount = len(docs)
	run.NumFeatures = len(docs[0].Features)

	// Пуш документов в Qdrant
	err = p.docRepo.Upsert(ctx, docs)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	// Зеркалирование изображений прогона в MinIO
	imagesRes, err = p.imagesInfra.UploadImages(ctx, NewUploadImagesReq(run.ID, images))
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	uploaded = true

	// Фиксация метаданных документов и итогов прогона
	err = p.docMetaRepo.InsertBatch(ctx, run.ID, docs)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	err = p.runRepo.Finish(ctx, run)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	err = tx.Commit(ctx)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	// Фоновое кэширование свежепосчитанных векторов
	if len(newFeatures) > 0 {
		go func() {
			bgCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			if err := p.cacheRepo.SetFeatures(bgCtx, newFeatures); err != nil {
				p.logger.Warnf("Failed to cache features in background: %v", e.Wrap(op, err))
			}
		}()
	}

	if err := p.producer.PublishRunFinished(ctx, NewPublishRunReq(run)); err != nil {
		p.logger.Warnf("Failed to publish run event: %v", e.Wrap(op, err))
	}

	return NewCreateDocsRes(run.ID, docs, run.NumFeatures), nil
}

// SearchSimilar строит вектор признаков запросного изображения тем же
// пайплайном и ищет ближайшие документы в индексе.
func (p *IndexUseCase) SearchSimilar(ctx context.Context, req *SearchReq) (*SearchRes, error) {
	const op = "IndexUseCase.SearchSimilar"

	if len(req.ImageData) == 0 {
		return nil, e.Wrap(op, e.ErrNoImage)
	}
	if p.extractor == nil {
		return nil, e.Wrap(op, e.ErrModelNotLoaded)
	}
	if p.reducer == nil {
		return nil, e.Wrap(op, e.ErrProjectionNotLoaded)
	}

	tensor, err := p.transformer.Transform(req.ImageData)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	reduced, err := p.extractAndReduce(ctx, []*ImageTensor{tensor})
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	// У запроса метка может быть неизвестна: тогда one-hot часть остаётся нулевой
	labelVec := make([]float32, p.labels.NumClasses())
	if req.Label != "" {
		labelVec, err = p.labels.OneHot(req.Label)
		if err != nil {
			return nil, e.Wrap(op, err)
		}
	}

	vector := concatFeatures(reduced[0], labelVec)

	limit := req.Limit
	if limit == 0 {
		limit = 10
	}

	hits, err := p.docRepo.Search(ctx, vector, limit)
	if err != nil {
		return nil, e.Wrap(op, err)
	}

	return NewSearchRes(hits), nil
}

// buildDocuments обрабатывает файлы директории батчами. Возвращает документы,
// прочитанные изображения и карту свежепосчитанных редуцированных векторов
// (ключ — SHA-256 содержимого) для фонового кэширования.
func (p *IndexUseCase) buildDocuments(ctx context.Context, dir string, files []string) ([]domain.Document, []DatasetImage, map[string][]float32, error) {
	docs := make([]domain.Document, 0, len(files))
	images := make([]DatasetImage, 0, len(files))
	newFeatures := make(map[string][]float32)

	for start := 0; start < len(files); start += p.batchSize {
		end := start + p.batchSize
		if end > len(files) {
			end = len(files)
		}

		pending, err := p.readBatch(dir, files[start:end])
		if err != nil {
			return nil, nil, nil, err
		}

		if err := p.fillReduced(ctx, pending, newFeatures); err != nil {
			return nil, nil, nil, err
		}

		for _, pd := range pending {
			labelVec, err := p.labels.OneHot(pd.label)
			if err != nil {
				return nil, nil, nil, err
			}

			features := concatFeatures(pd.reduced, labelVec)
			payload := domain.NewPayload(pd.image.Name, pd.image.Path, pd.label, p.modelVersion)
			docs = append(docs, *domain.NewDocument(pd.id, pd.image.Name, pd.image.Path, pd.label, features, payload))
			images = append(images, pd.image)
		}
	}

	return docs, images, newFeatures, nil
}

// readBatch читает файлы батча и разбирает их имена вида <id>-<label>.<ext>.
func (p *IndexUseCase) readBatch(dir string, names []string) ([]*pendingDoc, error) {
	pending := make([]*pendingDoc, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, e.Wrap(path, err)
		}

		id, label, err := parseDatasetFilename(name)
		if err != nil {
			return nil, err
		}

		sum := sha256.Sum256(data)
		mimeType := http.DetectContentType(data)

		pending = append(pending, &pendingDoc{
			id:      id,
			label:   label,
			image:   *NewDatasetImage(data, name, path, mimeType),
			hashKey: hex.EncodeToString(sum[:]),
		})
	}

	return pending, nil
}

// fillReduced заполняет редуцированные векторы батча: сперва из кэша,
// для промахов — через сеть и PCA.
func (p *IndexUseCase) fillReduced(ctx context.Context, pending []*pendingDoc, newFeatures map[string][]float32) error {
	keys := make([]string, 0, len(pending))
	for _, pd := range pending {
		keys = append(keys, pd.hashKey)
	}

	cached, err := p.cacheRepo.GetFeatures(ctx, keys)
	if err != nil {
		// Недоступный кэш не срывает прогон: считаем всё заново
		p.logger.Warnf("Feature cache lookup failed: %v", err)
		cached = nil
	}

	misses := make([]*pendingDoc, 0, len(pending))
	for _, pd := range pending {
		if vec, ok := cached[pd.hashKey]; ok {
			pd.reduced = vec
			continue
		}
		misses = append(misses, pd)
	}

	if len(misses) == 0 {
		return nil
	}

	tensors := make([]*ImageTensor, 0, len(misses))
	for _, pd := range misses {
		tensor, err := p.transformer.Transform(pd.image.Data)
		if err != nil {
			return e.Wrap(pd.image.Name, err)
		}
		tensors = append(tensors, tensor)
	}

	reduced, err := p.extractAndReduce(ctx, tensors)
	if err != nil {
		return err
	}

	for i, pd := range misses {
		pd.reduced = reduced[i]
		newFeatures[pd.hashKey] = reduced[i]
	}

	return nil
}

// extractAndReduce прогоняет тензоры одним батчем через сеть и проекцию.
func (p *IndexUseCase) extractAndReduce(ctx context.Context, tensors []*ImageTensor) ([][]float32, error) {
	batch, err := buildImageBatch(tensors)
	if err != nil {
		return nil, err
	}

	embeddings, err := p.extractor.Extract(ctx, batch)
	if err != nil {
		return nil, err
	}

	if len(embeddings) != len(tensors) {
		return nil, e.ErrEmbeddingCountMismatch
	}
	for _, emb := range embeddings {
		if len(emb) == 0 {
			return nil, e.ErrEmptyEmbedding
		}
	}

	return p.reducer.Transform(embeddings)
}

// validatePipeline проверяет предусловия прогона: директория, модель, проекция.
func (p *IndexUseCase) validatePipeline(directory string) error {
	info, err := os.Stat(directory)
	if err != nil || !info.IsDir() {
		return e.Wrap(directory, e.ErrNotADirectory)
	}

	if p.extractor == nil {
		return e.ErrModelNotLoaded
	}

	if p.reducer == nil {
		return e.ErrProjectionNotLoaded
	}

	return nil
}

// listImageFiles возвращает отсортированный список обычных файлов директории.
func (p *IndexUseCase) listImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, e.Wrap(dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		files = append(files, entry.Name())
	}

	return files, nil
}

// parseDatasetFilename разбирает имя файла вида <id>-<label>.<ext>.
func parseDatasetFilename(name string) (uint64, string, error) {
	dash := strings.Index(name, "-")
	dot := strings.LastIndex(name, ".")
	if dash <= 0 || dot <= dash+1 {
		return 0, "", e.Wrap(name, e.ErrBadImageFilename)
	}

	id, err := strconv.ParseUint(name[:dash], 10, 64)
	if err != nil {
		return 0, "", e.Wrap(name, e.ErrBadImageFilename)
	}

	return id, name[dash+1 : dot], nil
}

// buildImageBatch склеивает CHW-тензоры в один NCHW-буфер.
func buildImageBatch(tensors []*ImageTensor) (*ImageBatch, error) {
	if len(tensors) == 0 {
		return nil, e.ErrNoImage
	}

	first := tensors[0]
	data := make([]float32, 0, len(first.Data)*len(tensors))
	for _, t := range tensors {
		data = append(data, t.Data...)
	}

	return &ImageBatch{
		Data:  data,
		Shape: []int64{int64(len(tensors)), first.Channels, first.Height, first.Width},
	}, nil
}

// concatFeatures возвращает новый вектор: редуцированный эмбеддинг ++ one-hot класса.
func concatFeatures(reduced []float32, labelVec []float32) []float32 {
	features := make([]float32, 0, len(reduced)+len(labelVec))
	features = append(features, reduced...)
	features = append(features, labelVec...)
	return features
}
