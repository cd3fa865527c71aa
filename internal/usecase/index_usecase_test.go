package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DRSN-tech/image-indexer/internal/domain"
	"github.com/DRSN-tech/image-indexer/pkg/e"
	"github.com/DRSN-tech/image-indexer/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testReducedDim   = 2
	testModelVersion = "vgg16-fc6-test"
)

// --- фейки инфраструктуры ---

type fakeTransformer struct {
	calls int
	err   error
}

func (f *fakeTransformer) Transform(data []byte) (*ImageTensor, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &ImageTensor{
		Data:     make([]float32, 3*2*2),
		Channels: 3,
		Height:   2,
		Width:    2,
	}, nil
}

type fakeExtractor struct {
	calls int
	err   error
}

func (f *fakeExtractor) Extract(ctx context.Context, batch *ImageBatch) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	n := int(batch.Shape[0])
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{float32(i), float32(i) + 1, float32(i) + 2, float32(i) + 3}
	}
	return out, nil
}

type fakeReducer struct{}

func (f *fakeReducer) Transform(vectors [][]float32) ([][]float32, error) {
	out := make([][]float32, len(vectors))
	for i, v := range vectors {
		out[i] = v[:testReducedDim]
	}
	return out, nil
}

func (f *fakeReducer) OutputDim() int { return testReducedDim }

// --- фейки репозиториев ---

type fakeDocRepo struct {
	upserted  []domain.Document
	upsertErr error
	searched  []float32
	limit     uint64
	hits      []SearchHit
}

func (f *fakeDocRepo) Upsert(ctx context.Context, docs []domain.Document) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, docs...)
	return nil
}

func (f *fakeDocRepo) Search(ctx context.Context, vector []float32, limit uint64) ([]SearchHit, error) {
	f.searched = vector
	f.limit = limit
	return f.hits, nil
}

type fakeRunRepo struct {
	created  *domain.IndexRun
	finished *domain.IndexRun
}

func (f *fakeRunRepo) Create(ctx context.Context, run *domain.IndexRun) error {
	f.created = run
	return nil
}

func (f *fakeRunRepo) Finish(ctx context.Context, run *domain.IndexRun) error {
	f.finished = run
	return nil
}

type fakeDocMetaRepo struct {
	runID string
	docs  []domain.Document
	err   error
}

func (f *fakeDocMetaRepo) InsertBatch(ctx context.Context, runID string, docs []domain.Document) error {
	if f.err != nil {
		return f.err
	}
	f.runID = runID
	f.docs = docs
	return nil
}

type fakeCacheRepo struct {
	stored map[string][]float32
	getErr error
}

func (f *fakeCacheRepo) GetFeatures(ctx context.Context, keys []string) (map[string][]float32, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	res := make(map[string][]float32)
	for _, k := range keys {
		if v, ok := f.stored[k]; ok {
			res[k] = v
		}
	}
	return res, nil
}

func (f *fakeCacheRepo) SetFeatures(ctx context.Context, features map[string][]float32) error {
	return nil
}

type fakeImagesInfra struct {
	uploaded  []DatasetImage
	cleaned   []string
	uploadErr error
}

func (f *fakeImagesInfra) UploadImages(ctx context.Context, req *UploadImagesReq) (*UploadImagesRes, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.uploaded = append(f.uploaded, req.Images...)
	keys := make([]string, 0, len(req.Images))
	for _, img := range req.Images {
		keys = append(keys, req.RunID+"/"+img.Name)
	}
	return NewUploadImagesRes(keys), nil
}

func (f *fakeImagesInfra) CleanupImages(keys []string) {
	f.cleaned = append(f.cleaned, keys...)
}

type fakeProducer struct {
	published *PublishRunReq
}

func (f *fakeProducer) PublishRunFinished(ctx context.Context, req *PublishRunReq) error {
	f.published = req
	return nil
}

// --- заглушка транзакции ---

type txStub struct {
	committed  bool
	rolledBack bool
}

func (t *txStub) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *txStub) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}
func (t *txStub) Rollback(ctx context.Context) error {
	t.rolledBack = true
	return nil
}
func (t *txStub) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *txStub) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *txStub) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *txStub) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *txStub) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (t *txStub) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *txStub) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *txStub) Conn() *pgx.Conn                                               { return nil }

type fakePool struct {
	tx *txStub
}

func (f *fakePool) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	return f.tx, nil
}

// --- сборка юзкейса ---

type ucFixture struct {
	uc          *IndexUseCase
	transformer *fakeTransformer
	extractor   *fakeExtractor
	docRepo     *fakeDocRepo
	runRepo     *fakeRunRepo
	docMetaRepo *fakeDocMetaRepo
	cacheRepo   *fakeCacheRepo
	imagesInfra *fakeImagesInfra
	producer    *fakeProducer
	tx          *txStub
}

func newUCFixture() *ucFixture {
	f := &ucFixture{
		transformer: &fakeTransformer{},
		extractor:   &fakeExtractor{},
		docRepo:     &fakeDocRepo{},
		runRepo:     &fakeRunRepo{},
		docMetaRepo: &fakeDocMetaRepo{},
		cacheRepo:   &fakeCacheRepo{},
		imagesInfra: &fakeImagesInfra{},
		producer:    &fakeProducer{},
		tx:          &txStub{},
	}

	f.uc = NewIndexUC(
		f.transformer,
		f.extractor,
		&fakeReducer{},
		domain.CIFAR10Labels(),
		f.docRepo,
		f.runRepo,
		f.docMetaRepo,
		&fakePool{tx: f.tx},
		f.imagesInfra,
		f.cacheRepo,
		f.producer,
		logger.NewSlogLogger(),
		testModelVersion,
		2,
	)

	return f
}

func writeDataset(t *testing.T, names ...string) string {
	t.Helper()

	dir := t.TempDir()
	for i, name := range names {
		data := []byte("image-bytes-" + name + string(rune('a'+i)))
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}
	return dir
}

func TestCreateDocs(t *testing.T) {
	t.Run("builds documents for every file in the directory", func(t *testing.T) {
		f := newUCFixture()
		dir := writeDataset(t, "1-cat.png", "2-dog.png", "3-ship.png")

		res, err := f.uc.CreateDocs(context.Background(), NewCreateDocsReq(dir))
		require.NoError(t, err)

		numClasses := domain.CIFAR10Labels().NumClasses()
		assert.Len(t, res.Documents, 3)
		assert.Equal(t, testReducedDim+numClasses, res.NumFeatures)
		assert.NotEmpty(t, res.RunID)

		for _, doc := range res.Documents {
			assert.Len(t, doc.Features, testReducedDim+numClasses)
		}

		// one-hot часть соответствует метке из имени файла
		cat := res.Documents[0]
		assert.Equal(t, uint64(1), cat.ID)
		assert.Equal(t, "cat", cat.Label)
		assert.Equal(t, float32(1), cat.Features[testReducedDim+3])

		assert.Len(t, f.docRepo.upserted, 3)
		assert.Len(t, f.imagesInfra.uploaded, 3)
		assert.Equal(t, res.RunID, f.docMetaRepo.runID)
		assert.True(t, f.tx.committed)
		assert.NotNil(t, f.runRepo.finished)
		require.NotNil(t, f.producer.published)
		assert.Equal(t, 3, f.producer.published.DocsCount)
		assert.Equal(t, testModelVersion, f.producer.published.ModelVersion)
	})

	t.Run("missing directory", func(t *testing.T) {
		f := newUCFixture()

		_, err := f.uc.CreateDocs(context.Background(), NewCreateDocsReq("/no/such/dir"))
		assert.ErrorIs(t, err, e.ErrNotADirectory)
	})

	t.Run("model not loaded", func(t *testing.T) {
		f := newUCFixture()
		f.uc.extractor = nil
		dir := writeDataset(t, "1-cat.png")

		_, err := f.uc.CreateDocs(context.Background(), NewCreateDocsReq(dir))
		assert.ErrorIs(t, err, e.ErrModelNotLoaded)
	})

	t.Run("projection not loaded", func(t *testing.T) {
		f := newUCFixture()
		f.uc.reducer = nil
		dir := writeDataset(t, "1-cat.png")

		_, err := f.uc.CreateDocs(context.Background(), NewCreateDocsReq(dir))
		assert.ErrorIs(t, err, e.ErrProjectionNotLoaded)
	})

	t.Run("empty directory", func(t *testing.T) {
		f := newUCFixture()
		dir := t.TempDir()

		_, err := f.uc.CreateDocs(context.Background(), NewCreateDocsReq(dir))
		assert.ErrorIs(t, err, e.ErrNoDocuments)
		assert.True(t, f.tx.rolledBack)
	})

	t.Run("unknown label rolls the run back", func(t *testing.T) {
		f := newUCFixture()
		dir := writeDataset(t, "1-lizard.png")

		_, err := f.uc.CreateDocs(context.Background(), NewCreateDocsReq(dir))
		assert.ErrorIs(t, err, e.ErrUnknownLabel)
		assert.True(t, f.tx.rolledBack)
		assert.False(t, f.tx.committed)
	})

	t.Run("bad filename", func(t *testing.T) {
		f := newUCFixture()
		dir := writeDataset(t, "cat.png")

		_, err := f.uc.CreateDocs(context.Background(), NewCreateDocsReq(dir))
		assert.ErrorIs(t, err, e.ErrBadImageFilename)
	})

	t.Run("cached features skip the network", func(t *testing.T) {
		f := newUCFixture()
		dir := writeDataset(t, "1-cat.png")

		data, err := os.ReadFile(filepath.Join(dir, "1-cat.png"))
		require.NoError(t, err)
		sum := sha256.Sum256(data)

		f.cacheRepo.stored = map[string][]float32{
			hex.EncodeToString(sum[:]): {0.5, 0.25},
		}

		res, err := f.uc.CreateDocs(context.Background(), NewCreateDocsReq(dir))
		require.NoError(t, err)

		assert.Zero(t, f.extractor.calls)
		assert.Equal(t, float32(0.5), res.Documents[0].Features[0])
		assert.Equal(t, float32(0.25), res.Documents[0].Features[1])
	})

	t.Run("cache failure does not abort the run", func(t *testing.T) {
		f := newUCFixture()
		f.cacheRepo.getErr = errors.New("redis down")
		dir := writeDataset(t, "1-cat.png")

		res, err := f.uc.CreateDocs(context.Background(), NewCreateDocsReq(dir))
		require.NoError(t, err)
		assert.Len(t, res.Documents, 1)
		assert.Equal(t, 1, f.extractor.calls)
	})

	t.Run("metadata failure cleans up mirrored images", func(t *testing.T) {
		f := newUCFixture()
		f.docMetaRepo.err = errors.New("insert failed")
		dir := writeDataset(t, "1-cat.png")

		_, err := f.uc.CreateDocs(context.Background(), NewCreateDocsReq(dir))
		require.Error(t, err)
		assert.True(t, f.tx.rolledBack)
		assert.Len(t, f.imagesInfra.cleaned, 1)
	})

	t.Run("upsert failure skips upload and cleanup", func(t *testing.T) {
		f := newUCFixture()
		f.docRepo.upsertErr = errors.New("qdrant down")
		dir := writeDataset(t, "1-cat.png")

		_, err := f.uc.CreateDocs(context.Background(), NewCreateDocsReq(dir))
		require.Error(t, err)
		assert.True(t, f.tx.rolledBack)
		assert.Empty(t, f.imagesInfra.uploaded)
		assert.Empty(t, f.imagesInfra.cleaned)
	})
}

func TestSearchSimilar(t *testing.T) {
	t.Run("labelled query", func(t *testing.T) {
		f := newUCFixture()
		f.docRepo.hits = []SearchHit{{ID: 7, Score: 0.9}}

		res, err := f.uc.SearchSimilar(context.Background(), NewSearchReq([]byte("img"), "dog", 5))
		require.NoError(t, err)

		require.Len(t, res.Hits, 1)
		assert.Equal(t, uint64(7), res.Hits[0].ID)
		assert.Equal(t, uint64(5), f.docRepo.limit)

		numClasses := domain.CIFAR10Labels().NumClasses()
		require.Len(t, f.docRepo.searched, testReducedDim+numClasses)
		assert.Equal(t, float32(1), f.docRepo.searched[testReducedDim+5])
	})

	t.Run("empty label yields zero one-hot part", func(t *testing.T) {
		f := newUCFixture()

		_, err := f.uc.SearchSimilar(context.Background(), NewSearchReq([]byte("img"), "", 0))
		require.NoError(t, err)

		assert.Equal(t, uint64(10), f.docRepo.limit)
		for _, v := range f.docRepo.searched[testReducedDim:] {
			assert.Zero(t, v)
		}
	})

	t.Run("unknown label", func(t *testing.T) {
		f := newUCFixture()

		_, err := f.uc.SearchSimilar(context.Background(), NewSearchReq([]byte("img"), "lizard", 0))
		assert.ErrorIs(t, err, e.ErrUnknownLabel)
	})

	t.Run("no image", func(t *testing.T) {
		f := newUCFixture()

		_, err := f.uc.SearchSimilar(context.Background(), NewSearchReq(nil, "cat", 0))
		assert.ErrorIs(t, err, e.ErrNoImage)
	})
}

func TestParseDatasetFilename(t *testing.T) {
	tests := []struct {
		name      string
		filename  string
		wantID    uint64
		wantLabel string
		wantErr   bool
	}{
		{name: "plain", filename: "42-cat.png", wantID: 42, wantLabel: "cat"},
		{name: "label keeps inner dashes", filename: "7-automobile-old.jpg", wantID: 7, wantLabel: "automobile-old"},
		{name: "no dash", filename: "cat.png", wantErr: true},
		{name: "no extension", filename: "1-cat", wantErr: true},
		{name: "non numeric id", filename: "x-cat.png", wantErr: true},
		{name: "empty label", filename: "1-.png", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, label, err := parseDatasetFilename(tt.filename)
			if tt.wantErr {
				assert.ErrorIs(t, err, e.ErrBadImageFilename)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantLabel, label)
		})
	}
}

func TestBuildImageBatch(t *testing.T) {
	tensors := []*ImageTensor{
		{Data: []float32{1, 2, 3, 4}, Channels: 1, Height: 2, Width: 2},
		{Data: []float32{5, 6, 7, 8}, Channels: 1, Height: 2, Width: 2},
	}

	batch, err := buildImageBatch(tensors)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1, 2, 2}, batch.Shape)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6, 7, 8}, batch.Data)

	_, err = buildImageBatch(nil)
	assert.ErrorIs(t, err, e.ErrNoImage)
}
