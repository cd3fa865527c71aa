package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	config "github.com/DRSN-tech/image-indexer/internal/cfg"
	v1Http "github.com/DRSN-tech/image-indexer/internal/delivery/v1/http"
	"github.com/DRSN-tech/image-indexer/internal/domain"
	"github.com/DRSN-tech/image-indexer/internal/infrastructure/kafka"
	minioInfra "github.com/DRSN-tech/image-indexer/internal/infrastructure/minio"
	"github.com/DRSN-tech/image-indexer/internal/infrastructure/pca"
	"github.com/DRSN-tech/image-indexer/internal/infrastructure/vision"
	s3Repo "github.com/DRSN-tech/image-indexer/internal/repository/minio"
	"github.com/DRSN-tech/image-indexer/internal/repository/pgdb"
	pgdbConv "github.com/DRSN-tech/image-indexer/internal/repository/pgdb/converter"
	qdrantRepo "github.com/DRSN-tech/image-indexer/internal/repository/qdrant"
	redisRepo "github.com/DRSN-tech/image-indexer/internal/repository/redis"
	"github.com/DRSN-tech/image-indexer/internal/usecase"
	"github.com/DRSN-tech/image-indexer/pkg/clients"
	"github.com/DRSN-tech/image-indexer/pkg/closer"
	"github.com/DRSN-tech/image-indexer/pkg/e"
	"github.com/DRSN-tech/image-indexer/pkg/logger"
	"github.com/DRSN-tech/image-indexer/pkg/postgres"
	"github.com/go-chi/chi/v5"
	"github.com/jimlawless/whereami"
)

// App собирает зависимости пайплайна индексации и владеет их жизненным циклом.
type App struct {
	cfg         *config.Config
	logger      logger.Logger
	indexUC     usecase.IndexUC
	httpSrv     *v1Http.Server
	imagesInfra *minioInfra.MinioInfrastructure
	closer      *closer.Closer
	appCancel   context.CancelFunc
}

func NewApp(cfg *config.Config, log logger.Logger) (*App, error) {
	cl := closer.NewCloser(5 * time.Second)
	appCtx, appCancel := context.WithCancel(context.Background())

	db, err := initPGDB(log, cfg)
	if err != nil {
		appCancel()
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	cl.Add(func(ctx context.Context) error {
		db.Close()
		return nil
	})

	runConv := pgdbConv.NewIndexRunConverterImpl()
	runRepo := pgdb.NewRunRepo(db.Pool, runConv)
	docMetaRepo := pgdb.NewDocumentMetaRepo(db.Pool)

	minioClient, err := clients.NewMinIOClient(cfg.Minio)
	if err != nil {
		appCancel()
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	minioCtx, minioCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := clients.EnsureBucket(minioCtx, minioClient, cfg.Minio.BucketName); err != nil {
		minioCancel()
		appCancel()
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	minioCancel()

	imageRepo := s3Repo.NewImageRepo(minioClient, cfg.Minio)
	imagesInfra := minioInfra.NewMinioInfrastructure(imageRepo, cfg.Minio, log, appCtx)

	qdrantClient, err := clients.NewQdrantClient(cfg.Qdrant)
	if err != nil {
		appCancel()
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	qdrantCtx, qdrantCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := clients.EnsureCollection(qdrantCtx, qdrantClient); err != nil {
		qdrantCancel()
		appCancel()
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	qdrantCancel()
	cl.Add(func(ctx context.Context) error {
		return qdrantClient.Client.Close()
	})

	docRepo := qdrantRepo.NewDocumentRepo(qdrantClient.Client, cfg.Qdrant)

	redisClient := clients.NewRedisClient(cfg.Redis)
	redisCtx, redisCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := redisClient.Ping(redisCtx); err != nil {
		redisCancel()
		appCancel()
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	redisCancel()
	cl.Add(func(ctx context.Context) error {
		return redisClient.Client.Close()
	})

	cacheRepo := redisRepo.NewCacheRepo(redisClient, cfg.Redis, log)

	transformer := vision.NewTransformer()

	extractor, err := vision.NewExtractor(cfg.Model)
	if err != nil {
		appCancel()
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	cl.Add(func(ctx context.Context) error {
		return extractor.Close()
	})

	projection, err := pca.Load(cfg.Model.ProjectionPath)
	if err != nil {
		appCancel()
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	labels := domain.CIFAR10Labels()
	wantSize := uint64(projection.OutputDim() + labels.NumClasses())
	if wantSize != cfg.Qdrant.VectorSize {
		log.Warnf("vector size mismatch: projection %d + classes %d != collection %d",
			projection.OutputDim(), labels.NumClasses(), cfg.Qdrant.VectorSize)
	}

	producer, err := kafka.NewProducer(log, cfg.Kafka)
	if err != nil {
		appCancel()
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	if err := producer.EnsureTopic(10 * time.Second); err != nil {
		appCancel()
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}
	cl.Add(func(ctx context.Context) error {
		return producer.Close()
	})

	indexUC := usecase.NewIndexUC(
		transformer,
		extractor,
		projection,
		labels,
		docRepo,
		runRepo,
		docMetaRepo,
		db.Pool,
		imagesInfra,
		cacheRepo,
		producer,
		log,
		cfg.Model.ModelVersion,
		cfg.Model.BatchSize,
	)

	r := chi.NewRouter()
	router := v1Http.NewRouter(r, log)
	router.Init(indexUC)

	httpSrv := v1Http.NewServer(r, cfg.Http)

	return &App{
		cfg:         cfg,
		logger:      log,
		indexUC:     indexUC,
		httpSrv:     httpSrv,
		imagesInfra: imagesInfra,
		closer:      cl,
		appCancel:   appCancel,
	}, nil
}

// Run индексирует тренировочную директорию датасета, поднимает HTTP-сервер и
// блокируется до сигнала завершения или фатальной ошибки сервера.
func (a *App) Run() error {
	indexCtx, indexCancel := context.WithTimeout(context.Background(), 30*time.Minute)
	res, err := a.indexUC.CreateDocs(indexCtx, &usecase.CreateDocsReq{
		Directory: a.cfg.Dataset.TrainDir,
	})
	indexCancel()
	if err != nil {
		a.logger.Errorf(err, "initial indexing of %s failed", a.cfg.Dataset.TrainDir)
		a.shutdown()
		return err
	}
	a.logger.Infof("indexed %d documents from %s, run %s, %d features each",
		len(res.Documents), a.cfg.Dataset.TrainDir, res.RunID, res.NumFeatures)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Infof("HTTP server started on port %s", a.cfg.Http.Port)
		if err := a.httpSrv.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Errorf(err, "HTTP server failed")
			errCh <- err
		}
	}()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)

	var appErr error
	select {
	case appErr = <-errCh:
		a.logger.Errorf(appErr, "HTTP server fatal error")
	case <-shutdownCh:
		a.logger.Infof("Received shutdown signal, stopping gracefully...")
	}

	a.shutdown()
	return appErr
}

func (a *App) shutdown() {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := a.httpSrv.Stop(shutdownCtx); err != nil {
		a.logger.Errorf(err, "HTTP server shutdown error")
	} else {
		a.logger.Infof("HTTP server stopped")
	}

	a.appCancel()

	done := make(chan error, 1)
	go func() {
		done <- a.imagesInfra.WaitForCleanup(shutdownCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.logger.Warnf("MinIO cleanup error: %v", err)
		} else {
			a.logger.Infof("MinIO cleanup completed")
		}
	case <-time.After(5 * time.Second):
		a.logger.Warnf("MinIO cleanup did not finish before shutdown, some objects may remain")
	}

	if err := a.closer.Close(shutdownCtx); err != nil {
		a.logger.Warnf("resource close error: %v", err)
	}

	a.logger.Infof("Application shutdown complete")
}

func initPGDB(logger logger.Logger, cfg *config.Config) (*postgres.PgDatabase, error) {
	db, err := postgres.Connect(cfg.Db)
	if err != nil {
		logger.Errorf(err, "failed to connect to database")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	if err := db.RunMigrations(logger); err != nil {
		logger.Errorf(err, "failed to run migrations")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	if err := db.Ping(); err != nil {
		logger.Errorf(err, "failed to ping database")
		return nil, e.Wrap(whereami.WhereAmI(), err)
	}

	return db, nil
}
