package http

import (
	"net/http"

	_ "github.com/DRSN-tech/image-indexer/docs" // Импорт сгенерированных файлов
	"github.com/DRSN-tech/image-indexer/internal/usecase"
	"github.com/DRSN-tech/image-indexer/pkg/logger"
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger/v2"
)

type Router struct {
	router *chi.Mux
	logger logger.Logger
}

func NewRouter(router *chi.Mux, logger logger.Logger) *Router {
	return &Router{router: router, logger: logger}
}

func (r *Router) Init(indexUC usecase.IndexUC) {
	r.router.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"), // ссылка на JSON
	))

	r.router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		WriteSuccess(w, http.StatusOK, map[string]interface{}{"status": "ok"})
	})

	r.router.Route("/api/v1", func(v1 chi.Router) {
		handler := NewIndexHandler(indexUC, r.logger)
		registerIndexRoutes(v1, handler)
	})
}

func registerIndexRoutes(router chi.Router, handler *IndexHandler) {
	router.Post("/index", handler.createDocs)
	router.Post("/search", handler.searchSimilar)
}
