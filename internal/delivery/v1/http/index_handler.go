package http

import (
	"encoding/json"
	"net/http"

	"github.com/DRSN-tech/image-indexer/internal/usecase"
	"github.com/DRSN-tech/image-indexer/pkg/e"
	"github.com/DRSN-tech/image-indexer/pkg/logger"
)

type IndexHandler struct {
	indexUsecase usecase.IndexUC
	logger       logger.Logger
}

func NewIndexHandler(indexUsecase usecase.IndexUC, logger logger.Logger) *IndexHandler {
	return &IndexHandler{indexUsecase: indexUsecase, logger: logger}
}

type createDocsRequest struct {
	Directory string `json:"directory"`
}

// createDocs
//
//	@Summary		Индексация директории датасета
//	@Description	Извлекает признаки изображений директории и пушит документы в индекс
//	@Tags			index
//	@Accept			json
//	@Produce		json
//	@Param			request	body		createDocsRequest		true	"Директория датасета"
//	@Success		201		{object}	map[string]interface{}	"Итоги прогона"
//	@Failure		400		{object}	ErrorResponse			"Ошибка валидации"
//	@Router			/index [post]
func (h *IndexHandler) createDocs(w http.ResponseWriter, r *http.Request) {
	var req createDocsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warnf("%d %s: %s", http.StatusBadRequest, e.ErrStatusBadRequest.Error(), err.Error())
		WriteError(w, e.ErrStatusBadRequest)
		return
	}

	if req.Directory == "" {
		h.logger.Warnf("%d %s: empty directory", http.StatusBadRequest, e.ErrMissingFields.Error())
		WriteError(w, e.ErrMissingFields)
		return
	}

	res, err := h.indexUsecase.CreateDocs(r.Context(), usecase.NewCreateDocsReq(req.Directory))
	if err != nil {
		h.logger.Warnf("%s", err.Error())
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusCreated, map[string]interface{}{
		"run_id":       res.RunID,
		"docs_count":   len(res.Documents),
		"num_features": res.NumFeatures,
	})
}

// searchSimilar
//
//	@Summary		Поиск похожих изображений
//	@Description	Строит вектор признаков изображения и ищет ближайшие документы
//	@Tags			index
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			image	formData	file					true	"Изображение запроса"
//	@Param			label	formData	string					false	"Метка класса (опционально)"
//	@Param			limit	formData	integer					false	"Количество результатов"
//	@Success		200		{object}	map[string]interface{}	"Результаты поиска"
//	@Failure		400		{object}	ErrorResponse			"Ошибка валидации"
//	@Router			/search [post]
func (h *IndexHandler) searchSimilar(w http.ResponseWriter, r *http.Request) {
	const (
		maxTotalRequestSize = 20 << 20
		maxMemory           = 8 << 20
	)

	r.Body = http.MaxBytesReader(w, r.Body, maxTotalRequestSize)

	if err := ensureMultipartForm(r, maxMemory); err != nil {
		h.logger.Warnf("%d %s: %s", http.StatusBadRequest, e.ErrStatusBadRequest.Error(), r.Header.Get("Content-Type"))
		WriteError(w, err)
		return
	}

	form, err := parseSearchForm(r)
	if err != nil {
		h.logger.Warnf("%d %s: %s", http.StatusBadRequest, e.ErrStatusBadRequest.Error(), err.Error())
		WriteError(w, err)
		return
	}

	res, err := h.indexUsecase.SearchSimilar(r.Context(), usecase.NewSearchReq(form.ImageData, form.Label, form.Limit))
	if err != nil {
		h.logger.Warnf("%s", err.Error())
		WriteError(w, err)
		return
	}

	WriteSuccess(w, http.StatusOK, map[string]interface{}{
		"hits": res.Hits,
	})
}
