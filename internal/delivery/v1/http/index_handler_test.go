package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DRSN-tech/image-indexer/internal/usecase"
	"github.com/DRSN-tech/image-indexer/pkg/e"
	"github.com/DRSN-tech/image-indexer/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndexUC struct {
	createRes *usecase.CreateDocsRes
	createErr error
	searchRes *usecase.SearchRes
	searchErr error
	searchReq *usecase.SearchReq
}

func (f *fakeIndexUC) CreateDocs(ctx context.Context, req *usecase.CreateDocsReq) (*usecase.CreateDocsRes, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.createRes, nil
}

func (f *fakeIndexUC) SearchSimilar(ctx context.Context, req *usecase.SearchReq) (*usecase.SearchRes, error) {
	f.searchReq = req
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchRes, nil
}

func newTestRouter(uc usecase.IndexUC) *chi.Mux {
	r := chi.NewRouter()
	handler := NewIndexHandler(uc, logger.NewSlogLogger())
	r.Route("/api/v1", func(api chi.Router) {
		registerIndexRoutes(api, handler)
	})
	return r
}

func multipartBody(t *testing.T, fields map[string]string, fileField, fileName string, fileData []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, fileName)
		require.NoError(t, err)
		_, err = fw.Write(fileData)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	return &buf, mw.FormDataContentType()
}

func TestCreateDocsHandler(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		uc := &fakeIndexUC{
			createRes: &usecase.CreateDocsRes{RunID: "run-1", NumFeatures: 138},
		}
		router := newTestRouter(uc)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/index", strings.NewReader(`{"directory": "static/cifar10/train"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusCreated, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "run-1", body["run_id"])
		assert.Equal(t, float64(138), body["num_features"])
	})

	t.Run("malformed json", func(t *testing.T) {
		router := newTestRouter(&fakeIndexUC{})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/index", strings.NewReader(`{`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("empty directory", func(t *testing.T) {
		router := newTestRouter(&fakeIndexUC{})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/index", strings.NewReader(`{"directory": ""}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("not a directory maps to 400", func(t *testing.T) {
		uc := &fakeIndexUC{createErr: e.Wrap("missing", e.ErrNotADirectory)}
		router := newTestRouter(uc)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/index", strings.NewReader(`{"directory": "/missing"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("internal error maps to 500", func(t *testing.T) {
		uc := &fakeIndexUC{createErr: errors.New("qdrant unavailable")}
		router := newTestRouter(uc)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/index", strings.NewReader(`{"directory": "x"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, http.StatusInternalServerError, body.Code)
	})
}

func TestSearchSimilarHandler(t *testing.T) {
	t.Run("success with label and limit", func(t *testing.T) {
		uc := &fakeIndexUC{
			searchRes: &usecase.SearchRes{Hits: []usecase.SearchHit{{ID: 3, Score: 0.8}}},
		}
		router := newTestRouter(uc)

		body, contentType := multipartBody(t,
			map[string]string{"label": "cat", "limit": "5"},
			"image", "query.png", []byte("png-bytes"),
		)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/search", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, uc.searchReq)
		assert.Equal(t, "cat", uc.searchReq.Label)
		assert.Equal(t, uint64(5), uc.searchReq.Limit)
		assert.Equal(t, []byte("png-bytes"), uc.searchReq.ImageData)
	})

	t.Run("default limit", func(t *testing.T) {
		uc := &fakeIndexUC{searchRes: &usecase.SearchRes{}}
		router := newTestRouter(uc)

		body, contentType := multipartBody(t, nil, "image", "query.png", []byte("data"))

		req := httptest.NewRequest(http.MethodPost, "/api/v1/search", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, uint64(10), uc.searchReq.Limit)
	})

	t.Run("not multipart", func(t *testing.T) {
		router := newTestRouter(&fakeIndexUC{})

		req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader("{}"))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing image field", func(t *testing.T) {
		router := newTestRouter(&fakeIndexUC{})

		body, contentType := multipartBody(t, map[string]string{"label": "cat"}, "", "", nil)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/search", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad limit value", func(t *testing.T) {
		router := newTestRouter(&fakeIndexUC{})

		body, contentType := multipartBody(t,
			map[string]string{"limit": "zero"},
			"image", "query.png", []byte("data"),
		)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/search", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown label maps to 400", func(t *testing.T) {
		uc := &fakeIndexUC{searchErr: e.Wrap("lizard", e.ErrUnknownLabel)}
		router := newTestRouter(uc)

		body, contentType := multipartBody(t,
			map[string]string{"label": "lizard"},
			"image", "query.png", []byte("data"),
		)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/search", body)
		req.Header.Set("Content-Type", contentType)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
