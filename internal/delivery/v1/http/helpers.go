package http

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/DRSN-tech/image-indexer/pkg/e"
	"github.com/jimlawless/whereami"
)

type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// SearchForm — разобранные поля multipart-запроса поиска.
type SearchForm struct {
	ImageData []byte
	Label     string
	Limit     uint64
}

func NewErrorResponse(code int, message string) *ErrorResponse {
	return &ErrorResponse{
		Code:    code,
		Message: message,
	}
}

func ToHTTPResponse(err error) (int, string) {
	switch {
	case errors.Is(err, e.ErrStatusBadRequest):
		return http.StatusBadRequest, e.ErrStatusBadRequest.Error()
	case errors.Is(err, e.ErrExpectedMultipart):
		return http.StatusBadRequest, e.ErrExpectedMultipart.Error()
	case errors.Is(err, e.ErrMissingFields):
		return http.StatusBadRequest, e.ErrMissingFields.Error()
	case errors.Is(err, e.ErrNoImage):
		return http.StatusBadRequest, e.ErrNoImage.Error()
	case errors.Is(err, e.ErrFileTooLarge):
		return http.StatusBadRequest, e.ErrFileTooLarge.Error()
	case errors.Is(err, e.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType, e.ErrUnsupportedMediaType.Error()
	case errors.Is(err, e.ErrUndecodableImage):
		return http.StatusBadRequest, e.ErrUndecodableImage.Error()
	case errors.Is(err, e.ErrUnknownLabel):
		return http.StatusBadRequest, e.ErrUnknownLabel.Error()
	case errors.Is(err, e.ErrBadImageFilename):
		return http.StatusBadRequest, e.ErrBadImageFilename.Error()
	case errors.Is(err, e.ErrNotADirectory):
		return http.StatusBadRequest, e.ErrNotADirectory.Error()
	case errors.Is(err, e.ErrNoDocuments):
		return http.StatusBadRequest, e.ErrNoDocuments.Error()
	default:
		return http.StatusInternalServerError, e.ErrInternalServerError.Error()
	}
}

func WriteError(w http.ResponseWriter, err error) {
	code, msg := ToHTTPResponse(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(NewErrorResponse(code, msg))
}

func WriteSuccess(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func ensureMultipartForm(r *http.Request, maxMemory int64) error {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return e.Wrap(whereami.WhereAmI(), e.ErrExpectedMultipart)
	}
	return r.ParseMultipartForm(maxMemory)
}

// parseSearchForm разбирает multipart-форму поиска: файл изображения,
// опциональная метка класса и опциональный лимит результатов.
func parseSearchForm(r *http.Request) (*SearchForm, error) {
	const (
		maxFileSize  = 15 << 20
		defaultLimit = 10
	)

	files := r.MultipartForm.File["image"]
	if len(files) == 0 {
		return nil, e.ErrNoImage
	}

	data, _, err := readFile(files[0], maxFileSize)
	if err != nil {
		return nil, err
	}

	limit := uint64(defaultLimit)
	if limitStr := r.FormValue("limit"); limitStr != "" {
		limit, err = strconv.ParseUint(limitStr, 10, 64)
		if err != nil || limit == 0 {
			return nil, e.Wrap("limit", e.ErrStatusBadRequest)
		}
	}

	return &SearchForm{
		ImageData: data,
		Label:     r.FormValue("label"),
		Limit:     limit,
	}, nil
}

func readFile(fh *multipart.FileHeader, maxSize int64) ([]byte, string, error) {
	src, err := fh.Open()
	if err != nil {
		return nil, "", e.ErrInternalServerError
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, "", e.ErrInternalServerError
	}
	if int64(len(data)) > maxSize {
		return nil, "", e.Wrap(fh.Filename, e.ErrFileTooLarge)
	}

	mimeType := http.DetectContentType(data[:min(len(data), 512)])
	return data, mimeType, nil
}
