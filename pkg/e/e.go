package e

import "fmt"

var (
	// Внутренние ошибки с транзакциями
	ErrTransactionNotFound = fmt.Errorf("transaction not found")

	// Внутренние ошибки пайплайна извлечения признаков
	ErrNotADirectory          = fmt.Errorf("path doesn't exist or isn't a directory")
	ErrModelNotLoaded         = fmt.Errorf("deep-learning model is not loaded")
	ErrProjectionNotLoaded    = fmt.Errorf("PCA projection is not loaded")
	ErrProjectionDimension    = fmt.Errorf("projection input dimension mismatch")
	ErrUnknownLabel           = fmt.Errorf("label is not present in the mapping")
	ErrBadImageFilename       = fmt.Errorf("filename doesn't match <id>-<label>.<ext>")
	ErrEmptyEmbedding         = fmt.Errorf("embedding vector is empty")
	ErrEmbeddingCountMismatch = fmt.Errorf("embedding count doesn't match batch size")
	ErrNoDocuments            = fmt.Errorf("no documents were created")
	ErrUndecodableImage       = fmt.Errorf("image can't be decoded")
	ErrIncorrectEnvVariable   = fmt.Errorf("incorrect environment variable")

	// 400 Bad Request
	ErrStatusBadRequest     = fmt.Errorf("bad request")
	ErrExpectedMultipart    = fmt.Errorf("expected multipart/form-data")
	ErrMissingFields        = fmt.Errorf("missing required fields")
	ErrNoImage              = fmt.Errorf("no image provided")
	ErrFileTooLarge         = fmt.Errorf("file too large")
	ErrUnsupportedMediaType = fmt.Errorf("unsupported media type")

	// 500 Internal Server Error
	ErrInternalServerError = fmt.Errorf("internal server error")
)

// Wrap оборачивает ошибку
func Wrap(msg string, err error) error {
	return fmt.Errorf("%s: %w", msg, err)
}
