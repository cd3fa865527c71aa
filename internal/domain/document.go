package domain

import "time"

// Payload описывает дополнительную информацию документа в индексе
type Payload map[string]any

// Document представляет индексируемый документ одного изображения.
// Features — вектор признаков: PCA-редуцированный эмбеддинг, к которому
// дописан one-hot вектор класса.
type Document struct {
	ID       uint64
	Filename string
	Path     string
	Label    string
	Features []float32
	Payload  Payload
}

func NewDocument(id uint64, filename string, path string, label string, features []float32, payload Payload) *Document {
	return &Document{
		ID:       id,
		Filename: filename,
		Path:     path,
		Label:    label,
		Features: features,
		Payload:  payload,
	}
}

func NewPayload(filename string, path string, label string, modelVersion string) Payload {
	return Payload{
		"filename":      filename,
		"path":          path,
		"label":         label,
		"created_at":    time.Now().UTC().UnixNano(),
		"model_version": modelVersion,
	}
}
