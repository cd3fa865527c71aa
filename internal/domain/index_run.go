package domain

import "time"

// RunStatus — статус прогона индексации.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusFinished RunStatus = "finished"
	RunStatusFailed   RunStatus = "failed"
)

// IndexRun описывает один прогон индексации директории датасета.
type IndexRun struct {
	ID           string // uuid
	Directory    string
	DocsCount    int
	NumFeatures  int
	ModelVersion string
	Status       RunStatus
	StartedAt    time.Time
	FinishedAt   *time.Time
}

func NewIndexRun(id string, directory string, modelVersion string) *IndexRun {
	return &IndexRun{
		ID:           id,
		Directory:    directory,
		ModelVersion: modelVersion,
		Status:       RunStatusRunning,
		StartedAt:    time.Now().UTC(),
	}
}
