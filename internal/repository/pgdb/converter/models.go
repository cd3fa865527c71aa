package converter

import "time"

// IndexRunModel представляет запись таблицы index_runs в PostgreSQL.
type IndexRunModel struct {
	ID           string     `db:"id"`
	Directory    string     `db:"directory"`
	DocsCount    int        `db:"docs_count"`
	NumFeatures  int        `db:"num_features"`
	ModelVersion string     `db:"model_version"`
	Status       string     `db:"status"`
	StartedAt    time.Time  `db:"started_at"`
	FinishedAt   *time.Time `db:"finished_at"`
}

// DocumentModel представляет запись таблицы documents в PostgreSQL.
type DocumentModel struct {
	ID        int64     `db:"id"`
	RunID     string    `db:"run_id"`
	DocID     int64     `db:"doc_id"`
	Filename  string    `db:"filename"`
	Path      string    `db:"path"`
	Label     string    `db:"label"`
	CreatedAt time.Time `db:"created_at"`
}
