package model

import (
	"time"

	"colmatch-service/internal/dataset"
	"colmatch-service/internal/export"
)

// MatchRequest: тело POST /datasets/{id}/match.
type MatchRequest struct {
	Source      string  `json:"source"`       // колонка, для которой ищем пару
	Candidate   string  `json:"candidate"`    // колонка-справочник
	Scorer      string  `json:"scorer"`       // "": token_sort_ratio
	MatchColumn string  `json:"match_column"` // "": "best match"
	ScoreColumn string  `json:"score_column"` // "": "similarity score"
	ScoreCutoff float64 `json:"score_cutoff"` // 0..100, 0: без порога
	Process     bool    `json:"process"`      // нормализация (регистр, пунктуация, ширина символов)
	Unify       bool    `json:"unify"`        // лат↔кир двойники, ё→е
	Wait        bool    `json:"wait"`         // ждать окончания задачи в том же запросе
}

// ExportRequest: тело POST /datasets/{id}/export.
type ExportRequest struct {
	Dialect     string              `json:"dialect"` // mysql | sqlite
	DSN         string              `json:"dsn"`
	Credentials *export.Credentials `json:"credentials,omitempty"`
	Table       string              `json:"table"`
	IfExists    string              `json:"if_exists"` // fail | replace | append
}

type ExportResult struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
}

// DatasetView: то, что видит таблица в UI.
type DatasetView struct {
	ID       string                     `json:"id"`
	FileName string                     `json:"file_name"`
	State    string                     `json:"state"`
	Error    string                     `json:"error,omitempty"`
	Version  int                        `json:"version"`
	Updated  time.Time                  `json:"updated"`
	Columns  []string                   `json:"columns"`
	RowCount int                        `json:"row_count"`
	Preview  []map[string]dataset.Value `json:"preview,omitempty"`
}

type RowsPage struct {
	Columns []string          `json:"columns"`
	Offset  int               `json:"offset"`
	Limit   int               `json:"limit"`
	Total   int               `json:"total"`
	Rows    [][]dataset.Value `json:"rows"`
}

// MatchSummary: результат задачи сопоставления.
type MatchSummary struct {
	DatasetID   string   `json:"dataset_id"`
	Version     int      `json:"version"`
	Rows        int      `json:"rows"`
	Matched     int      `json:"matched"`
	Scorer      string   `json:"scorer"`
	MatchColumn string   `json:"match_column"`
	ScoreColumn string   `json:"score_column"`
	Columns     []string `json:"columns"`
}

type JobAccepted struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type Error struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}
