package models

import "time"

type AnalyzeRequest struct {
	Data []InputItem `json:"data" validate:"required,dive"`
}

type AnalyzeResponse []ItemResult

type ErrorResponse struct {
	Message string `json:"message"`
	ItemID  string `json:"item_id,omitempty"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Inference bool   `json:"inference"`
}

// AnalyzeJob travels over Kafka on the analyze-requests topic.
type AnalyzeJob struct {
	JobID       string      `json:"job_id"`
	SubmittedAt time.Time   `json:"submitted_at"`
	Items       []InputItem `json:"data"`
}

// AnalyzedBatch is published on the analyze-results topic once a job has
// been processed.
type AnalyzedBatch struct {
	JobID      string       `json:"job_id"`
	AnalyzedAt time.Time    `json:"analyzed_at"`
	Results    []ItemResult `json:"results"`
}

// FailedJob is published on the analyze-failed topic when a job could not
// be analyzed. The original items are kept so the job can be replayed.
type FailedJob struct {
	JobID    string      `json:"job_id"`
	FailedAt time.Time   `json:"failed_at"`
	ItemID   string      `json:"item_id,omitempty"`
	Error    string      `json:"error"`
	Items    []InputItem `json:"data"`
}
