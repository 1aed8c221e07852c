package models

import "time"

// IngestRun records one pass of the ingestion pipeline over a catalog source.
type IngestRun struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Batches    int       `json:"batches"`
	Records    int       `json:"records"`
	Embedded   int       `json:"embedded"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
}

// Duration is the wall time of the run.
func (r *IngestRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
