package models

type ProgressUpdate struct {
	JobID     string  `json:"jobId"`
	Message   string  `json:"message"`
	Progress  float64 `json:"progress"`
	ContentID string  `json:"content_id"`
	Status    string  `json:"status"` // e.g. "downloading", "stored", "failed"
	// Optional fields for more detailed updates
	Done bool `json:"done"`
}
