package domain

import "time"

// Status is the lifecycle phase of the service.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusQuerying  Status = "querying"
	StatusCompleted Status = "completed"
	StatusReady     Status = "ready"
	StatusError     Status = "error"
)

// ProgressState describes the current long-running operation. It is owned by
// one operation at a time and overwritten when the next one begins.
type ProgressState struct {
	Status         Status    `json:"status"`
	Progress       float64   `json:"progress"`
	CurrentStep    string    `json:"current_step"`
	Message        string    `json:"message"`
	TotalSteps     int       `json:"total_steps"`
	CompletedSteps int       `json:"completed_steps"`
	StartTime      time.Time `json:"start_time,omitzero"`
	Error          string    `json:"error,omitempty"`
}

// Elapsed returns the time since the operation began. ok is false before any
// operation has started.
func (p ProgressState) Elapsed(now time.Time) (elapsed time.Duration, ok bool) {
	if p.StartTime.IsZero() {
		return 0, false
	}
	return now.Sub(p.StartTime), true
}

// ModelsLoaded reports which process-wide handles exist.
type ModelsLoaded struct {
	Embedding bool `json:"embedding"`
	LLM       bool `json:"llm"`
	Engine    bool `json:"rag"`
}

// ServiceStatus is the summary returned by the status endpoint.
type ServiceStatus struct {
	Status         Status       `json:"status"`
	Message        string       `json:"message"`
	CurrentDataset string       `json:"current_dataset,omitempty"`
	ModelsLoaded   ModelsLoaded `json:"model_loaded"`
	DatasetsCount  int          `json:"datasets_count"`
}
