package domain

import "time"

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

var jobTransitions = map[JobStatus][]JobStatus{
	JobQueued:     {JobProcessing, JobFailed},
	JobProcessing: {JobCompleted, JobFailed},
}

// CanTransition reports whether from -> to is a legal job transition.
func CanTransition(from, to JobStatus) bool {
	for _, s := range jobTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type FileStatus string

const (
	FilePending   FileStatus = "pending"
	FileProcessed FileStatus = "processed"
	FileFailed    FileStatus = "failed"
)

type JobDocument struct {
	DocumentID string     `json:"document_id"`
	Filename   string     `json:"filename"`
	FileType   string     `json:"file_type"`
	Status     FileStatus `json:"status"`
	Chunks     int        `json:"chunks,omitempty"`
	Error      string     `json:"error,omitempty"`
	EmployeeID string     `json:"employee_id,omitempty"`
}

// IngestionJob tracks one upload batch.
type IngestionJob struct {
	ID             string        `json:"job_id"`
	Status         JobStatus     `json:"status"`
	TotalFiles     int           `json:"total_files"`
	ProcessedFiles int           `json:"processed_files"`
	FailedFiles    int           `json:"failed_files"`
	Documents      []JobDocument `json:"documents"`
	Error          string        `json:"error,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (j *IngestionJob) Clone() *IngestionJob {
	c := *j
	c.Documents = append([]JobDocument(nil), j.Documents...)
	return &c
}
