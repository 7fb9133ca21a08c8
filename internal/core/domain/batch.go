package domain

import "time"

type BatchStatus string

const (
	BatchPending    BatchStatus = "PENDING"
	BatchProcessing BatchStatus = "PROCESSING"
	BatchCompleted  BatchStatus = "COMPLETED"
	BatchFailed     BatchStatus = "FAILED"
)

func (s BatchStatus) IsTerminal() bool {
	return s == BatchCompleted || s == BatchFailed
}

type BatchJob struct {
	ID          string                    `json:"id"`
	DocumentIDs []string                  `json:"document_ids"`
	Status      BatchStatus               `json:"status"`
	Progress    int                       `json:"progress"`
	Processed   int                       `json:"processed"`
	Error       string                    `json:"error,omitempty"`
	CreatedAt   time.Time                 `json:"created_at"`
	StartedAt   *time.Time                `json:"started_at,omitempty"`
	CompletedAt *time.Time                `json:"completed_at,omitempty"`
	Results     map[string]AnalysisResult `json:"results"`
}

// Clone returns a deep copy safe to hand out of a repository.
func (j BatchJob) Clone() BatchJob {
	out := j
	out.DocumentIDs = append([]string(nil), j.DocumentIDs...)
	out.Results = make(map[string]AnalysisResult, len(j.Results))
	for k, v := range j.Results {
		out.Results[k] = v
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// ProgressFor computes round(100 * done / total).
func ProgressFor(done, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*done + total) / (2 * total)
}

// MaxRunningProgress is the ceiling while a job is not terminal; only the
// terminal transition sets 100.
const MaxRunningProgress = 99

// Record stores one document result and raises progress without ever lowering it.
func (j *BatchJob) Record(result AnalysisResult) {
	if j.Results == nil {
		j.Results = make(map[string]AnalysisResult)
	}
	j.Results[result.DocumentID] = result
	j.Processed = len(j.Results)
	p := ProgressFor(j.Processed, len(j.DocumentIDs))
	if !j.Status.IsTerminal() && p > MaxRunningProgress {
		p = MaxRunningProgress
	}
	if p > j.Progress {
		j.Progress = p
	}
}
