package scheduler

import (
	"encoding/json"
	"time"
)

// JobDefinition describes a job: what type it is and how it is configured.
// Triggers reference definitions; many triggers may share one definition.
type JobDefinition struct {
	ID          string
	Title       string
	Description string
	JobType     string
	Config      json.RawMessage // job-type specific, decoded by the job factory
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
