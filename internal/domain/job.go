package domain

import "time"

// AdvertorialType enumerates the supported generation categories. The type
// decides which extraction rules and which injectable templates apply.
type AdvertorialType string

const (
	AdvertorialTypeListicle    AdvertorialType = "listicle"
	AdvertorialTypeAdvertorial AdvertorialType = "advertorial"
)

// Valid reports whether t is one of the known advertorial types.
func (t AdvertorialType) Valid() bool {
	return t == AdvertorialTypeListicle || t == AdvertorialTypeAdvertorial
}

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Job encapsulates the lifecycle of one advertorial generation request.
type Job struct {
	ID                  string
	OrganizationID      string
	UserID              string
	Type                AdvertorialType
	TemplateID          *string
	Status              JobStatus
	Progress            int
	ExternalExecutionID *string
	ErrorMessage        string
	Payload             []byte
	PollFailures        int
	NotFoundCount       int
	LastPolledAt        *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
	CompletedAt         *time.Time
}

// Submitted reports whether the external pipeline has acknowledged the job.
func (j *Job) Submitted() bool {
	return j.ExternalExecutionID != nil && *j.ExternalExecutionID != ""
}
