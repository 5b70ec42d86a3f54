package domain

import "time"

// InjectableTemplate is a reusable HTML skeleton with {{content.<field>}}
// placeholder markers.
type InjectableTemplate struct {
	ID           string
	Name         string
	Type         AdvertorialType
	HTMLSkeleton string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// InjectedTemplate is one rendered artifact: a single angle's extracted
// content merged into an injectable template.
type InjectedTemplate struct {
	ID          string
	JobID       string
	AngleIndex  int
	AngleName   string
	HTMLContent string
	TemplateID  string
	CreatedAt   time.Time
}

// Result holds the raw external pipeline output for a completed job.
// Immutable once written.
type Result struct {
	JobID      string
	RawPayload []byte
	CreatedAt  time.Time
}
