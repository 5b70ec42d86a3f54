package domain

import "context"

// JobRepository defines read access for job entities. Writes that carry
// lifecycle semantics go through the job service, not through here.
type JobRepository interface {
	GetByID(ctx context.Context, jobID string) (*Job, error)
	GetForOrganization(ctx context.Context, jobID, organizationID string) (*Job, error)
}

// InjectableTemplateRepository resolves the HTML skeletons used by the
// injection engine.
type InjectableTemplateRepository interface {
	GetByID(ctx context.Context, templateID string) (*InjectableTemplate, error)
	ActiveByType(ctx context.Context, t AdvertorialType) (*InjectableTemplate, error)
	ListActive(ctx context.Context, t AdvertorialType) ([]InjectableTemplate, error)
}

// InjectedTemplateRepository reads rendered artifacts. Creation is owned by
// the injection engine because delete-then-insert must share one transaction.
type InjectedTemplateRepository interface {
	ListByJobID(ctx context.Context, jobID string, includeHTML bool) ([]InjectedTemplate, error)
	GetByJobAndAngle(ctx context.Context, jobID string, angleIndex int) (*InjectedTemplate, error)
	CountByJobID(ctx context.Context, jobID string) (int, error)
}
