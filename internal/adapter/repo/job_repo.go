package repo

import (
	"context"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	return r.scanOne(r.sql.QueryRow(ctx, sqlinline.QSelectJobByID, jobID))
}

// GetForOrganization fetches a job scoped to its owning organization, so one
// tenant can never read another tenant's job.
func (r *JobRepositoryPG) GetForOrganization(ctx context.Context, jobID, organizationID string) (*domain.Job, error) {
	return r.scanOne(r.sql.QueryRow(ctx, sqlinline.QSelectJobForOrg, jobID, organizationID))
}

func (r *JobRepositoryPG) scanOne(row interface{ Scan(dest ...any) error }) (*domain.Job, error) {
	var job domain.Job
	if err := row.Scan(
		&job.ID,
		&job.OrganizationID,
		&job.UserID,
		&job.Type,
		&job.TemplateID,
		&job.Status,
		&job.Progress,
		&job.ExternalExecutionID,
		&job.ErrorMessage,
		&job.Payload,
		&job.PollFailures,
		&job.NotFoundCount,
		&job.LastPolledAt,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
