package repo

import (
	"context"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

type InjectedRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewInjectedRepository(sql infra.SQLExecutor) *InjectedRepositoryPG {
	return &InjectedRepositoryPG{sql: sql}
}

func (r *InjectedRepositoryPG) ListByJobID(ctx context.Context, jobID string, includeHTML bool) ([]domain.InjectedTemplate, error) {
	query := sqlinline.QSelectInjectedMetaByJob
	if includeHTML {
		query = sqlinline.QSelectInjectedByJob
	}
	rows, err := r.sql.Query(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var artifacts []domain.InjectedTemplate
	for rows.Next() {
		var artifact domain.InjectedTemplate
		if includeHTML {
			err = rows.Scan(
				&artifact.ID,
				&artifact.JobID,
				&artifact.AngleIndex,
				&artifact.AngleName,
				&artifact.HTMLContent,
				&artifact.TemplateID,
				&artifact.CreatedAt,
			)
		} else {
			err = rows.Scan(
				&artifact.ID,
				&artifact.JobID,
				&artifact.AngleIndex,
				&artifact.AngleName,
				&artifact.TemplateID,
				&artifact.CreatedAt,
			)
		}
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, rows.Err()
}

func (r *InjectedRepositoryPG) GetByJobAndAngle(ctx context.Context, jobID string, angleIndex int) (*domain.InjectedTemplate, error) {
	var artifact domain.InjectedTemplate
	err := r.sql.QueryRow(ctx, sqlinline.QSelectInjectedByJobAngle, jobID, angleIndex).Scan(
		&artifact.ID,
		&artifact.JobID,
		&artifact.AngleIndex,
		&artifact.AngleName,
		&artifact.HTMLContent,
		&artifact.TemplateID,
		&artifact.CreatedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &artifact, nil
}

func (r *InjectedRepositoryPG) CountByJobID(ctx context.Context, jobID string) (int, error) {
	var count int
	if err := r.sql.QueryRow(ctx, sqlinline.QCountInjectedForJob, jobID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

var _ domain.InjectedTemplateRepository = (*InjectedRepositoryPG)(nil)
