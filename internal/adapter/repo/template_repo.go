package repo

import (
	"context"
	"encoding/json"
	"time"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

const templateCacheTTL = 5 * time.Minute

// TemplateRepositoryPG implements domain.InjectableTemplateRepository with
// an optional redis cache in front of the active-template lookup, which the
// injection engine hits once per generated job.
type TemplateRepositoryPG struct {
	sql   infra.SQLExecutor
	cache *infra.Cache
}

func NewTemplateRepository(sql infra.SQLExecutor, cache *infra.Cache) *TemplateRepositoryPG {
	return &TemplateRepositoryPG{sql: sql, cache: cache}
}

func (r *TemplateRepositoryPG) GetByID(ctx context.Context, templateID string) (*domain.InjectableTemplate, error) {
	row := r.sql.QueryRow(ctx, sqlinline.QSelectTemplateByID, templateID)
	return scanTemplate(row)
}

func (r *TemplateRepositoryPG) ActiveByType(ctx context.Context, t domain.AdvertorialType) (*domain.InjectableTemplate, error) {
	cacheKey := "tpl:active:" + string(t)
	if cached, ok := r.cache.GetString(ctx, cacheKey); ok {
		var template domain.InjectableTemplate
		if err := json.Unmarshal([]byte(cached), &template); err == nil {
			return &template, nil
		}
	}
	row := r.sql.QueryRow(ctx, sqlinline.QSelectActiveTemplateByType, string(t))
	template, err := scanTemplate(row)
	if err != nil {
		return nil, err
	}
	if encoded, err := json.Marshal(template); err == nil {
		r.cache.SetString(ctx, cacheKey, string(encoded), templateCacheTTL)
	}
	return template, nil
}

// ListActive returns active templates without their skeletons, for list views.
func (r *TemplateRepositoryPG) ListActive(ctx context.Context, t domain.AdvertorialType) ([]domain.InjectableTemplate, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QSelectActiveTemplates, string(t))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var templates []domain.InjectableTemplate
	for rows.Next() {
		var template domain.InjectableTemplate
		if err := rows.Scan(
			&template.ID,
			&template.Name,
			&template.Type,
			&template.IsActive,
			&template.CreatedAt,
			&template.UpdatedAt,
		); err != nil {
			return nil, err
		}
		templates = append(templates, template)
	}
	return templates, rows.Err()
}

func scanTemplate(row interface{ Scan(dest ...any) error }) (*domain.InjectableTemplate, error) {
	var template domain.InjectableTemplate
	if err := row.Scan(
		&template.ID,
		&template.Name,
		&template.Type,
		&template.HTMLSkeleton,
		&template.IsActive,
		&template.CreatedAt,
		&template.UpdatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &template, nil
}

var _ domain.InjectableTemplateRepository = (*TemplateRepositoryPG)(nil)
