package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"server/internal/domain"
	"server/internal/jobs"
	"server/internal/middleware"
	"server/pkg/zip"
)

const maxSubmitBody = 1 << 20

type submitRequest struct {
	AdvertorialType string          `json:"advertorial_type"`
	TemplateID      *string         `json:"template_id,omitempty"`
	SalesPageURL    string          `json:"sales_page_url,omitempty"`
	BrandInfo       json.RawMessage `json:"brand_info,omitempty"`
	Locale          string          `json:"locale,omitempty"`
}

func (a *App) SubmitAdvertorial(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxSubmitBody))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "unreadable body")
		return
	}
	if err := validateSubmission(raw); err != nil {
		a.error(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
		return
	}
	var req submitRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		a.error(w, http.StatusUnprocessableEntity, "validation_error", "invalid payload")
		return
	}
	locale := req.Locale
	if locale == "" {
		locale = middleware.LocaleFromContext(r.Context())
	}

	job, err := a.Jobs.Create(r.Context(), jobs.CreateRequest{
		OrganizationID: p.OrganizationID,
		UserID:         p.UserID,
		Type:           domain.AdvertorialType(req.AdvertorialType),
		TemplateID:     req.TemplateID,
		SalesPageURL:   req.SalesPageURL,
		BrandInfo:      req.BrandInfo,
		Locale:         locale,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientCredits):
			a.error(w, http.StatusPaymentRequired, "insufficient_credits", "credit limit reached for the current period")
		case errors.Is(err, domain.ErrValidation):
			a.error(w, http.StatusUnprocessableEntity, "validation_error", err.Error())
		default:
			a.Logger.Error().Err(err).Msg("handlers: submit advertorial")
			a.error(w, http.StatusInternalServerError, "internal", "failed to create job")
		}
		return
	}
	a.json(w, http.StatusAccepted, map[string]any{
		"job_id":   job.ID,
		"status":   job.Status,
		"progress": job.Progress,
	})
}

func (a *App) AdvertorialStatus(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	job, ok := a.loadJob(w, r, p.OrganizationID)
	if !ok {
		return
	}
	count, err := a.Injected.CountByJobID(r.Context(), job.ID)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("handlers: count artifacts")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	resp := map[string]any{
		"job_id":           job.ID,
		"advertorial_type": job.Type,
		"status":           job.Status,
		"progress":         job.Progress,
		"generated_count":  count,
		"created_at":       job.CreatedAt,
		"updated_at":       job.UpdatedAt,
	}
	if job.CompletedAt != nil {
		resp["completed_at"] = job.CompletedAt
	}
	if job.Status == domain.JobStatusFailed && job.ErrorMessage != "" {
		resp["error"] = job.ErrorMessage
	}
	a.json(w, http.StatusOK, resp)
}

func (a *App) AdvertorialTemplates(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	job, ok := a.loadJob(w, r, p.OrganizationID)
	if !ok {
		return
	}

	if rawAngle := r.URL.Query().Get("angle"); rawAngle != "" {
		angle, err := strconv.Atoi(rawAngle)
		if err != nil || angle < 1 {
			a.error(w, http.StatusUnprocessableEntity, "validation_error", "angle must be a positive integer")
			return
		}
		artifact, err := a.Injected.GetByJobAndAngle(r.Context(), job.ID, angle)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				a.error(w, http.StatusNotFound, "not_found", "no artifact for that angle")
				return
			}
			a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("handlers: load artifact")
			a.error(w, http.StatusInternalServerError, "internal", "failed to load artifact")
			return
		}
		a.json(w, http.StatusOK, artifactView(*artifact, true))
		return
	}

	includeHTML := !queryFlag(r, "exclude_html")
	artifacts, err := a.Injected.ListByJobID(r.Context(), job.ID, includeHTML)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("handlers: list artifacts")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load artifacts")
		return
	}
	items := make([]map[string]any, 0, len(artifacts))
	for _, artifact := range artifacts {
		items = append(items, artifactView(artifact, includeHTML))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items, "count": len(items)})
}

// ExportAdvertorialTemplates downloads all rendered artifacts as a zip of
// standalone HTML files.
func (a *App) ExportAdvertorialTemplates(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	job, ok := a.loadJob(w, r, p.OrganizationID)
	if !ok {
		return
	}
	artifacts, err := a.Injected.ListByJobID(r.Context(), job.ID, true)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("handlers: export artifacts")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load artifacts")
		return
	}
	if len(artifacts) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "job has no artifacts")
		return
	}
	entries := make([]zip.Entry, 0, len(artifacts))
	for _, artifact := range artifacts {
		entries = append(entries, zip.Entry{
			Name: fmt.Sprintf("angle-%02d-%s.html", artifact.AngleIndex, slug(artifact.AngleName)),
			Data: []byte(artifact.HTMLContent),
		})
	}
	archive := zip.Archive(entries)
	if archive == nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to build archive")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", job.ID+"-templates.zip"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func (a *App) RegenerateAdvertorial(w http.ResponseWriter, r *http.Request) {
	p, ok := a.principal(w, r)
	if !ok {
		return
	}
	job, ok := a.loadJob(w, r, p.OrganizationID)
	if !ok {
		return
	}
	report, err := a.Jobs.Regenerate(r.Context(), job.ID)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrJobNotCompleted):
			a.error(w, http.StatusConflict, "job_not_completed", "only completed jobs can be regenerated")
		case errors.Is(err, domain.ErrNoActiveTemplate):
			a.error(w, http.StatusUnprocessableEntity, "no_active_template", "no active template for the advertorial type")
		default:
			a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("handlers: regenerate")
			a.error(w, http.StatusInternalServerError, "internal", "regeneration failed")
		}
		return
	}
	a.json(w, http.StatusOK, report)
}

// loadJob resolves the path job within the caller's organization. Jobs
// outside the organization read as 404, not 403.
func (a *App) loadJob(w http.ResponseWriter, r *http.Request, organizationID string) (*domain.Job, bool) {
	jobID := chi.URLParam(r, "job_id")
	if jobID == "" {
		a.error(w, http.StatusUnprocessableEntity, "validation_error", "job_id required")
		return nil, false
	}
	job, err := a.JobRepo.GetForOrganization(r.Context(), jobID, organizationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return nil, false
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("handlers: load job")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return nil, false
	}
	return job, true
}

func artifactView(artifact domain.InjectedTemplate, includeHTML bool) map[string]any {
	view := map[string]any{
		"id":          artifact.ID,
		"job_id":      artifact.JobID,
		"angle_index": artifact.AngleIndex,
		"angle_name":  artifact.AngleName,
		"template_id": artifact.TemplateID,
		"created_at":  artifact.CreatedAt,
	}
	if includeHTML {
		view["html_content"] = artifact.HTMLContent
	}
	return view
}

func queryFlag(r *http.Request, name string) bool {
	v := strings.ToLower(r.URL.Query().Get(name))
	return v == "true" || v == "1"
}

func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "angle"
	}
	return out
}
