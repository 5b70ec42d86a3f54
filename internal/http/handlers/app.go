package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"server/internal/credits"
	"server/internal/domain"
	"server/internal/infra"
	"server/internal/inject"
	"server/internal/jobs"
	"server/internal/middleware"
)

// JobService is the slice of the job service the handlers call.
type JobService interface {
	Create(ctx context.Context, req jobs.CreateRequest) (*domain.Job, error)
	Regenerate(ctx context.Context, jobID string) (inject.Report, error)
}

type App struct {
	SQL       infra.SQLExecutor
	Jobs      JobService
	Ledger    *credits.Ledger
	JobRepo   domain.JobRepository
	Templates domain.InjectableTemplateRepository
	Injected  domain.InjectedTemplateRepository
	Logger    infra.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]string{"error": code, "message": message})
}

// principal resolves the authenticated caller, writing 401 when absent.
func (a *App) principal(w http.ResponseWriter, r *http.Request) (middleware.Principal, bool) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok || p.OrganizationID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing session")
		return middleware.Principal{}, false
	}
	return p, true
}
