package inject

import (
	"context"
	"errors"
	"fmt"

	"server/internal/domain"
	"server/internal/infra"
	"server/internal/sqlinline"
)

// InjectionError describes which step of the engine failed. Engine failures
// never change Job.status: a completed job with zero artifacts is a
// recoverable condition, repaired by the regenerate operation.
type InjectionError struct {
	Step string
	Err  error
}

func (e *InjectionError) Error() string {
	return fmt.Sprintf("inject: %s: %v", e.Step, e.Err)
}

func (e *InjectionError) Unwrap() error {
	return e.Err
}

// Report summarizes one engine run.
type Report struct {
	Generated  int      `json:"generated"`
	Skipped    int      `json:"skipped"`
	AngleNames []string `json:"angle_names"`
}

// Engine turns a job's raw result into rendered injected-template rows.
type Engine struct {
	runner    infra.TxRunner
	templates domain.InjectableTemplateRepository
	logger    infra.Logger
}

func NewEngine(runner infra.TxRunner, templates domain.InjectableTemplateRepository, logger infra.Logger) *Engine {
	return &Engine{runner: runner, templates: templates, logger: logger}
}

// Run regenerates all injected templates for the job from its stored result.
// Replace-all semantics: within one transaction prior rows are deleted and
// the new fan-out inserted, so readers never observe a mix of generations.
func (e *Engine) Run(ctx context.Context, jobID string) (Report, error) {
	job, err := e.loadJob(ctx, jobID)
	if err != nil {
		return Report{}, &InjectionError{Step: "load job", Err: err}
	}

	var rawPayload []byte
	row := e.runner.QueryRow(ctx, sqlinline.QSelectResultPayload, jobID)
	if err := row.Scan(&rawPayload); err != nil {
		if infra.IsNoRows(err) {
			return Report{}, &InjectionError{Step: "load result", Err: domain.ErrNotFound}
		}
		return Report{}, &InjectionError{Step: "load result", Err: err}
	}

	template, err := e.resolveTemplate(ctx, job)
	if err != nil {
		return Report{}, &InjectionError{Step: "resolve template", Err: err}
	}

	candidates := DiscoverAngles(rawPayload)
	report := Report{AngleNames: []string{}}
	type artifact struct {
		index int
		name  string
		html  string
	}
	var artifacts []artifact
	for _, candidate := range candidates {
		model, err := ExtractContent(job.Type, candidate)
		if err != nil {
			report.Skipped++
			e.logger.Warn().Err(err).Str("job_id", jobID).Msg("inject: candidate skipped")
			continue
		}
		if cov := Validate(template.HTMLSkeleton, model); len(cov.Missing) > 0 {
			e.logger.Debug().
				Str("job_id", jobID).
				Strs("missing", cov.Missing).
				Msg("inject: template fields absent from content")
		}
		index := len(artifacts) + 1
		name := candidate.Name
		if name == "" {
			name = fmt.Sprintf("Angle %d", index)
		}
		artifacts = append(artifacts, artifact{
			index: index,
			name:  name,
			html:  Render(template.HTMLSkeleton, model),
		})
		report.AngleNames = append(report.AngleNames, name)
	}

	err = e.runner.InTx(ctx, func(tx infra.SQLExecutor) error {
		if _, err := tx.Exec(ctx, sqlinline.QDeleteInjectedForJob, jobID); err != nil {
			return err
		}
		for _, a := range artifacts {
			if _, err := tx.Exec(ctx, sqlinline.QInsertInjected, jobID, a.index, a.name, a.html, template.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Report{}, &InjectionError{Step: "persist", Err: err}
	}

	report.Generated = len(artifacts)
	e.logger.Info().
		Str("job_id", jobID).
		Int("generated", report.Generated).
		Int("skipped", report.Skipped).
		Msg("inject: templates generated")
	return report, nil
}

type engineJob struct {
	Type       domain.AdvertorialType
	TemplateID *string
}

func (e *Engine) loadJob(ctx context.Context, jobID string) (engineJob, error) {
	row := e.runner.QueryRow(ctx, sqlinline.QSelectJobForInjection, jobID)
	var job engineJob
	if err := row.Scan(&job.Type, &job.TemplateID); err != nil {
		if infra.IsNoRows(err) {
			return engineJob{}, domain.ErrNotFound
		}
		return engineJob{}, err
	}
	return job, nil
}

// resolveTemplate honors an explicit template id first; the type constraint
// only applies when resolving by advertorial type.
func (e *Engine) resolveTemplate(ctx context.Context, job engineJob) (*domain.InjectableTemplate, error) {
	if job.TemplateID != nil && *job.TemplateID != "" {
		template, err := e.templates.GetByID(ctx, *job.TemplateID)
		if err == nil {
			return template, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		// Fall through to type lookup when the referenced template is gone.
	}
	template, err := e.templates.ActiveByType(ctx, job.Type)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNoActiveTemplate
		}
		return nil, err
	}
	return template, nil
}
