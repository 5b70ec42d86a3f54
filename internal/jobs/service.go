package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"server/internal/credits"
	"server/internal/domain"
	"server/internal/gateway"
	"server/internal/infra"
	"server/internal/inject"
	"server/internal/sqlinline"
)

// progressSubmitted is the progress a job jumps to once the external
// pipeline acknowledges it.
const progressSubmitted = 5

// Gateway is the slice of the pipeline client the service needs.
type Gateway interface {
	Submit(ctx context.Context, req gateway.SubmitRequest) (string, error)
	LookupByReference(ctx context.Context, reference string) (string, error)
}

// Injector regenerates a job's rendered artifacts from its stored result.
type Injector interface {
	Run(ctx context.Context, jobID string) (inject.Report, error)
}

// CreditLedger reserves and refunds credits against an explicit executor so
// reservations share the submission transaction.
type CreditLedger interface {
	CheckAndReserve(ctx context.Context, sql infra.SQLExecutor, organizationID, jobID string, t domain.AdvertorialType) (credits.Reservation, error)
	Refund(ctx context.Context, sql infra.SQLExecutor, jobID string) error
}

// CreateRequest carries a validated submission.
type CreateRequest struct {
	OrganizationID string
	UserID         string
	Type           domain.AdvertorialType
	TemplateID     *string
	SalesPageURL   string
	BrandInfo      json.RawMessage
	Locale         string
}

// submissionPayload is what gets persisted on the job row so a stalled
// submission can be replayed without the original HTTP request.
type submissionPayload struct {
	SalesPageURL string          `json:"sales_page_url,omitempty"`
	BrandInfo    json.RawMessage `json:"brand_info,omitempty"`
	Locale       string          `json:"locale,omitempty"`
}

// Service owns every job status transition. Nothing else writes jobs.status.
type Service struct {
	runner   infra.TxRunner
	gw       Gateway
	ledger   CreditLedger
	injector Injector
	logger   infra.Logger

	// asyncInjection moves the post-completion fan-out off the caller's
	// goroutine. Tests run it inline.
	asyncInjection bool
}

func NewService(runner infra.TxRunner, gw Gateway, ledger CreditLedger, injector Injector, logger infra.Logger) *Service {
	return &Service{
		runner:         runner,
		gw:             gw,
		ledger:         ledger,
		injector:       injector,
		logger:         logger,
		asyncInjection: true,
	}
}

// Create reserves credits and persists the job atomically, then hands it to
// the external pipeline. A definitive upstream rejection fails the job and
// refunds; a transient failure leaves it pending for the retry sweep.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Job, error) {
	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown advertorial type %q", domain.ErrValidation, req.Type)
	}

	jobID := uuid.NewString()
	payload, err := json.Marshal(submissionPayload{
		SalesPageURL: req.SalesPageURL,
		BrandInfo:    req.BrandInfo,
		Locale:       req.Locale,
	})
	if err != nil {
		return nil, fmt.Errorf("jobs: encode payload: %w", err)
	}

	err = s.runner.InTx(ctx, func(tx infra.SQLExecutor) error {
		if _, err := s.ledger.CheckAndReserve(ctx, tx, req.OrganizationID, jobID, req.Type); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, sqlinline.QInsertJob,
			jobID, req.OrganizationID, req.UserID, string(req.Type), req.TemplateID, payload)
		return err
	})
	if err != nil {
		return nil, err
	}

	job, err := s.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if err := s.submit(ctx, job); err != nil {
		var gwErr *gateway.Error
		if errors.As(err, &gwErr) && !gwErr.Temporary() {
			// Upstream rejected the submission for good. Fail now rather
			// than letting the retry sweep replay a doomed request.
			if failErr := s.Fail(ctx, jobID, gwErr.Error()); failErr != nil {
				s.logger.Error().Err(failErr).Str("job_id", jobID).Msg("jobs: fail after rejection")
			}
			return s.GetByID(ctx, jobID)
		}
		// Ambiguous transport failure: the pipeline may or may not have
		// accepted the job. Leave it pending; RetrySubmission reconciles.
		s.logger.Warn().Err(err).Str("job_id", jobID).Msg("jobs: submission deferred")
		return job, nil
	}
	return s.GetByID(ctx, jobID)
}

// submit pushes the job upstream and records the returned execution id.
func (s *Service) submit(ctx context.Context, job *domain.Job) error {
	var stored submissionPayload
	if len(job.Payload) > 0 {
		if err := json.Unmarshal(job.Payload, &stored); err != nil {
			return fmt.Errorf("jobs: decode payload: %w", err)
		}
	}
	executionID, err := s.gw.Submit(ctx, gateway.SubmitRequest{
		Reference:       job.ID,
		AdvertorialType: string(job.Type),
		SalesPageURL:    stored.SalesPageURL,
		BrandInfo:       stored.BrandInfo,
		Locale:          stored.Locale,
	})
	if err != nil {
		return err
	}
	return s.adoptExecution(ctx, job.ID, executionID)
}

// adoptExecution binds the upstream execution id to the job and promotes it
// to processing. The id is set-once: a concurrent adopter loses quietly.
func (s *Service) adoptExecution(ctx context.Context, jobID, executionID string) error {
	if _, err := s.runner.Exec(ctx, sqlinline.QSetExternalExecution, jobID, executionID); err != nil {
		return fmt.Errorf("jobs: record execution id: %w", err)
	}
	if _, err := s.runner.Exec(ctx, sqlinline.QMarkProcessing, jobID, progressSubmitted); err != nil {
		return fmt.Errorf("jobs: mark processing: %w", err)
	}
	return nil
}

// ApplyStatus folds one upstream status report into the local state machine.
func (s *Service) ApplyStatus(ctx context.Context, jobID string, report gateway.StatusReport) error {
	switch report.Status {
	case gateway.StatusQueued, gateway.StatusRunning:
		_, err := s.runner.Exec(ctx, sqlinline.QUpdateProgress, jobID, report.Progress)
		return err
	case gateway.StatusFailed:
		message := report.Message
		if message == "" {
			message = "generation failed upstream"
		}
		return s.Fail(ctx, jobID, message)
	case gateway.StatusSucceeded:
		return s.complete(ctx, jobID, report.Result)
	default:
		return fmt.Errorf("jobs: unknown upstream status %q", report.Status)
	}
}

// complete stores the result and flips the job to completed. Exactly one
// caller wins the flip; only the winner triggers injection.
func (s *Service) complete(ctx context.Context, jobID string, result json.RawMessage) error {
	if len(result) == 0 {
		result = json.RawMessage(`{}`)
	}
	var won bool
	err := s.runner.InTx(ctx, func(tx infra.SQLExecutor) error {
		if _, err := tx.Exec(ctx, sqlinline.QInsertResult, jobID, []byte(result)); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, sqlinline.QMarkCompleted, jobID)
		if err != nil {
			return err
		}
		won = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return fmt.Errorf("jobs: complete: %w", err)
	}
	if !won {
		return nil
	}
	s.logger.Info().Str("job_id", jobID).Msg("jobs: completed")
	if s.asyncInjection {
		go s.runInjection(context.WithoutCancel(ctx), jobID)
		return nil
	}
	s.runInjection(ctx, jobID)
	return nil
}

// runInjection fans out the rendered artifacts. Failures here never touch
// the job status: a completed job with no artifacts is repaired by
// Regenerate, not re-failed.
func (s *Service) runInjection(ctx context.Context, jobID string) {
	report, err := s.injector.Run(ctx, jobID)
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("jobs: injection failed")
		return
	}
	if report.Generated == 0 {
		s.logger.Warn().Str("job_id", jobID).Msg("jobs: no angles produced artifacts")
	}
}

// Fail marks the job failed and refunds its credits. Idempotent: if the job
// already reached a terminal status nothing happens, so the refund is
// written at most once.
func (s *Service) Fail(ctx context.Context, jobID, message string) error {
	return s.runner.InTx(ctx, func(tx infra.SQLExecutor) error {
		tag, err := tx.Exec(ctx, sqlinline.QMarkFailed, jobID, message)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return nil
		}
		return s.ledger.Refund(ctx, tx, jobID)
	})
}

// Regenerate re-runs the injection engine for a completed job.
func (s *Service) Regenerate(ctx context.Context, jobID string) (inject.Report, error) {
	job, err := s.GetByID(ctx, jobID)
	if err != nil {
		return inject.Report{}, err
	}
	if job.Status != domain.JobStatusCompleted {
		return inject.Report{}, domain.ErrJobNotCompleted
	}
	return s.injector.Run(ctx, jobID)
}

// RetrySubmission reconciles a pending job whose original submission never
// got an execution id back. The pipeline is asked for an execution with our
// reference first; only when it has none is the job resubmitted, so an
// ambiguous timeout never turns into a duplicate generation.
func (s *Service) RetrySubmission(ctx context.Context, jobID string) error {
	job, err := s.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.JobStatusPending || job.Submitted() {
		return nil
	}

	executionID, err := s.gw.LookupByReference(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("jobs: lookup by reference: %w", err)
	}
	if executionID != "" {
		s.logger.Info().Str("job_id", jobID).Str("execution_id", executionID).Msg("jobs: adopted prior submission")
		return s.adoptExecution(ctx, jobID, executionID)
	}

	if err := s.submit(ctx, job); err != nil {
		var gwErr *gateway.Error
		if errors.As(err, &gwErr) && !gwErr.Temporary() {
			return s.Fail(ctx, jobID, gwErr.Error())
		}
		return err
	}
	return nil
}

// GetByID loads one job row.
func (s *Service) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	row := s.runner.QueryRow(ctx, sqlinline.QSelectJobByID, jobID)
	return scanJob(row)
}

func scanJob(row interface{ Scan(dest ...any) error }) (*domain.Job, error) {
	var job domain.Job
	err := row.Scan(
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
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}
