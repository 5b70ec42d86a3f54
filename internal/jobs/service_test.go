package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"server/internal/credits"
	"server/internal/domain"
	"server/internal/gateway"
	"server/internal/infra"
	"server/internal/inject"
)

type jobRecord struct {
	id          string
	orgID       string
	userID      string
	jobType     string
	templateID  *string
	status      string
	progress    int
	executionID *string
	errMessage  string
	payload     []byte
	createdAt   time.Time
}

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

// stubServiceDB emulates the job table updates, including the status guards
// that make completion and failure exactly-once.
type stubServiceDB struct {
	jobs    map[string]*jobRecord
	results map[string][]byte
}

func newStubServiceDB() *stubServiceDB {
	return &stubServiceDB{jobs: map[string]*jobRecord{}, results: map[string][]byte{}}
}

func tag(rows int) pgconn.CommandTag {
	if rows == 1 {
		return pgconn.NewCommandTag("UPDATE 1")
	}
	return pgconn.NewCommandTag("UPDATE 0")
}

func (s *stubServiceDB) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	switch {
	case strings.Contains(query, "insert into jobs"):
		templateID, _ := args[4].(*string)
		s.jobs[args[0].(string)] = &jobRecord{
			id:         args[0].(string),
			orgID:      args[1].(string),
			userID:     args[2].(string),
			jobType:    args[3].(string),
			templateID: templateID,
			status:     "pending",
			payload:    args[5].([]byte),
			createdAt:  time.Now(),
		}
		return tag(1), nil
	case strings.Contains(query, "set external_execution_id"):
		job := s.jobs[args[0].(string)]
		if job == nil || job.executionID != nil {
			return tag(0), nil
		}
		id := args[1].(string)
		job.executionID = &id
		return tag(1), nil
	case strings.Contains(query, "set status = 'processing'"):
		job := s.jobs[args[0].(string)]
		if job == nil || job.status != "pending" {
			return tag(0), nil
		}
		job.status = "processing"
		if p := args[1].(int); p > job.progress {
			job.progress = p
		}
		return tag(1), nil
	case strings.Contains(query, "set progress = greatest"):
		job := s.jobs[args[0].(string)]
		if job == nil || (job.status != "pending" && job.status != "processing") {
			return tag(0), nil
		}
		if p := args[1].(int); p > job.progress {
			job.progress = p
		}
		job.status = "processing"
		return tag(1), nil
	case strings.Contains(query, "set status = 'completed'"):
		job := s.jobs[args[0].(string)]
		if job == nil || (job.status != "pending" && job.status != "processing") {
			return tag(0), nil
		}
		job.status = "completed"
		job.progress = 100
		return tag(1), nil
	case strings.Contains(query, "set status = 'failed'"):
		job := s.jobs[args[0].(string)]
		if job == nil || (job.status != "pending" && job.status != "processing") {
			return tag(0), nil
		}
		job.status = "failed"
		job.errMessage = args[1].(string)
		return tag(1), nil
	case strings.Contains(query, "insert into results"):
		jobID := args[0].(string)
		if _, exists := s.results[jobID]; !exists {
			s.results[jobID] = args[1].([]byte)
		}
		return tag(1), nil
	}
	return pgconn.CommandTag{}, errors.New("unsupported exec: " + query)
}

func (s *stubServiceDB) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	if strings.Contains(query, "from jobs") && strings.Contains(query, "where id =") {
		job, ok := s.jobs[args[0].(string)]
		if !ok {
			return stubRow{}
		}
		return stubRow{scan: func(dest ...any) error {
			*dest[0].(*string) = job.id
			*dest[1].(*string) = job.orgID
			*dest[2].(*string) = job.userID
			*dest[3].(*domain.AdvertorialType) = domain.AdvertorialType(job.jobType)
			*dest[4].(**string) = job.templateID
			*dest[5].(*domain.JobStatus) = domain.JobStatus(job.status)
			*dest[6].(*int) = job.progress
			*dest[7].(**string) = job.executionID
			*dest[8].(*string) = job.errMessage
			*dest[9].(*[]byte) = job.payload
			*dest[10].(*int) = 0
			*dest[11].(*int) = 0
			*dest[12].(**time.Time) = nil
			*dest[13].(*time.Time) = job.createdAt
			*dest[14].(*time.Time) = job.createdAt
			*dest[15].(**time.Time) = nil
			return nil
		}}
	}
	return stubRow{scan: func(dest ...any) error { return errors.New("unsupported query_row: " + query) }}
}

func (s *stubServiceDB) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("unsupported query: " + query)
}

// InTx runs fn against the stub and restores state when fn fails.
func (s *stubServiceDB) InTx(ctx context.Context, fn func(tx infra.SQLExecutor) error) error {
	jobsSnapshot := map[string]*jobRecord{}
	for k, v := range s.jobs {
		copied := *v
		jobsSnapshot[k] = &copied
	}
	resultsSnapshot := map[string][]byte{}
	for k, v := range s.results {
		resultsSnapshot[k] = v
	}
	if err := fn(s); err != nil {
		s.jobs = jobsSnapshot
		s.results = resultsSnapshot
		return err
	}
	return nil
}

type stubGateway struct {
	submitID    string
	submitErr   error
	submitCalls int
	lastSubmit  gateway.SubmitRequest

	lookupID    string
	lookupErr   error
	lookupCalls int
}

func (g *stubGateway) Submit(ctx context.Context, req gateway.SubmitRequest) (string, error) {
	g.submitCalls++
	g.lastSubmit = req
	if g.submitErr != nil {
		return "", g.submitErr
	}
	return g.submitID, nil
}

func (g *stubGateway) LookupByReference(ctx context.Context, reference string) (string, error) {
	g.lookupCalls++
	return g.lookupID, g.lookupErr
}

type stubLedger struct {
	reserveErr error
	reserves   int
	refunds    []string
}

func (l *stubLedger) CheckAndReserve(ctx context.Context, sql infra.SQLExecutor, organizationID, jobID string, t domain.AdvertorialType) (credits.Reservation, error) {
	l.reserves++
	if l.reserveErr != nil {
		return credits.Reservation{}, l.reserveErr
	}
	return credits.Reservation{Credits: 10}, nil
}

func (l *stubLedger) Refund(ctx context.Context, sql infra.SQLExecutor, jobID string) error {
	l.refunds = append(l.refunds, jobID)
	return nil
}

type stubInjector struct {
	runs   int
	report inject.Report
	err    error
}

func (i *stubInjector) Run(ctx context.Context, jobID string) (inject.Report, error) {
	i.runs++
	return i.report, i.err
}

type serviceFixture struct {
	svc      *Service
	db       *stubServiceDB
	gw       *stubGateway
	ledger   *stubLedger
	injector *stubInjector
}

func newFixture() *serviceFixture {
	f := &serviceFixture{
		db:       newStubServiceDB(),
		gw:       &stubGateway{submitID: "exec-1"},
		ledger:   &stubLedger{},
		injector: &stubInjector{report: inject.Report{Generated: 2}},
	}
	f.svc = NewService(f.db, f.gw, f.ledger, f.injector, zerolog.New(io.Discard))
	f.svc.asyncInjection = false
	return f
}

func (f *serviceFixture) seedJob(id, status string, executionID *string) {
	f.db.jobs[id] = &jobRecord{
		id:          id,
		orgID:       "org-1",
		userID:      "user-1",
		jobType:     "listicle",
		status:      status,
		executionID: executionID,
		payload:     []byte(`{"sales_page_url":"https://example.com"}`),
		createdAt:   time.Now(),
	}
}

func createRequest() CreateRequest {
	return CreateRequest{
		OrganizationID: "org-1",
		UserID:         "user-1",
		Type:           domain.AdvertorialTypeListicle,
		SalesPageURL:   "https://example.com/offer",
		BrandInfo:      json.RawMessage(`{"name":"Acme"}`),
		Locale:         "en",
	}
}

func TestCreateSubmitsAndMarksProcessing(t *testing.T) {
	f := newFixture()

	job, err := f.svc.Create(context.Background(), createRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.Status != domain.JobStatusProcessing {
		t.Fatalf("status = %s, want processing", job.Status)
	}
	if job.Progress != progressSubmitted {
		t.Fatalf("progress = %d, want %d", job.Progress, progressSubmitted)
	}
	if !job.Submitted() || *job.ExternalExecutionID != "exec-1" {
		t.Fatalf("execution id not recorded: %+v", job.ExternalExecutionID)
	}
	if f.ledger.reserves != 1 {
		t.Fatalf("reserves = %d, want 1", f.ledger.reserves)
	}
	if f.gw.lastSubmit.Reference != job.ID {
		t.Fatalf("submit reference = %q, want job id %q", f.gw.lastSubmit.Reference, job.ID)
	}
	if f.gw.lastSubmit.SalesPageURL != "https://example.com/offer" {
		t.Fatalf("submit payload not forwarded: %+v", f.gw.lastSubmit)
	}
}

func TestCreateRejectsUnknownType(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(context.Background(), CreateRequest{OrganizationID: "org-1", Type: "banner"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if f.ledger.reserves != 0 {
		t.Fatal("validation failure must not reach the ledger")
	}
}

func TestCreateInsufficientCreditsRollsBack(t *testing.T) {
	f := newFixture()
	f.ledger.reserveErr = domain.ErrInsufficientCredits

	_, err := f.svc.Create(context.Background(), createRequest())
	if !errors.Is(err, domain.ErrInsufficientCredits) {
		t.Fatalf("err = %v, want ErrInsufficientCredits", err)
	}
	if len(f.db.jobs) != 0 {
		t.Fatalf("jobs = %d, rejection must not persist a job", len(f.db.jobs))
	}
	if f.gw.submitCalls != 0 {
		t.Fatal("rejected submission must not reach the gateway")
	}
}

func TestCreateUpstreamRejectionFailsAndRefunds(t *testing.T) {
	f := newFixture()
	f.gw.submitErr = &gateway.Error{StatusCode: 422, Message: "unsupported locale"}

	job, err := f.svc.Create(context.Background(), createRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("status = %s, want failed", job.Status)
	}
	if job.ErrorMessage == "" {
		t.Fatal("failed job must carry the upstream message")
	}
	if len(f.ledger.refunds) != 1 || f.ledger.refunds[0] != job.ID {
		t.Fatalf("refunds = %v, want one for the job", f.ledger.refunds)
	}
}

func TestCreateTransportErrorLeavesPending(t *testing.T) {
	f := newFixture()
	f.gw.submitErr = errors.New("dial tcp: i/o timeout")

	job, err := f.svc.Create(context.Background(), createRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.Status != domain.JobStatusPending {
		t.Fatalf("status = %s, want pending for retry", job.Status)
	}
	if job.Submitted() {
		t.Fatal("ambiguous submission must not record an execution id")
	}
	if len(f.ledger.refunds) != 0 {
		t.Fatal("pending job keeps its reservation")
	}
}

func TestCreateUpstreamOverloadLeavesPending(t *testing.T) {
	f := newFixture()
	f.gw.submitErr = &gateway.Error{StatusCode: 503, Message: "pipeline at capacity"}

	job, err := f.svc.Create(context.Background(), createRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.Status != domain.JobStatusPending {
		t.Fatalf("status = %s, a transient upstream error must not fail the job", job.Status)
	}
	if len(f.ledger.refunds) != 0 {
		t.Fatal("pending job keeps its reservation")
	}
}

func TestApplyStatusProgressIsMonotonic(t *testing.T) {
	f := newFixture()
	execID := "exec-1"
	f.seedJob("job-1", "processing", &execID)
	f.db.jobs["job-1"].progress = 60
	ctx := context.Background()

	if err := f.svc.ApplyStatus(ctx, "job-1", gateway.StatusReport{Status: gateway.StatusRunning, Progress: 40}); err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}
	if got := f.db.jobs["job-1"].progress; got != 60 {
		t.Fatalf("progress = %d, regression must be ignored", got)
	}
	if err := f.svc.ApplyStatus(ctx, "job-1", gateway.StatusReport{Status: gateway.StatusRunning, Progress: 75}); err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}
	if got := f.db.jobs["job-1"].progress; got != 75 {
		t.Fatalf("progress = %d, want 75", got)
	}
}

func TestApplyStatusSucceededCompletesOnce(t *testing.T) {
	f := newFixture()
	execID := "exec-1"
	f.seedJob("job-1", "processing", &execID)
	ctx := context.Background()
	result := json.RawMessage(`{"angles":[{"headline":"A"}]}`)

	if err := f.svc.ApplyStatus(ctx, "job-1", gateway.StatusReport{Status: gateway.StatusSucceeded, Result: result}); err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}
	job := f.db.jobs["job-1"]
	if job.status != "completed" || job.progress != 100 {
		t.Fatalf("job = %s/%d, want completed/100", job.status, job.progress)
	}
	if string(f.db.results["job-1"]) != string(result) {
		t.Fatalf("result payload = %s", f.db.results["job-1"])
	}
	if f.injector.runs != 1 {
		t.Fatalf("injector runs = %d, want 1", f.injector.runs)
	}

	// A duplicate report must not re-run injection or overwrite the result.
	other := json.RawMessage(`{"angles":[]}`)
	if err := f.svc.ApplyStatus(ctx, "job-1", gateway.StatusReport{Status: gateway.StatusSucceeded, Result: other}); err != nil {
		t.Fatalf("duplicate ApplyStatus: %v", err)
	}
	if f.injector.runs != 1 {
		t.Fatalf("injector runs = %d after duplicate, want 1", f.injector.runs)
	}
	if string(f.db.results["job-1"]) != string(result) {
		t.Fatal("duplicate report overwrote the stored result")
	}
}

func TestApplyStatusSucceededWithEmptyResult(t *testing.T) {
	f := newFixture()
	execID := "exec-1"
	f.seedJob("job-1", "processing", &execID)

	if err := f.svc.ApplyStatus(context.Background(), "job-1", gateway.StatusReport{Status: gateway.StatusSucceeded}); err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}
	if string(f.db.results["job-1"]) != "{}" {
		t.Fatalf("empty result stored as %q, want {}", f.db.results["job-1"])
	}
}

func TestApplyStatusFailedRefundsOnce(t *testing.T) {
	f := newFixture()
	execID := "exec-1"
	f.seedJob("job-1", "processing", &execID)
	ctx := context.Background()

	report := gateway.StatusReport{Status: gateway.StatusFailed, Message: "generation error"}
	if err := f.svc.ApplyStatus(ctx, "job-1", report); err != nil {
		t.Fatalf("ApplyStatus: %v", err)
	}
	job := f.db.jobs["job-1"]
	if job.status != "failed" || job.errMessage != "generation error" {
		t.Fatalf("job = %s/%q", job.status, job.errMessage)
	}
	if len(f.ledger.refunds) != 1 {
		t.Fatalf("refunds = %d, want 1", len(f.ledger.refunds))
	}

	if err := f.svc.ApplyStatus(ctx, "job-1", report); err != nil {
		t.Fatalf("duplicate ApplyStatus: %v", err)
	}
	if len(f.ledger.refunds) != 1 {
		t.Fatalf("refunds = %d after duplicate, want 1", len(f.ledger.refunds))
	}
}

func TestFailOnTerminalJobIsNoOp(t *testing.T) {
	f := newFixture()
	execID := "exec-1"
	f.seedJob("job-1", "completed", &execID)

	if err := f.svc.Fail(context.Background(), "job-1", "too late"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if got := f.db.jobs["job-1"].status; got != "completed" {
		t.Fatalf("status = %s, terminal state must not change", got)
	}
	if len(f.ledger.refunds) != 0 {
		t.Fatal("no refund for a job that was not failed")
	}
}

func TestRegenerateRequiresCompleted(t *testing.T) {
	f := newFixture()
	f.seedJob("job-1", "processing", nil)

	_, err := f.svc.Regenerate(context.Background(), "job-1")
	if !errors.Is(err, domain.ErrJobNotCompleted) {
		t.Fatalf("err = %v, want ErrJobNotCompleted", err)
	}
	if f.injector.runs != 0 {
		t.Fatal("injector must not run for an incomplete job")
	}
}

func TestRegenerateRunsInjection(t *testing.T) {
	f := newFixture()
	execID := "exec-1"
	f.seedJob("job-1", "completed", &execID)

	report, err := f.svc.Regenerate(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if report.Generated != 2 || f.injector.runs != 1 {
		t.Fatalf("report = %+v, runs = %d", report, f.injector.runs)
	}
}

func TestRetrySubmissionAdoptsPriorExecution(t *testing.T) {
	f := newFixture()
	f.seedJob("job-1", "pending", nil)
	f.gw.lookupID = "exec-9"

	if err := f.svc.RetrySubmission(context.Background(), "job-1"); err != nil {
		t.Fatalf("RetrySubmission: %v", err)
	}
	job := f.db.jobs["job-1"]
	if job.executionID == nil || *job.executionID != "exec-9" {
		t.Fatalf("execution id = %v, want exec-9", job.executionID)
	}
	if job.status != "processing" {
		t.Fatalf("status = %s, want processing", job.status)
	}
	if f.gw.submitCalls != 0 {
		t.Fatal("adoption must not resubmit")
	}
}

func TestRetrySubmissionResubmitsWhenUnknownUpstream(t *testing.T) {
	f := newFixture()
	f.seedJob("job-1", "pending", nil)

	if err := f.svc.RetrySubmission(context.Background(), "job-1"); err != nil {
		t.Fatalf("RetrySubmission: %v", err)
	}
	if f.gw.submitCalls != 1 {
		t.Fatalf("submit calls = %d, want 1", f.gw.submitCalls)
	}
	job := f.db.jobs["job-1"]
	if job.executionID == nil || *job.executionID != "exec-1" {
		t.Fatalf("execution id = %v, want exec-1", job.executionID)
	}
	if f.gw.lastSubmit.SalesPageURL != "https://example.com" {
		t.Fatalf("resubmission must replay the stored payload, got %+v", f.gw.lastSubmit)
	}
}

func TestRetrySubmissionSkipsSubmittedJobs(t *testing.T) {
	f := newFixture()
	execID := "exec-1"
	f.seedJob("job-1", "processing", &execID)

	if err := f.svc.RetrySubmission(context.Background(), "job-1"); err != nil {
		t.Fatalf("RetrySubmission: %v", err)
	}
	if f.gw.lookupCalls != 0 || f.gw.submitCalls != 0 {
		t.Fatal("submitted job must not touch the gateway")
	}
}
