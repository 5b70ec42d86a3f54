package poller

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"server/internal/gateway"
)

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

// stubRows serves a fixed sequence of rows through the pgx.Rows interface.
type stubRows struct {
	rows []func(dest ...any) error
	pos  int
}

func (r *stubRows) Next() bool {
	return r.pos < len(r.rows)
}

func (r *stubRows) Scan(dest ...any) error {
	scan := r.rows[r.pos]
	r.pos++
	return scan(dest...)
}

func (r *stubRows) Close()                                       {}
func (r *stubRows) Err() error                                   { return nil }
func (r *stubRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stubRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stubRows) Values() ([]any, error)                       { return nil, nil }
func (r *stubRows) RawValues() [][]byte                          { return nil }
func (r *stubRows) Conn() *pgx.Conn                              { return nil }

type pollJob struct {
	executionID   string
	createdAt     time.Time
	pollFailures  int
	notFoundCount int
	touched       int
	resets        int
}

// stubPollDB serves the poller selections from an in-memory job set.
type stubPollDB struct {
	active  map[string]*pollJob
	stalled map[string]time.Time
}

func newStubPollDB() *stubPollDB {
	return &stubPollDB{active: map[string]*pollJob{}, stalled: map[string]time.Time{}}
}

func (s *stubPollDB) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	switch {
	case strings.Contains(query, "set last_polled_at"):
		if job := s.active[args[0].(string)]; job != nil {
			job.touched++
		}
		return pgconn.CommandTag{}, nil
	case strings.Contains(query, "set poll_failures = 0"):
		if job := s.active[args[0].(string)]; job != nil {
			job.pollFailures = 0
			job.notFoundCount = 0
			job.resets++
		}
		return pgconn.CommandTag{}, nil
	}
	return pgconn.CommandTag{}, errors.New("unsupported exec: " + query)
}

func (s *stubPollDB) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	switch {
	case strings.Contains(query, "not_found_count = not_found_count + 1"):
		job := s.active[args[0].(string)]
		job.notFoundCount++
		return stubRow{scan: func(dest ...any) error {
			*dest[0].(*int) = job.notFoundCount
			return nil
		}}
	case strings.Contains(query, "poll_failures = poll_failures + 1"):
		job := s.active[args[0].(string)]
		job.pollFailures++
		return stubRow{scan: func(dest ...any) error {
			*dest[0].(*int) = job.pollFailures
			return nil
		}}
	}
	return stubRow{scan: func(dest ...any) error { return errors.New("unsupported query_row: " + query) }}
}

func (s *stubPollDB) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	switch {
	case strings.Contains(query, "external_execution_id is not null"):
		rows := &stubRows{}
		for id, job := range s.active {
			id, job := id, job
			rows.rows = append(rows.rows, func(dest ...any) error {
				execID := job.executionID
				*dest[0].(*string) = id
				*dest[1].(**string) = &execID
				*dest[2].(*int) = job.pollFailures
				*dest[3].(*int) = job.notFoundCount
				*dest[4].(*time.Time) = job.createdAt
				return nil
			})
		}
		return rows, nil
	case strings.Contains(query, "external_execution_id is null"):
		rows := &stubRows{}
		for id, createdAt := range s.stalled {
			id, createdAt := id, createdAt
			rows.rows = append(rows.rows, func(dest ...any) error {
				*dest[0].(*string) = id
				*dest[1].(*time.Time) = createdAt
				return nil
			})
		}
		return rows, nil
	}
	return nil, errors.New("unsupported query: " + query)
}

type stubSource struct {
	report gateway.StatusReport
	err    error
	calls  int
}

func (s *stubSource) FetchStatus(ctx context.Context, executionID string) (gateway.StatusReport, error) {
	s.calls++
	return s.report, s.err
}

type stubLifecycle struct {
	applied []gateway.StatusReport
	failed  map[string]string
	retries []string
}

func newStubLifecycle() *stubLifecycle {
	return &stubLifecycle{failed: map[string]string{}}
}

func (l *stubLifecycle) ApplyStatus(ctx context.Context, jobID string, report gateway.StatusReport) error {
	l.applied = append(l.applied, report)
	return nil
}

func (l *stubLifecycle) Fail(ctx context.Context, jobID, message string) error {
	l.failed[jobID] = message
	return nil
}

func (l *stubLifecycle) RetrySubmission(ctx context.Context, jobID string) error {
	l.retries = append(l.retries, jobID)
	return nil
}

func testOptions() Options {
	return Options{
		Interval:         time.Second,
		BatchSize:        10,
		Debounce:         3 * time.Second,
		CallTimeout:      time.Second,
		MaxFailures:      3,
		MaxNotFound:      2,
		MaxJobAge:        30 * time.Minute,
		SubmitRetryAfter: time.Minute,
	}
}

func newTestCoordinator(db *stubPollDB, source *stubSource, jobs *stubLifecycle) *Coordinator {
	return NewCoordinator(db, source, jobs, nil, zerolog.New(io.Discard), testOptions())
}

func TestSweepAppliesStatusAndResetsCounters(t *testing.T) {
	db := newStubPollDB()
	db.active["job-1"] = &pollJob{executionID: "exec-1", createdAt: time.Now(), pollFailures: 2}
	source := &stubSource{report: gateway.StatusReport{Status: gateway.StatusRunning, Progress: 40}}
	jobs := newStubLifecycle()

	newTestCoordinator(db, source, jobs).Sweep(context.Background())

	if source.calls != 1 {
		t.Fatalf("fetch calls = %d, want 1", source.calls)
	}
	if len(jobs.applied) != 1 || jobs.applied[0].Progress != 40 {
		t.Fatalf("applied = %+v", jobs.applied)
	}
	job := db.active["job-1"]
	if job.touched != 1 {
		t.Fatalf("touched = %d, want 1", job.touched)
	}
	if job.pollFailures != 0 || job.resets != 1 {
		t.Fatalf("counters not reset: %+v", job)
	}
}

func TestSweepToleratesNotFoundUntilThreshold(t *testing.T) {
	db := newStubPollDB()
	db.active["job-1"] = &pollJob{executionID: "exec-1", createdAt: time.Now()}
	source := &stubSource{err: &gateway.Error{StatusCode: 404}}
	jobs := newStubLifecycle()
	coord := newTestCoordinator(db, source, jobs)
	ctx := context.Background()

	coord.Sweep(ctx)
	if len(jobs.failed) != 0 {
		t.Fatalf("first 404 must be tolerated, failed = %v", jobs.failed)
	}
	if db.active["job-1"].notFoundCount != 1 {
		t.Fatalf("not_found_count = %d, want 1", db.active["job-1"].notFoundCount)
	}

	// MaxNotFound is 2: the second consecutive 404 fails the job.
	coord.Sweep(ctx)
	if msg, ok := jobs.failed["job-1"]; !ok || msg == "" {
		t.Fatalf("job must fail at the 404 threshold, failed = %v", jobs.failed)
	}
}

func TestSweepFailsAfterRepeatedErrors(t *testing.T) {
	db := newStubPollDB()
	db.active["job-1"] = &pollJob{executionID: "exec-1", createdAt: time.Now()}
	source := &stubSource{err: errors.New("upstream unreachable")}
	jobs := newStubLifecycle()
	coord := newTestCoordinator(db, source, jobs)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		coord.Sweep(ctx)
	}
	if len(jobs.failed) != 0 {
		t.Fatalf("failures below threshold must not fail the job, failed = %v", jobs.failed)
	}
	coord.Sweep(ctx)
	if _, ok := jobs.failed["job-1"]; !ok {
		t.Fatalf("job must fail after %d errors", testOptions().MaxFailures)
	}
}

func TestSweepNotFoundCounterResetsOnSuccess(t *testing.T) {
	db := newStubPollDB()
	db.active["job-1"] = &pollJob{executionID: "exec-1", createdAt: time.Now(), notFoundCount: 1}
	source := &stubSource{report: gateway.StatusReport{Status: gateway.StatusRunning, Progress: 10}}
	jobs := newStubLifecycle()

	newTestCoordinator(db, source, jobs).Sweep(context.Background())

	if db.active["job-1"].notFoundCount != 0 {
		t.Fatal("a successful poll must clear the 404 streak")
	}
}

func TestSweepFailsExpiredJobsWithoutPolling(t *testing.T) {
	db := newStubPollDB()
	db.active["job-1"] = &pollJob{executionID: "exec-1", createdAt: time.Now().Add(-time.Hour)}
	source := &stubSource{report: gateway.StatusReport{Status: gateway.StatusRunning}}
	jobs := newStubLifecycle()

	newTestCoordinator(db, source, jobs).Sweep(context.Background())

	if source.calls != 0 {
		t.Fatal("expired job must not be polled")
	}
	if _, ok := jobs.failed["job-1"]; !ok {
		t.Fatalf("expired job must fail, failed = %v", jobs.failed)
	}
}

func TestSweepRetriesStalledSubmissions(t *testing.T) {
	db := newStubPollDB()
	db.stalled["job-1"] = time.Now().Add(-2 * time.Minute)
	jobs := newStubLifecycle()

	newTestCoordinator(db, &stubSource{}, jobs).Sweep(context.Background())

	if len(jobs.retries) != 1 || jobs.retries[0] != "job-1" {
		t.Fatalf("retries = %v, want [job-1]", jobs.retries)
	}
}

func TestSweepFailsExpiredStalledSubmissions(t *testing.T) {
	db := newStubPollDB()
	db.stalled["job-1"] = time.Now().Add(-time.Hour)
	jobs := newStubLifecycle()

	newTestCoordinator(db, &stubSource{}, jobs).Sweep(context.Background())

	if len(jobs.retries) != 0 {
		t.Fatal("expired submission must not be retried")
	}
	if _, ok := jobs.failed["job-1"]; !ok {
		t.Fatalf("expired submission must fail, failed = %v", jobs.failed)
	}
}
