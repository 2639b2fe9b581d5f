package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/khanhnv2901/anomradar/internal/domain/probe"
	sharedErrors "github.com/khanhnv2901/anomradar/internal/shared/errors"
)

// ScanRequest is the body of POST /api/v1/scans. Omitting probes selects
// the whole catalog; an explicit empty list is rejected.
type ScanRequest struct {
	Target string   `json:"target" validate:"required,max=2048"`
	Probes []string `json:"probes" validate:"omitempty,max=16,dive,required,max=64"`
	Cache  *bool    `json:"cache,omitempty"`
}

// Scanner is the slice of the orchestrator the API needs.
type Scanner interface {
	Catalog() []string
	Validate(target string, probeNames []string) error
	Run(ctx context.Context, target string, probeNames []string, cacheEnabled bool) (*probe.Report, error)
}

// ScanJobs runs API scan requests in the background and tracks them as jobs.
type ScanJobs struct {
	manager  *JobManager
	scanner  Scanner
	timeout  time.Duration
	logger   *zap.Logger
	validate *validator.Validate
	onReport func(*probe.Report)
	wg       sync.WaitGroup
}

// ScanJobsOption customizes ScanJobs.
type ScanJobsOption func(*ScanJobs)

// WithScanTimeout bounds a whole background scan. Zero means no bound.
func WithScanTimeout(d time.Duration) ScanJobsOption {
	return func(s *ScanJobs) { s.timeout = d }
}

// WithJobLogger sets the logger for job lifecycle events.
func WithJobLogger(logger *zap.Logger) ScanJobsOption {
	return func(s *ScanJobs) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithReportHook is called with every completed report, e.g. to persist it.
func WithReportHook(fn func(*probe.Report)) ScanJobsOption {
	return func(s *ScanJobs) { s.onReport = fn }
}

func NewScanJobs(manager *JobManager, scanner Scanner, opts ...ScanJobsOption) *ScanJobs {
	s := &ScanJobs{
		manager:  manager,
		scanner:  scanner,
		logger:   zap.NewNop(),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Probes lists the probe catalog.
func (s *ScanJobs) Probes() []string {
	return s.scanner.Catalog()
}

// StartScan validates req, records a pending job and runs it in the
// background. Validation problems are returned before any job exists.
func (s *ScanJobs) StartScan(ctx context.Context, req ScanRequest) (*Job, error) {
	if err := s.validate.StructCtx(ctx, req); err != nil {
		return nil, fmt.Errorf("%w: %s", sharedErrors.ErrValidation, describeValidation(err))
	}
	probes := req.Probes
	if probes == nil {
		probes = s.scanner.Catalog()
	}
	if err := s.scanner.Validate(req.Target, probes); err != nil {
		return nil, err
	}
	useCache := true
	if req.Cache != nil {
		useCache = *req.Cache
	}

	job := s.manager.CreateJob(req.Target, probes, useCache)
	s.wg.Add(1)
	go s.execute(job.ID, req.Target, probes, useCache)
	return job, nil
}

func (s *ScanJobs) execute(id, target string, probes []string, useCache bool) {
	defer s.wg.Done()
	log := s.logger.With(zap.String("job_id", id))

	now := time.Now().UTC()
	s.manager.UpdateJob(id, func(j *Job) {
		j.Status = JobRunning
		j.StartedAt = &now
	})

	ctx := context.Background()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	rpt, err := s.scanner.Run(ctx, target, probes, useCache)
	finished := time.Now().UTC()
	if err != nil {
		log.Warn("scan job failed", zap.Error(err))
		s.manager.UpdateJob(id, func(j *Job) {
			j.Status = JobError
			j.Error = err.Error()
			j.FinishedAt = &finished
		})
		return
	}

	if s.onReport != nil {
		s.onReport(rpt)
	}
	s.manager.UpdateJob(id, func(j *Job) {
		j.Status = JobDone
		j.Report = rpt
		j.ReportID = rpt.ID
		j.FinishedAt = &finished
	})
	log.Info("scan job finished", zap.String("report_id", rpt.ID))
}

// Wait blocks until every background scan has finished.
func (s *ScanJobs) Wait() {
	s.wg.Wait()
}

func (s *ScanJobs) GetScan(_ context.Context, id string) (*Job, error) {
	job := s.manager.GetJob(id)
	if job == nil {
		return nil, sharedErrors.ErrScanNotFound
	}
	return job, nil
}

func (s *ScanJobs) ListScans(_ context.Context, limit int) ([]Job, error) {
	return s.manager.ListJobs(limit), nil
}

func (s *ScanJobs) Subscribe() (chan Job, func()) {
	return s.manager.Subscribe()
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	return fmt.Sprintf("field %s failed %q validation", fe.Namespace(), fe.Tag())
}
