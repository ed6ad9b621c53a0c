// Package importer runs import jobs: decode the upload, validate and map
// rows on a bounded worker pool, dispatch batches to the ERP and drive the
// job state machine.
package importer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/EthanVT97/rangoon-middleware/internal/erp"
	"github.com/EthanVT97/rangoon-middleware/internal/fileproc"
	"github.com/EthanVT97/rangoon-middleware/internal/mapping"
	"github.com/EthanVT97/rangoon-middleware/internal/metrics"
	"github.com/EthanVT97/rangoon-middleware/internal/models"
	"github.com/EthanVT97/rangoon-middleware/internal/ws"
)

var (
	// ErrJobNotFound is returned by Cancel for unknown job ids.
	ErrJobNotFound = errors.New("import job not found")
	// ErrJobNotCancellable is returned when the job already reached a
	// terminal state.
	ErrJobNotCancellable = errors.New("import job is already finished")
)

// Dispatcher is the slice of the batch dispatcher the runner needs.
type Dispatcher interface {
	Batches(records []erp.Record) [][]erp.Record
	Dispatch(ctx context.Context, endpoint string, records []erp.Record) (erp.BatchResult, error)
}

// Publisher pushes progress events to the job owner's dashboard.
type Publisher interface {
	Publish(userID string, event ws.Event)
}

// ProgressMonitor receives live job snapshots for the dashboard.
type ProgressMonitor interface {
	StartJob(job *models.ImportJob)
	UpdateProgress(jobID uuid.UUID, status models.JobStatus, total, processed, failed int)
	CompleteJob(jobID uuid.UUID)
}

// Config tunes the runner.
type Config struct {
	Workers int
	// WaitForRecovery makes a job wait out an open circuit breaker between
	// batches instead of failing fast.
	WaitForRecovery bool
}

// Service owns running jobs. One Service instance serves the whole process.
type Service struct {
	db         *gorm.DB
	dispatcher Dispatcher
	publisher  Publisher
	monitor    ProgressMonitor
	clock      erp.Clock
	cfg        Config
	log        zerolog.Logger

	mu     sync.Mutex
	active map[uuid.UUID]context.CancelFunc
}

// New builds the import service.
func New(db *gorm.DB, dispatcher Dispatcher, publisher Publisher, monitor ProgressMonitor, clock erp.Clock, cfg Config, log zerolog.Logger) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Service{
		db:         db,
		dispatcher: dispatcher,
		publisher:  publisher,
		monitor:    monitor,
		clock:      clock,
		cfg:        cfg,
		log:        log.With().Str("component", "importer").Logger(),
		active:     make(map[uuid.UUID]context.CancelFunc),
	}
}

// Cancel requests cooperative cancellation of a running job. Jobs that are
// queued but not running are cancelled directly in the store.
func (s *Service) Cancel(jobID uuid.UUID, userID string) error {
	var job models.ImportJob
	err := s.db.Where("job_id = ? AND created_by = ?", jobID, userID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}

	s.mu.Lock()
	cancel, running := s.active[jobID]
	s.mu.Unlock()
	if running {
		cancel()
		return nil
	}

	if !job.Status.CanTransition(models.JobCancelled) {
		return ErrJobNotCancellable
	}
	now := time.Now().UTC()
	err = s.db.Model(&models.ImportJob{}).
		Where("job_id = ?", jobID).
		Updates(map[string]interface{}{"status": models.JobCancelled, "completed_at": &now}).Error
	if err != nil {
		return fmt.Errorf("failed to cancel job: %w", err)
	}
	s.publisher.Publish(userID, ws.Event{
		Type:  ws.EventStatusChanged,
		JobID: jobID.String(),
		Data:  map[string]interface{}{"status": string(models.JobCancelled)},
	})
	return nil
}

// Start registers the job for cancellation and launches the runner on its
// own goroutine. Registering before the goroutine spawns means a Cancel
// arriving right after the upload always finds the running job.
func (s *Service) Start(job *models.ImportJob, data []byte) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.active[job.JobID] = cancel
	s.mu.Unlock()
	go func() {
		defer func() {
			cancel()
			s.mu.Lock()
			delete(s.active, job.JobID)
			s.mu.Unlock()
		}()
		s.run(ctx, job, data)
	}()
}

// Run drives one job from pending to a terminal state synchronously. Start is
// the usual entry point; Run exists for callers that manage the goroutine
// themselves.
func (s *Service) Run(ctx context.Context, job *models.ImportJob, data []byte) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.active[job.JobID] = cancel
	s.mu.Unlock()
	defer func() {
		cancel()
		s.mu.Lock()
		delete(s.active, job.JobID)
		s.mu.Unlock()
	}()
	s.run(ctx, job, data)
}

func (s *Service) run(ctx context.Context, job *models.ImportJob, data []byte) {
	// A cancel can land between the row being created and the runner picking
	// it up; the stored status is authoritative for that window.
	var stored models.ImportJob
	err := s.db.Select("status").Where("job_id = ?", job.JobID).First(&stored).Error
	if err == nil && stored.Status.IsTerminal() {
		s.log.Info().Str("job_id", job.JobID.String()).
			Str("status", string(stored.Status)).Msg("job finished before the runner started")
		return
	}

	metrics.ActiveJobs.Inc()
	s.monitor.StartJob(job)
	t := newTracker(s, job)
	log := s.log.With().Str("job_id", job.JobID.String()).Str("filename", job.Filename).Logger()

	rows, _, err := fileproc.Decode(job.Filename, data)
	if err != nil {
		log.Error().Err(err).Msg("failed to decode upload")
		t.jobError(err.Error())
		t.setStatus(models.JobFailed, models.FailureReasonDecode)
		return
	}
	t.setTotal(len(rows))

	// A refused transition means the job was cancelled out from under the
	// runner before it got going.
	if !t.setStatus(models.JobValidating, "") {
		s.abandon(job.JobID)
		return
	}
	log.Info().Int("rows", len(rows)).Msg("validation started")

	valid := s.validateRows(job.MappingSnapshot, rows, t)
	if len(valid) == 0 {
		log.Warn().Msg("every row failed validation")
		t.setStatus(models.JobFailed, models.FailureReasonAllRowsFailed)
		return
	}

	if ctx.Err() != nil {
		t.setStatus(models.JobCancelled, "")
		return
	}
	if !t.setStatus(models.JobProcessing, "") {
		s.abandon(job.JobID)
		return
	}

	records := make([]erp.Record, len(valid))
	for i, rec := range valid {
		records[i] = erp.Record{RowIndex: rec.RowIndex, Fields: rec.Fields}
	}
	endpoint := job.MappingSnapshot.ERPEndpoint

	for i, batch := range s.dispatcher.Batches(records) {
		if ctx.Err() != nil {
			log.Info().Msg("job cancelled")
			t.setStatus(models.JobCancelled, "")
			return
		}
		result, err := s.dispatchBatch(ctx, endpoint, batch, log)
		if err != nil {
			switch {
			case errors.Is(err, context.Canceled):
				t.setStatus(models.JobCancelled, "")
			case errors.Is(err, erp.ErrCircuitOpen):
				t.jobError(err.Error())
				t.setStatus(models.JobFailed, models.FailureReasonCircuitOpen)
			default:
				log.Error().Err(err).Msg("batch dispatch failed")
				t.jobError(err.Error())
				t.setStatus(models.JobFailed, models.FailureReasonInternal)
			}
			return
		}
		t.batchDone(i+1, result)
	}

	if t.succeededCount() == 0 {
		t.setStatus(models.JobFailed, models.FailureReasonAllRowsRejected)
		return
	}
	t.setStatus(models.JobCompleted, "")
	log.Info().Int("succeeded", t.succeededCount()).Msg("job completed")
}

func (s *Service) abandon(jobID uuid.UUID) {
	metrics.ActiveJobs.Dec()
	s.monitor.CompleteJob(jobID)
}

// validateRows maps rows concurrently and returns the valid records ordered
// by their position in the file.
func (s *Service) validateRows(spec models.MappingSnapshot, rows []mapping.Row, t *tracker) []mapping.TargetRecord {
	type indexed struct {
		idx int
		row mapping.Row
	}
	rowCh := make(chan indexed)

	var mu sync.Mutex
	var valid []mapping.TargetRecord

	var wg sync.WaitGroup
	for w := 0; w < s.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range rowCh {
				record, rowErr := mapping.ProcessRow(spec, item.row, item.idx)
				if rowErr != nil {
					t.rowInvalid(rowErr)
					continue
				}
				if len(record.Warnings) > 0 {
					t.rowWarnings(record.RowIndex, record.Warnings)
				}
				mu.Lock()
				valid = append(valid, record)
				mu.Unlock()
			}
		}()
	}
	for i, row := range rows {
		rowCh <- indexed{idx: i, row: row}
	}
	close(rowCh)
	wg.Wait()

	sort.Slice(valid, func(i, j int) bool { return valid[i].RowIndex < valid[j].RowIndex })
	return valid
}

// dispatchBatch sends one batch, optionally waiting out an open breaker when
// the service is configured to ride through ERP outages.
func (s *Service) dispatchBatch(ctx context.Context, endpoint string, batch []erp.Record, log zerolog.Logger) (erp.BatchResult, error) {
	for {
		result, err := s.dispatcher.Dispatch(ctx, endpoint, batch)
		if err == nil {
			return result, nil
		}
		var openErr *erp.OpenError
		if !s.cfg.WaitForRecovery || !errors.As(err, &openErr) {
			return erp.BatchResult{}, err
		}
		wait := openErr.RetryAfter
		if wait < time.Second {
			wait = time.Second
		}
		log.Warn().Dur("wait", wait).Str("endpoint", endpoint).Msg("circuit open, waiting for recovery")
		if sleepErr := s.clock.Sleep(ctx, wait); sleepErr != nil {
			return erp.BatchResult{}, sleepErr
		}
	}
}
