package importer

import (
	"fmt"
	"sync"
	"time"

	"github.com/EthanVT97/rangoon-middleware/internal/erp"
	"github.com/EthanVT97/rangoon-middleware/internal/mapping"
	"github.com/EthanVT97/rangoon-middleware/internal/metrics"
	"github.com/EthanVT97/rangoon-middleware/internal/models"
	"github.com/EthanVT97/rangoon-middleware/internal/ws"
)

// Counter updates are persisted every persistEvery row outcomes; transitions
// and batch completions always persist immediately.
const persistEvery = 10

// errorLogCap bounds the per-job error log; rows beyond it are counted but
// not logged individually.
const errorLogCap = 100

// tracker serializes all mutation of one job's status and counters. It
// enforces the transition table, keeps processed = succeeded + failed, and
// publishes progress events while holding its lock so subscribers always see
// counters in non-decreasing order.
type tracker struct {
	mu  sync.Mutex
	svc *Service
	job *models.ImportJob

	succeeded    int
	sincePersist int
	truncated    bool
}

func newTracker(svc *Service, job *models.ImportJob) *tracker {
	return &tracker{svc: svc, job: job}
}

func (t *tracker) succeededCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.succeeded
}

// setTotal records the decoded row count before validation starts.
func (t *tracker) setTotal(total int) {
	t.mu.Lock()
	t.job.TotalRecords = total
	t.mu.Unlock()
}

// setStatus applies a transition if the table allows it and reports whether
// it was applied. Terminal states set completed_at and drop the job from the
// live monitor.
func (t *tracker) setStatus(to models.JobStatus, failureReason string) bool {
	t.mu.Lock()
	from := t.job.Status
	if !from.CanTransition(to) {
		t.mu.Unlock()
		t.svc.log.Warn().
			Str("job_id", t.job.JobID.String()).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("illegal job status transition ignored")
		return false
	}
	t.job.Status = to
	if failureReason != "" {
		t.job.FailureReason = failureReason
	}
	if to.IsTerminal() {
		now := time.Now().UTC()
		t.job.CompletedAt = &now
	}

	data := map[string]interface{}{"status": string(to)}
	if t.job.FailureReason != "" {
		data["failure_reason"] = t.job.FailureReason
	}
	t.svc.publisher.Publish(t.job.CreatedBy, ws.Event{
		Type:  ws.EventStatusChanged,
		JobID: t.job.JobID.String(),
		Data:  data,
	})
	t.svc.monitor.UpdateProgress(t.job.JobID, to, t.job.TotalRecords, t.job.ProcessedRecords, t.job.FailedRecords)
	t.mu.Unlock()

	t.persist()
	if to.IsTerminal() {
		metrics.JobsTotal.WithLabelValues(string(to)).Inc()
		metrics.ActiveJobs.Dec()
		t.svc.monitor.CompleteJob(t.job.JobID)
	}
	return true
}

// rowInvalid counts one row rejected by validation.
func (t *tracker) rowInvalid(rowErr *mapping.RowError) {
	t.mu.Lock()
	t.job.ProcessedRecords++
	t.job.FailedRecords++
	t.appendErrorLocked(models.ErrorEntry{
		Row:    rowErr.RowIndex,
		Stage:  models.ErrorStageValidation,
		Errors: rowErr.Messages(),
		Data:   rowErr.Raw,
	})
	t.publishProgressLocked()
	t.sincePersist++
	flush := t.sincePersist >= persistEvery
	if flush {
		t.sincePersist = 0
	}
	t.mu.Unlock()

	metrics.RowsTotal.WithLabelValues(metrics.RowFailed).Inc()
	if flush {
		t.persist()
	}
}

// rowWarnings logs coercion warnings for a row that passed validation. The
// counters are untouched; the entries ride along with the next persist.
func (t *tracker) rowWarnings(rowIndex int, warnings []string) {
	t.mu.Lock()
	t.appendErrorLocked(models.ErrorEntry{
		Row:    rowIndex,
		Stage:  models.ErrorStageAdvisory,
		Errors: warnings,
	})
	t.mu.Unlock()
}

// batchDone folds one dispatch result into the counters and the
// acknowledgement log.
func (t *tracker) batchDone(batchNum int, result erp.BatchResult) {
	accepted, rejected := len(result.Accepted), len(result.Rejected)

	t.mu.Lock()
	t.succeeded += accepted
	t.job.ProcessedRecords += accepted + rejected
	t.job.FailedRecords += rejected
	for _, rejection := range result.Rejected {
		t.appendErrorLocked(models.ErrorEntry{
			Row:    rejection.Record.RowIndex,
			Stage:  models.ErrorStageDispatch,
			Errors: []string{rejection.Reason},
		})
	}
	if t.job.ERPResponse == nil {
		t.job.ERPResponse = models.JSONMap{}
	}
	if result.Response != nil {
		t.job.ERPResponse[fmt.Sprintf("batch_%d", batchNum)] = result.Response
	}
	t.svc.publisher.Publish(t.job.CreatedBy, ws.Event{
		Type:  ws.EventBatchComplete,
		JobID: t.job.JobID.String(),
		Data: map[string]interface{}{
			"batch":    batchNum,
			"accepted": accepted,
			"rejected": rejected,
		},
	})
	t.publishProgressLocked()
	t.mu.Unlock()

	metrics.RowsTotal.WithLabelValues(metrics.RowSucceeded).Add(float64(accepted))
	metrics.RowsTotal.WithLabelValues(metrics.RowFailed).Add(float64(rejected))
	t.persist()
}

// jobError appends a whole-job error entry (decode fault, circuit open).
func (t *tracker) jobError(message string) {
	t.mu.Lock()
	t.appendErrorLocked(models.ErrorEntry{
		Stage:  models.ErrorStageJob,
		Errors: []string{message},
	})
	t.mu.Unlock()
	t.persist()
}

func (t *tracker) appendErrorLocked(entry models.ErrorEntry) {
	if len(t.job.ErrorLog) >= errorLogCap {
		if !t.truncated {
			t.truncated = true
			t.job.ErrorLog = append(t.job.ErrorLog, models.ErrorEntry{
				Stage:  models.ErrorStageJob,
				Errors: []string{fmt.Sprintf("error log truncated after %d entries", errorLogCap)},
			})
		}
		return
	}
	t.job.ErrorLog = append(t.job.ErrorLog, entry)
}

// publishProgressLocked emits a progress event; the caller holds t.mu.
func (t *tracker) publishProgressLocked() {
	t.svc.publisher.Publish(t.job.CreatedBy, ws.Event{
		Type:  ws.EventProgressUpdated,
		JobID: t.job.JobID.String(),
		Data: map[string]interface{}{
			"status":    string(t.job.Status),
			"total":     t.job.TotalRecords,
			"processed": t.job.ProcessedRecords,
			"failed":    t.job.FailedRecords,
			"succeeded": t.succeeded,
		},
	})
	t.svc.monitor.UpdateProgress(t.job.JobID, t.job.Status, t.job.TotalRecords, t.job.ProcessedRecords, t.job.FailedRecords)
}

// persist writes the job row by id, last write wins. Failures are logged,
// never fatal: the in-memory tracker stays authoritative for the run.
func (t *tracker) persist() {
	t.mu.Lock()
	updates := map[string]interface{}{
		"status":            t.job.Status,
		"total_records":     t.job.TotalRecords,
		"processed_records": t.job.ProcessedRecords,
		"failed_records":    t.job.FailedRecords,
		"failure_reason":    t.job.FailureReason,
		"error_log":         t.job.ErrorLog,
		"erp_response":      t.job.ERPResponse,
		"completed_at":      t.job.CompletedAt,
	}
	jobID := t.job.JobID
	t.mu.Unlock()

	err := t.svc.db.Model(&models.ImportJob{}).
		Where("job_id = ?", jobID).
		Updates(updates).Error
	if err != nil {
		t.svc.log.Error().Err(err).Str("job_id", jobID.String()).Msg("failed to persist job progress")
	}
}
