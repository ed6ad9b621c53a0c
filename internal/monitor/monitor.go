// Package monitor keeps an in-memory view of running import jobs and serves
// aggregated dashboard metrics with a short-lived cache.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/EthanVT97/rangoon-middleware/internal/models"
)

const (
	metricsCacheTTL = 30 * time.Second
	staleJobAfter   = time.Hour
)

// ActiveJob is the live progress snapshot of one running job.
type ActiveJob struct {
	JobID     uuid.UUID        `json:"job_id"`
	UserID    string           `json:"-"`
	Status    models.JobStatus `json:"status"`
	Filename  string           `json:"filename"`
	Total     int              `json:"total_records"`
	Processed int              `json:"processed_records"`
	Failed    int              `json:"failed_records"`
	StartedAt time.Time        `json:"started_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// DashboardMetrics is the aggregated view served to the dashboard.
type DashboardMetrics struct {
	TotalJobs     int64            `json:"total_jobs"`
	JobsByStatus  map[string]int64 `json:"jobs_by_status"`
	SuccessRate   float64          `json:"success_rate"`
	JobsToday     int64            `json:"jobs_today"`
	ActiveJobs    int              `json:"active_jobs"`
	RowsProcessed int64            `json:"rows_processed"`
	RowsFailed    int64            `json:"rows_failed"`
}

// JobErrors pairs a job with its logged errors for the recent-errors feed.
type JobErrors struct {
	JobID       uuid.UUID        `json:"job_id"`
	MappingName string           `json:"mapping_name"`
	Filename    string           `json:"filename"`
	Status      models.JobStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
	Errors      models.ErrorLog  `json:"errors"`
}

type cachedMetrics struct {
	metrics DashboardMetrics
	expires time.Time
}

// Monitor tracks active jobs in memory and answers dashboard queries from
// the store.
type Monitor struct {
	mu     sync.Mutex
	db     *gorm.DB
	active map[uuid.UUID]*ActiveJob
	cache  map[string]cachedMetrics
	now    func() time.Time
	log    zerolog.Logger
}

// New builds a monitor over the job store.
func New(db *gorm.DB, log zerolog.Logger) *Monitor {
	return &Monitor{
		db:     db,
		active: make(map[uuid.UUID]*ActiveJob),
		cache:  make(map[string]cachedMetrics),
		now:    time.Now,
		log:    log.With().Str("component", "monitor").Logger(),
	}
}

// StartJob registers a job as active.
func (m *Monitor) StartJob(job *models.ImportJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.active[job.JobID] = &ActiveJob{
		JobID:     job.JobID,
		UserID:    job.CreatedBy,
		Status:    job.Status,
		Filename:  job.Filename,
		Total:     job.TotalRecords,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// UpdateProgress refreshes the live snapshot for a running job. Unknown jobs
// are ignored.
func (m *Monitor) UpdateProgress(jobID uuid.UUID, status models.JobStatus, total, processed, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.active[jobID]
	if !ok {
		return
	}
	job.Status = status
	job.Total = total
	job.Processed = processed
	job.Failed = failed
	job.UpdatedAt = m.now()
}

// CompleteJob drops a job from the active set and invalidates the owner's
// metrics cache.
func (m *Monitor) CompleteJob(jobID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.active[jobID]; ok {
		delete(m.cache, job.UserID)
		delete(m.active, jobID)
	}
}

// ActiveJobs returns the live snapshots for one user's running jobs.
func (m *Monitor) ActiveJobs(userID string) []ActiveJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ActiveJob
	for _, job := range m.active {
		if job.UserID == userID {
			out = append(out, *job)
		}
	}
	return out
}

// Metrics aggregates a user's job history, cached for a short TTL so
// dashboard polling stays off the database.
func (m *Monitor) Metrics(userID string) (DashboardMetrics, error) {
	m.mu.Lock()
	if cached, ok := m.cache[userID]; ok && m.now().Before(cached.expires) {
		m.mu.Unlock()
		return cached.metrics, nil
	}
	m.mu.Unlock()

	metrics, err := m.queryMetrics(userID)
	if err != nil {
		return DashboardMetrics{}, err
	}

	m.mu.Lock()
	metrics.ActiveJobs = 0
	for _, job := range m.active {
		if job.UserID == userID {
			metrics.ActiveJobs++
		}
	}
	m.cache[userID] = cachedMetrics{metrics: metrics, expires: m.now().Add(metricsCacheTTL)}
	m.mu.Unlock()
	return metrics, nil
}

func (m *Monitor) queryMetrics(userID string) (DashboardMetrics, error) {
	metrics := DashboardMetrics{JobsByStatus: make(map[string]int64)}

	type statusCount struct {
		Status string
		Count  int64
	}
	var counts []statusCount
	err := m.db.Model(&models.ImportJob{}).
		Select("status, count(*) as count").
		Where("created_by = ?", userID).
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return metrics, fmt.Errorf("failed to aggregate job statuses: %w", err)
	}

	var terminal int64
	for _, c := range counts {
		metrics.JobsByStatus[c.Status] = c.Count
		metrics.TotalJobs += c.Count
		if models.JobStatus(c.Status).IsTerminal() {
			terminal += c.Count
		}
	}
	if terminal > 0 {
		metrics.SuccessRate = float64(metrics.JobsByStatus[string(models.JobCompleted)]) / float64(terminal)
	}

	type rowTotals struct {
		Processed int64
		Failed    int64
	}
	var rows rowTotals
	err = m.db.Model(&models.ImportJob{}).
		Select("coalesce(sum(processed_records),0) as processed, coalesce(sum(failed_records),0) as failed").
		Where("created_by = ?", userID).
		Scan(&rows).Error
	if err != nil {
		return metrics, fmt.Errorf("failed to aggregate row counts: %w", err)
	}
	metrics.RowsProcessed = rows.Processed
	metrics.RowsFailed = rows.Failed

	midnight := m.now().UTC().Truncate(24 * time.Hour)
	err = m.db.Model(&models.ImportJob{}).
		Where("created_by = ? AND created_at >= ?", userID, midnight).
		Count(&metrics.JobsToday).Error
	if err != nil {
		return metrics, fmt.Errorf("failed to count today's jobs: %w", err)
	}
	return metrics, nil
}

// RecentErrors returns the latest jobs that logged errors, newest first.
func (m *Monitor) RecentErrors(userID string, limit int) ([]JobErrors, error) {
	if limit <= 0 {
		limit = 10
	}
	var jobs []models.ImportJob
	err := m.db.
		Where("created_by = ?", userID).
		Order("updated_at desc").
		Limit(50).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recent jobs: %w", err)
	}

	out := make([]JobErrors, 0, limit)
	for _, job := range jobs {
		if len(job.ErrorLog) == 0 {
			continue
		}
		out = append(out, JobErrors{
			JobID:       job.JobID,
			MappingName: job.MappingName,
			Filename:    job.Filename,
			Status:      job.Status,
			CreatedAt:   job.CreatedAt,
			Errors:      job.ErrorLog,
		})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// CleanupLoop periodically drops active entries that stopped updating,
// covering runners that died without reporting a terminal state.
func (m *Monitor) CleanupLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.cleanupStale()
		}
	}
}

func (m *Monitor) cleanupStale() {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.now().Add(-staleJobAfter)
	for id, job := range m.active {
		if job.UpdatedAt.Before(cutoff) {
			m.log.Warn().Str("job_id", id.String()).Msg("dropping stale active job entry")
			delete(m.active, id)
		}
	}
}
