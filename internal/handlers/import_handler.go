package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/EthanVT97/rangoon-middleware/internal/fileproc"
	"github.com/EthanVT97/rangoon-middleware/internal/importer"
	"github.com/EthanVT97/rangoon-middleware/internal/models"
)

// CreateImport accepts a multipart upload (file + mapping_id), creates the
// job in pending state and launches the runner. The response carries the job
// id and the websocket path for progress.
func (h *Handler) CreateImport(c *gin.Context) {
	userID := CurrentUserID(c)

	mappingIDStr := c.PostForm("mapping_id")
	mappingID, err := uuid.Parse(mappingIDStr)
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeInvalidIDFormat, "Invalid mapping ID format", gin.H{"mapping_id": mappingIDStr})
		return
	}

	var m models.ColumnMapping
	err = h.db.Where("id = ? AND created_by = ? AND is_active = ?", mappingID, userID, true).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		RespondWithError(c, http.StatusNotFound, models.ErrorCodeMappingNotFound, "Mapping not found", gin.H{"mapping_id": mappingID})
		return
	}
	if err != nil {
		RespondWithError(c, http.StatusInternalServerError, models.ErrorCodeInternalServerError, "Failed to load mapping", nil)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "Missing file upload", gin.H{"reason": err.Error()})
		return
	}
	if !fileproc.ValidExtension(fileHeader.Filename) {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeUnsupportedFile, "Only .csv and .xlsx files are supported", gin.H{"filename": fileHeader.Filename})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeValidation, "File exceeds the upload size limit", gin.H{"max_bytes": maxUploadBytes})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		RespondWithError(c, http.StatusInternalServerError, models.ErrorCodeInternalServerError, "Failed to read upload", nil)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes))
	if err != nil {
		RespondWithError(c, http.StatusInternalServerError, models.ErrorCodeInternalServerError, "Failed to read upload", nil)
		return
	}
	if len(data) == 0 {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeEmptyFile, "Uploaded file is empty", nil)
		return
	}

	job := &models.ImportJob{
		JobID:           uuid.New(),
		MappingID:       m.ID,
		MappingName:     m.MappingName,
		MappingSnapshot: m.Snapshot(),
		Filename:        fileHeader.Filename,
		CreatedBy:       userID,
		Status:          models.JobPending,
	}
	if err := h.db.Create(job).Error; err != nil {
		h.log.Error().Err(err).Msg("failed to create import job")
		RespondWithError(c, http.StatusInternalServerError, models.ErrorCodeInternalServerError, "Failed to create import job", nil)
		return
	}

	h.importer.Start(job, data)

	h.log.Info().
		Str("job_id", job.JobID.String()).
		Str("mapping_id", m.ID.String()).
		Str("filename", job.Filename).
		Msg("import job accepted")
	RespondWithSuccess(c, http.StatusAccepted, gin.H{
		"job_id":        job.JobID,
		"status":        job.Status,
		"websocket_url": "/ws",
	})
}

// ListImports returns the caller's jobs, newest first.
func (h *Handler) ListImports(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	var jobs []models.ImportJob
	err = h.db.
		Where("created_by = ?", CurrentUserID(c)).
		Order("created_at desc").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		RespondWithError(c, http.StatusInternalServerError, models.ErrorCodeInternalServerError, "Failed to list import jobs", nil)
		return
	}
	RespondWithSuccess(c, http.StatusOK, jobs)
}

// GetImport returns one job with its counters and error log.
func (h *Handler) GetImport(c *gin.Context) {
	jobID, ok := h.parseJobID(c)
	if !ok {
		return
	}
	var job models.ImportJob
	err := h.db.Where("job_id = ? AND created_by = ?", jobID, CurrentUserID(c)).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		RespondWithError(c, http.StatusNotFound, models.ErrorCodeJobNotFound, "Import job not found", gin.H{"job_id": jobID})
		return
	}
	if err != nil {
		RespondWithError(c, http.StatusInternalServerError, models.ErrorCodeInternalServerError, "Failed to load import job", nil)
		return
	}
	RespondWithSuccess(c, http.StatusOK, job)
}

// CancelImport requests cooperative cancellation. Running jobs stop between
// batches; already finished jobs are rejected.
func (h *Handler) CancelImport(c *gin.Context) {
	jobID, ok := h.parseJobID(c)
	if !ok {
		return
	}
	err := h.importer.Cancel(jobID, CurrentUserID(c))
	switch {
	case errors.Is(err, importer.ErrJobNotFound):
		RespondWithError(c, http.StatusNotFound, models.ErrorCodeJobNotFound, "Import job not found", gin.H{"job_id": jobID})
	case errors.Is(err, importer.ErrJobNotCancellable):
		RespondWithError(c, http.StatusConflict, models.ErrorCodeJobNotCancellable, "Import job already finished", gin.H{"job_id": jobID})
	case err != nil:
		RespondWithError(c, http.StatusInternalServerError, models.ErrorCodeInternalServerError, "Failed to cancel import job", nil)
	default:
		RespondWithSuccess(c, http.StatusAccepted, gin.H{"job_id": jobID, "status": "cancelling"})
	}
}

func (h *Handler) parseJobID(c *gin.Context) (uuid.UUID, bool) {
	idStr := c.Param("job_id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		RespondWithError(c, http.StatusBadRequest, models.ErrorCodeInvalidIDFormat, "Invalid job ID format", gin.H{"job_id": idStr})
		return uuid.Nil, false
	}
	return id, true
}
