package hubsync

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"github.com/mmdatafocus/hubsync_backend/models"
	"github.com/mmdatafocus/hubsync_backend/utils"
)

// Recorder keeps the local record of sync runs. The core never reads it back.
type Recorder interface {
	// StartRun opens the run for req and reports done=true when a run with the same
	// request id already finished.
	StartRun(ctx context.Context, req SyncRequest) (runID uint, done bool, err error)
	RecordError(ctx context.Context, runID uint, companyCode, module string, err error) error
	RecordAcknowledgement(ctx context.Context, runID uint, outcome ChangeOutcome) error
	FinishRun(ctx context.Context, runID uint, status string, stats map[string]int, errorCount int) error
}

type GormRecorder struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormRecorder(db *gorm.DB) *GormRecorder {
	return &GormRecorder{db: db, now: time.Now}
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

func isFinished(status string) bool {
	return status == models.SyncRunStatusSuccess || status == models.SyncRunStatusFailed || status == models.SyncRunStatusPartial
}

func (r *GormRecorder) StartRun(ctx context.Context, req SyncRequest) (uint, bool, error) {
	ctx = utils.SetCompanyCodeInContext(ctx, req.CompanyCode)
	db := r.db.WithContext(ctx)

	var run models.SyncRun
	err := db.Where("request_id = ?", req.RequestID).Take(&run).Error
	switch {
	case err == nil:
	case errors.Is(err, gorm.ErrRecordNotFound):
		run = models.SyncRun{
			RequestId:   req.RequestID,
			CompanyCode: req.CompanyCode,
			Status:      models.SyncRunStatusQueued,
			TriggeredBy: req.TriggeredBy,
			ModulesJSON: EncodeModules(req.Modules),
		}
		if err := db.Create(&run).Error; err != nil {
			if !isDuplicateKeyErr(err) {
				return 0, false, err
			}
			// Another delivery of the same request created it first.
			if err := db.Where("request_id = ?", req.RequestID).Take(&run).Error; err != nil {
				return 0, false, err
			}
		}
	default:
		return 0, false, err
	}

	if isFinished(run.Status) {
		return run.ID, true, nil
	}
	startedAt := run.StartedAt
	if startedAt == nil {
		now := r.now()
		startedAt = &now
	}
	if err := db.Model(&run).Updates(map[string]interface{}{
		"status":     models.SyncRunStatusRunning,
		"started_at": startedAt,
	}).Error; err != nil {
		return 0, false, err
	}
	return run.ID, false, nil
}

func (r *GormRecorder) RecordError(ctx context.Context, runID uint, companyCode, module string, err error) error {
	rec := models.SyncRunError{
		SyncRunId:   runID,
		CompanyCode: companyCode,
		Module:      module,
		ErrorKind:   string(KindOf(err)),
		Message:     err.Error(),
	}
	var se *SyncError
	if errors.As(err, &se) {
		rec.EntityKey = se.EntityKey
		if len(se.BrokenRules) > 0 {
			rec.BrokenRulesJSON, _ = json.Marshal(se.BrokenRules)
		}
	}
	return r.db.WithContext(ctx).Create(&rec).Error
}

// RecordAcknowledgement logs an acknowledged change once; a repeated change id is ignored.
func (r *GormRecorder) RecordAcknowledgement(ctx context.Context, runID uint, outcome ChangeOutcome) error {
	if !outcome.Acknowledged {
		return nil
	}
	rec := models.AcknowledgedChange{
		ChangeId:       outcome.ChangeID,
		CompanyCode:    outcome.CompanyCode,
		ChangeType:     string(outcome.ChangeType),
		Outcome:        string(outcome.Status),
		SyncRunId:      runID,
		AcknowledgedAt: r.now(),
	}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil && !isDuplicateKeyErr(err) {
		return err
	}
	return nil
}

func (r *GormRecorder) FinishRun(ctx context.Context, runID uint, status string, stats map[string]int, errorCount int) error {
	db := r.db.WithContext(ctx)
	var run models.SyncRun
	if err := db.Where("id = ?", runID).Take(&run).Error; err != nil {
		return err
	}
	finishedAt := r.now()
	var durationMs int64
	if run.StartedAt != nil {
		durationMs = finishedAt.Sub(*run.StartedAt).Milliseconds()
	}
	statsJSON, _ := json.Marshal(stats)
	return db.Model(&run).Updates(map[string]interface{}{
		"status":      status,
		"finished_at": finishedAt,
		"duration_ms": durationMs,
		"error_count": errorCount,
		"stats_json":  statsJSON,
	}).Error
}

// GetRun returns one run with its errors.
func GetRun(ctx context.Context, db *gorm.DB, runID uint) (*models.SyncRun, []models.SyncRunError, error) {
	db = db.WithContext(ctx)
	var run models.SyncRun
	if err := db.Where("id = ?", runID).Take(&run).Error; err != nil {
		return nil, nil, err
	}
	var errs []models.SyncRunError
	if err := db.Where("sync_run_id = ?", run.ID).Order("id asc").Find(&errs).Error; err != nil {
		return nil, nil, err
	}
	return &run, errs, nil
}

// ListRuns returns the latest runs, newest first.
func ListRuns(ctx context.Context, db *gorm.DB, limit int) ([]models.SyncRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var runs []models.SyncRun
	err := db.WithContext(ctx).Order("id desc").Limit(limit).Find(&runs).Error
	return runs, err
}

// NopRecorder is used when no ledger database is configured.
type NopRecorder struct{}

func (NopRecorder) StartRun(context.Context, SyncRequest) (uint, bool, error) { return 0, false, nil }

func (NopRecorder) RecordError(context.Context, uint, string, string, error) error { return nil }

func (NopRecorder) RecordAcknowledgement(context.Context, uint, ChangeOutcome) error { return nil }

func (NopRecorder) FinishRun(context.Context, uint, string, map[string]int, int) error { return nil }
