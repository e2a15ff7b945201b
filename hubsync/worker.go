package hubsync

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/hubsync_backend/config"
	"github.com/mmdatafocus/hubsync_backend/models"
	"github.com/mmdatafocus/hubsync_backend/utils"
)

type WorkerConfig struct {
	StrictOrgMembership bool
	RoundTripNewHires   bool
	PhoneRegion         string
}

// WorkerConfigFromEnv reads the feature flags that shape a run.
func WorkerConfigFromEnv() WorkerConfig {
	return WorkerConfig{
		StrictOrgMembership: config.StrictOrgMembership(),
		RoundTripNewHires:   config.RoundTripNewHires(),
		PhoneRegion:         config.PhoneRegion(),
	}
}

// Worker runs one sync request end to end: it loads the snapshot, pushes the selected
// modules in order and records the outcome in the ledger.
type Worker struct {
	masterData *MasterDataSynchronizer
	payroll    *PayrollRunSubmitter
	documents  *DocumentStagingUploader
	changes    *ChangeFeedConsumer
	recorder   Recorder
	feedLock   FeedLocker
	gcs        *storage.Client
	logger     *logrus.Logger
	now        func() time.Time
}

func NewWorker(transport Transport, payrollSystem PayrollSystem, recorder Recorder, gcs *storage.Client, logger *logrus.Logger, cfg WorkerConfig) *Worker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if recorder == nil {
		recorder = NopRecorder{}
	}
	masterData := NewMasterDataSynchronizer(transport, logger, cfg.StrictOrgMembership, cfg.PhoneRegion)
	opts := []ConsumerOption{WithPhoneRegion(cfg.PhoneRegion)}
	if cfg.RoundTripNewHires {
		opts = append(opts, WithNewHireRoundTrip(masterData))
	}
	return &Worker{
		masterData: masterData,
		payroll:    NewPayrollRunSubmitter(transport, logger),
		documents:  NewDocumentStagingUploader(transport, logger),
		changes:    NewChangeFeedConsumer(transport, payrollSystem, logger, opts...),
		recorder:   recorder,
		gcs:        gcs,
		logger:     logger,
		now:        time.Now,
	}
}

// UseFeedLock makes every change-feed drain hold l. Runs that find the feed busy skip it.
func (w *Worker) UseFeedLock(l FeedLocker) {
	w.feedLock = l
}

type RunSummary struct {
	RunID    uint
	Status   string
	Skipped  bool
	Stats    map[string]int
	Errors   []error
	Outcomes []ChangeOutcome
}

func (w *Worker) Run(ctx context.Context, req SyncRequest) (*RunSummary, error) {
	if req.CompanyCode == "" {
		return nil, validationError("sync_run", req.RequestID, "company code is required")
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if !req.Modules.any() {
		req.Modules = DefaultModules()
	}
	if req.TriggeredBy == "" {
		req.TriggeredBy = models.SyncTriggeredSystem
	}
	needsSnapshot := req.Modules.Company || req.Modules.OrgStructure || req.Modules.Employees || req.Modules.Payroll || req.Modules.Documents
	if needsSnapshot && req.SnapshotURI == "" {
		return nil, validationError("sync_run", req.CompanyCode, "snapshot uri is required")
	}

	if _, ok := utils.GetCorrelationIdFromContext(ctx); !ok {
		ctx = utils.SetCorrelationIdInContext(ctx, req.RequestID)
	}
	ctx = utils.SetCompanyCodeInContext(ctx, req.CompanyCode)

	runID, done, err := w.recorder.StartRun(ctx, req)
	if err != nil {
		config.LogError(w.logger, "hubsync", "Run", "start run", req, err)
		return nil, err
	}
	log := w.logger.WithFields(logrus.Fields{
		"company_code": req.CompanyCode,
		"request_id":   req.RequestID,
		"sync_run_id":  runID,
	})
	if done {
		log.Info("sync request already processed")
		return &RunSummary{RunID: runID, Skipped: true}, nil
	}
	ctx = utils.SetSyncRunIdInContext(ctx, runID)

	summary := &RunSummary{RunID: runID, Stats: map[string]int{}}
	fail := func(module string, err error) {
		summary.Errors = append(summary.Errors, err)
		log.WithFields(logrus.Fields{
			"module":     module,
			"error_kind": KindOf(err),
		}).WithError(err).Error("sync module failed")
		if rerr := w.recorder.RecordError(ctx, runID, req.CompanyCode, module, err); rerr != nil {
			config.LogError(w.logger, "hubsync", "Run", "record error", module, rerr)
		}
	}

	var snap *Snapshot
	if needsSnapshot {
		snap, err = LoadSnapshot(ctx, w.gcs, req.SnapshotURI)
		if err == nil && snap.Company.CompanyCode != req.CompanyCode {
			err = validationError("sync_run", req.CompanyCode, "snapshot is for company %q", snap.Company.CompanyCode)
		}
		if err != nil {
			fail(ModuleSnapshot, err)
			return w.finish(ctx, log, summary)
		}
	}

	if req.Modules.Company {
		if _, err := w.masterData.UpsertCompany(ctx, snap.Company); err != nil {
			fail(ModuleCompany, err)
		} else {
			summary.Stats[ModuleCompany] = 1
		}
	}
	if req.Modules.OrgStructure && len(snap.Company.OrgGroups) > 0 {
		if _, err := w.masterData.UpsertOrgStructure(ctx, snap.Company); err != nil {
			fail(ModuleOrgStructure, err)
		} else {
			summary.Stats[ModuleOrgStructure] = len(snap.Company.OrgGroups)
		}
	}
	if req.Modules.Employees && len(snap.Company.Employees) > 0 {
		if _, err := w.masterData.UpsertEmployees(ctx, snap.Company); err != nil {
			fail(ModuleEmployees, err)
		} else {
			summary.Stats[ModuleEmployees] = len(snap.Company.Employees)
		}
	}
	if req.Modules.ChangeFeed {
		w.drainChangeFeed(ctx, log, runID, req, summary, fail)
	}
	payrollFailed := false
	if req.Modules.Payroll {
		runs := append([]models.PayrollRun(nil), snap.Company.Payrolls...)
		if snap.ScheduleRuns > 0 {
			asOf := snap.GeneratedAt
			if asOf.IsZero() {
				asOf = w.now()
			}
			runs = append(runs, ScheduledRuns(asOf, snap.ScheduleRuns)...)
		}
		if len(runs) > 0 {
			if _, err := w.payroll.Submit(ctx, req.CompanyCode, runs); err != nil {
				fail(ModulePayroll, err)
				payrollFailed = true
			} else {
				summary.Stats[ModulePayroll] = len(runs)
			}
		}
	}
	if req.Modules.Documents && len(snap.Documents) > 0 {
		if payrollFailed {
			fail(ModuleDocuments, validationError(opStagePayrollFile, req.CompanyCode, "payroll submission failed; %d documents not staged", len(snap.Documents)))
		} else if res, err := w.uploadDocuments(ctx, req.CompanyCode, snap); err != nil {
			fail(ModuleDocuments, err)
		} else {
			summary.Stats[ModuleDocuments] = res.Appended
		}
	}

	return w.finish(ctx, log, summary)
}

func (w *Worker) uploadDocuments(ctx context.Context, companyCode string, snap *Snapshot) (UploadResult, error) {
	docs, err := snap.StagedDocuments(w.gcs)
	if err != nil {
		return UploadResult{}, err
	}
	return w.documents.Upload(ctx, companyCode, docs)
}

// drainChangeFeed runs one poll cycle under the feed lock. A hire that was applied but
// failed to round-trip is recorded against the employees module.
func (w *Worker) drainChangeFeed(ctx context.Context, log *logrus.Entry, runID uint, req SyncRequest, summary *RunSummary, fail func(string, error)) {
	if w.feedLock != nil {
		release, err := w.feedLock.LockFeed(ctx)
		if errors.Is(err, ErrFeedBusy) {
			log.Info("change feed is being drained by another run; skipped")
			return
		}
		if err != nil {
			fail(ModuleChangeFeed, transportError("lock_feed", req.CompanyCode, err))
			return
		}
		defer release()
	}

	outcomes, err := w.changes.ProcessBatch(ctx)
	summary.Outcomes = outcomes
	for _, o := range outcomes {
		switch {
		case IsAppliedFailure(o.Err):
			fail(ModuleEmployees, o.Err)
		case o.Err != nil:
			fail(ModuleChangeFeed, o.Err)
		}
		if o.Acknowledged {
			summary.Stats[ModuleChangeFeed]++
		}
		if rerr := w.recorder.RecordAcknowledgement(ctx, runID, o); rerr != nil {
			config.LogError(w.logger, "hubsync", "Run", "record acknowledgement", o.ChangeID, rerr)
		}
	}
	if err != nil {
		fail(ModuleChangeFeed, err)
	}
}

func (w *Worker) finish(ctx context.Context, log *logrus.Entry, summary *RunSummary) (*RunSummary, error) {
	total := 0
	for _, n := range summary.Stats {
		total += n
	}
	summary.Status = models.SyncRunStatusSuccess
	if len(summary.Errors) > 0 && total == 0 {
		summary.Status = models.SyncRunStatusFailed
	} else if len(summary.Errors) > 0 {
		summary.Status = models.SyncRunStatusPartial
	}

	if err := w.recorder.FinishRun(context.WithoutCancel(ctx), summary.RunID, summary.Status, summary.Stats, len(summary.Errors)); err != nil {
		config.LogError(w.logger, "hubsync", "finish", "finish run", summary.RunID, err)
		return summary, err
	}
	log.WithFields(logrus.Fields{
		"status":      summary.Status,
		"error_count": len(summary.Errors),
		"stats":       summary.Stats,
	}).Info("sync run finished")
	return summary, nil
}
