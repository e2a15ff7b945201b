package hubsync

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/hubsync_backend/models"
)

// StagedDocument is one document of a staging transaction together with where its bytes live.
type StagedDocument struct {
	models.PayrollDocument
	Source ByteSource
}

func (d StagedDocument) key(companyCode string) string {
	return fmt.Sprintf("%s/%s/%d/%s/%s", companyCode, d.CheckDate.Format(models.DateLayout), d.ProcessNumber, d.EmployeeNumber, d.FileType)
}

type UploadResult struct {
	RequestID string
	Appended  int
}

// DocumentStagingUploader runs stage, append per document and complete. Once an append
// fails or ctx is done, no further call is made and the staged file is never completed.
type DocumentStagingUploader struct {
	transport Transport
	logger    *logrus.Logger
}

func NewDocumentStagingUploader(transport Transport, logger *logrus.Logger) *DocumentStagingUploader {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DocumentStagingUploader{transport: transport, logger: logger}
}

func (u *DocumentStagingUploader) Upload(ctx context.Context, companyCode string, docs []StagedDocument) (out UploadResult, err error) {
	ctx, span := startSpan(ctx, opStagePayrollFile, companyCode)
	defer func() { endSpan(span, err) }()

	if companyCode == "" {
		return out, validationError(opStagePayrollFile, "", "company code is required")
	}
	if len(docs) == 0 {
		return out, validationError(opStagePayrollFile, companyCode, "no documents to upload")
	}
	for _, d := range docs {
		if err := validateStruct(opAppendPayrollFile, d.key(companyCode), d.PayrollDocument); err != nil {
			return out, err
		}
		if d.Source == nil {
			return out, validationError(opAppendPayrollFile, d.key(companyCode), "document has no byte source")
		}
	}
	if err := canceled(ctx, opStagePayrollFile, companyCode); err != nil {
		return out, err
	}

	staged, err := call(opStagePayrollFile, companyCode, func() (*models.Result, error) {
		return u.transport.StagePayrollFile(ctx, companyCode)
	})
	if err != nil {
		return out, err
	}
	if staged.RequestID == "" {
		return out, missingEntity(opStagePayrollFile, companyCode, "request id")
	}
	out.RequestID = staged.RequestID

	log := u.logger.WithFields(logrus.Fields{
		"company_code": companyCode,
		"request_id":   out.RequestID,
	})
	for _, d := range docs {
		if err := canceled(ctx, opAppendPayrollFile, d.key(companyCode)); err != nil {
			log.WithField("appended", out.Appended).Warn("document upload canceled before complete")
			return out, err
		}
		if err := u.appendOne(ctx, companyCode, out.RequestID, d); err != nil {
			log.WithFields(logrus.Fields{
				"appended":        out.Appended,
				"employee_number": d.EmployeeNumber,
			}).WithError(err).Error("document append failed; staged file left incomplete")
			return out, err
		}
		out.Appended++
	}

	if _, err := call(opCompletePayrollFile, out.RequestID, func() (*models.Result, error) {
		return u.transport.CompletePayrollFile(ctx, out.RequestID, out.Appended)
	}); err != nil {
		return out, err
	}
	log.WithField("documents", out.Appended).Info("payroll documents uploaded")
	return out, nil
}

// appendOne holds the document's byte source only for the duration of its append call.
func (u *DocumentStagingUploader) appendOne(ctx context.Context, companyCode, requestID string, d StagedDocument) error {
	key := d.key(companyCode)
	rc, size, err := d.Source.Open(ctx)
	if err != nil {
		return transportError(opAppendPayrollFile, key, fmt.Errorf("open document: %w", err))
	}
	defer rc.Close()

	file := &models.PayrollFile{
		RequestID:      requestID,
		CompanyCode:    companyCode,
		EventDate:      d.CheckDate,
		ProcessNumber:  d.ProcessNumber,
		EmployeeNumber: d.EmployeeNumber,
		FileType:       d.FileType,
		Amount:         d.Amount,
		ContentLength:  size,
		FileContents:   rc,
	}
	_, err = call(opAppendPayrollFile, key, func() (*models.Result, error) {
		return u.transport.AppendToPayrollFile(ctx, file)
	})
	return err
}
