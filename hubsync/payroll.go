package hubsync

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/hubsync_backend/models"
)

// PayrollRunSubmitter sends payroll runs keyed by (check date, process number). Resubmitting
// an existing run is an update on the platform; nothing is deduplicated here.
type PayrollRunSubmitter struct {
	transport Transport
	logger    *logrus.Logger
}

func NewPayrollRunSubmitter(transport Transport, logger *logrus.Logger) *PayrollRunSubmitter {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &PayrollRunSubmitter{transport: transport, logger: logger}
}

func (s *PayrollRunSubmitter) Submit(ctx context.Context, companyCode string, runs []models.PayrollRun) (res *models.Result, err error) {
	ctx, span := startSpan(ctx, opSubmitPayrollData, companyCode)
	defer func() { endSpan(span, err) }()

	if err := ValidatePayrollRuns(companyCode, runs); err != nil {
		return nil, err
	}
	if err := canceled(ctx, opSubmitPayrollData, companyCode); err != nil {
		return nil, err
	}

	req := &models.PayrollDataRequest{
		Companies: []models.Company{{CompanyCode: companyCode, Payrolls: runs}},
	}
	res, err = call(opSubmitPayrollData, companyCode, func() (*models.Result, error) {
		return s.transport.ProcessPayrollData(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"op":           opSubmitPayrollData,
		"company_code": companyCode,
		"runs":         len(runs),
		"request_id":   res.RequestID,
	}).Info("payroll runs submitted")
	return res, nil
}

// ValidatePayrollRuns checks run identity and the distribution sum of every check.
func ValidatePayrollRuns(companyCode string, runs []models.PayrollRun) error {
	if companyCode == "" {
		return validationError(opSubmitPayrollData, "", "company code is required")
	}
	if len(runs) == 0 {
		return validationError(opSubmitPayrollData, companyCode, "no payroll runs to submit")
	}
	keys := make(map[string]struct{}, len(runs))
	for _, run := range runs {
		key := companyCode + "/" + run.Key()
		if err := validateRun(key, run); err != nil {
			return err
		}
		if _, dup := keys[run.Key()]; dup {
			return validationError(opSubmitPayrollData, key, "payroll run submitted twice in one request")
		}
		keys[run.Key()] = struct{}{}
	}
	return nil
}

func validateRun(key string, run models.PayrollRun) error {
	if err := validateStruct(opSubmitPayrollData, key, run); err != nil {
		return err
	}
	switch run.Status {
	case models.PayrollStatusProcessed:
		if run.ProcessNumber == nil {
			return validationError(opSubmitPayrollData, key, "process number is required for a processed run")
		}
		if run.CashRequirementAmount == nil {
			return validationError(opSubmitPayrollData, key, "cash requirement amount is required for a processed run")
		}
		if run.AchDebitAmount == nil {
			return validationError(opSubmitPayrollData, key, "ach debit amount is required for a processed run")
		}
	case models.PayrollStatusScheduled:
		if run.ProcessNumber != nil {
			return validationError(opSubmitPayrollData, key, "a scheduled run must not carry a process number")
		}
	}

	employees := make(map[string]struct{}, len(run.Checks))
	for _, check := range run.Checks {
		checkKey := key + "/" + check.EmployeeNumber
		if _, dup := employees[check.EmployeeNumber]; dup {
			return validationError(opSubmitPayrollData, checkKey, "employee has more than one check in the run")
		}
		employees[check.EmployeeNumber] = struct{}{}

		if len(check.Distributions) == 0 {
			continue
		}
		sum := DistributionTotal(check.Distributions)
		if !sum.Equal(check.NetPayAmount) {
			return validationError(opSubmitPayrollData, checkKey, "distributions total %s does not equal net pay %s", sum.String(), check.NetPayAmount.String())
		}
	}
	return nil
}

func DistributionTotal(dists []models.NetPayDistribution) decimal.Decimal {
	total := decimal.Zero
	for _, d := range dists {
		total = total.Add(d.Amount)
	}
	return total
}
