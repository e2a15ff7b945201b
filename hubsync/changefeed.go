package hubsync

import (
	"context"
	"errors"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/hubsync_backend/models"
	"github.com/mmdatafocus/hubsync_backend/utils"
)

// ErrPayrollUnavailable is wrapped by a PayrollSystem that could not be reached. Only
// that failure leaves a change pending; any other forwarding error is final for the change.
var ErrPayrollUnavailable = errors.New("payroll system unavailable")

// PayrollSystem is the system of record that receives employee self-service edits.
// ApplyNewHire is not assumed to be idempotent: a change whose hire was applied is
// always acknowledged.
type PayrollSystem interface {
	// ApplyNewHire returns the employee number the payroll engine assigned, or "" when
	// the hire is queued for later assignment.
	ApplyNewHire(ctx context.Context, companyCode string, newHire models.NewHire) (string, error)
	UpdateAddress(ctx context.Context, companyCode, employeeNumber string, address models.Address) error
	UpdatePhone(ctx context.Context, companyCode, employeeNumber, phone string) error
	UpdateTax(ctx context.Context, companyCode, employeeNumber string, tax models.EeTax) error
	UpdateDirectDeposits(ctx context.Context, companyCode, employeeNumber string, rules []models.DirectDepositRule) error
}

type OutcomeStatus string

const (
	OutcomeForwarded OutcomeStatus = "forwarded"
	OutcomeNoop      OutcomeStatus = "noop"
	OutcomeFailed    OutcomeStatus = "failed"
)

// ChangeOutcome reports what happened to one change of a poll batch.
type ChangeOutcome struct {
	ChangeID     string
	ChangeType   models.ChangeType
	CompanyCode  string
	Status       OutcomeStatus
	Err          error
	Acknowledged bool
	AckErr       error
}

type changeHandler func(ctx context.Context, c *ChangeFeedConsumer, change models.PendingChange) (OutcomeStatus, error)

type changeRoute struct {
	required []string
	handle   changeHandler
}

// changeRoutes lists, per change type, the parameters that must be present and the handler.
var changeRoutes = map[models.ChangeType]changeRoute{
	models.ChangeTypeNewHire: {
		required: []string{models.ParamCompanyCode, models.ParamNewHireID},
		handle:   handleNewHire,
	},
	models.ChangeTypeAddressUpdate: {
		required: []string{models.ParamCompanyCode, models.ParamEmployeeNumber},
		handle:   handleAddressUpdate,
	},
	models.ChangeTypePhoneUpdate: {
		required: []string{models.ParamCompanyCode, models.ParamEmployeeNumber},
		handle:   handlePhoneUpdate,
	},
	models.ChangeTypeTaxUpdate: {
		required: []string{models.ParamCompanyCode, models.ParamEmployeeNumber, models.ParamTaxID},
		handle:   handleTaxUpdate,
	},
	models.ChangeTypeDirectDepositUpdate: {
		required: []string{models.ParamCompanyCode, models.ParamEmployeeNumber},
		handle:   handleDirectDepositUpdate,
	},
}

// ChangeFeedConsumer drains the platform's pending change feed. Every change it handles
// is acknowledged whatever the outcome, except when the platform or the payroll system
// is unreachable: then the cycle stops and the remaining changes stay pending for the
// next poll.
type ChangeFeedConsumer struct {
	transport     Transport
	payroll       PayrollSystem
	masterData    *MasterDataSynchronizer
	roundTrip     bool
	phoneRegion   string
	logger        *logrus.Logger
	onAcknowledge func(ChangeOutcome)
}

type ConsumerOption func(*ChangeFeedConsumer)

// WithNewHireRoundTrip upserts the employee built from a new hire as soon as the payroll
// system returns its employee number.
func WithNewHireRoundTrip(masterData *MasterDataSynchronizer) ConsumerOption {
	return func(c *ChangeFeedConsumer) {
		c.masterData = masterData
		c.roundTrip = masterData != nil
	}
}

func WithPhoneRegion(region string) ConsumerOption {
	return func(c *ChangeFeedConsumer) {
		if region != "" {
			c.phoneRegion = region
		}
	}
}

// WithAcknowledgeHook is called after every acknowledgment attempt.
func WithAcknowledgeHook(fn func(ChangeOutcome)) ConsumerOption {
	return func(c *ChangeFeedConsumer) { c.onAcknowledge = fn }
}

func NewChangeFeedConsumer(transport Transport, payroll PayrollSystem, logger *logrus.Logger, opts ...ConsumerOption) *ChangeFeedConsumer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	c := &ChangeFeedConsumer{
		transport:   transport,
		payroll:     payroll,
		phoneRegion: "US",
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ProcessBatch polls once and handles every change returned. The returned outcomes cover
// the changes handled before any abort.
func (c *ChangeFeedConsumer) ProcessBatch(ctx context.Context) (outcomes []ChangeOutcome, err error) {
	ctx, span := startSpan(ctx, opGetPendingChanges, "")
	defer func() { endSpan(span, err) }()

	if err := canceled(ctx, opGetPendingChanges, ""); err != nil {
		return nil, err
	}
	batch, err := fetch(opGetPendingChanges, "", func() (*models.PendingChangesResult, error) {
		return c.transport.GetPendingChanges(ctx)
	})
	if err != nil {
		return nil, err
	}
	c.logger.WithField("changes", len(batch.Changes)).Debug("pending changes polled")

	outcomes = make([]ChangeOutcome, 0, len(batch.Changes))
	for _, change := range batch.Changes {
		outcome := c.handle(ctx, change)
		if abortsCycle(outcome.Err) {
			c.logFields(change).WithError(outcome.Err).Error("transport failure; remaining changes left pending")
			return outcomes, outcome.Err
		}

		c.acknowledge(ctx, &outcome)
		outcomes = append(outcomes, outcome)
		if IsKind(outcome.AckErr, KindTransport) {
			return outcomes, outcome.AckErr
		}
	}
	return outcomes, nil
}

func (c *ChangeFeedConsumer) handle(ctx context.Context, change models.PendingChange) ChangeOutcome {
	outcome := ChangeOutcome{ChangeID: change.ChangeID, ChangeType: change.ChangeType}
	outcome.CompanyCode, _ = change.Param(models.ParamCompanyCode)

	route, ok := changeRoutes[change.ChangeType]
	if !ok {
		c.logFields(change).Warn("unknown change type; acknowledging without action")
		outcome.Status = OutcomeNoop
		return outcome
	}
	for _, key := range route.required {
		if _, ok := change.Param(key); !ok {
			outcome.Status = OutcomeFailed
			outcome.Err = missingParameter(change, key)
			c.logFields(change).WithError(outcome.Err).Error("change is missing a required parameter")
			return outcome
		}
	}
	if err := canceled(ctx, string(change.ChangeType), change.ChangeID); err != nil {
		outcome.Status = OutcomeFailed
		outcome.Err = err
		return outcome
	}

	status, err := route.handle(ctx, c, change)
	outcome.Status = status
	outcome.Err = err
	if err != nil {
		outcome.Status = OutcomeFailed
		if !abortsCycle(err) {
			c.logFields(change).WithError(err).Error("change handling failed")
		}
		return outcome
	}
	c.logFields(change).WithField("outcome", status).Info("change handled")
	return outcome
}

func (c *ChangeFeedConsumer) acknowledge(ctx context.Context, outcome *ChangeOutcome) {
	_, err := call(opAcknowledge, outcome.ChangeID, func() (*models.Result, error) {
		return c.transport.AcknowledgePendingChange(ctx, outcome.ChangeID)
	})
	outcome.Acknowledged = err == nil
	outcome.AckErr = err
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"change_id":   outcome.ChangeID,
			"change_type": outcome.ChangeType,
		}).WithError(err).Error("acknowledge failed; change will be redelivered")
	}
	if c.onAcknowledge != nil {
		c.onAcknowledge(*outcome)
	}
}

func (c *ChangeFeedConsumer) logFields(change models.PendingChange) *logrus.Entry {
	company, _ := change.Param(models.ParamCompanyCode)
	return c.logger.WithFields(logrus.Fields{
		"change_id":    change.ChangeID,
		"change_type":  change.ChangeType,
		"company_code": company,
	})
}

// lookupEmployee fetches the employee a change refers to.
func (c *ChangeFeedConsumer) lookupEmployee(ctx context.Context, change models.PendingChange) (*models.Employee, error) {
	company, _ := change.Param(models.ParamCompanyCode)
	number, _ := change.Param(models.ParamEmployeeNumber)
	key := company + "/" + number
	res, err := fetch(opGetEmployee, key, func() (*models.EmployeeResult, error) {
		return c.transport.GetEmployee(ctx, company, number)
	})
	if err != nil {
		return nil, err
	}
	if res.Employee == nil {
		return nil, missingEntity(opGetEmployee, key, "employee")
	}
	return res.Employee, nil
}

// appliedError marks a failure that happened after the payroll system took the change.
// Redelivering it would apply the change twice, so it never aborts the cycle.
type appliedError struct{ error }

func (e appliedError) Unwrap() error { return e.error }

// IsAppliedFailure reports whether err came after the payroll system had applied the change.
func IsAppliedFailure(err error) bool {
	var applied appliedError
	return errors.As(err, &applied)
}

// abortsCycle reports whether err leaves the current change and everything behind it pending.
func abortsCycle(err error) bool {
	return IsKind(err, KindTransport) && !IsAppliedFailure(err)
}

// forwardError classifies a payroll-system failure. An unreachable system or a done
// context counts as transport; anything else is the payroll system rejecting the change.
func forwardError(change models.PendingChange, err error) error {
	op := "forward_" + string(change.ChangeType)
	if errors.Is(err, ErrPayrollUnavailable) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &SyncError{Kind: KindTransport, Op: op, EntityKey: change.ChangeID, Err: err}
	}
	return &SyncError{Kind: KindRemoteRejection, Op: op, EntityKey: change.ChangeID, Message: "payroll system rejected the change", Err: err}
}

func handleNewHire(ctx context.Context, c *ChangeFeedConsumer, change models.PendingChange) (OutcomeStatus, error) {
	company, _ := change.Param(models.ParamCompanyCode)
	id, _ := change.Param(models.ParamNewHireID)
	key := company + "/" + id

	res, err := fetch(opGetNewHire, key, func() (*models.NewHireResult, error) {
		return c.transport.GetNewHire(ctx, company, id)
	})
	if err != nil {
		return OutcomeFailed, err
	}
	if res.NewHire == nil {
		return OutcomeFailed, missingEntity(opGetNewHire, key, "new hire")
	}
	nh := *res.NewHire
	if nh.NewHireID == "" {
		nh.NewHireID = id
	}

	employeeNumber, err := c.payroll.ApplyNewHire(ctx, company, nh)
	if err != nil {
		return OutcomeFailed, forwardError(change, err)
	}
	if !c.roundTrip || employeeNumber == "" {
		return OutcomeForwarded, nil
	}

	employee, err := EmployeeFromNewHire(nh, employeeNumber)
	if err != nil {
		return OutcomeFailed, appliedError{err}
	}
	if _, err := c.masterData.UpsertEmployees(ctx, models.Company{CompanyCode: company, Employees: []models.Employee{employee}}); err != nil {
		c.logFields(change).WithField("employee_number", employeeNumber).WithError(err).
			Error("new hire applied but employee upsert failed; next employee sync carries it")
		return OutcomeFailed, appliedError{err}
	}
	return OutcomeForwarded, nil
}

func handleAddressUpdate(ctx context.Context, c *ChangeFeedConsumer, change models.PendingChange) (OutcomeStatus, error) {
	employee, err := c.lookupEmployee(ctx, change)
	if err != nil {
		return OutcomeFailed, err
	}
	if employee.PrimaryAddress == nil {
		return OutcomeNoop, nil
	}
	company, _ := change.Param(models.ParamCompanyCode)
	number, _ := change.Param(models.ParamEmployeeNumber)
	if err := c.payroll.UpdateAddress(ctx, company, number, *employee.PrimaryAddress); err != nil {
		return OutcomeFailed, forwardError(change, err)
	}
	return OutcomeForwarded, nil
}

func handlePhoneUpdate(ctx context.Context, c *ChangeFeedConsumer, change models.PendingChange) (OutcomeStatus, error) {
	employee, err := c.lookupEmployee(ctx, change)
	if err != nil {
		return OutcomeFailed, err
	}
	phone, err := utils.NormalizePhoneNumber(employee.CellPhoneNumber, c.phoneRegion)
	if err != nil {
		c.logFields(change).WithError(err).Warn("phone number could not be normalized; forwarding as entered")
	}
	if phone == "" {
		return OutcomeNoop, nil
	}
	company, _ := change.Param(models.ParamCompanyCode)
	number, _ := change.Param(models.ParamEmployeeNumber)
	if err := c.payroll.UpdatePhone(ctx, company, number, phone); err != nil {
		return OutcomeFailed, forwardError(change, err)
	}
	return OutcomeForwarded, nil
}

func handleTaxUpdate(ctx context.Context, c *ChangeFeedConsumer, change models.PendingChange) (OutcomeStatus, error) {
	rawTaxID, _ := change.Param(models.ParamTaxID)
	taxID, err := strconv.Atoi(rawTaxID)
	if err != nil {
		return OutcomeFailed, validationError(string(change.ChangeType), change.ChangeID, "tax id %q is not a number", rawTaxID)
	}
	if _, err := c.lookupEmployee(ctx, change); err != nil {
		return OutcomeFailed, err
	}

	company, _ := change.Param(models.ParamCompanyCode)
	number, _ := change.Param(models.ParamEmployeeNumber)
	key := company + "/" + number + "/" + rawTaxID
	res, err := fetch(opGetEmployeeTax, key, func() (*models.EmployeeTaxResult, error) {
		return c.transport.GetEmployeeTax(ctx, company, number, taxID)
	})
	if err != nil {
		return OutcomeFailed, err
	}
	if res.Tax == nil {
		return OutcomeFailed, missingEntity(opGetEmployeeTax, key, "tax election")
	}
	if err := c.payroll.UpdateTax(ctx, company, number, *res.Tax); err != nil {
		return OutcomeFailed, forwardError(change, err)
	}
	return OutcomeForwarded, nil
}

func handleDirectDepositUpdate(ctx context.Context, c *ChangeFeedConsumer, change models.PendingChange) (OutcomeStatus, error) {
	if _, err := c.lookupEmployee(ctx, change); err != nil {
		return OutcomeFailed, err
	}
	company, _ := change.Param(models.ParamCompanyCode)
	number, _ := change.Param(models.ParamEmployeeNumber)
	key := company + "/" + number
	res, err := fetch(opGetDirectDeposits, key, func() (*models.DirectDepositsResult, error) {
		return c.transport.GetEmployeeDirectDeposits(ctx, company, number)
	})
	if err != nil {
		return OutcomeFailed, err
	}
	if err := c.payroll.UpdateDirectDeposits(ctx, company, number, res.Rules); err != nil {
		return OutcomeFailed, forwardError(change, err)
	}
	return OutcomeForwarded, nil
}
