package hubsync

import (
	"context"

	"github.com/mmdatafocus/hubsync_backend/models"
)

// Transport is the capability set the platform exposes. Implementations own wire
// format, authentication and any retry policy; the sync core never retries.
type Transport interface {
	GetPendingChanges(ctx context.Context) (*models.PendingChangesResult, error)
	GetEmployee(ctx context.Context, companyCode, employeeNumber string) (*models.EmployeeResult, error)
	GetNewHire(ctx context.Context, companyCode, newHireID string) (*models.NewHireResult, error)
	GetEmployeeTax(ctx context.Context, companyCode, employeeNumber string, taxID int) (*models.EmployeeTaxResult, error)
	GetEmployeeDirectDeposits(ctx context.Context, companyCode, employeeNumber string) (*models.DirectDepositsResult, error)
	AcknowledgePendingChange(ctx context.Context, changeID string) (*models.Result, error)

	AddOrUpdateCompany(ctx context.Context, company *models.Company) (*models.Result, error)
	AddOrUpdateOrgGroups(ctx context.Context, company *models.Company) (*models.Result, error)
	AddOrUpdateEmployees(ctx context.Context, company *models.Company) (*models.Result, error)
	ProcessPayrollData(ctx context.Context, req *models.PayrollDataRequest) (*models.Result, error)

	StagePayrollFile(ctx context.Context, companyCode string) (*models.Result, error)
	AppendToPayrollFile(ctx context.Context, file *models.PayrollFile) (*models.Result, error)
	CompletePayrollFile(ctx context.Context, requestID string, documentCount int) (*models.Result, error)
}

const (
	opGetPendingChanges   = "get_pending_changes"
	opGetEmployee         = "get_employee"
	opGetNewHire          = "get_new_hire"
	opGetEmployeeTax      = "get_employee_tax"
	opGetDirectDeposits   = "get_employee_direct_deposits"
	opAcknowledge         = "acknowledge_pending_change"
	opUpsertCompany       = "upsert_company"
	opUpsertOrgStructure  = "upsert_org_structure"
	opUpsertEmployees     = "upsert_employees"
	opSubmitPayrollData   = "submit_payroll_data"
	opStagePayrollFile    = "stage_payroll_file"
	opAppendPayrollFile   = "append_payroll_file"
	opCompletePayrollFile = "complete_payroll_file"
)
