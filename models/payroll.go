package models

import (
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
)

type PayrollStatus string

const (
	PayrollStatusScheduled PayrollStatus = "scheduled"
	PayrollStatusProcessed PayrollStatus = "processed"
)

// PayrollRun is identified on the platform by (CheckDate, ProcessNumber), not by a surrogate id.
// ProcessNumber is set exactly when Status is processed.
type PayrollRun struct {
	PeriodStartDate       time.Time        `json:"period_start_date"`
	PeriodEndDate         time.Time        `json:"period_end_date"`
	InputDate             time.Time        `json:"input_date"`
	CheckDate             time.Time        `json:"check_date" validate:"required"`
	ProcessNumber         *int             `json:"process_number,omitempty" validate:"omitempty,gt=0"`
	Status                PayrollStatus    `json:"status" validate:"required,oneof=scheduled processed"`
	CashRequirementAmount *decimal.Decimal `json:"cash_requirement_amount,omitempty"`
	AchDebitAmount        *decimal.Decimal `json:"ach_debit_amount,omitempty"`
	AchDebitDate          *time.Time       `json:"ach_debit_date,omitempty"`
	Checks                []EmployeeCheck  `json:"checks,omitempty" validate:"dive"`
}

// Key renders the run identity, e.g. "2024-05-17/412" or "2024-05-31/scheduled".
func (p PayrollRun) Key() string {
	if p.ProcessNumber == nil {
		return p.CheckDate.Format(DateLayout) + "/scheduled"
	}
	return fmt.Sprintf("%s/%d", p.CheckDate.Format(DateLayout), *p.ProcessNumber)
}

// EmployeeCheck is keyed by EmployeeNumber within its run. A fully printed check has no distributions.
type EmployeeCheck struct {
	EmployeeNumber string               `json:"employee_number" validate:"required"`
	NetPayAmount   decimal.Decimal      `json:"net_pay_amount"`
	Distributions  []NetPayDistribution `json:"distributions,omitempty" validate:"dive"`
}

// NetPayDistribution accepts either the full bank account number or only its last digits.
type NetPayDistribution struct {
	DistributionName  string          `json:"distribution_name"`
	BankAccountNumber string          `json:"bank_account_number" validate:"required"`
	Amount            decimal.Decimal `json:"amount"`
}

type PayrollDataRequest struct {
	Companies []Company `json:"companies"`
}

type PayrollFileType string

const (
	PayrollFileTypeEmployeeCheckStub PayrollFileType = "employee_check_stub"
	PayrollFileTypeW2                PayrollFileType = "w2"
	PayrollFileType1099              PayrollFileType = "1099"
	PayrollFileType1095              PayrollFileType = "1095"
)

// PayrollDocument describes one document of a payroll run. Its bytes are never stored
// locally; SourceURI addresses them (local path or gs://bucket/object).
type PayrollDocument struct {
	CheckDate      time.Time       `json:"check_date" validate:"required"`
	ProcessNumber  int             `json:"process_number" validate:"gt=0"`
	EmployeeNumber string          `json:"employee_number" validate:"required"`
	FileType       PayrollFileType `json:"file_type" validate:"required,oneof=employee_check_stub w2 1099 1095"`
	Amount         decimal.Decimal `json:"amount"`
	SourceURI      string          `json:"source_uri"`
}

// PayrollFile is the payload of one append call inside a staging transaction.
type PayrollFile struct {
	RequestID      string          `json:"request_id"`
	CompanyCode    string          `json:"company_code"`
	EventDate      time.Time       `json:"event_date"`
	ProcessNumber  int             `json:"process_number"`
	EmployeeNumber string          `json:"employee_number"`
	FileType       PayrollFileType `json:"file_type"`
	Amount         decimal.Decimal `json:"amount"`
	ContentLength  int64           `json:"content_length"`
	FileContents   io.Reader       `json:"-"`
}

const DateLayout = "2006-01-02"
