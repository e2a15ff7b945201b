package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type EmploymentStatus string

const (
	EmploymentStatusActive     EmploymentStatus = "active"
	EmploymentStatusTerminated EmploymentStatus = "terminated"
)

// Employee is keyed by (company, EmployeeNumber).
//
// Password is write-once on the platform: it is honored when the employee is first
// created and ignored on every later update. Status=terminated keeps the account
// reachable for historical documents; Active=false disables the account entirely.
type Employee struct {
	EmployeeNumber  string           `json:"employee_number" validate:"required,max=50"`
	NewHireID       string           `json:"new_hire_id,omitempty"`
	FirstName       string           `json:"first_name"`
	LastName        string           `json:"last_name"`
	EmailAddress    string           `json:"email_address,omitempty" validate:"omitempty,email"`
	Password        string           `json:"password,omitempty"`
	PrimaryAddress  *Address         `json:"primary_address,omitempty"`
	BirthDate       *time.Time       `json:"birth_date,omitempty"`
	HireDate        string           `json:"hire_date,omitempty"`
	SSNFull         string           `json:"ssn_full,omitempty"`
	SSNLastFour     string           `json:"ssn_last_four,omitempty" validate:"omitempty,len=4,numeric"`
	CellPhoneNumber string           `json:"cell_phone_number,omitempty"`
	Status          EmploymentStatus `json:"status,omitempty" validate:"omitempty,oneof=active terminated"`
	Active          *bool            `json:"active,omitempty"`
	FeatureList     []Feature        `json:"feature_list,omitempty"`
	HomeOrgItems    []HomeOrgItem    `json:"home_org_items,omitempty" validate:"dive"`
}

// HomeOrgItem references one OrgItem of one OrgGroup; at most one per group.
type HomeOrgItem struct {
	OrgGroupCode string `json:"org_group_code" validate:"required"`
	OrgItemCode  string `json:"org_item_code" validate:"required"`
}

// CanAutoActivate reports whether the platform can send the activation invite on its own.
func (e Employee) CanAutoActivate() bool {
	return e.EmailAddress != "" &&
		e.PrimaryAddress != nil && e.PrimaryAddress.ZipCode != "" &&
		e.BirthDate != nil &&
		e.SSNLastFour != ""
}

// NewHire is platform-originated and read-only here.
type NewHire struct {
	NewHireID       string   `json:"new_hire_id"`
	LegalFirstName  string   `json:"legal_first_name"`
	LegalLastName   string   `json:"legal_last_name"`
	EmailAddress    string   `json:"email_address"`
	BirthDate       string   `json:"birth_date"`
	HireDate        string   `json:"hire_date"`
	SSN             string   `json:"ssn"`
	CellPhoneNumber string   `json:"cell_phone_number"`
	HomeAddress     *Address `json:"home_address,omitempty"`
}

type EeTax struct {
	TaxID                       int             `json:"tax_id"`
	TaxName                     string          `json:"tax_name"`
	JurisdictionLevel           string          `json:"jurisdiction_level"`
	MaritalStatusCode           string          `json:"marital_status_code"`
	AllowanceNumber             int             `json:"allowance_number"`
	AdditionalWithholdingPerPay decimal.Decimal `json:"additional_withholding_per_pay"`
}

type DirectDepositRule struct {
	BankName          string          `json:"bank_name"`
	BankRoutingNumber string          `json:"bank_routing_number"`
	BankAccountNumber string          `json:"bank_account_number"`
	AccountType       string          `json:"account_type,omitempty"`
	PercentOfNetPay   decimal.Decimal `json:"percent_of_net_pay"`
	FixedAmount       decimal.Decimal `json:"fixed_amount"`
}
