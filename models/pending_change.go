package models

type ChangeType string

const (
	ChangeTypeNewHire             ChangeType = "AddNewHireToPayroll"
	ChangeTypeAddressUpdate       ChangeType = "EmployeeHomeAddressUpdate"
	ChangeTypePhoneUpdate         ChangeType = "EmployeeCellPhoneNumberUpdate"
	ChangeTypeTaxUpdate           ChangeType = "EmployeeTaxUpdate"
	ChangeTypeDirectDepositUpdate ChangeType = "EmployeeDirectDepositUpdate"
)

const (
	ParamCompanyCode    = "CompanyCode"
	ParamEmployeeNumber = "EmployeeNumber"
	ParamNewHireID      = "NewHireID"
	ParamTaxID          = "TaxID"
)

// PendingChange is an ESS edit waiting in the platform feed. It is redelivered on
// every poll until acknowledged by ChangeID.
type PendingChange struct {
	ChangeID   string            `json:"change_id"`
	ChangeType ChangeType        `json:"change_type"`
	Parameters map[string]string `json:"parameters"`
}

// Param returns a named parameter; unknown extra keys are simply never asked for.
func (c PendingChange) Param(key string) (string, bool) {
	v, ok := c.Parameters[key]
	return v, ok && v != ""
}
