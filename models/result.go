package models

// Result is the uniform outcome shape of every platform call.
type Result struct {
	IsSuccessful bool         `json:"is_successful"`
	Message      string       `json:"message,omitempty"`
	RequestID    string       `json:"request_id,omitempty"`
	BrokenRules  []BrokenRule `json:"broken_rules,omitempty"`
}

type BrokenRule struct {
	BrokenRuleCode  string `json:"broken_rule_code"`
	EntityUniqueKey string `json:"entity_unique_key"`
	Message         string `json:"message"`
}

type PendingChangesResult struct {
	Result
	Changes []PendingChange `json:"changes"`
}

type EmployeeResult struct {
	Result
	Employee *Employee `json:"employee,omitempty"`
}

type NewHireResult struct {
	Result
	NewHire *NewHire `json:"new_hire,omitempty"`
}

type EmployeeTaxResult struct {
	Result
	Tax *EeTax `json:"tax,omitempty"`
}

type DirectDepositsResult struct {
	Result
	Rules []DirectDepositRule `json:"rules"`
}

// Outcome exposes the embedded Result of any typed result.
func (r *Result) Outcome() *Result { return r }
